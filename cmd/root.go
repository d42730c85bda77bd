package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "pagenote",
	Short: "encrypted web note manager with multi-backend sync",
	Example: `pagenote serve
pagenote note add -d example.com -p /articles/1 -t "some note"
pagenote note list -d example.com -p /articles/1
pagenote note rm -d example.com -p /articles/1 -n <note-id>
pagenote pin -d example.com
pagenote sync push
pagenote sync pull
pagenote export`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(dbCmd)
	rootCmd.SetHelpCommand(&cobra.Command{Use: "no-help", Hidden: true})

	rootCmd.CompletionOptions.HiddenDefaultCmd = true
	cobra.EnableCommandSorting = false
}
