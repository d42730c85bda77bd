package cmd

import (
	"context"
	"fmt"

	pagenote "github.com/emrgen/pagenote"
	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "sync commands",
}

func init() {
	rootCmd.AddCommand(syncCmd)
	syncCmd.SetHelpCommand(&cobra.Command{Use: "no-help", Hidden: true})
	syncCmd.AddCommand(pushCmd())
	syncCmd.AddCommand(pullCmd())

	rootCmd.AddCommand(exportCmd())
}

func pushCmd() *cobra.Command {
	command := &cobra.Command{
		Use:   "push",
		Short: "push the document to the configured backends now",
		Run: func(cmd *cobra.Command, args []string) {
			client := pagenote.NewClient(daemonPort)
			if err := client.Push(context.Background()); err != nil {
				logrus.Error(err)
				return
			}
			color.Green("pushed")
		},
	}

	return command
}

func pullCmd() *cobra.Command {
	command := &cobra.Command{
		Use:   "pull",
		Short: "pull the remote document and merge it into the local copy",
		Run: func(cmd *cobra.Command, args []string) {
			client := pagenote.NewClient(daemonPort)
			if err := client.Pull(context.Background()); err != nil {
				logrus.Error(err)
				return
			}
			color.Green("pulled")
		},
	}

	return command
}

func exportCmd() *cobra.Command {
	command := &cobra.Command{
		Use:   "export",
		Short: "export all notes as markdown",
		Run: func(cmd *cobra.Command, args []string) {
			client := pagenote.NewClient(daemonPort)
			md, err := client.Export(context.Background())
			if err != nil {
				logrus.Error(err)
				return
			}
			fmt.Print(md)
		},
	}

	return command
}
