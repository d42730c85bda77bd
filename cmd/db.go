package cmd

import (
	"github.com/emrgen/pagenote/internal/config"
	"github.com/emrgen/pagenote/internal/model"
	"github.com/emrgen/pagenote/internal/store"
	"github.com/spf13/cobra"
)

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "db commands",
}

func init() {
	dbCmd.AddCommand(Migrate())
}

func Migrate() *cobra.Command {
	command := &cobra.Command{
		Use:   "migrate",
		Short: "Migrate the database",
		Run: func(cmd *cobra.Command, args []string) {
			cnf := config.Load()
			db, err := store.Open(cnf.DB.Dialect, cnf.DB.DSN)
			if err != nil {
				panic(err)
			}
			err = model.Migrate(db)
			if err != nil {
				panic(err)
			}
		},
	}

	return command
}
