package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"claude_gateway/internal/storage"
)

func init() {
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create the gateway tables if they do not exist",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			dbCfg, err := storage.DBConfigFrom(cfg.Database, cfg.Cache)
			if err != nil {
				return err
			}
			db, err := storage.NewDB(dbCfg)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := db.Migrate(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema up to date (%s)\n", db.Dialect())
			return nil
		},
	}
	rootCmd.AddCommand(migrateCmd)
}
