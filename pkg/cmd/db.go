package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yeisme/docvault/pkg/configs"
	"github.com/yeisme/docvault/pkg/internal/model"
	"github.com/yeisme/docvault/pkg/internal/storage/db"
)

var (
	dbCmd = &cobra.Command{
		Use:   "db",
		Short: "metadata database maintenance",
	}

	dbMigrateCmd = &cobra.Command{
		Use:   "migrate",
		Short: "create or update the metadata tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := configs.GetConfig()

			client, err := db.New(cmd.Context(), cfg.DB, false)
			if err != nil {
				return err
			}

			sqlDB, err := client.DB.DB()
			if err != nil {
				return err
			}
			defer sqlDB.Close()

			if err := client.AutoMigrate(model.Models()...); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "migrated %d tables on %s\n", len(model.Models()), cfg.DB.Endpoint())

			return nil
		},
	}
)

// registerDBCommands 注册数据库相关命令.
func registerDBCommands() {
	rootCmd.AddCommand(dbCmd)

	dbCmd.AddCommand(dbMigrateCmd)
}
