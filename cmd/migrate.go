/*
Copyright © 2026 Michael Putera Wardana <michaelputeraw@gmail.com>
*/
package cmd

import (
	"github.com/krobus00/bot-service/internal/bootstrap"
	"github.com/spf13/cobra"
)

// migrateCmd represents the migrate command
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "perform database migration",
	Long:  `perform database migration`,
	Run: func(cmd *cobra.Command, args []string) {
		opts := bootstrap.MigrateOptions{}
		opts.DatabaseName, _ = cmd.Flags().GetString("databaseName")
		opts.Action, _ = cmd.Flags().GetString("action")
		opts.Name, _ = cmd.Flags().GetString("name")
		opts.Version, _ = cmd.Flags().GetInt64("version")
		bootstrap.StartMigrate(cfg, opts)
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.PersistentFlags().String("action", "up", "action create|up|up-by-one|up-to|down|down-to|reset|status")
	migrateCmd.PersistentFlags().Int64("version", 1, "version")
	migrateCmd.PersistentFlags().String("name", "", "migration name")
	migrateCmd.PersistentFlags().String("databaseName", "bot", "database name")
}
