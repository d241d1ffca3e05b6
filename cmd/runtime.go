/*
Copyright © 2026 Michael Putera Wardana <michaelputeraw@gmail.com>
*/
package cmd

import (
	"github.com/krobus00/bot-service/internal/bootstrap"
	"github.com/spf13/cobra"
)

// runtimeCmd represents the runtime command
var runtimeCmd = &cobra.Command{
	Use:   "runtime",
	Short: "Run bots with data sources, order pipeline and control listeners",
	Long: `Run every configured bot in one process. Without --bot-id the bots are
started only when bot.start_all is set; otherwise wait for bot-control commands.`,
	Run: func(cmd *cobra.Command, args []string) {
		botID, _ := cmd.Flags().GetString("bot-id")
		bootstrap.StartRuntime(cfg, botID)
	},
}

func init() {
	rootCmd.AddCommand(runtimeCmd)
	runtimeCmd.Flags().String("bot-id", "", "start only this bot")
}
