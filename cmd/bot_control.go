/*
Copyright © 2026 Michael Putera Wardana <michaelputeraw@gmail.com>
*/
package cmd

import (
	"github.com/krobus00/bot-service/internal/bootstrap"
	"github.com/krobus00/bot-service/internal/config"
	"github.com/spf13/cobra"
)

// botControlCmd represents the bot-control command
var botControlCmd = &cobra.Command{
	Use:       "bot-control <start_bot|stop_bot|start_all|stop_all>",
	Short:     "Send a control command to a running runtime",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"start_bot", "stop_bot", "start_all", "stop_all"},
	Run: func(cmd *cobra.Command, args []string) {
		botID, _ := cmd.Flags().GetString("bot-id")
		addr, _ := cmd.Flags().GetString("addr")
		transport, _ := cmd.Flags().GetString("transport")
		bootstrap.SendBotControl(cfg, args[0], botID, addr, transport)
	},
}

func init() {
	rootCmd.AddCommand(botControlCmd)
	botControlCmd.Flags().String("bot-id", "", "target bot for start_bot and stop_bot")
	botControlCmd.Flags().String("addr", "", "bot control listener address (default: port.bot_control)")
	botControlCmd.Flags().String("transport", "tcp", "tcp|"+config.TransportJetstream)
}
