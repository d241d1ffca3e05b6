/*
Copyright © 2026 Michael Putera Wardana <michaelputeraw@gmail.com>
*/
package cmd

import (
	"github.com/krobus00/bot-service/internal/bootstrap"
	"github.com/spf13/cobra"
)

// listStrategyCmd represents the list-strategy command
var listStrategyCmd = &cobra.Command{
	Use:   "list-strategy",
	Short: "List strategy kinds and configured bots",
	Run: func(cmd *cobra.Command, args []string) {
		bootstrap.ListStrategy(cfg, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(listStrategyCmd)
}
