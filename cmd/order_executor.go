/*
Copyright © 2026 Michael Putera Wardana <michaelputeraw@gmail.com>
*/
package cmd

import (
	"github.com/krobus00/bot-service/internal/bootstrap"
	"github.com/spf13/cobra"
)

// orderExecutorCmd represents the order executor command
var orderExecutorCmd = &cobra.Command{
	Use:   "order-executor",
	Short: "Execute order events from jetstream",
	Long:  `The order executor consumes order creation events published by runtimes, submits them to the exchange and stores the results.`,
	Run: func(cmd *cobra.Command, args []string) {
		bootstrap.StartOrderExecutor(cfg)
	},
}

func init() {
	rootCmd.AddCommand(orderExecutorCmd)
}
