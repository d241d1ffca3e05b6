/*
Copyright © 2026 Michael Putera Wardana <michaelputeraw@gmail.com>
*/
package cmd

import (
	"github.com/krobus00/bot-service/internal/bootstrap"
	"github.com/spf13/cobra"
)

// datasourceCmd represents the datasource command
var datasourceCmd = &cobra.Command{
	Use:   "datasource",
	Short: "Stream market data and log it",
	Long:  `Connect to the exchange websocket, subscribe to trades and candles of the given instruments and log every update.`,
	Run: func(cmd *cobra.Command, args []string) {
		instIDs, _ := cmd.Flags().GetStringSlice("inst-id")
		bars, _ := cmd.Flags().GetStringSlice("bar")
		bootstrap.StartDatasource(cfg, instIDs, bars)
	},
}

func init() {
	rootCmd.AddCommand(datasourceCmd)
	datasourceCmd.Flags().StringSlice("inst-id", []string{"BTC-USDT"}, "instrument ids")
	datasourceCmd.Flags().StringSlice("bar", nil, "candle bars such as 1m,5m")
}
