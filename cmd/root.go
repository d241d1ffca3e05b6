/*
Copyright © 2026 Michael Putera Wardana <michaelputeraw@gmail.com>
*/
package cmd

import (
	"io"
	"os"

	"github.com/krobus00/bot-service/internal/config"
	"github.com/krobus00/bot-service/internal/infrastructure"
	"github.com/spf13/cobra"
)

var (
	configPath string
	cfg        *config.EnvConfig
	logCloser  io.Closer
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "bot-service",
	Short: "Run trading bots against exchange market data",
	Long: `bot-service hosts trading bots in one process. Market data is streamed
from the exchanges into a subscription hub, bots react to it and place orders
through the order manager, and an order executor submits them.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.LoadConfig(configPath)
		if err != nil {
			return err
		}
		cfg = loaded

		logCloser, err = infrastructure.SetupLogger(cfg.Env, cfg.Log)
		return err
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if logCloser == nil {
			return nil
		}
		return logCloser.Close()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path (default: ./config.yml)")
}
