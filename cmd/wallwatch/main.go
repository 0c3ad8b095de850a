package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var configPath string

func main() {
	_ = godotenv.Load() // best-effort: .env is optional, carries secrets like telegram_bot_token

	root := &cobra.Command{
		Use:   "wallwatch",
		Short: "Order book wall detection and alerting",
		Long:  "wallwatch watches depth-of-book snapshots for large resting orders, tracks them through a candidate/confirmed/consuming lifecycle, and reports the result to configured sinks.",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "path to the YAML configuration file")

	root.AddCommand(newRunCmd())
	root.AddCommand(newValidateConfigCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
