package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wallwatch/wallwatch/internal/config"
)

func newValidateConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate-config",
		Short: "Load and validate the configuration file without connecting to anything",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return exitWith(err)
			}
			if _, err := cfg.BuildResolver(); err != nil {
				return exitWith(err)
			}
			fmt.Printf("config OK: %d symbol(s), transport %s\n", len(cfg.Symbols), cfg.TransportURL)
			return nil
		},
	}
}
