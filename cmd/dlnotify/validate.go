package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"dlnotify/internal/config"
	logx "dlnotify/pkg/logx"
)

func newValidateCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a configuration file without starting plugins",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.NewConfigManager(configPath).Parse()
			if err != nil {
				return fmt.Errorf("parse config: %w", err)
			}
			h := newHost(logx.Nop(), cmd.OutOrStdout())
			if err := h.validate(cmd.Context(), cfg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Configuration valid: %s\n", configPath)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "./config.yaml", "Configuration file path (YAML or JSON)")
	return cmd
}
