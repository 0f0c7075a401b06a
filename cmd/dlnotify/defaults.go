package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"dlnotify/internal/config"
	"dlnotify/internal/plugin/builtin/startdownload"
)

func newDefaultsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "defaults",
		Short: "Print a default configuration as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := defaultConfigYAML()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(b)
			return err
		},
	}
}

func defaultConfigYAML() ([]byte, error) {
	cfg := config.Config{
		Logging: config.LoggingConfig{Level: "info", Console: true},
		Plugins: map[string]config.PluginConfigRaw{
			startdownload.Name: startdownload.DefaultConfig(),
		},
	}
	// Round-trip through JSON so raw plugin blocks render as YAML maps.
	jb, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("encode defaults: %w", err)
	}
	var generic map[string]any
	if err := json.Unmarshal(jb, &generic); err != nil {
		return nil, fmt.Errorf("encode defaults: %w", err)
	}
	return config.MarshalYAML(generic)
}
