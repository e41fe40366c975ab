// Copyright 2025 James Ross
package main

import (
	"fmt"

	"github.com/TGAC/grassroots-core/internal/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var dumpEffectiveConfig bool

var validateConfigCmd = &cobra.Command{
	Use:   "validate-config",
	Short: "Load and validate a grassroots.yaml file",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("config invalid: %w", err)
		}
		fmt.Printf("config OK: provider=%q schema=%d.%d listen=%s\n",
			cfg.Provider.Name, cfg.Schema.Major, cfg.Schema.Minor, cfg.ListenAddr)
		if dumpEffectiveConfig {
			out, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("dump effective config: %w", err)
			}
			fmt.Println("---")
			fmt.Print(string(out))
		}
		return nil
	},
}

func init() {
	validateConfigCmd.Flags().BoolVar(&dumpEffectiveConfig, "dump", false, "print the effective, defaulted config as YAML")
}
