// Copyright 2025 James Ross
package main

import (
	"fmt"

	"github.com/TGAC/grassroots-core/internal/config"
	"github.com/TGAC/grassroots-core/internal/registry"
	"github.com/spf13/cobra"
)

var listServicesCmd = &cobra.Command{
	Use:   "list-services",
	Short: "Load the local registry and print every discovered service",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("config invalid: %w", err)
		}

		reg := registry.New(cfg.Registry, registry.Global(), nil)
		defer reg.Close()
		if err := reg.Reload(); err != nil {
			return fmt.Errorf("registry reload: %w", err)
		}

		services := reg.Services()
		if len(services) == 0 {
			fmt.Println("no services discovered")
			return nil
		}
		for _, s := range services {
			fmt.Printf("%-24s %-24s %s\n", s.Name, s.Synchronicity, s.Description)
		}
		return nil
	},
}
