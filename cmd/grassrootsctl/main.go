// Copyright 2025 James Ross
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "grassrootsctl",
	Short: "Operator CLI for a grassrootsd server",
	Long: `grassrootsctl validates configuration, lists locally registered
services, and sends one-off request envelopes to a running grassrootsd,
without standing up a full client library.`,
}

func main() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config/grassroots.yaml", "Path to grassroots.yaml")
	rootCmd.AddCommand(validateConfigCmd, listServicesCmd, callCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
