// Copyright 2025 James Ross
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	callServerURI string
	callOperation string
	callServices  string
	callTimeout   time.Duration
)

var callCmd = &cobra.Command{
	Use:   "call",
	Short: "Send a request envelope to a running grassrootsd and print its response",
	Long: `call builds a minimal request envelope from --operation and/or
--services (a raw JSON array, e.g. '[{"name":"blast","run":true}]') and
POSTs it to --server's /dispatch endpoint.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if callServerURI == "" {
			return fmt.Errorf("--server is required")
		}

		envelope := map[string]interface{}{}
		if callOperation != "" {
			envelope["operations"] = callOperation
		}
		if callServices != "" {
			var services interface{}
			if err := json.Unmarshal([]byte(callServices), &services); err != nil {
				return fmt.Errorf("--services is not valid JSON: %w", err)
			}
			envelope["services"] = services
		}

		body, err := json.Marshal(envelope)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
		defer cancel()

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, callServerURI+"/dispatch", bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return fmt.Errorf("dispatch request failed: %w", err)
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}

		var pretty bytes.Buffer
		if err := json.Indent(&pretty, raw, "", "  "); err != nil {
			fmt.Fprintln(os.Stdout, string(raw))
			return nil
		}
		fmt.Fprintln(os.Stdout, pretty.String())
		return nil
	},
}

func init() {
	callCmd.Flags().StringVar(&callServerURI, "server", "", "base URI of a running grassrootsd (e.g. http://localhost:8080)")
	callCmd.Flags().StringVar(&callOperation, "operation", "", "operation tag, e.g. LIST_ALL_SERVICES")
	callCmd.Flags().StringVar(&callServices, "services", "", "raw JSON services array to run")
	callCmd.Flags().DurationVar(&callTimeout, "timeout", 30*time.Second, "request timeout")
}
