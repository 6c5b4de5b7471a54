// Copyright 2025 AtticFS Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var healthcheckCmd = &cobra.Command{
	Use:   "healthcheck",
	Short: "Probe a running gateway's health endpoint",
	Long: `Probe the /healthz endpoint of a running gateway and exit non-zero
when any dependency is down. Intended for container health checks.`,
	Run: runHealthcheck,
}

func init() {
	rootCmd.AddCommand(healthcheckCmd)

	f := healthcheckCmd.Flags()
	f.String("healthcheck_addr", "http://localhost:8333", "Base URL of the gateway admin listener")
	f.Duration("healthcheck_timeout", 5*time.Second, "Probe timeout")

	viper.BindPFlags(f)
}

func runHealthcheck(cmd *cobra.Command, args []string) {
	f := NewFlagLoader(cmd)
	addr := strings.TrimSuffix(f.String("healthcheck_addr"), "/")

	client := &http.Client{Timeout: f.Duration("healthcheck_timeout")}
	resp, err := client.Get(addr + "/healthz")
	if err != nil {
		fmt.Fprintf(os.Stderr, "unreachable: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	var status struct {
		Database bool `json:"database"`
		Channel  bool `json:"channel"`
		Cache    bool `json:"cache"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		fmt.Fprintf(os.Stderr, "bad response: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("database: %v\nchannel:  %v\ncache:    %v\n", status.Database, status.Channel, status.Cache)
	if resp.StatusCode != http.StatusOK {
		os.Exit(1)
	}
}
