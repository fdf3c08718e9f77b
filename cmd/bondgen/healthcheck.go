// healthcheck.go implements the Docker HEALTHCHECK command that verifies
// the HTTP server is responding without requiring external tools.

package main

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// healthcheckCmd performs a lightweight HTTP health check against the local
// server, so the container image does not need curl or wget.
//
// Exit 0 = healthy, Exit 1 = unhealthy.
var healthcheckCmd = &cobra.Command{
	Use:   "healthcheck [port]",
	Short: "Check that a local server is responding",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		port := fmt.Sprint(cfg.Server.Port)
		if len(args) > 0 {
			port = args[0]
		}
		return healthcheck("http://localhost:" + port + strings.TrimRight(cfg.Server.BasePath, "/"))
	},
}

func healthcheck(base string) error {
	client := &http.Client{Timeout: 3 * time.Second}
	resp, err := client.Get(base + "/api/info")
	if err != nil {
		return fmt.Errorf("healthcheck failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("healthcheck failed: HTTP %d", resp.StatusCode)
	}
	return nil
}
