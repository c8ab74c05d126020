package cli

import (
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/pawlink/pawlink-chat/cli/config"
)

var systemCmd = &cobra.Command{
	Use:   "system",
	Short: "System information",
	Long:  `Display system information and diagnostics.`,
}

var systemInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show system info",
	Long:  `Display detailed system information including OS, architecture, and server status.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println("System Information:")
		fmt.Println("-------------------")
		fmt.Printf("OS: %s\n", runtime.GOOS)
		fmt.Printf("Architecture: %s\n", runtime.GOARCH)
		fmt.Printf("Go Version: %s\n", runtime.Version())
		fmt.Printf("CPUs: %d\n", runtime.NumCPU())

		cfg, err := config.Load()
		if err != nil {
			fmt.Println("\nConfiguration: Not initialized")
		} else {
			fmt.Println("\nConfiguration:")
			fmt.Printf("  Server Host: %s\n", cfg.Server.Host)
			fmt.Printf("  HTTP Port: %d\n", cfg.Server.HTTPPort)
			fmt.Printf("  Transport: %s\n", cfg.Chat.Transport)
		}

		fmt.Println("\nServer Connectivity:")
		serverURL, err := config.GetServerURL()
		if err != nil {
			fmt.Println("  Status: Unknown (Config error)")
			return nil
		}

		client := http.Client{
			Timeout: 2 * time.Second,
		}
		resp, err := client.Get(serverURL + "/readyz")
		if err != nil {
			fmt.Printf("  Status: ✗ Unreachable (%s)\n", err.Error())
			return nil
		}
		defer resp.Body.Close()

		if resp.StatusCode == 200 {
			fmt.Printf("  Status: ✓ Online (HTTP %d)\n", resp.StatusCode)
		} else {
			fmt.Printf("  Status: ⚠ Issues (HTTP %d)\n", resp.StatusCode)
		}

		// Readiness payload includes live connection counts.
		var ready struct {
			WSClients  int `json:"ws_clients"`
			SSEStreams int `json:"sse_streams"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&ready); err == nil {
			fmt.Printf("  WebSocket clients: %d\n", ready.WSClients)
			fmt.Printf("  SSE streams: %d\n", ready.SSEStreams)
		}

		return nil
	},
}

func init() {
	systemCmd.AddCommand(systemInfoCmd)
}
