package commands

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var viewPort int

var viewCmd = &cobra.Command{
	Use:   "view [start|stop]",
	Short: "Control the managed view server",
	Long: `Warm up or stop the managed Inspect view server through a running
bridge. Without this the server launches lazily on the first webview
request.`,
	Args: cobra.ExactArgs(1),
	RunE: runView,
}

func init() {
	viewCmd.Flags().IntVarP(&viewPort, "port", "p", 7676, "Bridge port")
}

func runView(cmd *cobra.Command, args []string) error {
	action := strings.ToLower(args[0])
	if action != "start" && action != "stop" {
		return fmt.Errorf("unknown action %q, expected start or stop", args[0])
	}

	// Launches wait on the readiness sentinel, so allow the full window.
	client := &http.Client{Timeout: 2 * time.Minute}

	url := fmt.Sprintf("http://127.0.0.1:%d/server/view/%s", viewPort, action)
	resp, err := client.Post(url, "application/json", nil)
	if err != nil {
		return fmt.Errorf("bridge not reachable on port %d: %w", viewPort, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Error.Message != "" {
			return fmt.Errorf("%s failed: %s", action, apiErr.Error.Message)
		}
		return fmt.Errorf("%s failed with status %d", action, resp.StatusCode)
	}

	if action == "start" {
		var started struct {
			Port int `json:"port"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&started); err == nil {
			fmt.Printf("view server running on port %d\n", started.Port)
			return nil
		}
		fmt.Println("view server started")
		return nil
	}
	fmt.Println("view server stopped")
	return nil
}
