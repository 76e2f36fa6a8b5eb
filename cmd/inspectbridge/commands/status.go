package commands

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/inspectbridge/inspectbridge/pkg/types"
)

var statusPort int

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show bridge and view-server status",
	Long:  `Query a running bridge for package availability and server states.`,
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().IntVarP(&statusPort, "port", "p", 7676, "Bridge port")
}

func runStatus(cmd *cobra.Command, args []string) error {
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(fmt.Sprintf("http://127.0.0.1:%d/status", statusPort))
	if err != nil {
		return fmt.Errorf("bridge not reachable on port %d: %w", statusPort, err)
	}
	defer resp.Body.Close()

	var st types.BridgeStatus
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return fmt.Errorf("invalid status response: %w", err)
	}

	if st.Package.Available {
		version := st.Package.Version
		if version == "" {
			version = "unknown"
		}
		fmt.Printf("inspect: %s (version %s)\n", st.Package.BinPath, version)
	} else {
		fmt.Println("inspect: not installed")
	}

	for _, srv := range st.Servers {
		switch srv.State {
		case types.ServerRunning:
			fmt.Printf("%-6s %s (port %d, pid %d)\n", srv.Name, srv.State, srv.Port, srv.PID)
		default:
			fmt.Printf("%-6s %s\n", srv.Name, srv.State)
		}
	}
	return nil
}
