package commands

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/triplexrpc/triplex/internal/cli/health"
	"github.com/triplexrpc/triplex/internal/cli/output"
	"github.com/triplexrpc/triplex/internal/cli/timeutil"
	"github.com/triplexrpc/triplex/pkg/config"
)

var (
	statusOutput  string
	statusPidFile string
	statusPort    int
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show server status",
	Long: `Display the current status of the Triplex server.

This command checks the server health by calling the health endpoint on
the WebSocket port and displays each gateway with its active connection
count.

Examples:
  # Check status (port resolved from config)
  triplex status

  # Check status with explicit port
  triplex status --port 9000

  # Output as JSON
  triplex status --output json`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusPidFile, "pid-file", "", "Path to PID file (default: $XDG_STATE_HOME/triplex/triplex.pid)")
	statusCmd.Flags().IntVar(&statusPort, "port", 0, "Health endpoint port (default: websocket port from config)")
	statusCmd.Flags().StringVarP(&statusOutput, "output", "o", "table", "Output format (table|json|yaml)")
}

// ServerStatus represents the server status information.
type ServerStatus struct {
	Running          bool                   `json:"running" yaml:"running"`
	PID              int                    `json:"pid,omitempty" yaml:"pid,omitempty"`
	Healthy          bool                   `json:"healthy" yaml:"healthy"`
	Message          string                 `json:"message" yaml:"message"`
	StartedAt        string                 `json:"started_at,omitempty" yaml:"started_at,omitempty"`
	Uptime           string                 `json:"uptime,omitempty" yaml:"uptime,omitempty"`
	TotalConnections int32                  `json:"total_connections" yaml:"total_connections"`
	Gateways         []health.GatewayStatus `json:"gateways,omitempty" yaml:"gateways,omitempty"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(statusOutput)
	if err != nil {
		return err
	}

	status := ServerStatus{
		Running: false,
		Healthy: false,
		Message: "Server is not running",
	}

	pidPath := statusPidFile
	if pidPath == "" {
		pidPath = defaultPidFile()
	}
	if pid := livePid(pidPath); pid != 0 {
		status.Running = true
		status.PID = pid
	}

	// Check health endpoint (works whether or not a PID file exists)
	healthURL := fmt.Sprintf("http://localhost:%d/healthz", resolveStatusPort())
	client := &http.Client{Timeout: 2 * time.Second}

	resp, err := client.Get(healthURL)
	if err == nil {
		defer func() { _ = resp.Body.Close() }()

		var healthResp health.Response
		if err := json.NewDecoder(resp.Body).Decode(&healthResp); err == nil {
			status.Running = true
			status.Healthy = healthResp.Status == "healthy"
			status.StartedAt = healthResp.Data.StartedAt
			status.Uptime = healthResp.Data.Uptime
			status.Gateways = healthResp.Data.Gateways
			status.TotalConnections = healthResp.Data.TotalConnections
			if status.Healthy {
				status.Message = "Server is running and healthy"
			} else {
				status.Message = fmt.Sprintf("Server is running but unhealthy: %s", healthResp.Error)
			}
		} else {
			status.Running = true
			status.Message = "Server is running but health response invalid"
		}
	} else if status.Running {
		// PID file says running but health check failed
		status.Message = "Server process exists but health check failed"
	}

	switch format {
	case output.FormatJSON:
		return output.PrintJSON(os.Stdout, status)
	case output.FormatYAML:
		return output.PrintYAML(os.Stdout, status)
	default:
		return printStatusTable(status)
	}
}

// defaultPidFile is the conventional PID file location, matching what
// "triplex start --pid-file" is typically pointed at.
func defaultPidFile() string {
	stateDir := os.Getenv("XDG_STATE_HOME")
	if stateDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return filepath.Join(os.TempDir(), "triplex.pid")
		}
		stateDir = filepath.Join(home, ".local", "state")
	}
	return filepath.Join(stateDir, "triplex", "triplex.pid")
}

// livePid reads a PID file and reports the process ID when that process is
// alive, or 0 in every other case. Signal 0 probes without touching the
// target.
func livePid(path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return 0
	}
	if err := proc.Signal(syscall.Signal(0)); err != nil {
		return 0
	}
	return pid
}

// resolveStatusPort returns the health endpoint port: the --port flag when
// set, the websocket port from config when loadable, 5000 otherwise.
func resolveStatusPort() int {
	if statusPort > 0 {
		return statusPort
	}
	if cfg, err := config.Load(cfgFile); err == nil {
		return cfg.Server.WebSocket.Port
	}
	return 5000
}

func printStatusTable(status ServerStatus) error {
	fmt.Println()
	fmt.Println("Triplex Server Status")
	fmt.Println("=====================")
	fmt.Println()

	if status.Running {
		if status.Healthy {
			fmt.Printf("  Status:       \033[32m● Running\033[0m\n")
		} else {
			fmt.Printf("  Status:       \033[33m● Running (unhealthy)\033[0m\n")
		}
		if status.PID != 0 {
			fmt.Printf("  PID:          %d\n", status.PID)
		}
		if status.Uptime != "" {
			fmt.Printf("  Uptime:       %s\n", timeutil.FormatUptime(status.Uptime))
		}
		if status.StartedAt != "" {
			fmt.Printf("  Started:      %s\n", timeutil.FormatTime(status.StartedAt))
		}
		fmt.Printf("  Connections:  %d\n", status.TotalConnections)
	} else {
		fmt.Printf("  Status:       \033[31m○ Stopped\033[0m\n")
	}

	fmt.Println()
	fmt.Printf("  %s\n", status.Message)
	fmt.Println()

	if len(status.Gateways) == 0 {
		return nil
	}

	table := output.NewTableData("TRANSPORT", "PORT", "CONNECTIONS")
	for _, g := range status.Gateways {
		table.AddRow(g.Transport, strconv.Itoa(g.Port), strconv.Itoa(int(g.ActiveConnections)))
	}
	return output.PrintTable(os.Stdout, table)
}
