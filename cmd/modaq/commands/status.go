package commands

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/modaq/uploader/internal/cli/health"
	"github.com/modaq/uploader/internal/cli/output"
	"github.com/modaq/uploader/internal/cli/timeutil"
	"github.com/modaq/uploader/pkg/config"
)

var (
	statusOutput  string
	statusPidFile string
	statusAPIPort int
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show server status",
	Long: `Display the current status of the MODAQ upload server.

This command checks the server health by calling the health endpoint
and displays status, version, and active upload job information.

Examples:
  # Check status (uses default settings)
  modaq status

  # Check status with custom API port
  modaq status --api-port 5050

  # Output as JSON
  modaq status --output json`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusPidFile, "pid-file", "", "Path to PID file (default: $XDG_STATE_HOME/modaq/modaq.pid)")
	statusCmd.Flags().IntVar(&statusAPIPort, "api-port", 0, "API server port (default: from settings file)")
	statusCmd.Flags().StringVarP(&statusOutput, "output", "o", "table", "Output format (table|json|yaml)")
}

// ServerStatus represents the server status information.
type ServerStatus struct {
	Running    bool   `json:"running" yaml:"running"`
	PID        int    `json:"pid,omitempty" yaml:"pid,omitempty"`
	Message    string `json:"message" yaml:"message"`
	Version    string `json:"version,omitempty" yaml:"version,omitempty"`
	Uptime     string `json:"uptime,omitempty" yaml:"uptime,omitempty"`
	Bucket     string `json:"bucket,omitempty" yaml:"bucket,omitempty"`
	ActiveJobs int    `json:"active_jobs" yaml:"active_jobs"`
	Healthy    bool   `json:"healthy" yaml:"healthy"`
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

	// Use default PID file if not specified
	pidPath := statusPidFile
	if pidPath == "" {
		pidPath = GetDefaultPidFile()
	}

	// Check PID file first
	pidData, err := os.ReadFile(pidPath)
	if err == nil {
		pid, err := strconv.Atoi(strings.TrimSpace(string(pidData)))
		if err == nil {
			// Check if process is running
			process, err := os.FindProcess(pid)
			if err == nil {
				// On Unix, FindProcess always succeeds, we need to send signal 0 to check
				err = process.Signal(syscall.Signal(0))
				if err == nil {
					status.Running = true
					status.PID = pid
				}
			}
		}
	}

	// Resolve the API port from settings when no flag was given
	apiPort := statusAPIPort
	if apiPort == 0 {
		apiPort = config.DefaultAPIPort
		if cfg, err := config.Load(GetConfigFile()); err == nil {
			apiPort = cfg.API.Port
		}
	}

	client := &http.Client{Timeout: 2 * time.Second}
	baseURL := fmt.Sprintf("http://localhost:%d", apiPort)

	// Check health endpoint (works for both daemon and foreground mode)
	resp, err := client.Get(baseURL + "/health")
	if err == nil {
		defer func() { _ = resp.Body.Close() }()

		var healthResp health.Response
		if err := json.NewDecoder(resp.Body).Decode(&healthResp); err == nil {
			status.Running = true
			status.Healthy = healthResp.Status == "ok"
			status.Version = healthResp.Version
			status.Uptime = healthResp.Uptime
			if status.Healthy {
				status.Message = "Server is running and healthy"
			} else {
				status.Message = fmt.Sprintf("Server reported status %q", healthResp.Status)
			}
		} else {
			status.Running = true
			status.Message = "Server is running but health response invalid"
		}
	} else if status.Running {
		// PID file says running but health check failed
		status.Message = "Server process exists but health check failed"
	}

	// Enrich with settings and active job count; both are best effort
	if status.Healthy {
		var settings struct {
			S3Bucket string `json:"s3_bucket"`
		}
		if err := getJSON(client, baseURL+"/api/settings", &settings); err == nil {
			status.Bucket = settings.S3Bucket
		}

		var active struct {
			Jobs []json.RawMessage `json:"jobs"`
		}
		if err := getJSON(client, baseURL+"/api/upload/active", &active); err == nil {
			status.ActiveJobs = len(active.Jobs)
		}
	}

	switch format {
	case output.FormatJSON:
		return output.PrintJSON(os.Stdout, status)
	case output.FormatYAML:
		return output.PrintYAML(os.Stdout, status)
	default:
		printStatusTable(status)
	}

	return nil
}

func getJSON(client *http.Client, url string, into any) error {
	resp, err := client.Get(url)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	return json.NewDecoder(resp.Body).Decode(into)
}

func printStatusTable(status ServerStatus) {
	fmt.Println()
	fmt.Println("MODAQ Server Status")
	fmt.Println("===================")
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
		if status.Version != "" {
			fmt.Printf("  Version:      %s\n", status.Version)
		}
		if status.Uptime != "" {
			fmt.Printf("  Uptime:       %s\n", timeutil.FormatUptime(status.Uptime))
		}
		if status.Bucket != "" {
			fmt.Printf("  Bucket:       %s\n", status.Bucket)
		}
		fmt.Printf("  Active jobs:  %d\n", status.ActiveJobs)
	} else {
		fmt.Printf("  Status:       \033[31m○ Stopped\033[0m\n")
	}

	fmt.Println()
	fmt.Printf("  %s\n", status.Message)
	fmt.Println()
}
