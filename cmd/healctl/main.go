// Package main implements the healctl CLI for manual operations against the
// healerd HTTP server.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	// serverURL is the base URL for the healerd HTTP server
	serverURL string
	// version information
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "healctl",
	Short: "CLI for healerd operations",
	Long: `healctl is a command-line interface for the healerd remediation daemon.
It queries the daemon's audit endpoints and can run playbooks through the
heal-and-retry loop locally.`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8844", "healerd server URL")
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(errorsCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(ansibleCmd)
}

// healthCmd checks daemon health
var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check healerd daemon health",
	Long: `Check the health status of the healerd HTTP server.

Examples:
  # Check health
  healctl health

  # Check health on a different server
  healctl health --server http://localhost:9000`,
	RunE: runHealth,
}

var errorsLimit int

// errorsCmd lists recent classified errors
var errorsCmd = &cobra.Command{
	Use:   "errors",
	Short: "List recently classified pipeline errors",
	Long: `List the error records the daemon has classified, most recent last.

Examples:
  # Show the last 10 errors
  healctl errors --limit 10

  # One summary line per error
  healctl errors --summary`,
	RunE: runErrors,
}

var errorsSummary bool

var sessionsLimit int

// sessionsCmd lists recent healing sessions
var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List recent healing sessions",
	RunE:  runSessions,
}

// statsCmd shows aggregate healing statistics
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate healing statistics",
	RunE:  runStats,
}

func init() {
	errorsCmd.Flags().IntVar(&errorsLimit, "limit", 20, "maximum records to return (0 = all)")
	errorsCmd.Flags().BoolVar(&errorsSummary, "summary", false, "one line per error")
	sessionsCmd.Flags().IntVar(&sessionsLimit, "limit", 20, "maximum sessions to return (0 = all)")
}

// HealthResponse matches internal/server HealthResponse.
type HealthResponse struct {
	Status string `json:"status"`
}

// StatsResponse matches internal/server StatsResponse.
type StatsResponse struct {
	Total       int     `json:"total"`
	Successes   int     `json:"successes"`
	SuccessRate float64 `json:"success_rate"`
}

func apiGet(path string, timeout time.Duration, out any) error {
	url := serverURL + path

	client := &http.Client{Timeout: timeout}
	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return fmt.Errorf("server returned status %d (failed to read response body: %w)", resp.StatusCode, readErr)
		}
		return fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// runHealth handles the health command
func runHealth(cmd *cobra.Command, args []string) error {
	var resp HealthResponse
	if err := apiGet("/health", 5*time.Second, &resp); err != nil {
		return err
	}

	fmt.Printf("Server Status: %s\n", resp.Status)
	fmt.Printf("Server URL: %s\n", serverURL)
	return nil
}

// runErrors handles the errors command
func runErrors(cmd *cobra.Command, args []string) error {
	if errorsSummary {
		var lines []string
		if err := apiGet("/api/v1/errors/summary", 10*time.Second, &lines); err != nil {
			return err
		}
		for _, line := range lines {
			fmt.Println(line)
		}
		return nil
	}

	var records []json.RawMessage
	path := fmt.Sprintf("/api/v1/errors?limit=%d", errorsLimit)
	if err := apiGet(path, 10*time.Second, &records); err != nil {
		return err
	}
	return printJSON(records)
}

// runSessions handles the sessions command
func runSessions(cmd *cobra.Command, args []string) error {
	var sessions []json.RawMessage
	path := fmt.Sprintf("/api/v1/sessions?limit=%d", sessionsLimit)
	if err := apiGet(path, 10*time.Second, &sessions); err != nil {
		return err
	}
	return printJSON(sessions)
}

// runStats handles the stats command
func runStats(cmd *cobra.Command, args []string) error {
	var stats StatsResponse
	if err := apiGet("/api/v1/stats", 5*time.Second, &stats); err != nil {
		return err
	}

	fmt.Printf("Healing attempts: %d\n", stats.Total)
	fmt.Printf("Successes:        %d\n", stats.Successes)
	fmt.Printf("Success rate:     %.1f%%\n", stats.SuccessRate*100)
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
