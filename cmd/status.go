package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/spf13/cobra"
)

var serverURL string

var statusCmd = &cobra.Command{
	Use:   "status [job-id]",
	Short: "Query server status or a specific job",
	Long: `Queries the balancing server for job status information.
If no job-id is provided, lists all jobs.
If job-id is provided, shows detailed status for that job.`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&serverURL, "server", "http://localhost:8080", "Server URL")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return listServerJobs(fmt.Sprintf("%s/api/v1/jobs", serverURL))
	}

	jobID := args[0]
	return getServerJobStatus(fmt.Sprintf("%s/api/v1/jobs/%s/status", serverURL, jobID), jobID)
}

func listServerJobs(url string) error {
	resp, err := http.Get(url)
	if err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned error: %s", string(body))
	}

	var jobs []map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&jobs); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if len(jobs) == 0 {
		fmt.Println("No jobs found")
		return nil
	}

	fmt.Printf("Found %d job(s):\n\n", len(jobs))
	for _, job := range jobs {
		fmt.Printf("Job ID: %s\n", job["id"])
		fmt.Printf("  State: %s\n", job["state"])
		fmt.Printf("  Size: %v\n", job["size"])
		if iters, ok := job["iterations"].(float64); ok && iters > 0 {
			fmt.Printf("  Iterations: %.0f\n", iters)
			fmt.Printf("  Residual: %g\n", job["residual"])
		}
		fmt.Println()
	}

	return nil
}

func getServerJobStatus(url, jobID string) error {
	resp, err := http.Get(url)
	if err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("job not found: %s", jobID)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned error: %s", string(body))
	}

	var status map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	fmt.Printf("Job ID: %s\n", status["id"])
	fmt.Printf("State: %s\n", status["state"])
	fmt.Printf("Size: %v\n", status["size"])
	fmt.Printf("Iterations: %v\n", status["iterations"])
	fmt.Printf("Residual: %v\n", status["residual"])
	fmt.Printf("Converged: %v\n", status["converged"])
	if stoppedBy, ok := status["stoppedBy"].(string); ok && stoppedBy != "" {
		fmt.Printf("Stopped by: %s\n", stoppedBy)
	}
	if diags, ok := status["diagnostics"].([]interface{}); ok && len(diags) > 0 {
		fmt.Printf("Diagnostics: %v\n", diags)
	}
	if errMsg, ok := status["error"].(string); ok && errMsg != "" {
		fmt.Printf("Error: %s\n", errMsg)
	}
	if elapsed, ok := status["elapsed"].(float64); ok {
		fmt.Printf("Elapsed: %.3fs\n", elapsed)
	}

	return nil
}
