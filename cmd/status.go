package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cwbudde/convaccel/internal/server"
	"github.com/spf13/cobra"
)

var (
	serverURL string
	cancelJob bool
)

var statusCmd = &cobra.Command{
	Use:   "status [job-id]",
	Short: "Query server status or specific job",
	Long: `Queries the server for job status information.
If no job-id is provided, lists all jobs.
If job-id is provided, shows detailed status for that job.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&serverURL, "server", "http://localhost:8080", "Server URL")
	statusCmd.Flags().BoolVar(&cancelJob, "cancel", false, "Cancel the given job")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	client := &http.Client{Timeout: 10 * time.Second}
	w := cmd.OutOrStdout()

	if len(args) == 0 {
		if cancelJob {
			return fmt.Errorf("--cancel requires a job id")
		}
		return listJobs(client, w, fmt.Sprintf("%s/api/v1/jobs", serverURL))
	}

	jobID := args[0]
	url := fmt.Sprintf("%s/api/v1/jobs/%s", serverURL, jobID)
	if cancelJob {
		return cancelRemoteJob(client, w, url, jobID)
	}
	return getJobStatus(client, w, url+"/status", jobID)
}

func listJobs(client *http.Client, w io.Writer, url string) error {
	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned error: %s", string(body))
	}

	var jobs []server.Job
	if err := json.NewDecoder(resp.Body).Decode(&jobs); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if len(jobs) == 0 {
		fmt.Fprintln(w, "No jobs found")
		return nil
	}

	fmt.Fprintf(w, "Found %d job(s):\n\n", len(jobs))
	for _, job := range jobs {
		fmt.Fprintf(w, "Job ID: %s\n", job.ID)
		fmt.Fprintf(w, "  State: %s\n", job.State)
		fmt.Fprintf(w, "  Problem: %s\n", job.Config.Problem.Description())
		fmt.Fprintf(w, "  Method: %s (eta %g)\n", job.Config.Accel.Method, job.Config.Accel.Eta)
		if job.Iterations > 0 {
			fmt.Fprintf(w, "  Iterations: %d (change %.3e)\n", job.Iterations, job.Change)
		}
		fmt.Fprintln(w)
	}

	return nil
}

// jobStatus mirrors the status document served for a single job.
type jobStatus struct {
	server.Job
	Elapsed        float64 `json:"elapsed"`
	StepsPerSecond float64 `json:"stepsPerSecond"`
}

func getJobStatus(client *http.Client, w io.Writer, url, jobID string) error {
	resp, err := client.Get(url)
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

	var status jobStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	fmt.Fprintf(w, "Job: %s\n", status.ID)
	fmt.Fprintf(w, "State: %s\n", status.State)
	fmt.Fprintln(w)

	cfg := status.Config
	fmt.Fprintln(w, "Configuration:")
	fmt.Fprintf(w, "  Problem: %s\n", cfg.Problem.Description())
	fmt.Fprintf(w, "  Method: %s\n", cfg.Accel.Method)
	fmt.Fprintf(w, "  Eta: %g\n", cfg.Accel.Eta)
	if cfg.Accel.Method == "diis" {
		fmt.Fprintf(w, "  Depth: %d\n", cfg.Accel.Depth)
		fmt.Fprintf(w, "  Restart: %d\n", cfg.Accel.Restart)
	}
	fmt.Fprintf(w, "  Max Iterations: %d\n", cfg.MaxIterations)
	fmt.Fprintf(w, "  Tolerance: %g\n", cfg.Tolerance)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Progress:")
	fmt.Fprintf(w, "  Iterations: %d\n", status.Iterations)
	fmt.Fprintf(w, "  Change: %.3e\n", status.Change)
	fmt.Fprintf(w, "  Restarts: %d\n", status.Restarts)
	fmt.Fprintf(w, "  Converged: %v\n", status.Converged)

	elapsed := time.Duration(status.Elapsed * float64(time.Second))
	fmt.Fprintf(w, "  Elapsed: %s\n", elapsed.Round(time.Millisecond))
	if status.StepsPerSecond > 0 {
		fmt.Fprintf(w, "  Throughput: %.0f steps/sec\n", status.StepsPerSecond)
	}

	if status.Error != "" {
		fmt.Fprintf(w, "\nError: %s\n", status.Error)
	}

	return nil
}

func cancelRemoteJob(client *http.Client, w io.Writer, url, jobID string) error {
	req, err := http.NewRequest(http.MethodDelete, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusAccepted:
		fmt.Fprintf(w, "Cancellation requested for %s\n", jobID)
		return nil
	case http.StatusNotFound:
		return fmt.Errorf("job not found: %s", jobID)
	default:
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned error: %s", string(body))
	}
}
