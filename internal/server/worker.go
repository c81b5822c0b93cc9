package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cwbudde/sinkhorn/internal/balance"
	"github.com/cwbudde/sinkhorn/internal/store"
)

// runJob executes a balancing job in the background. If resultStore is
// not nil the completed run is persisted, including a residual trace
// when dataDir is set.
func runJob(ctx context.Context, jm *JobManager, resultStore store.Store, dataDir, jobID string) error {
	job, exists := jm.GetJob(jobID)
	if !exists {
		return fmt.Errorf("job not found: %s", jobID)
	}

	if err := jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateRunning
	}); err != nil {
		return err
	}

	slog.Info("Starting job", "job_id", jobID, "size", job.Size)

	m, err := matrixToDense(job.Config.Matrix)
	if err != nil {
		markJobFailed(jm, jobID, err)
		return err
	}

	balancer, err := balance.New(balancerConfig(job.Config))
	if err != nil {
		markJobFailed(jm, jobID, err)
		return err
	}

	// Check for cancellation before starting.
	select {
	case <-ctx.Done():
		markJobCancelled(jm, jobID)
		return ctx.Err()
	default:
	}

	var trace []store.TraceEntry
	balancer.Observe(func(iteration int, residual float64) {
		trace = append(trace, store.TraceEntry{
			Iteration: iteration,
			Residual:  residual,
			Timestamp: time.Now(),
		})
		jm.UpdateJob(jobID, func(j *Job) {
			j.Iterations = iteration
			j.Residual = residual
		})
		jm.broadcaster.Broadcast(ProgressEvent{
			JobID:     jobID,
			State:     StateRunning,
			Iteration: iteration,
			Residual:  residual,
			Timestamp: time.Now(),
		})
	})

	start := time.Now()
	result, err := balancer.Fit(m)
	if err != nil {
		markJobFailed(jm, jobID, err)
		return err
	}
	elapsed := time.Since(start)

	select {
	case <-ctx.Done():
		markJobCancelled(jm, jobID)
		return ctx.Err()
	default:
	}

	diags := make([]string, 0, len(result.Diagnostics))
	for _, d := range result.Diagnostics {
		diags = append(diags, string(d))
	}

	endTime := time.Now()
	err = jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateCompleted
		j.RowScale = result.RowScale
		j.ColScale = result.ColScale
		j.Iterations = result.Iterations
		j.Residual = result.Residual
		j.Converged = result.Converged
		j.StoppedBy = string(result.StoppedBy)
		j.Diagnostics = diags
		j.EndTime = &endTime
	})
	if err != nil {
		return err
	}

	slog.Info("Job completed",
		"job_id", jobID,
		"elapsed", elapsed,
		"iterations", result.Iterations,
		"residual", result.Residual,
		"converged", result.Converged,
	)

	if resultStore != nil {
		if err := persistRun(resultStore, dataDir, jobID, result, balancer.Config(), trace); err != nil {
			slog.Warn("Failed to persist run", "job_id", jobID, "error", err)
			// Persistence problems don't fail the job; the in-memory
			// result is still served.
		}
	}

	jm.broadcaster.Broadcast(ProgressEvent{
		JobID:     jobID,
		State:     StateCompleted,
		Iteration: result.Iterations,
		Residual:  result.Residual,
		Converged: result.Converged,
		Timestamp: time.Now(),
	})

	return nil
}

// persistRun saves the run record and, when dataDir is set, the
// residual trace next to it.
func persistRun(resultStore store.Store, dataDir, jobID string, result *balance.Result, cfg balance.Config, trace []store.TraceEntry) error {
	record := store.NewRecord(jobID, result, cfg)
	if err := resultStore.SaveRecord(jobID, record); err != nil {
		return fmt.Errorf("failed to save record: %w", err)
	}

	if dataDir == "" || len(trace) == 0 {
		return nil
	}

	tw, err := store.NewTraceWriter(dataDir, jobID, false)
	if err != nil {
		return fmt.Errorf("failed to create trace writer: %w", err)
	}
	defer tw.Close()

	for _, entry := range trace {
		if err := tw.Write(entry); err != nil {
			return fmt.Errorf("failed to write trace entry: %w", err)
		}
	}

	slog.Debug("Run persisted", "job_id", jobID, "trace_entries", len(trace))
	return nil
}

// balancerConfig fills unset job config fields with the defaults.
func balancerConfig(config JobConfig) balance.Config {
	cfg := balance.DefaultConfig()
	if config.MaxIterations > 0 {
		cfg.MaxIterations = config.MaxIterations
	}
	if config.Epsilon > 0 {
		cfg.Epsilon = config.Epsilon
	}
	if config.Tolerance > 0 {
		cfg.Tolerance = config.Tolerance
	}
	if config.CheckTolerance > 0 {
		cfg.CheckTolerance = config.CheckTolerance
	}
	return cfg
}

// markJobFailed marks a job as failed with an error message
func markJobFailed(jm *JobManager, jobID string, err error) {
	endTime := time.Now()
	jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateFailed
		j.Error = err.Error()
		j.EndTime = &endTime
	})
	slog.Error("Job failed", "job_id", jobID, "error", err)
}

// markJobCancelled marks a job as cancelled
func markJobCancelled(jm *JobManager, jobID string) {
	endTime := time.Now()
	jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateCancelled
		j.EndTime = &endTime
	})
	slog.Info("Job cancelled", "job_id", jobID)
}
