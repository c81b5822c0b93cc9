package store

import (
	"time"

	"github.com/cwbudde/sinkhorn/internal/balance"
)

// RunConfig holds the balancer configuration a run was executed with.
// It is persisted alongside the result so a stored run can be
// reproduced exactly.
type RunConfig struct {
	MaxIterations  int     `json:"maxIterations"`
	Epsilon        float64 `json:"epsilon"`
	Tolerance      float64 `json:"tolerance"`
	CheckTolerance float64 `json:"checkTolerance"`
}

// RunConfigFrom copies a balance.Config into its persisted form.
func RunConfigFrom(cfg balance.Config) RunConfig {
	return RunConfig{
		MaxIterations:  cfg.MaxIterations,
		Epsilon:        cfg.Epsilon,
		Tolerance:      cfg.Tolerance,
		CheckTolerance: cfg.CheckTolerance,
	}
}

// BalancerConfig converts the persisted form back to a balance.Config.
func (c RunConfig) BalancerConfig() balance.Config {
	return balance.Config{
		MaxIterations:  c.MaxIterations,
		Epsilon:        c.Epsilon,
		Tolerance:      c.Tolerance,
		CheckTolerance: c.CheckTolerance,
	}
}

// Record is the persisted result of one balancing run. The input matrix
// is not stored; the scales together with the original input are enough
// to reconstruct the balanced matrix.
type Record struct {
	// RunID is the unique identifier for this run
	RunID string `json:"runId"`

	// Size is the matrix dimension n
	Size int `json:"size"`

	// RowScale and ColScale are the computed diagonal scaling vectors
	RowScale []float64 `json:"rowScale"`
	ColScale []float64 `json:"colScale"`

	// Iterations is the number of update sweeps performed
	Iterations int `json:"iterations"`

	// Residual is the final column-sum error metric
	Residual float64 `json:"residual"`

	// Converged reports whether the residual dropped below the tolerance
	Converged bool `json:"converged"`

	// StoppedBy is the stop reason ("tolerance" or "max_iterations")
	StoppedBy string `json:"stoppedBy"`

	// Diagnostics are the non-fatal warnings recorded during the run
	Diagnostics []string `json:"diagnostics,omitempty"`

	// Timestamp records when the run completed
	Timestamp time.Time `json:"timestamp"`

	// Config holds the balancer configuration used for the run
	Config RunConfig `json:"config"`
}

// RecordInfo contains metadata about a stored run without the scale
// vectors. Used for listing runs without loading large arrays.
type RecordInfo struct {
	RunID      string    `json:"runId"`
	Size       int       `json:"size"`
	Iterations int       `json:"iterations"`
	Residual   float64   `json:"residual"`
	Converged  bool      `json:"converged"`
	StoppedBy  string    `json:"stoppedBy"`
	Timestamp  time.Time `json:"timestamp"`
}

// ToInfo strips a record down to its listing metadata.
func (r *Record) ToInfo() RecordInfo {
	return RecordInfo{
		RunID:      r.RunID,
		Size:       r.Size,
		Iterations: r.Iterations,
		Residual:   r.Residual,
		Converged:  r.Converged,
		StoppedBy:  r.StoppedBy,
		Timestamp:  r.Timestamp,
	}
}

// NewRecord builds a persistable record from a fitting result.
func NewRecord(runID string, result *balance.Result, cfg balance.Config) *Record {
	diags := make([]string, 0, len(result.Diagnostics))
	for _, d := range result.Diagnostics {
		diags = append(diags, string(d))
	}

	return &Record{
		RunID:       runID,
		Size:        len(result.RowScale),
		RowScale:    result.RowScale,
		ColScale:    result.ColScale,
		Iterations:  result.Iterations,
		Residual:    result.Residual,
		Converged:   result.Converged,
		StoppedBy:   string(result.StoppedBy),
		Diagnostics: diags,
		Timestamp:   time.Now(),
		Config:      RunConfigFrom(cfg),
	}
}
