package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/cwbudde/sinkhorn/internal/balance"
	"github.com/cwbudde/sinkhorn/internal/matio"
	"github.com/cwbudde/sinkhorn/internal/store"
)

var (
	inPath         string
	outPath        string
	maxIterations  int
	epsilon        float64
	tolerance      float64
	checkTolerance float64
	resultDataDir  string
	saveResult     bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Balance a matrix from a CSV file",
	Long: `Reads a square non-negative matrix from CSV, fits the Sinkhorn-Knopp
scaling vectors and prints the balanced matrix. The scales and
convergence diagnostics go to stderr as structured logs; use --out to
write the balanced matrix to a file instead of stdout.`,
	RunE: runBalance,
}

func init() {
	defaults := balance.DefaultConfig()

	runCmd.Flags().StringVar(&inPath, "in", "", "Input matrix CSV path (required)")
	runCmd.Flags().StringVar(&outPath, "out", "", "Output CSV path for the balanced matrix (default stdout)")
	runCmd.Flags().IntVar(&maxIterations, "max-iters", defaults.MaxIterations, "Maximum number of iterations")
	runCmd.Flags().Float64Var(&epsilon, "epsilon", defaults.Epsilon, "Division-by-zero floor for the reciprocal updates")
	runCmd.Flags().Float64Var(&tolerance, "tolerance", defaults.Tolerance, "Convergence bound on the row/column-sum deviation")
	runCmd.Flags().Float64Var(&checkTolerance, "check-tolerance", defaults.CheckTolerance, "Threshold for the post-hoc stochasticity check")
	runCmd.Flags().StringVar(&resultDataDir, "data-dir", "./data", "Base directory for stored runs")
	runCmd.Flags().BoolVar(&saveResult, "save", false, "Persist the run record and residual trace under --data-dir")

	runCmd.MarkFlagRequired("in")
	rootCmd.AddCommand(runCmd)
}

func runBalance(cmd *cobra.Command, args []string) error {
	m, err := matio.ReadMatrixFile(inPath)
	if err != nil {
		return err
	}

	rows, cols := m.Dims()
	slog.Info("Loaded matrix", "path", inPath, "rows", rows, "cols", cols)

	cfg := balance.Config{
		MaxIterations:  maxIterations,
		Epsilon:        epsilon,
		Tolerance:      tolerance,
		CheckTolerance: checkTolerance,
	}
	balancer, err := balance.New(cfg)
	if err != nil {
		return err
	}

	var trace []store.TraceEntry
	if saveResult {
		balancer.Observe(func(iteration int, residual float64) {
			trace = append(trace, store.TraceEntry{
				Iteration: iteration,
				Residual:  residual,
				Timestamp: time.Now(),
			})
		})
	}

	start := time.Now()
	result, err := balancer.Fit(m)
	if err != nil {
		return err
	}
	elapsed := time.Since(start)

	slog.Info("Balancing complete",
		"elapsed", elapsed,
		"iterations", result.Iterations,
		"residual", result.Residual,
		"converged", result.Converged,
		"stopped_by", result.StoppedBy,
	)
	if len(result.Diagnostics) > 0 {
		slog.Warn("Result carries diagnostics", "diagnostics", result.Diagnostics)
	}

	balanced := result.BalancedFrom(m)
	if outPath != "" {
		if err := matio.WriteMatrixFile(outPath, balanced); err != nil {
			return err
		}
		fmt.Printf("Wrote %s (%d iterations, residual %.3g)\n", outPath, result.Iterations, result.Residual)
	} else {
		if err := matio.WriteMatrix(os.Stdout, balanced); err != nil {
			return err
		}
	}

	fmt.Printf("Row scale: %s\n", matio.FormatVector(result.RowScale))
	fmt.Printf("Col scale: %s\n", matio.FormatVector(result.ColScale))

	if saveResult {
		runID, err := persistRun(result, cfg, trace)
		if err != nil {
			return err
		}
		fmt.Printf("Saved run %s under %s\n", runID, resultDataDir)
	}

	return nil
}

// persistRun stores the run record and residual trace, returning the
// generated run ID.
func persistRun(result *balance.Result, cfg balance.Config, trace []store.TraceEntry) (string, error) {
	resultStore, err := store.NewFSStore(resultDataDir)
	if err != nil {
		return "", fmt.Errorf("failed to create result store: %w", err)
	}

	runID := uuid.New().String()
	if err := resultStore.SaveRecord(runID, store.NewRecord(runID, result, cfg)); err != nil {
		return "", fmt.Errorf("failed to save run record: %w", err)
	}

	if len(trace) > 0 {
		tw, err := store.NewTraceWriter(resultDataDir, runID, false)
		if err != nil {
			return "", fmt.Errorf("failed to create trace writer: %w", err)
		}
		defer tw.Close()

		for _, entry := range trace {
			if err := tw.Write(entry); err != nil {
				return "", fmt.Errorf("failed to write trace entry: %w", err)
			}
		}
	}

	return runID, nil
}
