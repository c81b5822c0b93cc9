package balance

import "gonum.org/v1/gonum/mat"

// StopReason describes why the fitting loop stopped iterating.
type StopReason string

const (
	StoppedByTolerance     StopReason = "tolerance"
	StoppedByMaxIterations StopReason = "max_iterations"
)

// Diagnostic is a non-fatal warning attached to a fitting result.
type Diagnostic string

const (
	// DiagNonConvergence: the iteration cap was reached before the
	// residual dropped below the tolerance. The scales are best-effort.
	DiagNonConvergence Diagnostic = "non_convergence"

	// DiagImbalance: the reconstructed matrix failed the post-hoc
	// double-stochasticity check, suggesting missing total support.
	DiagImbalance Diagnostic = "imbalance"

	// DiagNoSupport: the structural support probe failed before fitting.
	DiagNoSupport Diagnostic = "no_total_support"
)

// Result holds the diagonal scaling vectors computed by Fit together
// with convergence diagnostics. The balanced matrix itself is derived
// on demand via BalancedFrom and never stored.
type Result struct {
	// RowScale and ColScale are the diagonals r and c such that
	// diag(r) * M * diag(c) is (approximately) doubly stochastic.
	RowScale []float64 `json:"rowScale"`
	ColScale []float64 `json:"colScale"`

	// Iterations is the number of update sweeps performed.
	Iterations int `json:"iterations"`

	// Residual is the final error metric: the largest absolute deviation
	// of a reconstructed row or column sum from 1.
	Residual float64 `json:"residual"`

	// Converged is true when the residual dropped below the tolerance
	// within the iteration cap.
	Converged bool       `json:"converged"`
	StoppedBy StopReason `json:"stoppedBy"`

	// MaxRowDeviation and MaxColDeviation come from the post-hoc check:
	// the largest absolute deviation of a reconstructed row/column sum
	// from 1.
	MaxRowDeviation float64 `json:"maxRowDeviation"`
	MaxColDeviation float64 `json:"maxColDeviation"`

	Diagnostics []Diagnostic `json:"diagnostics,omitempty"`
}

// HasDiagnostic reports whether d was recorded during the fit.
func (r *Result) HasDiagnostic(d Diagnostic) bool {
	for _, got := range r.Diagnostics {
		if got == d {
			return true
		}
	}
	return false
}

// BalancedFrom reconstructs diag(RowScale) * m * diag(ColScale).
// The input matrix is read only, never mutated.
func (r *Result) BalancedFrom(m mat.Matrix) *mat.Dense {
	n := len(r.RowScale)
	out := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			out.Set(i, j, r.RowScale[i]*m.At(i, j)*r.ColScale[j])
		}
	}
	return out
}
