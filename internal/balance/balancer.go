// Package balance implements Sinkhorn-Knopp diagonal scaling: given a
// square non-negative matrix it computes row and column scaling vectors
// that make the matrix doubly stochastic (all row and column sums equal
// to 1), or reports why the matrix cannot be balanced.
package balance

import (
	"fmt"
	"log/slog"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Config defines parameters for a fitting run
type Config struct {
	// MaxIterations is the hard cap on update sweeps.
	MaxIterations int

	// Epsilon is the numerical floor substituted for a non-positive
	// denominator in the reciprocal updates. Validated input keeps all
	// weighted sums strictly positive, so the floor only engages on
	// pathological underflow; it is never added to healthy denominators,
	// which would bias the scales away from the doubly stochastic fixed
	// point.
	Epsilon float64

	// Tolerance bounds the largest absolute deviation of a reconstructed
	// row or column sum from 1 at convergence.
	Tolerance float64

	// CheckTolerance is the threshold for the post-hoc check on the
	// reconstructed matrix's row and column sums.
	CheckTolerance float64
}

// DefaultConfig returns sensible defaults for balancing
func DefaultConfig() Config {
	return Config{
		MaxIterations:  1000,
		Epsilon:        1e-3,
		Tolerance:      1e-3,
		CheckTolerance: 1e-3,
	}
}

func (c Config) validate() error {
	if c.MaxIterations <= 0 {
		return fmt.Errorf("max iterations must be positive: %d", c.MaxIterations)
	}
	if c.Epsilon <= 0 {
		return fmt.Errorf("epsilon must be positive: %g", c.Epsilon)
	}
	if c.Tolerance <= 0 {
		return fmt.Errorf("tolerance must be positive: %g", c.Tolerance)
	}
	if c.CheckTolerance <= 0 {
		return fmt.Errorf("check tolerance must be positive: %g", c.CheckTolerance)
	}
	return nil
}

// ObserverFunc receives the residual after each completed iteration.
type ObserverFunc func(iteration int, residual float64)

// Balancer owns the fitting loop, its convergence test and the input
// validation. It retains the last computed result for Diagonals.
//
// A Balancer is not safe for concurrent use; callers that share an
// instance across goroutines must serialize calls externally.
type Balancer struct {
	cfg      Config
	observer ObserverFunc
	last     *Result
}

// New creates a Balancer with the given configuration
func New(cfg Config) (*Balancer, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid balancer config: %w", err)
	}
	return &Balancer{cfg: cfg}, nil
}

// NewDefault creates a Balancer with DefaultConfig
func NewDefault() *Balancer {
	return &Balancer{cfg: DefaultConfig()}
}

// Config returns the configuration the Balancer was created with.
func (b *Balancer) Config() Config {
	return b.cfg
}

// Observe registers fn to be called after every iteration, for tracing.
// Pass nil to remove a previously registered observer.
func (b *Balancer) Observe(fn ObserverFunc) {
	b.observer = fn
}

// Fit computes row and column scaling vectors for m so that
// diag(RowScale) * m * diag(ColScale) is doubly stochastic within the
// configured tolerance. The input matrix is never mutated.
//
// Shape, negativity and zero-line violations abort before any iteration
// with a typed error. Non-convergence and a failed post-hoc check are
// not errors: the best-effort result is returned with the corresponding
// Diagnostics set.
func (b *Balancer) Fit(m mat.Matrix) (*Result, error) {
	n, err := validateMatrix(m)
	if err != nil {
		return nil, err
	}

	result := &Result{}

	if ok, reason := HasSupport(m); !ok {
		slog.Warn("Matrix may lack total support", "reason", reason)
		result.Diagnostics = append(result.Diagnostics, DiagNoSupport)
	}

	row := mat.NewVecDense(n, nil)
	col := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		row.SetVec(i, 1)
		col.SetVec(i, 1)
	}

	// Scratch vectors for the weighted column and row sums.
	colSums := mat.NewVecDense(n, nil)
	rowSums := mat.NewVecDense(n, nil)

	tracker := NewResidualTracker(b.cfg.Tolerance)
	oscillating := false

	residual := math.Inf(1)
	iterations := 0
	converged := false

	for iter := 1; iter <= b.cfg.MaxIterations; iter++ {
		// ColScale[j] = 1 / (RowScale . m[:,j])
		colSums.MulVec(m.T(), row)
		for j := 0; j < n; j++ {
			col.SetVec(j, 1/safeDenominator(colSums.AtVec(j), b.cfg.Epsilon))
		}

		// RowScale[i] = 1 / (m[i,:] . ColScale)
		rowSums.MulVec(m, col)
		for i := 0; i < n; i++ {
			row.SetVec(i, 1/safeDenominator(rowSums.AtVec(i), b.cfg.Epsilon))
		}

		// Largest deviation of a reconstructed row or column sum from 1.
		// The row update just used rowSums, so the row sums are exact up
		// to rounding; the column sums lag half a sweep behind and carry
		// the real error.
		colSums.MulVec(m.T(), row)
		residual = 0
		for j := 0; j < n; j++ {
			if d := math.Abs(colSums.AtVec(j)*col.AtVec(j) - 1); d > residual {
				residual = d
			}
		}
		for i := 0; i < n; i++ {
			if d := math.Abs(rowSums.AtVec(i)*row.AtVec(i) - 1); d > residual {
				residual = d
			}
		}

		iterations = iter
		if tracker.Update(residual) && !oscillating {
			oscillating = true
			slog.Warn("Residual is oscillating", "iteration", iter, "residual", residual)
		}
		if b.observer != nil {
			b.observer(iter, residual)
		}

		if residual <= b.cfg.Tolerance {
			converged = true
			break
		}
	}

	result.RowScale = vecToSlice(row)
	result.ColScale = vecToSlice(col)
	result.Iterations = iterations
	result.Residual = residual
	result.Converged = converged

	if converged {
		result.StoppedBy = StoppedByTolerance
	} else {
		result.StoppedBy = StoppedByMaxIterations
		result.Diagnostics = append(result.Diagnostics, DiagNonConvergence)
		slog.Warn("Balancing did not converge",
			"iterations", iterations,
			"residual", residual,
			"tolerance", b.cfg.Tolerance,
		)
	}

	b.checkStochasticity(m, result)

	slog.Debug("Fit complete",
		"size", n,
		"iterations", result.Iterations,
		"residual", result.Residual,
		"converged", result.Converged,
		"stopped_by", result.StoppedBy,
	)

	b.last = result
	return result, nil
}

// Diagonals returns the result of the last Fit call without
// recomputation. It fails with ErrNotFitted if Fit has never been called.
func (b *Balancer) Diagonals() (*Result, error) {
	if b.last == nil {
		return nil, ErrNotFitted
	}
	return b.last, nil
}

// checkStochasticity reconstructs the balanced matrix and verifies its
// row and column sums against the check tolerance. A failure is a
// diagnostic, not a hard error: it usually means the input passed the
// cheap structural probe but lacks total support.
func (b *Balancer) checkStochasticity(m mat.Matrix, result *Result) {
	n := len(result.RowScale)

	var maxRowDev, maxColDev float64
	colSum := make([]float64, n)
	for i := 0; i < n; i++ {
		rowSum := 0.0
		for j := 0; j < n; j++ {
			v := result.RowScale[i] * m.At(i, j) * result.ColScale[j]
			rowSum += v
			colSum[j] += v
		}
		maxRowDev = math.Max(maxRowDev, math.Abs(rowSum-1))
	}
	for j := 0; j < n; j++ {
		maxColDev = math.Max(maxColDev, math.Abs(colSum[j]-1))
	}

	result.MaxRowDeviation = maxRowDev
	result.MaxColDeviation = maxColDev

	if maxRowDev > b.cfg.CheckTolerance || maxColDev > b.cfg.CheckTolerance {
		result.Diagnostics = append(result.Diagnostics, DiagImbalance)
		slog.Warn("Balanced matrix is not doubly stochastic",
			"max_row_deviation", maxRowDev,
			"max_col_deviation", maxColDev,
			"check_tolerance", b.cfg.CheckTolerance,
		)
	}
}

// validateMatrix checks the hard preconditions: square shape,
// non-negative entries, no all-zero row or column. It returns the
// dimension on success.
func validateMatrix(m mat.Matrix) (int, error) {
	rows, cols := m.Dims()
	if rows != cols {
		return 0, &ShapeError{Rows: rows, Cols: cols}
	}
	if rows == 0 {
		return 0, &ShapeError{Rows: rows, Cols: cols, Reason: "matrix is empty"}
	}

	n := rows
	colSum := make([]float64, n)
	for i := 0; i < n; i++ {
		rowSum := 0.0
		for j := 0; j < n; j++ {
			v := m.At(i, j)
			if v < 0 {
				return 0, &NegativeEntryError{Row: i, Col: j, Value: v}
			}
			rowSum += v
			colSum[j] += v
		}
		if rowSum == 0 {
			return 0, &ZeroLineError{Axis: AxisRow, Index: i}
		}
	}
	for j := 0; j < n; j++ {
		if colSum[j] == 0 {
			return 0, &ZeroLineError{Axis: AxisColumn, Index: j}
		}
	}
	return n, nil
}

// safeDenominator guards the reciprocal updates against a non-positive
// weighted sum. Unreachable for validated input; kept so a pathological
// underflow degrades into a huge scale instead of Inf.
func safeDenominator(den, eps float64) float64 {
	if den <= 0 {
		return eps
	}
	return den
}

func vecToSlice(v *mat.VecDense) []float64 {
	out := make([]float64, v.Len())
	copy(out, v.RawVector().Data)
	return out
}
