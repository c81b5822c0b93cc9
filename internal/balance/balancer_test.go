package balance

import (
	"errors"
	"math"
	"testing"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

func allOnes(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 1
	}
	return out
}

func sumsOf(m mat.Matrix) (rowSums, colSums []float64) {
	rows, cols := m.Dims()
	rowSums = make([]float64, rows)
	colSums = make([]float64, cols)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			rowSums[i] += m.At(i, j)
			colSums[j] += m.At(i, j)
		}
	}
	return rowSums, colSums
}

func TestFitReferenceMatrix(t *testing.T) {
	m := mat.NewDense(2, 2, []float64{0.011, 0.15, 1.71, 0.1})

	b := NewDefault()
	result, err := b.Fit(m)
	if err != nil {
		t.Fatalf("Fit failed: %v", err)
	}

	if !result.Converged {
		t.Errorf("Expected convergence, stopped by %s after %d iterations", result.StoppedBy, result.Iterations)
	}
	if result.StoppedBy != StoppedByTolerance {
		t.Errorf("Expected stop reason %q, got %q", StoppedByTolerance, result.StoppedBy)
	}
	if result.HasDiagnostic(DiagImbalance) {
		t.Errorf("Unexpected imbalance diagnostic: row dev %g, col dev %g", result.MaxRowDeviation, result.MaxColDeviation)
	}

	balanced := result.BalancedFrom(m)
	want := [][]float64{{0.061, 0.939}, {0.938, 0.062}}
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			if got := balanced.At(i, j); math.Abs(got-want[i][j]) > 0.01 {
				t.Errorf("balanced(%d,%d) = %f, want %f", i, j, got, want[i][j])
			}
		}
	}

	// Convergence bounds every row and column sum by 1 +/- tolerance;
	// for this matrix the column sums settle near 0.9991 and 1.0009.
	tol := DefaultConfig().Tolerance
	rowSums, colSums := sumsOf(balanced)
	if !floats.EqualApprox(rowSums, allOnes(2), tol) {
		t.Errorf("row sums %v, want all within 1±%g", rowSums, tol)
	}
	if !floats.EqualApprox(colSums, allOnes(2), tol) {
		t.Errorf("column sums %v, want all within 1±%g", colSums, tol)
	}
	if result.MaxRowDeviation > tol || result.MaxColDeviation > tol {
		t.Errorf("post-hoc deviations (%g, %g) exceed tolerance %g", result.MaxRowDeviation, result.MaxColDeviation, tol)
	}
}

func TestFitTrivialCases(t *testing.T) {
	tests := []struct {
		name string
		m    *mat.Dense
	}{
		{name: "single entry", m: mat.NewDense(1, 1, []float64{1})},
		{name: "identity", m: mat.NewDense(2, 2, []float64{1, 0, 0, 1})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewDefault()
			result, err := b.Fit(tt.m)
			if err != nil {
				t.Fatalf("Fit failed: %v", err)
			}

			if !result.Converged {
				t.Error("Expected convergence")
			}
			if result.Iterations != 1 {
				t.Errorf("Expected convergence in 1 iteration, took %d", result.Iterations)
			}
			n, _ := tt.m.Dims()
			if !floats.EqualApprox(result.RowScale, allOnes(n), 1e-12) {
				t.Errorf("RowScale %v, want all 1", result.RowScale)
			}
			if !floats.EqualApprox(result.ColScale, allOnes(n), 1e-12) {
				t.Errorf("ColScale %v, want all 1", result.ColScale)
			}

			balanced := result.BalancedFrom(tt.m)
			for i := 0; i < n; i++ {
				for j := 0; j < n; j++ {
					if math.Abs(balanced.At(i, j)-tt.m.At(i, j)) > 0.01 {
						t.Errorf("balanced(%d,%d) = %f, want %f", i, j, balanced.At(i, j), tt.m.At(i, j))
					}
				}
			}
		})
	}
}

func TestFitZeroEntryWithoutZeroLine(t *testing.T) {
	// A zero entry is fine as long as no full row or column is zero.
	m := mat.NewDense(2, 2, []float64{0, 1, 1, 1})

	b := NewDefault()
	result, err := b.Fit(m)
	if err != nil {
		t.Fatalf("Fit failed: %v", err)
	}
	if !result.Converged {
		t.Errorf("Expected convergence, got residual %g after %d iterations", result.Residual, result.Iterations)
	}
}

func TestFitValidationErrors(t *testing.T) {
	b := NewDefault()

	t.Run("zero row", func(t *testing.T) {
		_, err := b.Fit(mat.NewDense(2, 2, []float64{0, 0, 1, 1}))
		var zl *ZeroLineError
		if !errors.As(err, &zl) {
			t.Fatalf("Expected ZeroLineError, got %v", err)
		}
		if zl.Axis != AxisRow || zl.Index != 0 {
			t.Errorf("Expected zero row 0, got %s %d", zl.Axis, zl.Index)
		}
	})

	t.Run("zero column", func(t *testing.T) {
		_, err := b.Fit(mat.NewDense(2, 2, []float64{0, 1, 0, 1}))
		var zl *ZeroLineError
		if !errors.As(err, &zl) {
			t.Fatalf("Expected ZeroLineError, got %v", err)
		}
		if zl.Axis != AxisColumn || zl.Index != 0 {
			t.Errorf("Expected zero column 0, got %s %d", zl.Axis, zl.Index)
		}
	})

	t.Run("negative entry", func(t *testing.T) {
		_, err := b.Fit(mat.NewDense(2, 2, []float64{1, -0.5, 1, 1}))
		var ne *NegativeEntryError
		if !errors.As(err, &ne) {
			t.Fatalf("Expected NegativeEntryError, got %v", err)
		}
		if ne.Row != 0 || ne.Col != 1 || ne.Value != -0.5 {
			t.Errorf("Unexpected entry report: %+v", ne)
		}
	})

	t.Run("not square", func(t *testing.T) {
		_, err := b.Fit(mat.NewDense(2, 3, []float64{1, 1, 1, 1, 1, 1}))
		var se *ShapeError
		if !errors.As(err, &se) {
			t.Fatalf("Expected ShapeError, got %v", err)
		}
		if se.Rows != 2 || se.Cols != 3 {
			t.Errorf("Unexpected shape report: %+v", se)
		}
	})

	// Validation failures must leave the balancer unfitted.
	if _, err := b.Diagonals(); !errors.Is(err, ErrNotFitted) {
		t.Errorf("Expected ErrNotFitted after rejected inputs, got %v", err)
	}
}

func TestDiagonals(t *testing.T) {
	b := NewDefault()

	if _, err := b.Diagonals(); !errors.Is(err, ErrNotFitted) {
		t.Fatalf("Expected ErrNotFitted before Fit, got %v", err)
	}

	m := mat.NewDense(2, 2, []float64{0.011, 0.15, 1.71, 0.1})
	fitted, err := b.Fit(m)
	if err != nil {
		t.Fatalf("Fit failed: %v", err)
	}

	got, err := b.Diagonals()
	if err != nil {
		t.Fatalf("Diagonals failed: %v", err)
	}
	if got != fitted {
		t.Error("Diagonals must return the retained result without recomputation")
	}
}

func TestFitNonConvergence(t *testing.T) {
	// Three iterations cannot push the deviation below 1e-15, so the
	// iteration cap wins.
	b, err := New(Config{
		MaxIterations:  3,
		Epsilon:        1e-3,
		Tolerance:      1e-15,
		CheckTolerance: 1e-2,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	m := mat.NewDense(2, 2, []float64{0.011, 0.15, 1.71, 0.1})
	result, err := b.Fit(m)
	if err != nil {
		t.Fatalf("Fit must not fail on non-convergence: %v", err)
	}

	if result.Converged {
		t.Error("Expected non-convergence")
	}
	if result.StoppedBy != StoppedByMaxIterations {
		t.Errorf("Expected stop reason %q, got %q", StoppedByMaxIterations, result.StoppedBy)
	}
	if result.Iterations != 3 {
		t.Errorf("Expected 3 iterations, got %d", result.Iterations)
	}
	if !result.HasDiagnostic(DiagNonConvergence) {
		t.Errorf("Expected %s diagnostic, got %v", DiagNonConvergence, result.Diagnostics)
	}
	if len(result.RowScale) != 2 || len(result.ColScale) != 2 {
		t.Error("Best-effort scales must still be returned")
	}
}

func TestFitTightTolerance(t *testing.T) {
	// The reciprocal updates must not carry a bias that puts a floor
	// under the residual; a tolerance far below the default has to be
	// reachable for a well-supported matrix.
	b, err := New(Config{
		MaxIterations:  10000,
		Epsilon:        1e-3,
		Tolerance:      1e-9,
		CheckTolerance: 1e-2,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	m := mat.NewDense(2, 2, []float64{0.011, 0.15, 1.71, 0.1})
	result, err := b.Fit(m)
	if err != nil {
		t.Fatalf("Fit failed: %v", err)
	}

	if !result.Converged {
		t.Fatalf("Expected convergence at tolerance 1e-9, residual %g after %d iterations", result.Residual, result.Iterations)
	}
	if result.Residual > 1e-9 {
		t.Errorf("Residual %g exceeds tolerance", result.Residual)
	}
}

func TestFitScalingInvariance(t *testing.T) {
	// Rescaling a row or column by a positive constant must not change
	// the balanced matrix, only the scale vectors. A tight tolerance
	// pins both fits to the shared fixed point before comparing.
	cfg := Config{
		MaxIterations:  10000,
		Epsilon:        1e-9,
		Tolerance:      1e-12,
		CheckTolerance: 1e-2,
	}

	m := mat.NewDense(2, 2, []float64{0.011, 0.15, 1.71, 0.1})
	scaled := mat.NewDense(2, 2, nil)
	scaled.CloneFrom(m)
	// Row 0 times 5, column 1 times 3.
	for j := 0; j < 2; j++ {
		scaled.Set(0, j, scaled.At(0, j)*5)
	}
	for i := 0; i < 2; i++ {
		scaled.Set(i, 1, scaled.At(i, 1)*3)
	}

	b1, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	b2, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	r1, err := b1.Fit(m)
	if err != nil {
		t.Fatalf("Fit failed: %v", err)
	}
	r2, err := b2.Fit(scaled)
	if err != nil {
		t.Fatalf("Fit failed: %v", err)
	}

	if !r1.Converged || !r2.Converged {
		t.Fatal("Expected both fits to converge")
	}

	balanced1 := r1.BalancedFrom(m)
	balanced2 := r2.BalancedFrom(scaled)
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			if d := math.Abs(balanced1.At(i, j) - balanced2.At(i, j)); d > 1e-4 {
				t.Errorf("balanced(%d,%d) differs by %g after input rescaling", i, j, d)
			}
		}
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{name: "zero max iterations", cfg: Config{MaxIterations: 0, Epsilon: 1e-3, Tolerance: 1e-3, CheckTolerance: 1e-2}},
		{name: "negative epsilon", cfg: Config{MaxIterations: 10, Epsilon: -1, Tolerance: 1e-3, CheckTolerance: 1e-2}},
		{name: "zero tolerance", cfg: Config{MaxIterations: 10, Epsilon: 1e-3, Tolerance: 0, CheckTolerance: 1e-2}},
		{name: "zero check tolerance", cfg: Config{MaxIterations: 10, Epsilon: 1e-3, Tolerance: 1e-3, CheckTolerance: 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.cfg); err == nil {
				t.Error("Expected config validation error")
			}
		})
	}

	if _, err := New(DefaultConfig()); err != nil {
		t.Errorf("DefaultConfig must validate: %v", err)
	}
}

func TestObserver(t *testing.T) {
	b := NewDefault()

	var iterations []int
	var residuals []float64
	b.Observe(func(iteration int, residual float64) {
		iterations = append(iterations, iteration)
		residuals = append(residuals, residual)
	})

	m := mat.NewDense(2, 2, []float64{0.011, 0.15, 1.71, 0.1})
	result, err := b.Fit(m)
	if err != nil {
		t.Fatalf("Fit failed: %v", err)
	}

	if len(iterations) != result.Iterations {
		t.Fatalf("Observer saw %d iterations, result reports %d", len(iterations), result.Iterations)
	}
	for k, iter := range iterations {
		if iter != k+1 {
			t.Errorf("Observer iteration %d reported as %d", k+1, iter)
		}
	}
	if last := residuals[len(residuals)-1]; last != result.Residual {
		t.Errorf("Final observed residual %g differs from result residual %g", last, result.Residual)
	}
}
