package balance

import "math"

// oscillationWindow is the relative width within which two residuals
// are considered equal when probing for oscillation.
const oscillationWindow = 1e-9

// ResidualTracker records the residual history of a fitting run and
// detects oscillation: the residual returning to its value from two
// iterations back while still above the convergence tolerance. That
// pattern is the classic signature of a matrix with support but without
// total support, where the scales flip between two states.
type ResidualTracker struct {
	tolerance float64
	history   []float64
}

// NewResidualTracker creates a tracker for the given convergence tolerance
func NewResidualTracker(tolerance float64) *ResidualTracker {
	return &ResidualTracker{tolerance: tolerance}
}

// Update records a new residual and returns true if oscillation is detected
func (t *ResidualTracker) Update(residual float64) bool {
	t.history = append(t.history, residual)

	k := len(t.history)
	if k < 3 || residual < t.tolerance {
		return false
	}

	prev := t.history[k-3]
	if prev == 0 {
		return false
	}
	return math.Abs(residual-prev)/prev < oscillationWindow
}

// Len returns the number of recorded residuals.
func (t *ResidualTracker) Len() int {
	return len(t.history)
}

// History returns a copy of the full residual history.
func (t *ResidualTracker) History() []float64 {
	return append([]float64{}, t.history...)
}

// Reset clears the tracker's state
func (t *ResidualTracker) Reset() {
	t.history = t.history[:0]
}
