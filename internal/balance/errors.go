package balance

import (
	"errors"
	"fmt"
)

// ErrNotFitted is returned by Diagonals when Fit has not completed yet.
// Use errors.Is(err, ErrNotFitted) to check for this error.
var ErrNotFitted = errors.New("balance: fit has not been called")

// Axis identifies a matrix axis in error reports.
type Axis string

const (
	AxisRow    Axis = "row"
	AxisColumn Axis = "column"
)

// ShapeError reports input that is not a square 2-D matrix.
type ShapeError struct {
	Rows, Cols int

	// Reason carries a description for shape problems that are not a
	// plain row/column mismatch (ragged text input, empty matrix).
	Reason string
}

func (e *ShapeError) Error() string {
	if e.Reason != "" {
		return "invalid matrix shape: " + e.Reason
	}
	return fmt.Sprintf("matrix must be square, got %dx%d", e.Rows, e.Cols)
}

// NegativeEntryError reports the first negative entry found in the input.
type NegativeEntryError struct {
	Row, Col int
	Value    float64
}

func (e *NegativeEntryError) Error() string {
	return fmt.Sprintf("matrix has negative entries: %g at (%d,%d)", e.Value, e.Row, e.Col)
}

// ZeroLineError reports an all-zero row or column. No finite scaling can
// make a zero line sum to 1, so this aborts fitting before any iteration.
type ZeroLineError struct {
	Axis  Axis
	Index int
}

func (e *ZeroLineError) Error() string {
	return fmt.Sprintf("matrix has a zero %s (index %d): cannot have total support", e.Axis, e.Index)
}
