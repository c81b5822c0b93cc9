package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"gonum.org/v1/gonum/mat"

	"github.com/cwbudde/sinkhorn/internal/balance"
)

// writeJSON serializes v to the response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// matrixToDense converts a JSON row-major matrix into a gonum dense
// matrix. Ragged input is rejected with a balance.ShapeError; squareness
// and sign checks are left to the Balancer.
func matrixToDense(rows [][]float64) (*mat.Dense, error) {
	if len(rows) == 0 {
		return nil, &balance.ShapeError{Reason: "matrix is empty"}
	}
	if len(rows[0]) == 0 {
		return nil, &balance.ShapeError{Reason: "matrix rows are empty"}
	}

	cols := len(rows[0])
	data := make([]float64, 0, len(rows)*cols)
	for _, row := range rows {
		if len(row) != cols {
			return nil, &balance.ShapeError{Reason: "rows have differing lengths", Rows: len(rows), Cols: len(row)}
		}
		data = append(data, row...)
	}

	return mat.NewDense(len(rows), cols, data), nil
}

// balancedRows reconstructs diag(rowScale) * matrix * diag(colScale) as
// JSON-friendly row slices.
func balancedRows(matrix [][]float64, rowScale, colScale []float64) [][]float64 {
	n := len(rowScale)
	out := make([][]float64, n)
	for i := 0; i < n; i++ {
		out[i] = make([]float64, n)
		for j := 0; j < n; j++ {
			out[i][j] = rowScale[i] * matrix[i][j] * colScale[j]
		}
	}
	return out
}
