// Package matio reads and writes dense matrices as CSV text. It is the
// boundary between file formats and the numeric core: parsing produces
// a gonum dense matrix, semantic validation stays in package balance.
package matio

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/cwbudde/sinkhorn/internal/balance"
)

// ReadMatrix parses a dense matrix from CSV input. Every record becomes
// one row; all records must have the same number of fields. Ragged
// input is rejected with a balance.ShapeError so callers can treat
// malformed text and non-square matrices uniformly.
func ReadMatrix(r io.Reader) (*mat.Dense, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	records, err := cr.ReadAll()
	if err != nil {
		var pe *csv.ParseError
		if errors.As(err, &pe) && errors.Is(pe.Err, csv.ErrFieldCount) {
			return nil, &balance.ShapeError{Reason: fmt.Sprintf("row %d has a different number of entries", pe.Line)}
		}
		return nil, fmt.Errorf("failed to read matrix: %w", err)
	}
	if len(records) == 0 {
		return nil, &balance.ShapeError{Reason: "matrix is empty"}
	}

	rows := len(records)
	cols := len(records[0])
	data := make([]float64, 0, rows*cols)
	for i, record := range records {
		for j, field := range record {
			v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
			if err != nil {
				return nil, fmt.Errorf("invalid entry at (%d,%d): %q", i, j, field)
			}
			data = append(data, v)
		}
	}

	return mat.NewDense(rows, cols, data), nil
}

// ReadMatrixFile parses a dense matrix from a CSV file.
func ReadMatrixFile(path string) (*mat.Dense, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open matrix file: %w", err)
	}
	defer f.Close()

	m, err := ReadMatrix(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// WriteMatrix writes m as CSV, one row per record.
func WriteMatrix(w io.Writer, m mat.Matrix) error {
	cw := csv.NewWriter(w)

	rows, cols := m.Dims()
	record := make([]string, cols)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			record[j] = strconv.FormatFloat(m.At(i, j), 'g', -1, 64)
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write matrix row %d: %w", i, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteMatrixFile writes m as CSV to path.
func WriteMatrixFile(path string, m mat.Matrix) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create matrix file: %w", err)
	}
	defer f.Close()

	if err := WriteMatrix(f, m); err != nil {
		return err
	}
	return f.Close()
}

// FormatVector renders a vector as a single CSV record, for human output.
func FormatVector(v []float64) string {
	fields := make([]string, len(v))
	for i, x := range v {
		fields[i] = strconv.FormatFloat(x, 'g', 6, 64)
	}
	return strings.Join(fields, ", ")
}
