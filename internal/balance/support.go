package balance

import "gonum.org/v1/gonum/mat"

// HasSupport runs a cheap necessary-condition probe for total support:
// no all-zero row or column, and no two rows (or columns) whose single
// nonzero entry falls in the same column (or row). A matrix failing the
// probe cannot have total support, so Sinkhorn-Knopp will not converge
// on it. Passing the probe is necessary but not sufficient; an exact
// verification would require a perfect-matching search, which this
// package deliberately does not implement.
//
// On failure the second return value describes the violated condition.
func HasSupport(m mat.Matrix) (bool, string) {
	rows, cols := m.Dims()
	if rows != cols {
		return false, "matrix is not square"
	}
	n := rows

	colCount := make([]int, n)
	rowCount := make([]int, n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if m.At(i, j) != 0 {
				rowCount[i]++
				colCount[j]++
			}
		}
	}
	for i := 0; i < n; i++ {
		if rowCount[i] == 0 {
			return false, "some row is all zero"
		}
	}
	for j := 0; j < n; j++ {
		if colCount[j] == 0 {
			return false, "some column is all zero"
		}
	}

	// Two rows nonzero only in the same single column can never both be
	// matched in a permutation with a positive product.
	seenCol := make(map[int]bool)
	for i := 0; i < n; i++ {
		if rowCount[i] != 1 {
			continue
		}
		j := singleNonzeroCol(m, i, n)
		if seenCol[j] {
			return false, "two rows are nonzero in only one shared column"
		}
		seenCol[j] = true
	}

	// Transpose case: two columns nonzero only in the same single row.
	seenRow := make(map[int]bool)
	for j := 0; j < n; j++ {
		if colCount[j] != 1 {
			continue
		}
		i := singleNonzeroRow(m, j, n)
		if seenRow[i] {
			return false, "two columns are nonzero in only one shared row"
		}
		seenRow[i] = true
	}

	return true, ""
}

func singleNonzeroCol(m mat.Matrix, i, n int) int {
	for j := 0; j < n; j++ {
		if m.At(i, j) != 0 {
			return j
		}
	}
	return -1
}

func singleNonzeroRow(m mat.Matrix, j, n int) int {
	for i := 0; i < n; i++ {
		if m.At(i, j) != 0 {
			return i
		}
	}
	return -1
}
