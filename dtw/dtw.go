// Package dtw implements the DTW kernel family used both to rescore
// colinear chains and to produce final alignment output: global and
// semi-global border policies, full and banded fill strategies, and a
// row-major vs antidiagonal traversal pair that must agree bit-for-bit
// (within tolerance) by construction.
package dtw

import "github.com/grailbio/base/log"

func requireNonEmpty(a, b []float32) {
	if len(a) == 0 || len(b) == 0 {
		log.Panicf("dtw: empty input (len(a)=%d, len(b)=%d)", len(a), len(b))
	}
}

func requireBand(bandRadius int) {
	if bandRadius < 0 {
		log.Panicf("dtw: negative band radius %d", bandRadius)
	}
}

// inBandFunc reports whether cell (i,j) lies inside the DP band; nil means
// unrestricted (full matrix).
type inBandFunc func(i, j int) bool

func slantedBand(m, n, bandRadius int) inBandFunc {
	return func(i, j int) bool {
		center := float64(i) * float64(n) / float64(m)
		d := float64(j) - center
		if d < 0 {
			d = -d
		}
		return d <= float64(bandRadius)
	}
}

func diagonalBand(bandRadius int) inBandFunc {
	return func(i, j int) bool {
		d := i - j
		if d < 0 {
			d = -d
		}
		return d <= bandRadius
	}
}

// fillGlobal computes the full (or banded) global-border DP table in
// row-major order: D[0,0] is seeded with the cost of aligning the first
// elements, the first row/column accumulate through the single valid
// predecessor (left or up respectively), and every interior cell takes the
// minimum of its three neighbors.
func fillGlobal(a, b []float32, inBand inBandFunc) matrix {
	m, n := len(a), len(b)
	mat := newMatrix(m, n)
	for i := 0; i < m; i++ {
		for j := 0; j < n; j++ {
			if inBand != nil && !inBand(i, j) {
				continue
			}
			fillGlobalCell(mat, a, b, i, j)
		}
	}
	return mat
}

// fillGlobalAntidiag computes the identical recurrence as fillGlobal but
// visits cells in antidiagonal (i+j) order, which is cache-friendlier for
// the banded case and exists solely for locality: every predecessor of a
// cell on diagonal d lies on diagonal d-1 or d-2, so this order is always
// dependency-safe.
func fillGlobalAntidiag(a, b []float32, inBand inBandFunc) matrix {
	m, n := len(a), len(b)
	mat := newMatrix(m, n)
	maxD := m + n - 2
	for d := 0; d <= maxD; d++ {
		loI := 0
		if d-(n-1) > loI {
			loI = d - (n - 1)
		}
		hiI := d
		if m-1 < hiI {
			hiI = m - 1
		}
		for i := loI; i <= hiI; i++ {
			j := d - i
			if inBand != nil && !inBand(i, j) {
				continue
			}
			fillGlobalCell(mat, a, b, i, j)
		}
	}
	return mat
}

func fillGlobalCell(mat matrix, a, b []float32, i, j int) {
	cost := absDiff(a[i], b[j])
	switch {
	case i == 0 && j == 0:
		mat.set(i, j, cost, predStart)
	case i == 0:
		mat.set(i, j, mat.at(i, j-1)+cost, predLeft)
	case j == 0:
		mat.set(i, j, mat.at(i-1, j)+cost, predUp)
	default:
		best, p := minPred(mat.at(i-1, j-1), mat.at(i-1, j), mat.at(i, j-1))
		mat.set(i, j, best+cost, p)
	}
}

// fillSemiGlobal computes the semi-global table: unlike fillGlobal, the
// first row and column are seeded directly from the local cost rather than
// accumulated, so both the target's start and the query's start are
// effectively free; the target's end is freed separately by taking the
// minimum over the last row.
func fillSemiGlobal(a, b []float32) matrix {
	m, n := len(a), len(b)
	mat := newMatrix(m, n)
	for i := 0; i < m; i++ {
		for j := 0; j < n; j++ {
			cost := absDiff(a[i], b[j])
			if i == 0 || j == 0 {
				mat.set(i, j, cost, predStart)
				continue
			}
			best, p := minPred(mat.at(i-1, j-1), mat.at(i-1, j), mat.at(i, j-1))
			mat.set(i, j, best+cost, p)
		}
	}
	return mat
}

// minPred returns the minimum of the three DTW predecessor costs along with
// which neighbor produced it, preferring diagonal over up over left on ties
// per the traceback tie-break rule.
func minPred(diag, up, left float32) (float32, predecessor) {
	best, p := diag, predDiag
	if up < best {
		best, p = up, predUp
	}
	if left < best {
		best, p = left, predLeft
	}
	return best, p
}

func lastCellCost(a, b []float32, mat matrix, i, j int, excludeLast bool) float32 {
	cost := mat.at(i, j)
	if excludeLast {
		cost -= absDiff(a[i], b[j])
	}
	return cost
}

// Global computes the global-border DTW cost between a and b: both
// sequences are consumed end to end. excludeLast, when true, subtracts the
// local cost of the final cell so that adjoining segments of a multi-segment
// DTW do not double-count the shared anchor cell.
func Global(a, b []float32, excludeLast bool) float32 {
	requireNonEmpty(a, b)
	mat := fillGlobal(a, b, nil)
	return lastCellCost(a, b, mat, len(a)-1, len(b)-1, excludeLast)
}

// GlobalSlantedBanded restricts Global's DP to cells within bandRadius of
// the line j = i*(n/m), following the natural aspect ratio of the two
// inputs, and treats cells outside the band as unreachable.
func GlobalSlantedBanded(a, b []float32, bandRadius int, excludeLast bool) float32 {
	requireNonEmpty(a, b)
	requireBand(bandRadius)
	mat := fillGlobal(a, b, slantedBand(len(a), len(b), bandRadius))
	return lastCellCost(a, b, mat, len(a)-1, len(b)-1, excludeLast)
}

// GlobalSlantedBandedAntidiag is numerically identical to
// GlobalSlantedBanded; it differs only in DP traversal order (antidiagonal
// rather than row-major), which is friendlier to cache and vectorization.
func GlobalSlantedBandedAntidiag(a, b []float32, bandRadius int, excludeLast bool) float32 {
	requireNonEmpty(a, b)
	requireBand(bandRadius)
	mat := fillGlobalAntidiag(a, b, slantedBand(len(a), len(b), bandRadius))
	return lastCellCost(a, b, mat, len(a)-1, len(b)-1, excludeLast)
}

// GlobalDiagonalBanded restricts the DP to cells within bandRadius of the
// main diagonal j = i, ignoring the two inputs' aspect ratio. It is a legacy
// variant kept for the performance benchmark and for its own tests: when
// m != n its band can exclude cells the slanted band keeps, so it can
// disagree with the slanted-band variants, and must never be used for chain
// evaluation.
func GlobalDiagonalBanded(a, b []float32, bandRadius int, excludeLast bool) float32 {
	requireNonEmpty(a, b)
	requireBand(bandRadius)
	mat := fillGlobal(a, b, diagonalBand(bandRadius))
	return lastCellCost(a, b, mat, len(a)-1, len(b)-1, excludeLast)
}

// SemiGlobal computes the semi-global-border DTW cost: both ends of the
// target are free (the result is the minimum over the last row), and the
// query must be consumed through its last element, though a leading run of
// it may be skipped because the first column is seeded with the local cost.
func SemiGlobal(a, b []float32, excludeLast bool) float32 {
	requireNonEmpty(a, b)
	mat := fillSemiGlobal(a, b)
	i := len(a) - 1
	j := argminRow(mat, i, len(b))
	return lastCellCost(a, b, mat, i, j, excludeLast)
}

func argminRow(mat matrix, i, n int) int {
	best, bestJ := mat.at(i, 0), 0
	for j := 1; j < n; j++ {
		if v := mat.at(i, j); v < best {
			best, bestJ = v, j
		}
	}
	return bestJ
}
