package dtw

import "math"

// predecessor records which neighbor produced the minimum at a DP cell,
// mirroring util.matrix's operation enum in the teacher's Levenshtein
// distance code but specialized to DTW's three-way recurrence plus a
// fourth "start" marker for directly-seeded boundary cells.
type predecessor uint8

const (
	predDiag predecessor = iota
	predUp
	predLeft
	predStart
)

// inf stands in for a DP cell outside the band: no finite path reaches it.
const inf = float32(math.MaxFloat32)

// matrix is a row-major DTW cost table with a parallel predecessor table,
// grounded on util.matrix's row-major []int data slice plus computeCell's
// three-way min, generalized to float32 costs and explicit traceback
// pointers instead of re-deriving them from two matrices at read time.
type matrix struct {
	nRow, nCol int
	cost       []float32
	pred       []predecessor
}

func newMatrix(nRow, nCol int) matrix {
	mat := matrix{
		nRow: nRow,
		nCol: nCol,
		cost: make([]float32, nRow*nCol),
		pred: make([]predecessor, nRow*nCol),
	}
	for i := range mat.cost {
		mat.cost[i] = inf
	}
	return mat
}

func (m matrix) at(i, j int) float32 {
	return m.cost[i*m.nCol+j]
}

func (m matrix) predAt(i, j int) predecessor {
	return m.pred[i*m.nCol+j]
}

func (m matrix) set(i, j int, cost float32, p predecessor) {
	idx := i*m.nCol + j
	m.cost[idx] = cost
	m.pred[idx] = p
}

func absDiff(x, y float32) float32 {
	if x > y {
		return x - y
	}
	return y - x
}
