package dtw

// Result is a DTW alignment: its cost and the warping path that achieved it,
// in query-ascending order. This is the dtw_result of the source program;
// here it is a plain value a chain can hold by pointer and overwrite with a
// normal assignment, so there is no placement-new/manual-destructor concern.
type Result struct {
	Cost      float32
	Alignment []Element
}

// Element is one cell of a warping path: I and J are indices into the query
// and target vectors, Difference is query[I]-target[J] at that cell.
type Element struct {
	I, J       int
	Difference float32
}

// traceback walks predecessor pointers backward from (i,j) to a predStart
// cell, then reverses the collected cells into query-ascending order.
func traceback(mat matrix, a, b []float32, i, j int) []Element {
	var rev []Element
	for {
		rev = append(rev, Element{I: i, J: j, Difference: a[i] - b[j]})
		p := mat.predAt(i, j)
		if p == predStart {
			break
		}
		switch p {
		case predDiag:
			i--
			j--
		case predUp:
			i--
		case predLeft:
			j--
		}
	}
	for l, r := 0, len(rev)-1; l < r; l, r = l+1, r-1 {
		rev[l], rev[r] = rev[r], rev[l]
	}
	return rev
}

// GlobalTraceback is Global with the warping path reconstructed.
func GlobalTraceback(a, b []float32, excludeLast bool) Result {
	requireNonEmpty(a, b)
	mat := fillGlobal(a, b, nil)
	i, j := len(a)-1, len(b)-1
	return Result{
		Cost:      lastCellCost(a, b, mat, i, j, excludeLast),
		Alignment: traceback(mat, a, b, i, j),
	}
}

// SemiGlobalTraceback is SemiGlobal with the warping path reconstructed.
func SemiGlobalTraceback(a, b []float32, excludeLast bool) Result {
	requireNonEmpty(a, b)
	mat := fillSemiGlobal(a, b)
	i := len(a) - 1
	j := argminRow(mat, i, len(b))
	return Result{
		Cost:      lastCellCost(a, b, mat, i, j, excludeLast),
		Alignment: traceback(mat, a, b, i, j),
	}
}
