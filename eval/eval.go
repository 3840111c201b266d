// Package eval implements the chain evaluator (C4): optional DTW rescoring,
// the early-exit bound, primary-chain selection, and MAPQ, exactly the
// algorithm of spec.md §4.4 ported from rmap.cpp's chain_dp_score/
// gen_alignment/mapq routines.
package eval

import (
	"math"
	"sort"

	"github.com/CMU-SAFARI/rawalign/chain"
	"github.com/CMU-SAFARI/rawalign/dtw"
	"github.com/CMU-SAFARI/rawalign/index"
)

// BorderConstraint selects how the DTW rescoring rectangle is bounded.
type BorderConstraint int

const (
	// BorderGlobal DTWs the whole [start..end] rectangle in one shot.
	BorderGlobal BorderConstraint = iota
	// BorderSparse DTWs each consecutive anchor pair independently,
	// subtracting the final cell's local cost from every segment but the
	// last so shared anchor cells aren't double-counted.
	BorderSparse
)

// FillMethod selects which dtw kernel variant eval dispatches to.
type FillMethod int

const (
	FillFull FillMethod = iota
	FillBanded
)

// EvalOpts configures Evaluate; field names mirror the relevant subset of
// rconf.MapOpts so mapping can build one directly from its own options.
type EvalOpts struct {
	EvaluateChains   bool
	BorderConstraint BorderConstraint
	FillMethod       FillMethod
	BandRadiusFrac   float32
	MatchBonus       float32
	MinScore         float32
}

func targetSignal(idx index.Index, c chain.Chain) []float32 {
	if c.Strand == 0 {
		return idx.ForwardSignals(c.ReferenceID)
	}
	return idx.ReverseSignals(c.ReferenceID)
}

func bandRadius(queryLen int, frac float32) int {
	r := int(float32(queryLen) * frac)
	if r < 1 {
		r = 1
	}
	return r
}

// runDTW dispatches to the full or banded-antidiagonal kernel per
// fill_method, exactly as spec.md §4.4 prescribes ("dtw_global or
// dtw_global_slantedbanded_antidiag according to fill_method").
func runDTW(fill FillMethod, a, b []float32, frac float32, excludeLast bool) float32 {
	if fill == FillFull {
		return dtw.Global(a, b, excludeLast)
	}
	return dtw.GlobalSlantedBandedAntidiag(a, b, bandRadius(len(a), frac), excludeLast)
}

// tracebackDTW is used whenever FillMethod is FillFull (under either border
// constraint), where a full warping path is cheap to reconstruct and worth
// attaching to the chain; the banded path has no traceback kernel, so
// chains evaluated with FillBanded are left with a nil DTWResult.
func tracebackDTW(a, b []float32, excludeLast bool) dtw.Result {
	return dtw.GlobalTraceback(a, b, excludeLast)
}

func offsetAlignment(elems []dtw.Element, queryOffset, targetOffset uint32) []chain.DTWElement {
	out := make([]chain.DTWElement, len(elems))
	for i, e := range elems {
		out[i] = chain.DTWElement{
			I:          e.I + int(queryOffset),
			J:          e.J + int(targetOffset),
			Difference: e.Difference,
		}
	}
	return out
}

// evaluateOne computes alignment_score and (when feasible) a DTWResult for
// a single chain, using the configured border constraint.
func evaluateOne(c chain.Chain, idx index.Index, readEvents []float32, opt EvalOpts) chain.Chain {
	ascending := c.Anchors.Reversed()
	target := targetSignal(idx, c)
	first, last := ascending[0], ascending[len(ascending)-1]
	querySpan := int(last.QueryPosition-first.QueryPosition) + 1

	var totalCost float32
	var alignment []chain.DTWElement

	switch opt.BorderConstraint {
	case BorderGlobal:
		qa, qb := int(first.QueryPosition), int(last.QueryPosition)+1
		ta, tb := int(first.TargetPosition), int(last.TargetPosition)+1
		querySeg := readEvents[qa:qb]
		targetSeg := target[ta:tb]
		if opt.FillMethod == FillFull {
			res := tracebackDTW(querySeg, targetSeg, false)
			totalCost = res.Cost
			alignment = offsetAlignment(res.Alignment, first.QueryPosition, first.TargetPosition)
		} else {
			totalCost = runDTW(opt.FillMethod, querySeg, targetSeg, opt.BandRadiusFrac, false)
		}
	case BorderSparse:
		for i := 0; i < len(ascending)-1; i++ {
			a, b := ascending[i], ascending[i+1]
			qa, qb := int(a.QueryPosition), int(b.QueryPosition)+1
			ta, tb := int(a.TargetPosition), int(b.TargetPosition)+1
			querySeg := readEvents[qa:qb]
			targetSeg := target[ta:tb]
			excludeLast := i != len(ascending)-2
			if opt.FillMethod == FillFull {
				res := tracebackDTW(querySeg, targetSeg, excludeLast)
				totalCost += res.Cost
				alignment = append(alignment, offsetAlignment(res.Alignment, a.QueryPosition, a.TargetPosition)...)
			} else {
				totalCost += runDTW(opt.FillMethod, querySeg, targetSeg, opt.BandRadiusFrac, excludeLast)
			}
		}
	}

	c.AlignmentScore = float32(querySpan)*opt.MatchBonus - totalCost
	if len(alignment) > 0 {
		c.DTWResult = &chain.DTWResult{Cost: totalCost, Alignment: alignment}
	}
	return c
}

// scoreByDTW rescores every chain by DTW, applying the early-exit bound:
// chains are visited in chaining_score-descending order (the order they
// arrive in, since Evaluate sorts beforehand); once a chain's maximum
// attainable alignment_score (its query span times match_bonus, an upper
// bound since dtw_cost >= 0) falls below the best alignment_score found so
// far, it is abandoned with alignment_score = -Inf rather than paying for
// its DTW. A chain whose bound only ties the best is still evaluated.
func scoreByDTW(chains []chain.Chain, idx index.Index, readEvents []float32, opt EvalOpts) []chain.Chain {
	bestFound := float32(math.Inf(-1))
	out := make([]chain.Chain, len(chains))
	for i, c := range chains {
		ascending := c.Anchors.Reversed()
		first, last := ascending[0], ascending[len(ascending)-1]
		querySpan := int(last.QueryPosition-first.QueryPosition) + 1
		maxAttainable := float32(querySpan) * opt.MatchBonus
		if maxAttainable < bestFound {
			c.AlignmentScore = float32(math.Inf(-1))
			out[i] = c
			continue
		}
		scored := evaluateOne(c, idx, readEvents, opt)
		if scored.AlignmentScore > bestFound {
			bestFound = scored.AlignmentScore
		}
		out[i] = scored
	}
	return out
}

func scoreOf(c chain.Chain, useAlignment bool) float32 {
	if useAlignment {
		return c.AlignmentScore
	}
	return c.ChainingScore
}

func intervalsOverlap(aStart, aEnd, bStart, bEnd uint32) bool {
	return aStart <= bEnd && bStart <= aEnd
}

// selectPrimary implements spec.md §4.4's primary-chain selection: sort
// descending by the configured score, keep the first, and for each
// following chain drop it if its score is below best/3 or it overlaps an
// already-chosen primary on the same reference.
func selectPrimary(chains []chain.Chain, useAlignment bool) []chain.Chain {
	if len(chains) == 0 {
		return nil
	}
	sorted := append([]chain.Chain(nil), chains...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return scoreOf(sorted[i], useAlignment) > scoreOf(sorted[j], useAlignment)
	})

	best := scoreOf(sorted[0], useAlignment)
	var primaries []chain.Chain
	for _, c := range sorted {
		if scoreOf(c, useAlignment) < best/3 {
			continue
		}
		overlaps := false
		for _, p := range primaries {
			if p.ReferenceID == c.ReferenceID && intervalsOverlap(p.StartPosition, p.EndPosition, c.StartPosition, c.EndPosition) {
				overlaps = true
				break
			}
		}
		if overlaps {
			continue
		}
		primaries = append(primaries, c)
	}
	return primaries
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// assignMAPQ implements spec.md §4.4's MAPQ rule over the final primary
// set: 60 if there is a single primary, otherwise a function of the ratio
// between the best and second-best score.
func assignMAPQ(primaries []chain.Chain, useAlignment bool) {
	if len(primaries) == 0 {
		return
	}
	if len(primaries) == 1 {
		primaries[0].Mapq = 60
		return
	}
	best := scoreOf(primaries[0], useAlignment)
	second := scoreOf(primaries[1], useAlignment)
	var ratio float32
	if best != 0 {
		ratio = second / best
	}
	mapq := uint8(clamp(int(math.Round(float64(40*(1-ratio)))), 0, 60))
	for i := range primaries {
		primaries[i].Mapq = mapq
	}
}

// Evaluate scores, filters, and selects the primary chain(s) from a read's
// candidate chains, per spec.md §4.4. chains must already satisfy
// chain.Chain's invariants (Anchors in right-to-left order, etc); idx
// supplies the reference signal the chains are rescored against;
// readEvents is the read's accumulated event vector in query coordinates.
func Evaluate(chains []chain.Chain, idx index.Index, readEvents []float32, opt EvalOpts) []chain.Chain {
	if len(chains) == 0 {
		return nil
	}
	work := append([]chain.Chain(nil), chains...)
	sort.SliceStable(work, func(i, j int) bool { return work[i].ChainingScore > work[j].ChainingScore })

	if opt.EvaluateChains {
		work = scoreByDTW(work, idx, readEvents, opt)
		filtered := work[:0]
		for _, c := range work {
			if c.AlignmentScore >= opt.MinScore {
				filtered = append(filtered, c)
			}
		}
		work = filtered
	}

	// Primary selection and MAPQ both sort/score by alignment_score
	// whenever DTW rescoring ran (there is nothing else meaningful to use
	// at that point), falling back to chaining_score otherwise.
	primaries := selectPrimary(work, opt.EvaluateChains)
	assignMAPQ(primaries, opt.EvaluateChains)
	return primaries
}
