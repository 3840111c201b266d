// Package chain implements the colinear chaining dynamic program: given a
// sorted anchor list for one (strand, reference) bucket, it finds up to
// num_best_chains high-scoring chains of colinear anchors, exactly the
// recurrence and traceback of the source program's gen_chains/traceback_chains.
package chain

import "sort"

// Anchor is a candidate match between a query (read) event position and a
// target (reference) event position sharing a seed hash.
type Anchor struct {
	QueryPosition  uint32
	TargetPosition uint32
}

// AnchorBucket is the sorted anchor list for one (strand, reference) pair,
// the unit of work the chainer consumes. Sort order is (target, query)
// ascending, per invariant 1.
type AnchorBucket struct {
	ReferenceID uint32
	Strand      uint8 // 0 = forward, 1 = reverse
	Anchors     []Anchor
}

// byTargetThenQuery implements sort.Interface for AnchorBucket.Anchors,
// grounded on the teacher's preference for named comparator types (e.g.
// util.operations) over ad hoc sort.Slice closures.
type byTargetThenQuery []Anchor

func (a byTargetThenQuery) Len() int      { return len(a) }
func (a byTargetThenQuery) Swap(i, j int) { a[i], a[j] = a[j], a[i] }
func (a byTargetThenQuery) Less(i, j int) bool {
	if a[i].TargetPosition != a[j].TargetPosition {
		return a[i].TargetPosition < a[j].TargetPosition
	}
	return a[i].QueryPosition < a[j].QueryPosition
}

// SortAnchors sorts anchors in place by (target, query) ascending, the
// contract AnchorBucket.Anchors must satisfy before Chain is called.
func SortAnchors(anchors []Anchor) {
	sort.Sort(byTargetThenQuery(anchors))
}

// RightToLeftAnchors is the anchor list owned by a Chain, in the order the
// traceback produces it: anchors[0] is the chain's END (highest target
// position), anchors[len-1] is its START. This is a REDESIGN FLAG fix: the
// source program leaves this convention as an implicit, undocumented array
// order; naming the type forces every caller to either consume it
// right-to-left on purpose or call Reversed() explicitly.
type RightToLeftAnchors []Anchor

// Reversed returns a new slice holding the same anchors in target-ascending
// (query-ascending) order, for callers like paf that need conventional
// ordering.
func (a RightToLeftAnchors) Reversed() []Anchor {
	out := make([]Anchor, len(a))
	for i, anchor := range a {
		out[len(a)-1-i] = anchor
	}
	return out
}

// Chain is a colinear sequence of anchors forming a putative local
// alignment, plus the score and bookkeeping fields the evaluator and
// finalizer need.
type Chain struct {
	ChainingScore   float32
	AlignmentScore  float32 // default 0 until eval.Evaluate runs
	ReferenceID     uint32
	Strand          uint8
	StartPosition   uint32 // target-coordinate; == Anchors[last].TargetPosition
	EndPosition     uint32 // target-coordinate; == Anchors[0].TargetPosition
	NAnchors        uint32
	Mapq            uint8
	Anchors         RightToLeftAnchors
	DTWResult       *DTWResult // set by eval when it rescores with FillFull; nil otherwise
}

// DTWResult mirrors dtw.Result without importing the dtw package from
// chain, so the chain package stays independent of the DTW kernel
// implementation; eval converts between the two.
type DTWResult struct {
	Cost      float32
	Alignment []DTWElement
}

// DTWElement is one cell of a warping path attached to a chain.
type DTWElement struct {
	I, J       int
	Difference float32
}

// Opts configures the chaining dynamic program; field names and defaults
// mirror ri_mapopt_t's chaining-related fields in roptions.c field for field.
type Opts struct {
	ChainingBandLength      uint32 // sliding predecessor window width
	MaxNumSkips             int    // skip-counter heuristic bound
	MaxGapLength            uint32 // admissibility: |Δt - Δq| bound
	MaxTargetGapLength      uint32 // break if Δt exceeds this
	MinNumAnchors           uint32
	NumBestChains           int
	MinChainingScore        float32
	EventConcatenationDepth uint32 // the sketcher's e, used in match_bonus
	DisableScoreFiltering   bool   // skip the best/2 threshold on end-anchor candidates
}

const (
	minScaleRatio = 0.75
	maxScaleRatio = 5.0
)

// chainState is per-anchor DP bookkeeping, kept parallel to the anchor
// slice rather than embedded in it so Anchor stays a plain value type.
type chainState struct {
	score float32
	pred  int // index of the chosen predecessor; self (pred[i]==i) starts a chain
	used  bool
}

// ChainAnchors runs the colinear chaining DP over a sorted anchor list and
// returns up to opt.NumBestChains chains meeting opt.MinNumAnchors, each
// using reference/strand from bucket.
func ChainAnchors(bucket AnchorBucket, opt Opts) []Chain {
	anchors := bucket.Anchors
	n := len(anchors)
	if n == 0 {
		return nil
	}
	states := make([]chainState, n)
	for i := range states {
		states[i] = chainState{score: float32(opt.EventConcatenationDepth), pred: i}
	}

	for i := 0; i < n; i++ {
		// Sliding predecessor window is bounded by anchor-index distance, per
		// spec.md §4.3: j in [max(0, i-chaining_band_length), i-1].
		lo := i - int(opt.ChainingBandLength)
		if lo < 0 {
			lo = 0
		}
		skips := 0
		best := states[i].score
		bestPred := i
		for j := i - 1; j >= lo; j-- {
			if anchors[j].QueryPosition == anchors[i].QueryPosition ||
				anchors[j].TargetPosition == anchors[i].TargetPosition {
				continue
			}
			if anchors[i].TargetPosition-anchors[j].TargetPosition > opt.MaxTargetGapLength {
				break
			}
			if anchors[i].QueryPosition < anchors[j].QueryPosition {
				continue
			}
			deltaT := float32(anchors[i].TargetPosition - anchors[j].TargetPosition)
			deltaQ := float32(anchors[i].QueryPosition - anchors[j].QueryPosition)
			scale := float32(1)
			if deltaT != 0 {
				scale = deltaQ / deltaT
			}
			gap := deltaT - deltaQ
			if gap < 0 {
				gap = -gap
			}
			var candidate float32
			if gap < float32(opt.MaxGapLength) && scale > minScaleRatio && scale < maxScaleRatio {
				matchBonus := deltaT
				if deltaQ < matchBonus {
					matchBonus = deltaQ
				}
				if float32(opt.EventConcatenationDepth) < matchBonus {
					matchBonus = float32(opt.EventConcatenationDepth)
				}
				candidate = states[j].score + matchBonus
			}
			// An inadmissible predecessor (candidate left at 0) never beats best
			// and falls through here the same as a non-improving admissible one,
			// per gen_chains: it still counts against the skip budget.
			if candidate > best {
				best = candidate
				bestPred = j
				skips--
			} else {
				skips++
				if skips >= opt.MaxNumSkips {
					break
				}
			}
		}
		states[i].score = best
		states[i].pred = bestPred
	}

	return traceback(bucket, states, opt)
}

type endCandidate struct {
	index int
	score float32
}

func traceback(bucket AnchorBucket, states []chainState, opt Opts) []Chain {
	anchors := bucket.Anchors
	n := len(anchors)
	var bestScore float32
	for i := 0; i < n; i++ {
		if states[i].score > bestScore {
			bestScore = states[i].score
		}
	}
	threshold := opt.MinChainingScore
	if !opt.DisableScoreFiltering {
		half := bestScore / 2
		if half > threshold {
			threshold = half
		}
	}

	var candidates []endCandidate
	for i := 0; i < n; i++ {
		if states[i].score >= threshold {
			candidates = append(candidates, endCandidate{i, states[i].score})
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].index > candidates[j].index
	})

	var chains []Chain
	for _, c := range candidates {
		if len(chains) >= opt.NumBestChains {
			break
		}
		if !opt.DisableScoreFiltering && c.score < bestScore/2 {
			break
		}
		if states[c.index].used {
			continue
		}
		var path RightToLeftAnchors
		score := c.score
		i := c.index
		for {
			if states[i].used {
				// Hit an anchor a higher-scoring chain already claimed: stop here
				// and remove its score contribution, resolving Open Question 3 —
				// NAnchors below is the post-break count, i.e. the truncated chain.
				score -= states[i].score
				break
			}
			path = append(path, anchors[i])
			states[i].used = true
			pred := states[i].pred
			if pred == i {
				break
			}
			i = pred
		}
		if uint32(len(path)) < opt.MinNumAnchors {
			continue
		}
		chains = append(chains, Chain{
			ChainingScore: score,
			ReferenceID:   bucket.ReferenceID,
			Strand:        bucket.Strand,
			StartPosition: path[len(path)-1].TargetPosition,
			EndPosition:   path[0].TargetPosition,
			NAnchors:      uint32(len(path)),
			Anchors:       path,
		})
	}
	return chains
}
