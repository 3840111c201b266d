// Package mapping implements the per-read chunk state machine (C5): the
// ReadMappingState ("Reg" in the source program) and its Advance/Finalize
// operations, ported from rmap.cpp's map_worker_for/ri_map_frag/
// is_mapped_with_high_confidence.
package mapping

import (
	"context"

	"github.com/CMU-SAFARI/rawalign/chain"
	"github.com/CMU-SAFARI/rawalign/eval"
	"github.com/CMU-SAFARI/rawalign/index"
	"github.com/CMU-SAFARI/rawalign/paf"
	"github.com/CMU-SAFARI/rawalign/rconf"
	"github.com/CMU-SAFARI/rawalign/revent"
	"github.com/CMU-SAFARI/rawalign/sketch"
)

// State is the per-read accumulator carried across signal chunks.
type State struct {
	ReadID   uint32
	ReadName string

	Offset uint32     // == len(Events) at all times (invariant 4)
	Events []float32  // accumulated across chunks; grows monotonically
	Chains []chain.Chain

	Chunks int
	Mapped bool

	samples int // raw signal samples consumed across all chunks
	arena   sketch.Arena
}

// NewState begins tracking a new read.
func NewState(readID uint32, readName string) *State {
	return &State{ReadID: readID, ReadName: readName}
}

func reventParams(opt rconf.MapOpts) revent.Params {
	return revent.Params{
		WindowLength1: opt.WindowLength1,
		WindowLength2: opt.WindowLength2,
		Threshold1:    opt.Threshold1,
		Threshold2:    opt.Threshold2,
		PeakHeight:    opt.PeakHeight,
	}
}

func sketchParams(opt rconf.MapOpts) sketch.Params {
	return sketch.Params{W: opt.SketchW, E: opt.SketchE, Q: opt.SketchQ, LQ: opt.SketchLQ, K: opt.SketchK}
}

func chainOpts(opt rconf.MapOpts) chain.Opts {
	return chain.Opts{
		ChainingBandLength:      opt.ChainingBandLength,
		MaxNumSkips:             opt.MaxNumSkips,
		MaxGapLength:            opt.MaxGapLength,
		MaxTargetGapLength:      opt.MaxTargetGapLength,
		MinNumAnchors:           opt.MinNumAnchors,
		NumBestChains:           opt.NumBestChains,
		MinChainingScore:        opt.MinChainingScore,
		EventConcatenationDepth: uint32(opt.SketchE),
		DisableScoreFiltering:   opt.DisableChainingScoreFiltering,
	}
}

func evalOpts(opt rconf.MapOpts) eval.EvalOpts {
	border := eval.BorderSparse
	if opt.DTWBorderConstraint == rconf.BorderGlobal {
		border = eval.BorderGlobal
	}
	fill := eval.FillBanded
	if opt.DTWFillMethod == rconf.FillFull {
		fill = eval.FillFull
	}
	return eval.EvalOpts{
		EvaluateChains:   opt.EvaluateChains,
		BorderConstraint: border,
		FillMethod:       fill,
		BandRadiusFrac:   opt.DTWBandRadiusFrac,
		MatchBonus:       opt.DTWMatchBonus,
		MinScore:         opt.DTWMinScore,
	}
}

// injectPrevious prepends surviving chains' anchors (for the matching
// strand) into the freshly seeded buckets before re-chaining, per spec.md
// §4.2: "previous-chain anchors are prepended before sorting so they
// participate as ordinary anchors; the sort provides the de-facto merge."
func injectPrevious(buckets []chain.AnchorBucket, previous []chain.Chain, strand uint8) []chain.AnchorBucket {
	for _, c := range previous {
		if c.Strand != strand {
			continue
		}
		found := false
		for i := range buckets {
			if buckets[i].ReferenceID == c.ReferenceID {
				buckets[i].Anchors = append(buckets[i].Anchors, []chain.Anchor(c.Anchors)...)
				found = true
				break
			}
		}
		if !found {
			buckets = append(buckets, chain.AnchorBucket{
				ReferenceID: c.ReferenceID,
				Strand:      strand,
				Anchors:     append([]chain.Anchor(nil), []chain.Anchor(c.Anchors)...),
			})
		}
	}
	for i := range buckets {
		chain.SortAnchors(buckets[i].Anchors)
	}
	return buckets
}

func chainAllBuckets(buckets []chain.AnchorBucket, opt chain.Opts) []chain.Chain {
	var out []chain.Chain
	for _, b := range buckets {
		out = append(out, chain.ChainAnchors(b, opt)...)
	}
	return out
}

func scoreOf(c chain.Chain, useAlignment bool) float32 {
	if useAlignment {
		return c.AlignmentScore
	}
	return c.ChainingScore
}

// highConfidence implements spec.md §4.5 step 5's predicate.
func highConfidence(chains []chain.Chain, useAlignment bool, minChainAnchor uint32, minBestmapRatio, minMeanmapRatio float32) bool {
	n := len(chains)
	if n == 0 {
		return false
	}
	if n == 1 {
		return chains[0].NAnchors >= minChainAnchor
	}
	best := scoreOf(chains[0], useAlignment)
	second := scoreOf(chains[1], useAlignment)
	var sum float32
	for _, c := range chains {
		sum += scoreOf(c, useAlignment)
	}
	mean := sum / float32(n)
	if second != 0 && best/second >= minBestmapRatio {
		return true
	}
	if mean != 0 && best >= minMeanmapRatio*mean {
		return true
	}
	return false
}

// Advance performs one chunk's worth of work: detect events, seed, chain,
// evaluate, and check the high-confidence-mapped predicate. It returns
// true when the read is done (confidently mapped, or the chunk budget
// opt.MaxNumChunk has been exhausted).
func (s *State) Advance(ctx context.Context, chunkSamples []float32, ed revent.Detector, idx index.Index, opt rconf.MapOpts) bool {
	s.Chunks++
	s.samples += len(chunkSamples)
	chunkStart := s.Offset

	newEvents := ed.Detect(chunkSamples, reventParams(opt))
	s.Events = append(s.Events, newEvents...)
	s.Offset = uint32(len(s.Events))

	if s.Offset < opt.MinEvents {
		return s.Chunks >= opt.MaxNumChunk
	}

	s.arena.Reset()
	hashes := sketch.Sketch(&s.arena, newEvents, chunkStart, sketchParams(opt))
	forward, reverse := sketch.Seed(idx, hashes, chunkStart)
	forward = injectPrevious(forward, s.Chains, 0)
	reverse = injectPrevious(reverse, s.Chains, 1)

	cOpt := chainOpts(opt)
	var candidates []chain.Chain
	candidates = append(candidates, chainAllBuckets(forward, cOpt)...)
	candidates = append(candidates, chainAllBuckets(reverse, cOpt)...)

	s.Chains = eval.Evaluate(candidates, idx, s.Events, evalOpts(opt))

	useAlignment := opt.EvaluateChains
	if highConfidence(s.Chains, useAlignment, opt.MinChainAnchor, opt.MinBestmapRatio, opt.MinMeanmapRatio) {
		s.Mapped = true
		return true
	}
	return s.Chunks >= opt.MaxNumChunk
}

// Finalize computes read_position_scale and emits the read's PAF record,
// mapped or not, per spec.md §4.5. On chunk-budget exhaustion it retries
// the high-confidence check with the looser *_out thresholds before
// falling back to unmapped.
func (s *State) Finalize(idx index.Index, opt rconf.MapOpts) paf.Record {
	if !s.Mapped && len(s.Chains) > 0 {
		useAlignment := opt.EvaluateChains
		if highConfidence(s.Chains, useAlignment, opt.MinChainAnchorOut, opt.MinBestmapRatioOut, opt.MinMeanmapRatioOut) {
			s.Mapped = true
		}
	}

	r := paf.Record{QName: s.ReadName, QLen: s.Offset}
	r.ChunkCount(s.Chunks)
	r.SignalLen(s.samples)
	r.ChainCount(len(s.Chains))

	if !s.Mapped || len(s.Chains) == 0 {
		r.Mapped = false
		r.Mapq = 0
		return r
	}

	best := s.Chains[0]
	readPositionScale := float32(1)
	if len(s.Events) > 0 {
		readPositionScale = (float32(s.Chunks) * float32(opt.ChunkSize) / float32(len(s.Events))) / (float32(opt.SampleRate) / float32(opt.BPPerSec))
	}

	ascending := best.Anchors.Reversed()
	qStart, qEnd := ascending[0].QueryPosition, ascending[len(ascending)-1].QueryPosition

	r.Mapped = true
	r.QStart = uint32(float32(qStart) * readPositionScale)
	r.QEnd = uint32(float32(qEnd) * readPositionScale)
	r.Strand = '+'
	if best.Strand == 1 {
		r.Strand = '-'
	}
	seq := idx.Sequence(best.ReferenceID)
	r.TName = seq.Name
	r.TLen = seq.Len
	r.TStart = best.StartPosition
	r.TEnd = best.EndPosition
	r.NMatches = best.NAnchors
	r.AlignLen = best.EndPosition - best.StartPosition + 1
	r.Mapq = best.Mapq
	r.AnchorCount(best.NAnchors)

	if len(s.Chains) >= 2 {
		r.Scores(scoreOf(s.Chains[0], opt.EvaluateChains), scoreOf(s.Chains[1], opt.EvaluateChains), meanScore(s.Chains, opt.EvaluateChains))
	} else {
		r.Scores(scoreOf(s.Chains[0], opt.EvaluateChains), 0, scoreOf(s.Chains[0], opt.EvaluateChains))
	}
	if opt.EvaluateChains {
		r.AlignmentScore(best.AlignmentScore)
	}
	return r
}

func meanScore(chains []chain.Chain, useAlignment bool) float32 {
	var sum float32
	for _, c := range chains {
		sum += scoreOf(c, useAlignment)
	}
	return sum / float32(len(chains))
}
