package mapping

import (
	"context"
	"testing"

	"github.com/CMU-SAFARI/rawalign/chain"
	"github.com/CMU-SAFARI/rawalign/index"
	"github.com/CMU-SAFARI/rawalign/rconf"
	"github.com/CMU-SAFARI/rawalign/revent"
	"github.com/CMU-SAFARI/rawalign/sketch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// identityDetector treats every sample as its own event, so a test can
// fully control the "event" vector a chunk produces.
type identityDetector struct{}

func (identityDetector) Detect(samples []float32, p revent.Params) []float32 {
	out := make([]float32, len(samples))
	copy(out, samples)
	return out
}

type fakeIndex struct {
	postings map[uint64][]uint64
	seqs     []index.SeqInfo
	forward  map[uint32][]float32
}

func (f *fakeIndex) Lookup(hash uint64) []uint64       { return f.postings[hash] }
func (f *fakeIndex) NumSequences() uint32              { return uint32(len(f.seqs)) }
func (f *fakeIndex) Sequence(i uint32) index.SeqInfo   { return f.seqs[i] }
func (f *fakeIndex) ForwardSignals(i uint32) []float32 { return f.forward[i] }
func (f *fakeIndex) ReverseSignals(i uint32) []float32 { return nil }

func referenceSignal(n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32((i*37)%23) - 10
	}
	return out
}

func testOpts() rconf.MapOpts {
	o := rconf.DefaultMapOpts()
	o.EvaluateChains = false // skip DTW rescoring so the test only exercises seeding/chaining
	o.MinEvents = 20
	o.MaxNumChunk = 1
	return o
}

func buildIndexFromSignal(t *testing.T, signal []float32, p sketch.Params) *fakeIndex {
	t.Helper()
	var arena sketch.Arena
	hashes := sketch.Sketch(&arena, signal, 0, p)
	require.NotEmpty(t, hashes)

	postings := make(map[uint64][]uint64)
	for _, h := range hashes {
		postings[h.Hash] = append(postings[h.Hash], index.PackPosting(0, 0, h.Pos))
	}
	return &fakeIndex{
		postings: postings,
		seqs:     []index.SeqInfo{{Name: "ref0", Len: uint32(len(signal))}},
		forward:  map[uint32][]float32{0: signal},
	}
}

func TestAdvanceMapsIdenticalReadWithHighConfidence(t *testing.T) {
	opt := testOpts()
	sig := referenceSignal(150)
	idx := buildIndexFromSignal(t, sig, sketchParams(opt))

	s := NewState(1, "read1")
	terminal := s.Advance(context.Background(), sig, identityDetector{}, idx, opt)
	assert.True(t, terminal)
	require.True(t, s.Mapped)
	require.NotEmpty(t, s.Chains)

	rec := s.Finalize(idx, opt)
	assert.True(t, rec.Mapped)
	assert.Equal(t, "ref0", rec.TName)
	assert.EqualValues(t, 60, rec.Mapq)
	assert.Equal(t, byte('+'), rec.Strand)
}

func TestAdvanceWithNoSeedHitsStaysUnmapped(t *testing.T) {
	opt := testOpts()
	idx := &fakeIndex{
		postings: map[uint64][]uint64{},
		seqs:     []index.SeqInfo{{Name: "ref0", Len: 1000}},
		forward:  map[uint32][]float32{},
	}
	sig := referenceSignal(150)

	s := NewState(2, "read2")
	terminal := s.Advance(context.Background(), sig, identityDetector{}, idx, opt)
	assert.True(t, terminal)
	assert.False(t, s.Mapped)

	rec := s.Finalize(idx, opt)
	assert.False(t, rec.Mapped)
	assert.EqualValues(t, 0, rec.Mapq)
}

func TestAdvanceBelowMinEventsSkipsSeedingButTracksOffset(t *testing.T) {
	opt := testOpts()
	opt.MinEvents = 1000
	opt.MaxNumChunk = 2
	idx := &fakeIndex{postings: map[uint64][]uint64{}, seqs: []index.SeqInfo{{Name: "ref0", Len: 10}}}

	s := NewState(3, "read3")
	terminal := s.Advance(context.Background(), referenceSignal(10), identityDetector{}, idx, opt)
	assert.False(t, terminal)
	assert.EqualValues(t, 10, s.Offset)
	assert.Empty(t, s.Chains)
}

func TestHighConfidenceSingleChainRequiresMinAnchors(t *testing.T) {
	assert.False(t, highConfidence(nil, false, 2, 1.2, 5))
	weak := []chain.Chain{{NAnchors: 1}}
	assert.False(t, highConfidence(weak, false, 2, 1.2, 5))
	strong := []chain.Chain{{NAnchors: 3}}
	assert.True(t, highConfidence(strong, false, 2, 1.2, 5))
}
