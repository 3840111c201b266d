package sketch

import (
	"testing"

	"github.com/CMU-SAFARI/rawalign/chain"
	"github.com/CMU-SAFARI/rawalign/index"
	"github.com/stretchr/testify/assert"
)

type fakeIndex struct {
	postings map[uint64][]uint64
}

func (f *fakeIndex) Lookup(hash uint64) []uint64        { return f.postings[hash] }
func (f *fakeIndex) NumSequences() uint32               { return 1 }
func (f *fakeIndex) Sequence(i uint32) index.SeqInfo     { return index.SeqInfo{Name: "ref0", Len: 1000} }
func (f *fakeIndex) ForwardSignals(i uint32) []float32  { return nil }
func (f *fakeIndex) ReverseSignals(i uint32) []float32  { return nil }

func defaultParams() Params {
	return Params{W: 3, E: 6, Q: 16, LQ: 4, K: 5}
}

func TestSketchProducesMinimizerPerWindow(t *testing.T) {
	events := make([]float32, 30)
	for i := range events {
		events[i] = float32(i%7) - 3
	}
	var arena Arena
	hashes := Sketch(&arena, events, 0, defaultParams())
	assert.NotEmpty(t, hashes)
	for _, h := range hashes {
		assert.Less(t, h.Pos, uint32(len(events)))
	}
}

func TestSketchTooShortReturnsNil(t *testing.T) {
	var arena Arena
	hashes := Sketch(&arena, []float32{1, 2}, 0, defaultParams())
	assert.Nil(t, hashes)
}

func TestSeedBucketsByStrandAndReference(t *testing.T) {
	idx := &fakeIndex{postings: map[uint64][]uint64{
		42: {
			index.PackPosting(0, 0, 1000),
			index.PackPosting(1, 1, 2000),
		},
	}}
	hashes := []MinimizerHash{{Hash: 42, Pos: 5}}
	forward, reverse := Seed(idx, hashes, 100)
	assert.Len(t, forward, 1)
	assert.Len(t, reverse, 1)
	assert.Equal(t, uint32(0), forward[0].ReferenceID)
	assert.Equal(t, chain.Anchor{QueryPosition: 105, TargetPosition: 1000}, forward[0].Anchors[0])
	assert.Equal(t, uint32(1), reverse[0].ReferenceID)
	assert.Equal(t, chain.Anchor{QueryPosition: 105, TargetPosition: 2000}, reverse[0].Anchors[0])
}

func TestSeedUnknownHashYieldsNoAnchors(t *testing.T) {
	idx := &fakeIndex{postings: map[uint64][]uint64{}}
	hashes := []MinimizerHash{{Hash: 7, Pos: 0}}
	forward, reverse := Seed(idx, hashes, 0)
	assert.Empty(t, forward)
	assert.Empty(t, reverse)
}
