package chain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func defaultOpts() Opts {
	return Opts{
		ChainingBandLength:      5000,
		MaxNumSkips:             25,
		MaxGapLength:            2000,
		MaxTargetGapLength:      5000,
		MinNumAnchors:           2,
		NumBestChains:           3,
		MinChainingScore:        10,
		EventConcatenationDepth: 1,
	}
}

func colinearAnchors(n int) []Anchor {
	anchors := make([]Anchor, n)
	for i := 0; i < n; i++ {
		anchors[i] = Anchor{QueryPosition: uint32(i * 10), TargetPosition: uint32(1000 + i*10)}
	}
	return anchors
}

func TestChainMonotonicityAfterReversed(t *testing.T) {
	// Invariant 5: every emitted chain's anchor list is strictly
	// target-ascending after reversing the traceback order.
	bucket := AnchorBucket{ReferenceID: 0, Strand: 0, Anchors: colinearAnchors(20)}
	chains := ChainAnchors(bucket, defaultOpts())
	assert.NotEmpty(t, chains)
	for _, c := range chains {
		ascending := c.Anchors.Reversed()
		for i := 1; i < len(ascending); i++ {
			assert.Less(t, ascending[i-1].TargetPosition, ascending[i].TargetPosition)
		}
		assert.Equal(t, ascending[0].TargetPosition, c.StartPosition)
		assert.Equal(t, ascending[len(ascending)-1].TargetPosition, c.EndPosition)
	}
}

func TestChainRequiresMinNumAnchors(t *testing.T) {
	bucket := AnchorBucket{ReferenceID: 0, Strand: 0, Anchors: []Anchor{{QueryPosition: 0, TargetPosition: 100}}}
	chains := ChainAnchors(bucket, defaultOpts())
	assert.Empty(t, chains)
}

func TestChainSkipsNonColinearAndDuplicatePositions(t *testing.T) {
	anchors := []Anchor{
		{QueryPosition: 0, TargetPosition: 100},
		{QueryPosition: 0, TargetPosition: 110},  // same query position as anchor 0: skipped as predecessor
		{QueryPosition: 5, TargetPosition: 110},  // same target position as anchor 1: skipped as predecessor
		{QueryPosition: 10, TargetPosition: 120},
	}
	bucket := AnchorBucket{Anchors: anchors}
	opt := defaultOpts()
	opt.MinChainingScore = 0
	opt.MinNumAnchors = 1
	chains := ChainAnchors(bucket, opt)
	assert.NotEmpty(t, chains)
}

func TestChainBreaksOnExcessiveTargetGap(t *testing.T) {
	anchors := []Anchor{
		{QueryPosition: 0, TargetPosition: 100},
		{QueryPosition: 10, TargetPosition: 100 + 6000}, // beyond MaxTargetGapLength=5000
	}
	bucket := AnchorBucket{Anchors: anchors}
	opt := defaultOpts()
	opt.MinNumAnchors = 1
	opt.MinChainingScore = 0
	opt.NumBestChains = 10
	chains := ChainAnchors(bucket, opt)
	assert.NotEmpty(t, chains)
	// Each anchor should start its own chain; none should be chained together.
	for _, c := range chains {
		assert.Equal(t, uint32(1), c.NAnchors)
	}
}

func TestNumBestChainsBound(t *testing.T) {
	bucket := AnchorBucket{Anchors: colinearAnchors(50)}
	opt := defaultOpts()
	opt.NumBestChains = 2
	chains := ChainAnchors(bucket, opt)
	assert.LessOrEqual(t, len(chains), opt.NumBestChains)
}

func TestSortAnchorsOrdersByTargetThenQuery(t *testing.T) {
	anchors := []Anchor{
		{QueryPosition: 5, TargetPosition: 20},
		{QueryPosition: 1, TargetPosition: 10},
		{QueryPosition: 2, TargetPosition: 10},
	}
	SortAnchors(anchors)
	assert.Equal(t, []Anchor{
		{QueryPosition: 1, TargetPosition: 10},
		{QueryPosition: 2, TargetPosition: 10},
		{QueryPosition: 5, TargetPosition: 20},
	}, anchors)
}
