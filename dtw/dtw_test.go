package dtw

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

const tolerance = 1e-3

func randomVector(rng *rand.Rand, n int) []float32 {
	v := make([]float32, n)
	for i := range v {
		v[i] = rng.Float32() * 10
	}
	return v
}

// necessaryBandRadius returns a radius comfortably larger than any possible
// warping-path deviation from the slanted diagonal, so banded variants are
// guaranteed to agree with the full kernels in these tests.
func necessaryBandRadius(m, n int) int {
	r := m
	if n > r {
		r = n
	}
	return r
}

func TestGlobalVariantsAgree(t *testing.T) {
	// Scenario S1: seeds 42/43, two random vectors of length 10.
	for _, seed := range []int64{42, 43} {
		rng := rand.New(rand.NewSource(seed))
		a := randomVector(rng, 10)
		b := randomVector(rng, 10)
		want := Global(a, b, false)
		r := necessaryBandRadius(len(a), len(b))
		assert.InDelta(t, want, GlobalSlantedBanded(a, b, r, false), tolerance)
		assert.InDelta(t, want, GlobalSlantedBandedAntidiag(a, b, r, false), tolerance)
		assert.InDelta(t, want, baselineGlobal(a, b), tolerance)
	}
}

func TestAgreesWithBaseline(t *testing.T) {
	// Scenario S4: random length-pairs, each checked against the naive oracle.
	lengthPairs := [][2]int{{4, 4}, {10, 10}, {20, 10}, {25, 10}, {100, 100}, {200, 50}, {200, 30}}
	const totalTests = 700
	perGroup := totalTests / len(lengthPairs)
	seed := int64(0)
	for _, lp := range lengthPairs {
		for i := 0; i < perGroup; i++ {
			rng := rand.New(rand.NewSource(seed))
			seed++
			a := randomVector(rng, lp[0])
			b := randomVector(rng, lp[1])
			want := baselineGlobal(a, b)
			assert.InDelta(t, want, Global(a, b, false), tolerance)
			r := necessaryBandRadius(lp[0], lp[1])
			assert.InDelta(t, want, GlobalSlantedBanded(a, b, r, false), tolerance)
			assert.InDelta(t, want, GlobalSlantedBandedAntidiag(a, b, r, false), tolerance)
		}
	}
}

func TestIdentitySequenceIsZeroCost(t *testing.T) {
	// Scenario S2.
	a := []float32{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}
	b := []float32{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}
	assert.Equal(t, float32(0), Global(a, b, false))
	res := GlobalTraceback(a, b, false)
	assert.Equal(t, float32(0), res.Cost)
	assert.Len(t, res.Alignment, 10)
	for i, e := range res.Alignment {
		assert.Equal(t, i, e.I)
		assert.Equal(t, i, e.J)
	}
}

func TestDuplicatedTargetElementAllowsHorizontalStep(t *testing.T) {
	// Scenario S3.
	a := []float32{1, 2, 3}
	b := []float32{1, 2, 2, 3}
	assert.Equal(t, float32(0), Global(a, b, false))
	res := GlobalTraceback(a, b, false)
	assert.Equal(t, float32(0), res.Cost)
	assert.Len(t, res.Alignment, 4)
	horizontal := false
	for i := 1; i < len(res.Alignment); i++ {
		if res.Alignment[i].I == res.Alignment[i-1].I {
			horizontal = true
		}
	}
	assert.True(t, horizontal, "expected a horizontal step across the duplicated 2")
}

func TestTracebackCostMatchesPathSum(t *testing.T) {
	// Invariant 4: sum of |a[i]-b[j]| along the path equals the returned cost.
	rng := rand.New(rand.NewSource(7))
	a := randomVector(rng, 20)
	b := randomVector(rng, 15)
	res := GlobalTraceback(a, b, false)
	var sum float32
	for _, e := range res.Alignment {
		sum += absDiff(a[e.I], b[e.J])
	}
	assert.InDelta(t, res.Cost, sum, tolerance)

	semi := SemiGlobalTraceback(a, b, false)
	sum = 0
	for _, e := range semi.Alignment {
		sum += absDiff(a[e.I], b[e.J])
	}
	assert.InDelta(t, semi.Cost, sum, tolerance)
}

func TestExcludeLastAdditivity(t *testing.T) {
	// Invariant 3: splitting at a shared matching endpoint is additive.
	a := []float32{0, 1, 2, 3, 4, 5}
	b := []float32{0, 1, 2, 3, 4, 5}
	full := Global(a, b, false)
	first := Global(a[:4], b[:4], true)  // a[0..3], b[0..3], shared cell a[3]==b[3]
	second := Global(a[3:], b[3:], false)
	assert.InDelta(t, full, first+second, tolerance)
}

func TestSemiGlobalFreesTargetEnds(t *testing.T) {
	a := []float32{5, 6, 7}
	b := []float32{1, 2, 5, 6, 7, 9, 9}
	assert.Equal(t, float32(0), SemiGlobal(a, b, false))
}

func TestDiagonalBandedDisagreesOnRectangularInput(t *testing.T) {
	// Open question 1: GlobalDiagonalBanded is a legacy variant and is
	// documented to be able to diverge from the slanted-band variants when
	// the inputs aren't square, as this 200x30 pair with a radius-5 diagonal
	// band does; it must never be used for chain evaluation.
	rng := rand.New(rand.NewSource(11))
	a := randomVector(rng, 200)
	b := randomVector(rng, 30)
	slanted := GlobalSlantedBanded(a, b, necessaryBandRadius(len(a), len(b)), false)
	diagonal := GlobalDiagonalBanded(a, b, 5, false)
	assert.NotEqual(t, slanted, diagonal)
}

func TestEmptyInputPanics(t *testing.T) {
	assert.Panics(t, func() { Global(nil, []float32{1}, false) })
	assert.Panics(t, func() { Global([]float32{1}, nil, false) })
}

func TestNegativeBandRadiusPanics(t *testing.T) {
	assert.Panics(t, func() { GlobalSlantedBanded([]float32{1, 2}, []float32{1, 2}, -1, false) })
}

func TestRunDispatchesVariants(t *testing.T) {
	a := []float32{0, 1, 2, 3}
	b := []float32{0, 1, 2, 3}
	assert.Equal(t, Global(a, b, false), Run(Variant{Kind: KindGlobal}, a, b, false))
	assert.Equal(t, SemiGlobal(a, b, false), Run(Variant{Kind: KindSemiGlobal}, a, b, false))
	assert.Equal(t,
		GlobalSlantedBanded(a, b, 2, false),
		Run(Variant{Kind: KindSlantedBanded, BandRadius: 2}, a, b, false))
}
