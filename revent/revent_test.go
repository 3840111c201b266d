package revent

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func defaultParams() Params {
	return Params{WindowLength1: 3, WindowLength2: 6, Threshold1: 4.30265, Threshold2: 2.57058, PeakHeight: 1.0}
}

func TestDetectShortInputReturnsSingleEvent(t *testing.T) {
	events := TTestDetector{}.Detect([]float32{1, 2, 3}, defaultParams())
	assert.Len(t, events, 1)
}

func TestDetectEmptyInputReturnsNil(t *testing.T) {
	events := TTestDetector{}.Detect(nil, defaultParams())
	assert.Nil(t, events)
}

func TestDetectFindsLevelShift(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	samples := make([]float32, 400)
	for i := range samples {
		level := float32(20)
		if i >= 200 {
			level = 80
		}
		samples[i] = level + float32(rng.NormFloat64())*0.01
	}
	events := TTestDetector{}.Detect(samples, defaultParams())
	assert.GreaterOrEqual(t, len(events), 2)

	// first event should be near the low level, last near the high level.
	assert.InDelta(t, 20, events[0], 2)
	assert.InDelta(t, 80, events[len(events)-1], 2)
}

func TestDetectFlatSignalYieldsFewEvents(t *testing.T) {
	samples := make([]float32, 200)
	for i := range samples {
		samples[i] = 42
	}
	events := TTestDetector{}.Detect(samples, defaultParams())
	assert.NotEmpty(t, events)
	for _, e := range events {
		assert.InDelta(t, 42, e, 0.001)
	}
}
