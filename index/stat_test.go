package index

import (
	"testing"

	"github.com/CMU-SAFARI/rawalign/rconf"
	"github.com/stretchr/testify/assert"
)

func TestStatDoesNotPanicOnPopulatedIndex(t *testing.T) {
	idx := buildSample()
	assert.NotPanics(t, func() {
		Stat(idx, rconf.IndexOpts{SketchK: 5, SketchE: 1, SketchLQ: 4})
	})
}

func TestStatDoesNotPanicOnEmptyIndex(t *testing.T) {
	idx := NewMemIndex(4)
	assert.NotPanics(t, func() {
		Stat(idx, rconf.DefaultIndexOpts())
	})
}
