package index

import (
	"github.com/CMU-SAFARI/rawalign/rconf"
	"github.com/grailbio/base/log"
)

// Stat prints a summary of idx to stderr at startup, ported from
// ri_idx_stat in rawindex.h: k-mer size, concatenated-event depth,
// quantization bits, and sequence count. The sketching parameters
// themselves aren't part of the wire format (memindex.go's WriteTo never
// writes them), so they're supplied from the options a mapping run was
// invoked with rather than read back off idx.
func Stat(idx Index, opt rconf.IndexOpts) {
	log.Printf("index stat: k-mer size %d, event concatenation depth %d, quantization bits %d, sequences %d",
		opt.SketchK, opt.SketchE, opt.SketchLQ, idx.NumSequences())
}
