// Package sketch converts a chunk of detected events into seeds (quantized,
// hashed event windows) and queries the Index to turn seed hits into
// chain.Anchor buckets, mirroring gen_chains' hashing/bucketing loop in the
// source program.
package sketch

import (
	"sort"

	"blainsmith.com/go/seahash"
	"github.com/CMU-SAFARI/rawalign/chain"
	"github.com/CMU-SAFARI/rawalign/index"
)

// Params configures the sketching scheme; field names mirror the source
// program's {w, e, q, lq, k} and must match whatever parameters the Index
// was built with.
type Params struct {
	W  int // minimizer window: pick the lowest hash among W consecutive windows
	E  int // event-concatenation depth feeding chain.Opts.EventConcatenationDepth
	Q  int // number of quantization levels
	LQ int // bits used to pack one quantized value
	K  int // number of quantized events concatenated into one hash window
}

// MinimizerHash is one seed: a hash value and the local (chunk-relative)
// query position of the window it was derived from.
type MinimizerHash struct {
	Hash uint64
	Pos  uint32
}

// Arena is per-read scratch reused across chunks and reset rather than
// freed, bounding allocation churn in the hot path the way
// fusion.Stitcher's freePool reuses Fragment backing arrays.
type Arena struct {
	quantized []uint32
	windowBuf []byte
	hashes    []MinimizerHash
}

// Reset clears the arena's buffers for reuse without releasing their
// backing storage.
func (a *Arena) Reset() {
	a.quantized = a.quantized[:0]
	a.windowBuf = a.windowBuf[:0]
	a.hashes = a.hashes[:0]
}

// quantizeRange bounds the raw event values a quantization level is
// computed over; current samples normalized upstream by the event detector
// are expected to fall within it, and values outside are clamped.
const quantizeRange = 5.0

func quantizeLevel(v float32, q int) uint32 {
	if q <= 1 {
		return 0
	}
	normalized := (v + quantizeRange) / (2 * quantizeRange)
	if normalized < 0 {
		normalized = 0
	}
	if normalized > 1 {
		normalized = 1
	}
	level := uint32(normalized * float32(q))
	if level >= uint32(q) {
		level = uint32(q) - 1
	}
	return level
}

// Sketch quantizes events and hashes every length-K window, then keeps only
// the minimizer (lowest hash) within each length-W sliding window of
// candidate hashes, exactly the minimizer-sketch idiom used for k-mer
// seeding elsewhere in the corpus (fusion's kmerizer), generalized from
// 2-bit bases to quantized event levels.
func Sketch(km *Arena, events []float32, chunkStart uint32, p Params) []MinimizerHash {
	if len(events) < p.K {
		return nil
	}
	km.quantized = km.quantized[:0]
	for _, v := range events {
		km.quantized = append(km.quantized, quantizeLevel(v, p.Q))
	}

	nWindows := len(km.quantized) - p.K + 1
	candidates := make([]MinimizerHash, nWindows)
	buf := make([]byte, p.K*4)
	for i := 0; i < nWindows; i++ {
		for k := 0; k < p.K; k++ {
			level := km.quantized[i+k]
			buf[k*4] = byte(level)
			buf[k*4+1] = byte(level >> 8)
			buf[k*4+2] = byte(level >> 16)
			buf[k*4+3] = byte(level >> 24)
		}
		candidates[i] = MinimizerHash{Hash: seahash.Sum64(buf), Pos: uint32(i)}
	}

	w := p.W
	if w < 1 {
		w = 1
	}
	km.hashes = km.hashes[:0]
	var lastMinIdx = -1
	for i := 0; i <= nWindows-w; i++ {
		minIdx := i
		for j := i + 1; j < i+w; j++ {
			if candidates[j].Hash < candidates[minIdx].Hash {
				minIdx = j
			}
		}
		if minIdx != lastMinIdx {
			km.hashes = append(km.hashes, candidates[minIdx])
			lastMinIdx = minIdx
		}
	}
	_ = chunkStart // local positions are offset by the caller in Seed
	return km.hashes
}

// Seed queries idx for every hash produced by Sketch and buckets the
// resulting anchors by (strand, reference_id), exactly as gen_chains does:
// for every hit list retrieved for hash h, and for each (reference_id,
// strand, target_pos) in the list, emit anchor {query_position: chunkStart +
// local_pos, target_position: target_pos}.
func Seed(idx index.Index, hashes []MinimizerHash, chunkStart uint32) (forward, reverse []chain.AnchorBucket) {
	type bucketKey struct {
		referenceID uint32
		strand      uint8
	}
	buckets := map[bucketKey]*chain.AnchorBucket{}

	for _, h := range hashes {
		postings := idx.Lookup(h.Hash)
		for _, posting := range postings {
			referenceID, strand, targetPosition := index.UnpackPosting(posting)
			key := bucketKey{referenceID, strand}
			b, ok := buckets[key]
			if !ok {
				b = &chain.AnchorBucket{ReferenceID: referenceID, Strand: strand}
				buckets[key] = b
			}
			b.Anchors = append(b.Anchors, chain.Anchor{
				QueryPosition:  chunkStart + h.Pos,
				TargetPosition: targetPosition,
			})
		}
	}

	keys := make([]bucketKey, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].strand != keys[j].strand {
			return keys[i].strand < keys[j].strand
		}
		return keys[i].referenceID < keys[j].referenceID
	})
	for _, k := range keys {
		b := buckets[k]
		chain.SortAnchors(b.Anchors)
		if k.strand == 0 {
			forward = append(forward, *b)
		} else {
			reverse = append(reverse, *b)
		}
	}
	return forward, reverse
}
