// Package index defines the Index collaborator: a pre-built, read-only
// lookup table mapping event-window hashes to reference loci, plus the
// reference event vectors DTW rescoring needs. Index construction itself is
// out of scope (it is an external, offline sketching process); this package
// specifies only the query contract and the on-disk bit layout, plus a
// reference in-memory implementation (index/memindex.go) so the rest of the
// pipeline is runnable end to end.
package index

// Bit layout of a posting value returned by Lookup, matching
// RI_ID_SHIFT/RI_POS_SHIFT/RI_HASH_SHIFT in the original index format:
// reference_id occupies the high bits, target_position the middle bits
// (masked to 31 bits), strand the low bit.
const (
	IDShift  = 32
	PosShift = 1
	PosMask  = (uint64(1) << 31) - 1
	StrandBit = uint64(1)
)

// PackPosting encodes a posting list entry.
func PackPosting(referenceID uint32, strand uint8, targetPosition uint32) uint64 {
	return uint64(referenceID)<<IDShift | (uint64(targetPosition)&PosMask)<<PosShift | uint64(strand&1)
}

// UnpackPosting decodes a posting list entry produced by PackPosting.
func UnpackPosting(v uint64) (referenceID uint32, strand uint8, targetPosition uint32) {
	referenceID = uint32(v >> IDShift)
	targetPosition = uint32((v >> PosShift) & PosMask)
	strand = uint8(v & StrandBit)
	return
}

// SeqInfo describes one reference sequence registered in the index.
type SeqInfo struct {
	Name string
	Len  uint32
}

// Index is the read-only collaborator the sketcher and chain evaluator
// query. It is immutable after construction and safe for concurrent use by
// every mapping worker.
type Index interface {
	// Lookup returns the packed postings for a hash, or nil if the hash was
	// never seen while building the index.
	Lookup(hash uint64) []uint64
	NumSequences() uint32
	Sequence(i uint32) SeqInfo
	// ForwardSignals and ReverseSignals return the expected event vector for
	// reference sequence i, used as the DTW target during chain evaluation.
	ForwardSignals(i uint32) []float32
	ReverseSignals(i uint32) []float32
}
