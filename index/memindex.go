package index

import (
	"bufio"
	"encoding/binary"
	"io"
	"math"
	"sort"

	"github.com/biogo/store/llrb"
	"github.com/dgryski/go-farm"
	"github.com/grailbio/base/errors"
	"github.com/minio/highwayhash"
)

// magic identifies a rawalign index file, ported from RI_IDX_MAGIC.
var magic = [2]byte{'R', 'I'}

const wireVersion = 1

// checksumKey is the fixed highwayhash key used for index-file integrity
// checks; index files are trusted build artifacts, not an adversarial input
// channel, so a well-known key (rather than a per-file random one) is
// sufficient to catch truncation/corruption, which is all spec.md §7
// requires of MalformedIndex detection.
var checksumKey = make([]byte, highwayhash.Size)

// posting is one (hash -> packed reference position) entry, ordered by hash
// for llrb.Tree storage so a built index dumps deterministically.
type posting struct {
	hash  uint64
	value uint64
}

func (p posting) Compare(other llrb.Comparable) int {
	o := other.(posting)
	switch {
	case p.hash < o.hash:
		return -1
	case p.hash > o.hash:
		return 1
	case p.value < o.value:
		return -1
	case p.value > o.value:
		return 1
	default:
		return 0
	}
}

// MemIndex is an in-memory reference Index implementation. Postings are
// bucketed by farm.Hash64 of the seed hash (a second, independent hash from
// the sketcher's SeaHash, per ri_idx_init's "b" parameter) into 2^bucketBits
// llrb.Tree buckets, so lookup touches one small ordered tree instead of one
// giant one.
type MemIndex struct {
	bucketBits uint
	buckets    []llrb.Tree
	sequences  []SeqInfo
	forward    [][]float32
	reverse    [][]float32
	closers    []func() error
}

// NewMemIndex creates an empty, buildable index with 2^bucketBits postings
// buckets.
func NewMemIndex(bucketBits uint) *MemIndex {
	return &MemIndex{
		bucketBits: bucketBits,
		buckets:    make([]llrb.Tree, 1<<bucketBits),
	}
}

func (m *MemIndex) bucketFor(hash uint64) *llrb.Tree {
	b := farm.Hash64WithSeed(nil, hash) >> (64 - m.bucketBits)
	return &m.buckets[b]
}

// AddSequence registers one reference sequence's forward/reverse-complement
// signal arrays and returns its reference_id.
func (m *MemIndex) AddSequence(info SeqInfo, forwardSignal, reverseSignal []float32) uint32 {
	id := uint32(len(m.sequences))
	m.sequences = append(m.sequences, info)
	m.forward = append(m.forward, forwardSignal)
	m.reverse = append(m.reverse, reverseSignal)
	return id
}

// AddSequenceFromFiles registers a reference sequence whose forward/reverse
// signal arrays live in separate raw float32 files, mapping them in place
// via mmapFloat32File (unix) or a plain read (other platforms) rather than
// decoding them through the WriteTo/ReadMemIndex wire format. Close must be
// called to release any mappings opened this way.
func (m *MemIndex) AddSequenceFromFiles(info SeqInfo, forwardPath, reversePath string) (uint32, error) {
	forward, closeFwd, err := mmapFloat32File(forwardPath)
	if err != nil {
		return 0, err
	}
	reverse, closeRev, err := mmapFloat32File(reversePath)
	if err != nil {
		closeFwd()
		return 0, err
	}
	id := m.AddSequence(info, forward, reverse)
	m.closers = append(m.closers, closeFwd, closeRev)
	return id, nil
}

// Close unmaps every signal array opened via AddSequenceFromFiles.
func (m *MemIndex) Close() error {
	var first error
	for _, c := range m.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	m.closers = nil
	return first
}

// AddPosting inserts one seed hit: a minimizer hash maps to a packed
// (reference_id, strand, target_position) triple, per PackPosting.
func (m *MemIndex) AddPosting(hash uint64, referenceID uint32, strand uint8, targetPosition uint32) {
	m.bucketFor(hash).Insert(posting{hash: hash, value: PackPosting(referenceID, strand, targetPosition)})
}

// Lookup implements Index. Each bucket holds only the postings that farm
// hashed to it, so a full in-bucket scan (llrb.Tree.Do, the one traversal
// primitive this pack's usage of llrb confirms) stays cheap.
func (m *MemIndex) Lookup(hash uint64) []uint64 {
	var values []uint64
	m.bucketFor(hash).Do(func(c llrb.Comparable) bool {
		if p := c.(posting); p.hash == hash {
			values = append(values, p.value)
		}
		return false
	})
	return values
}

func (m *MemIndex) NumSequences() uint32 { return uint32(len(m.sequences)) }

func (m *MemIndex) Sequence(i uint32) SeqInfo { return m.sequences[i] }

func (m *MemIndex) ForwardSignals(i uint32) []float32 { return m.forward[i] }

func (m *MemIndex) ReverseSignals(i uint32) []float32 { return m.reverse[i] }

// ErrMalformedIndex is returned when an index file fails its magic or
// checksum check.
var ErrMalformedIndex = errors.E(errors.Invalid, "index: malformed index file")

// WriteTo serializes the index in the on-disk wire format: a magic +
// version header, the sequence table, the forward/reverse signal arrays,
// and every posting ordered by (hash, value) — all under a
// highwayhash checksum trailer.
func (m *MemIndex) WriteTo(w io.Writer) (int64, error) {
	buf := &countingWriter{w: bufio.NewWriter(w)}
	hw, err := highwayhash.New(checksumKey)
	if err != nil {
		return 0, err
	}
	mw := io.MultiWriter(buf, hw)

	if _, err := mw.Write(magic[:]); err != nil {
		return buf.n, err
	}
	if err := writeUint8(mw, wireVersion); err != nil {
		return buf.n, err
	}
	if err := writeUint8(mw, uint8(m.bucketBits)); err != nil {
		return buf.n, err
	}
	if err := writeUint32(mw, uint32(len(m.sequences))); err != nil {
		return buf.n, err
	}
	for i, seq := range m.sequences {
		if err := writeString(mw, seq.Name); err != nil {
			return buf.n, err
		}
		if err := writeUint32(mw, seq.Len); err != nil {
			return buf.n, err
		}
		if err := writeFloat32Slice(mw, m.forward[i]); err != nil {
			return buf.n, err
		}
		if err := writeFloat32Slice(mw, m.reverse[i]); err != nil {
			return buf.n, err
		}
	}

	var all []posting
	for b := range m.buckets {
		m.buckets[b].Do(func(c llrb.Comparable) bool {
			all = append(all, c.(posting))
			return false
		})
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].hash != all[j].hash {
			return all[i].hash < all[j].hash
		}
		return all[i].value < all[j].value
	})
	if err := writeUint32(mw, uint32(len(all))); err != nil {
		return buf.n, err
	}
	for _, p := range all {
		if err := writeUint64(mw, p.hash); err != nil {
			return buf.n, err
		}
		if err := writeUint64(mw, p.value); err != nil {
			return buf.n, err
		}
	}

	if err := buf.w.(*bufio.Writer).Flush(); err != nil {
		return buf.n, err
	}
	if _, err := w.Write(hw.Sum(nil)); err != nil {
		return buf.n, err
	}
	return buf.n, nil
}

// ReadMemIndex deserializes an index previously written by WriteTo,
// returning ErrMalformedIndex if the magic or checksum does not match.
func ReadMemIndex(r io.Reader) (*MemIndex, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if len(data) < len(magic)+1+1+highwayhash.Size {
		return nil, ErrMalformedIndex
	}
	body, sum := data[:len(data)-highwayhash.Size], data[len(data)-highwayhash.Size:]

	hw, err := highwayhash.New(checksumKey)
	if err != nil {
		return nil, err
	}
	if _, err := hw.Write(body); err != nil {
		return nil, err
	}
	want := hw.Sum(nil)
	for i := range want {
		if want[i] != sum[i] {
			return nil, ErrMalformedIndex
		}
	}

	br := bufio.NewReader(byteReader(body))
	var m [2]byte
	if _, err := io.ReadFull(br, m[:]); err != nil || m != magic {
		return nil, ErrMalformedIndex
	}
	version, err := readUint8(br)
	if err != nil || version != wireVersion {
		return nil, ErrMalformedIndex
	}
	bucketBits, err := readUint8(br)
	if err != nil {
		return nil, ErrMalformedIndex
	}
	idx := NewMemIndex(uint(bucketBits))

	nSeq, err := readUint32(br)
	if err != nil {
		return nil, ErrMalformedIndex
	}
	for i := uint32(0); i < nSeq; i++ {
		name, err := readString(br)
		if err != nil {
			return nil, ErrMalformedIndex
		}
		length, err := readUint32(br)
		if err != nil {
			return nil, ErrMalformedIndex
		}
		fwd, err := readFloat32Slice(br)
		if err != nil {
			return nil, ErrMalformedIndex
		}
		rev, err := readFloat32Slice(br)
		if err != nil {
			return nil, ErrMalformedIndex
		}
		idx.AddSequence(SeqInfo{Name: name, Len: length}, fwd, rev)
	}

	nPostings, err := readUint32(br)
	if err != nil {
		return nil, ErrMalformedIndex
	}
	for i := uint32(0); i < nPostings; i++ {
		hash, err := readUint64(br)
		if err != nil {
			return nil, ErrMalformedIndex
		}
		value, err := readUint64(br)
		if err != nil {
			return nil, ErrMalformedIndex
		}
		idx.bucketFor(hash).Insert(posting{hash: hash, value: value})
	}
	return idx, nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

func byteReader(b []byte) io.Reader { return &sliceReader{b: b} }

type sliceReader struct {
	b []byte
	i int
}

func (r *sliceReader) Read(p []byte) (int, error) {
	if r.i >= len(r.b) {
		return 0, io.EOF
	}
	n := copy(p, r.b[r.i:])
	r.i += n
	return n, nil
}

func writeUint8(w io.Writer, v uint8) error {
	_, err := w.Write([]byte{v})
	return err
}

func readUint8(r io.Reader) (uint8, error) {
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

func writeUint32(w io.Writer, v uint32) error {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	_, err := w.Write(b[:])
	return err
}

func readUint32(r io.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

func writeUint64(w io.Writer, v uint64) error {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	_, err := w.Write(b[:])
	return err
}

func readUint64(r io.Reader) (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b[:]), nil
}

func writeString(w io.Writer, s string) error {
	if err := writeUint32(w, uint32(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func readString(r io.Reader) (string, error) {
	n, err := readUint32(r)
	if err != nil {
		return "", err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}

func writeFloat32Slice(w io.Writer, values []float32) error {
	if err := writeUint32(w, uint32(len(values))); err != nil {
		return err
	}
	b := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(v))
	}
	_, err := w.Write(b)
	return err
}

func readFloat32Slice(r io.Reader) ([]float32, error) {
	n, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	b := make([]byte, 4*n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	values := make([]float32, n)
	for i := range values {
		values[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return values, nil
}
