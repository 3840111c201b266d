// Package paf defines the output record and writer for the mapper's
// PAF-like result lines, grounded on pileup/snp/output.go's tsv.Writer
// usage (field order per spec.md §6).
package paf

import (
	"context"
	"io"
	"strconv"

	"github.com/grailbio/base/tsv"
	"github.com/klauspost/compress/zstd"
)

// Tag is one optional key:type:value PAF tag.
type Tag struct {
	Key   string // two-letter tag key, e.g. "mt", "ci"
	Type  byte   // 'f', 'i', or 's'
	Value string // pre-formatted value
}

func floatTag(key string, v float32) Tag {
	return Tag{Key: key, Type: 'f', Value: strconv.FormatFloat(float64(v), 'g', -1, 32)}
}

func intTag(key string, v int64) Tag {
	return Tag{Key: key, Type: 'i', Value: strconv.FormatInt(v, 10)}
}

func stringTag(key string, v string) Tag {
	return Tag{Key: key, Type: 's', Value: v}
}

// Record is one read's mapping result. Mapped is false for an unmapped
// read, in which case only QName, QLen, Mapq, and Tags are meaningful;
// every other field is emitted as "*" per spec.md §6.
type Record struct {
	Mapped bool

	QName string
	QLen  uint32
	QStart, QEnd uint32
	Strand byte // '+' or '-'

	TName string
	TLen  uint32
	TStart, TEnd uint32

	NMatches uint32
	AlignLen uint32
	Mapq     uint8

	Tags []Tag
}

// MapMillis sets the mt:f tag (wall time spent mapping this read, ms).
func (r *Record) MapMillis(ms float32) { r.Tags = append(r.Tags, floatTag("mt", ms)) }

// ChunkCount sets the ci:i tag (number of signal chunks consumed).
func (r *Record) ChunkCount(n int) { r.Tags = append(r.Tags, intTag("ci", int64(n))) }

// SignalLen sets the sl:i tag (total raw signal samples consumed).
func (r *Record) SignalLen(n int) { r.Tags = append(r.Tags, intTag("sl", int64(n))) }

// AnchorCount sets the cm:i tag (anchor count of the reported chain).
func (r *Record) AnchorCount(n uint32) { r.Tags = append(r.Tags, intTag("cm", int64(n))) }

// ChainCount sets the nc:i tag (number of chains the read kept after
// evaluation and primary selection).
func (r *Record) ChainCount(n int) { r.Tags = append(r.Tags, intTag("nc", int64(n))) }

// Scores sets the s1:f/s2:f/sm:f tags (best, second-best, mean score).
func (r *Record) Scores(best, second, mean float32) {
	r.Tags = append(r.Tags, floatTag("s1", best), floatTag("s2", second), floatTag("sm", mean))
}

// AvgGaps sets the at:f/aq:f tags (average target/query gap length).
func (r *Record) AvgGaps(target, query float32) {
	r.Tags = append(r.Tags, floatTag("at", target), floatTag("aq", query))
}

// AlignmentScore sets the alns:f tag (DTW alignment score, when computed).
func (r *Record) AlignmentScore(score float32) { r.Tags = append(r.Tags, floatTag("alns", score)) }

// AlignmentPath sets the aln:s tag (a rendered warping path or CIGAR-like string).
func (r *Record) AlignmentPath(path string) { r.Tags = append(r.Tags, stringTag("aln", path)) }

// Anchors sets the anchors:s tag (a rendered anchor list, for debugging).
func (r *Record) Anchors(s string) { r.Tags = append(r.Tags, stringTag("anchors", s)) }

// Writer serializes Records as tab-separated PAF-like lines.
type Writer struct {
	tsv    *tsv.Writer
	closer func() error
}

// NewWriter wraps w in a plain (uncompressed) PAF writer.
func NewWriter(w io.Writer) *Writer {
	return &Writer{tsv: tsv.NewWriter(w)}
}

// NewZstdWriter wraps w in a zstd-compressed PAF writer; Close must be
// called to flush the compressor's trailer.
func NewZstdWriter(w io.Writer) (*Writer, error) {
	zw, err := zstd.NewWriter(w)
	if err != nil {
		return nil, err
	}
	return &Writer{tsv: tsv.NewWriter(zw), closer: zw.Close}, nil
}

func star(w *tsv.Writer) { w.WriteByte('*') }

// Write emits one record as a line, per spec.md §6's field order.
func (w *Writer) Write(r Record) error {
	t := w.tsv
	t.WriteString(r.QName)
	t.WriteUint32(r.QLen)

	if r.Mapped {
		t.WriteUint32(r.QStart)
		t.WriteUint32(r.QEnd)
		t.WriteByte(r.Strand)
		t.WriteString(r.TName)
		t.WriteUint32(r.TLen)
		t.WriteUint32(r.TStart)
		t.WriteUint32(r.TEnd)
		t.WriteUint32(r.NMatches)
		t.WriteUint32(r.AlignLen)
	} else {
		for i := 0; i < 9; i++ {
			star(t)
		}
	}
	t.WriteUint32(uint32(r.Mapq))

	for _, tag := range r.Tags {
		t.WriteString(tag.Key + ":" + string(tag.Type) + ":" + tag.Value)
	}
	return t.EndLine()
}

// Flush flushes any buffered output.
func (w *Writer) Flush() error { return w.tsv.Flush() }

// Close flushes and, for a compressed writer, closes the underlying
// compressor.
func (w *Writer) Close(ctx context.Context) error {
	if err := w.Flush(); err != nil {
		return err
	}
	if w.closer != nil {
		return w.closer()
	}
	return nil
}
