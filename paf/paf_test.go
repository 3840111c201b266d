package paf

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteMappedRecord(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	r := Record{
		Mapped: true,
		QName:  "read1", QLen: 100, QStart: 0, QEnd: 99, Strand: '+',
		TName: "chr1", TLen: 1000, TStart: 1000, TEnd: 1099,
		NMatches: 99, AlignLen: 100, Mapq: 60,
	}
	r.ChainCount(3)
	require.NoError(t, w.Write(r))
	require.NoError(t, w.Flush())

	line := strings.TrimRight(buf.String(), "\n")
	fields := strings.Split(line, "\t")
	assert.Equal(t, []string{
		"read1", "100", "0", "99", "+", "chr1", "1000", "1000", "1099", "99", "100", "60", "nc:i:3",
	}, fields)
}

func TestWriteUnmappedRecordEmitsStars(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	r := Record{Mapped: false, QName: "read2", QLen: 50, Mapq: 0}
	require.NoError(t, w.Write(r))
	require.NoError(t, w.Flush())

	line := strings.TrimRight(buf.String(), "\n")
	fields := strings.Split(line, "\t")
	require.Len(t, fields, 12)
	assert.Equal(t, "read2", fields[0])
	assert.Equal(t, "50", fields[1])
	for _, f := range fields[2:11] {
		assert.Equal(t, "*", f)
	}
	assert.Equal(t, "0", fields[11])
}

func TestZstdWriterRoundTrips(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewZstdWriter(&buf)
	require.NoError(t, err)
	require.NoError(t, w.Write(Record{Mapped: false, QName: "r", QLen: 1}))
	require.NoError(t, w.Close(context.Background()))
	assert.NotEmpty(t, buf.Bytes())
}

func TestTagHelpersAppendFormattedTags(t *testing.T) {
	var r Record
	r.MapMillis(12.5)
	r.Scores(10, 5, 7.5)
	require.Len(t, r.Tags, 4)
	assert.Equal(t, "mt", r.Tags[0].Key)
	assert.Equal(t, byte('f'), r.Tags[0].Type)
}
