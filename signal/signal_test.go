package signal

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"testing"

	"github.com/grailbio/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeRawFile(t *testing.T, path string, values []float32) {
	t.Helper()
	buf := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	require.NoError(t, os.WriteFile(path, buf, 0644))
}

func TestDecodeRawFloat32RoundTrips(t *testing.T) {
	want := []float32{1.5, -2.25, 0, 100.125}
	buf := make([]byte, 4*len(want))
	for i, v := range want {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	read, err := decodeRawFloat32("x.raw", buf)
	require.NoError(t, err)
	assert.Equal(t, want, read.Values)
}

func TestDecodeRawFloat32RejectsTruncatedInput(t *testing.T) {
	_, err := decodeRawFloat32("x.raw", []byte{1, 2, 3})
	assert.Error(t, err)
}

func TestDirSourceStreamsFilesInSortedOrder(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()

	for i, name := range []string{"b.raw", "a.raw", "c.txt"} {
		values := []float32{float32(i), float32(i + 1)}
		writeRawFile(t, fmt.Sprintf("%s/%s", dir, name), values)
	}
	// c.txt has no registered decoder and must be skipped.
	require.NoError(t, os.WriteFile(fmt.Sprintf("%s/c.txt", dir), []byte("ignored"), 0644))

	var src DirSource
	ctx := context.Background()
	require.NoError(t, src.Open(ctx, dir))

	var names []string
	for {
		read, ok, err := src.Next(ctx)
		require.NoError(t, err)
		if !ok {
			break
		}
		names = append(names, read.Name)
	}
	assert.Equal(t, []string{"a.raw", "b.raw"}, names)
}

func TestDirSourceAssignsSequentialIDs(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	writeRawFile(t, fmt.Sprintf("%s/0.raw", dir), []float32{1})
	writeRawFile(t, fmt.Sprintf("%s/1.raw", dir), []float32{2})

	var src DirSource
	ctx := context.Background()
	require.NoError(t, src.Open(ctx, dir))

	first, ok, err := src.Next(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	second, ok, err := src.Next(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, uint32(0), first.ID)
	assert.Equal(t, uint32(1), second.ID)

	_, ok, err = src.Next(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}
