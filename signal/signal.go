// Package signal defines the SignalSource collaborator and its data types,
// plus a reference directory-backed implementation grounded on
// cmd/bio-fusion's file.Open-based readFASTQ: resolving a path through
// github.com/grailbio/base/file gives local and S3 access for free.
package signal

import (
	"context"
	"encoding/binary"
	"io"
	"math"
	"path/filepath"
	"sort"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
)

// Read is one raw-signal read: an identifier, the originating read name
// (e.g. a fast5/blow5 read ID string), and the raw current sample trace.
type Read struct {
	ID     uint32
	Name   string
	Values []float32
}

// Source streams Reads one at a time. Open must be called before Next;
// Close releases any resources Open acquired. A Source is not required to
// be safe for concurrent use — orchestrate serializes calls to it.
type Source interface {
	Open(ctx context.Context, path string) error
	Next(ctx context.Context) (Read, bool, error)
	Close(ctx context.Context) error
}

// decoder turns one signal file's bytes into a Read. Registered per file
// extension so DirSource stays agnostic to container format, matching
// spec.md §1's exclusion of nanopore container parsing from scope.
type decoder func(name string, data []byte) (Read, error)

var decoders = map[string]decoder{
	".raw": decodeRawFloat32,
}

// decodeRawFloat32 is the synthetic test/reference format: a little-endian
// float32 sample trace with no header, named ".raw" to stay clearly outside
// any real nanopore container namespace (.fast5, .blow5 are reserved for a
// production SignalSource, not implemented here per spec.md §1).
func decodeRawFloat32(name string, data []byte) (Read, error) {
	if len(data)%4 != 0 {
		return Read{}, errors.E(errors.Invalid, "signal: "+name+": length not a multiple of 4")
	}
	values := make([]float32, len(data)/4)
	for i := range values {
		bits := binary.LittleEndian.Uint32(data[i*4:])
		values[i] = math.Float32frombits(bits)
	}
	return Read{Name: name, Values: values}, nil
}

// DirSource resolves a directory (or single file) to a sorted list of
// signal files and streams them as Reads in path order, one file per Read.
// Sorted, deterministic order keeps orchestrate's order-preservation
// invariant (spec.md invariant 8) testable without depending on
// filesystem-listing order.
type DirSource struct {
	paths []string
	next  int
	id    uint32
}

// Open lists every file under path (recursively, if path is a directory)
// whose extension has a registered decoder, sorts the result, and prepares
// to stream them.
func (s *DirSource) Open(ctx context.Context, path string) error {
	var paths []string
	lister := file.List(ctx, path, true /*recursive*/)
	for lister.Scan() {
		p := lister.Path()
		if _, ok := decoders[strings.ToLower(filepath.Ext(p))]; ok {
			paths = append(paths, p)
		}
	}
	if err := lister.Err(); err != nil {
		// file.List on a single non-directory path returns an error;
		// fall back to treating path itself as the one file to read.
		ext := strings.ToLower(filepath.Ext(path))
		if _, ok := decoders[ext]; !ok {
			return errors.E(errors.NotExist, err, "signal: list "+path)
		}
		paths = []string{path}
	}
	sort.Strings(paths)
	s.paths = paths
	s.next = 0
	s.id = 0
	return nil
}

// Next decodes and returns the next file in path order.
func (s *DirSource) Next(ctx context.Context) (Read, bool, error) {
	if s.next >= len(s.paths) {
		return Read{}, false, nil
	}
	path := s.paths[s.next]
	s.next++

	in, err := file.Open(ctx, path)
	if err != nil {
		return Read{}, false, errors.E(errors.NotExist, err, "signal: open "+path)
	}
	data, err := io.ReadAll(in.Reader(ctx))
	if closeErr := in.Close(ctx); err == nil {
		err = closeErr
	}
	if err != nil {
		return Read{}, false, errors.E(err, "signal: read "+path)
	}

	dec, ok := decoders[strings.ToLower(filepath.Ext(path))]
	if !ok {
		return Read{}, false, errors.E(errors.Invalid, "signal: no decoder for "+path)
	}
	read, err := dec(filepath.Base(path), data)
	if err != nil {
		return Read{}, false, err
	}
	read.ID = s.id
	s.id++
	return read, true, nil
}

// Close is a no-op: DirSource holds no resources between Next calls.
func (s *DirSource) Close(ctx context.Context) error { return nil }
