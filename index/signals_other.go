//go:build !unix

package index

import (
	"encoding/binary"
	"math"
	"os"
)

// mmapFloat32File falls back to a plain read on platforms without the unix
// mmap syscalls; a reference Index implementation favors portability here
// over the mmap fast path, which is confined to signals_unix.go.
func mmapFloat32File(path string) ([]float32, func() error, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	values := make([]float32, len(data)/4)
	for i := range values {
		values[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return values, func() error { return nil }, nil
}
