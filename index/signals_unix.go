//go:build unix

package index

import (
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// mmapFloat32File maps path's contents read-only and reinterprets the
// mapping in place as a slice of native-endian float32 samples, without
// copying into process heap — mirrors the anonymous unix.Mmap call in
// fusion/kmer_index.go, but file-backed (fd >= 0) and read-only (PROT_READ,
// MAP_SHARED) since the Index's signal arrays are immutable after a build.
// The returned slice is only valid until the returned closer is called.
func mmapFloat32File(path string) ([]float32, func() error, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, nil, err
	}
	size := int(info.Size())
	if size == 0 {
		return nil, func() error { return nil }, nil
	}

	data, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, nil, err
	}

	values := unsafe.Slice((*float32)(unsafe.Pointer(&data[0])), size/4)
	closer := func() error { return unix.Munmap(data) }
	return values, closer, nil
}
