//go:build !unix

package mmap

import (
	"io"
	"os"
)

// Portable fallback: read the whole file into memory. Frozen index blobs are
// loaded once per process, so the extra copy is acceptable off unix.
func osMap(f *os.File, size int) ([]byte, func([]byte) error, error) {
	data := make([]byte, size)
	if _, err := io.ReadFull(f, data); err != nil {
		return nil, nil, err
	}
	return data, nil, nil
}
