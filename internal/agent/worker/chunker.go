package worker

import (
	"fmt"
	"io"
	"os"
)

// readChunk returns up to size bytes of the file starting at offset.
// The final chunk of a file is shorter; reading at or past the end is
// reported as io.EOF.
func readChunk(path string, offset, size int64) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open media file: %w", err)
	}
	defer f.Close()

	buf := make([]byte, size)
	n, err := f.ReadAt(buf, offset)
	if n > 0 {
		return buf[:n], nil
	}
	if err == io.EOF {
		return nil, io.EOF
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read media chunk: %w", err)
	}
	return nil, io.EOF
}
