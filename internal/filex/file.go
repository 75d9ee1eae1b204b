// Package filex contains small filesystem helpers used by the capture
// flow and the chunk staging areas.
package filex

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// EnsureDir creates dir (and parents) if it does not exist and returns
// the absolute path.
func EnsureDir(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("abs %s: %w", dir, err)
	}
	if err := os.MkdirAll(abs, 0o770); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", abs, err)
	}
	return abs, nil
}

// CopyFile copies src into dstDir under dstName and returns the new path
// and the number of bytes written.
func CopyFile(src, dstDir, dstName string) (string, int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return "", 0, fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	dst := filepath.Join(dstDir, dstName)
	out, err := os.Create(dst)
	if err != nil {
		return "", 0, fmt.Errorf("create %s: %w", dst, err)
	}

	n, err := io.Copy(out, in)
	if err != nil {
		out.Close()
		return "", 0, fmt.Errorf("copy to %s: %w", dst, err)
	}
	if err := out.Close(); err != nil {
		return "", 0, fmt.Errorf("close %s: %w", dst, err)
	}
	return dst, n, nil
}
