package testsupport

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

// WriteFile creates path holding exactly size bytes of filler content,
// creating parent directories as needed. A size <= 0 writes a one-byte file
// so stat-based checks still see something.
func WriteFile(t testing.TB, path string, size int64) {
	t.Helper()

	if size <= 0 {
		size = 1
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}

	chunk := bytes.Repeat([]byte{'c'}, 64*1024)
	for written := int64(0); written < size; {
		n := int64(len(chunk))
		if rest := size - written; rest < n {
			n = rest
		}
		if _, err := f.Write(chunk[:n]); err != nil {
			_ = f.Close()
			t.Fatalf("write %s: %v", path, err)
		}
		written += n
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close %s: %v", path, err)
	}
}
