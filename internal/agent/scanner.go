package agent

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Detection is a file the scanner considers ready to report: present, a
// watched extension, and stable across consecutive size checks.
type Detection struct {
	Path       string
	Filename   string
	Size       int64
	SHA256Hash string
}

// Scanner walks a watch directory for new media files. A file is reported
// once; the scanner remembers reported paths until Forget is called, which
// the retransfer flow uses to force re-detection.
type Scanner struct {
	watchDir          string
	extensions        map[string]struct{}
	stabilityChecks   int
	stabilityInterval time.Duration

	reported map[string]struct{}
}

// NewScanner builds a scanner over watchDir for the given extensions
// (normalized with a leading dot, case-insensitive).
func NewScanner(watchDir string, extensions []string, stabilityChecks int, stabilityInterval time.Duration) *Scanner {
	set := make(map[string]struct{}, len(extensions))
	for _, ext := range extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		set[ext] = struct{}{}
	}
	if stabilityChecks < 1 {
		stabilityChecks = 1
	}
	if stabilityInterval <= 0 {
		stabilityInterval = 2 * time.Second
	}
	return &Scanner{
		watchDir:          watchDir,
		extensions:        set,
		stabilityChecks:   stabilityChecks,
		stabilityInterval: stabilityInterval,
		reported:          make(map[string]struct{}),
	}
}

// Scan walks the watch directory and returns files not yet reported. Each
// candidate is size-checked across the stability window so half-copied files
// are left for the next pass.
func (s *Scanner) Scan(ctx context.Context) ([]Detection, error) {
	var detections []Detection
	err := filepath.WalkDir(s.watchDir, func(path string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}
		if _, watched := s.extensions[strings.ToLower(filepath.Ext(path))]; !watched {
			return nil
		}
		if _, seen := s.reported[path]; seen {
			return nil
		}

		size, stable, err := s.waitStable(ctx, path)
		if err != nil {
			return err
		}
		if !stable {
			return nil
		}

		hash, err := hashFile(path)
		if err != nil {
			return fmt.Errorf("hash %s: %w", path, err)
		}
		detections = append(detections, Detection{
			Path:       path,
			Filename:   filepath.Base(path),
			Size:       size,
			SHA256Hash: hash,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return detections, nil
}

// MarkReported remembers a path so later scans skip it.
func (s *Scanner) MarkReported(path string) {
	s.reported[path] = struct{}{}
}

// Forget drops a path from the reported set so the next scan re-detects it.
func (s *Scanner) Forget(path string) {
	delete(s.reported, path)
}

// waitStable polls the file size until it holds steady for the configured
// number of checks. A file that vanishes mid-check is simply skipped.
func (s *Scanner) waitStable(ctx context.Context, path string) (int64, bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, false, nil
	}
	size := info.Size()

	for check := 1; check < s.stabilityChecks; check++ {
		select {
		case <-ctx.Done():
			return 0, false, ctx.Err()
		case <-time.After(s.stabilityInterval):
		}
		info, err := os.Stat(path)
		if err != nil {
			return 0, false, nil
		}
		if info.Size() != size {
			return 0, false, nil
		}
	}
	return size, true, nil
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	digest := sha256.New()
	if _, err := io.Copy(digest, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(digest.Sum(nil)), nil
}
