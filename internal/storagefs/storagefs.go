package storagefs

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"colorflow/internal/config"
)

// Staging manages the orchestrator's per-site staging copies. Files land under
// <storage_dir>/<site>/<filename> after transfer and are removed by the
// cleanup flow once the MAM has the master.
type Staging struct {
	root string
}

// New builds a Staging layer rooted at the configured storage directory.
func New(cfg *config.Config) *Staging {
	return &Staging{root: cfg.Paths.StorageDir}
}

// Path returns the staging location for a site-local file. Filenames are
// flattened to their base so daemon paths cannot escape the staging root.
func (s *Staging) Path(site, filename string) string {
	site = strings.ToLower(strings.TrimSpace(site))
	return filepath.Join(s.root, site, filepath.Base(filename))
}

// Store writes a staged copy, creating the site directory as needed.
func (s *Staging) Store(site, filename string, r io.Reader) (int64, error) {
	target := s.Path(site, filename)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return 0, fmt.Errorf("create staging dir: %w", err)
	}
	f, err := os.Create(target)
	if err != nil {
		return 0, fmt.Errorf("create staged copy: %w", err)
	}
	defer f.Close()

	written, err := io.Copy(f, r)
	if err != nil {
		_ = os.Remove(target)
		return 0, fmt.Errorf("write staged copy: %w", err)
	}
	return written, nil
}

// Exists reports whether a staged copy is present.
func (s *Staging) Exists(site, filename string) bool {
	_, err := os.Stat(s.Path(site, filename))
	return err == nil
}

// Remove deletes a staged copy. A missing file is not an error: cleanup may
// run after the copy was already reclaimed.
func (s *Staging) Remove(site, filename string) error {
	err := os.Remove(s.Path(site, filename))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove staged copy: %w", err)
	}
	return nil
}
