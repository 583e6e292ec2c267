package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const historyColumns = "sha256_hash, filename, source_site, file_size, first_seen_at"

func scanHistory(scanner interface{ Scan(dest ...any) error }) (*HistoryEntry, error) {
	var (
		hash     string
		filename string
		site     string
		size     int64
		seenRaw  string
	)
	if err := scanner.Scan(&hash, &filename, &site, &size, &seenRaw); err != nil {
		return nil, err
	}
	entry := &HistoryEntry{
		SHA256Hash: hash,
		Filename:   filename,
		SourceSite: site,
		FileSize:   size,
	}
	if seen, err := parseTimeString(seenRaw); err == nil {
		entry.FirstSeenAt = seen
	}
	return entry, nil
}

// RecordHistory adds a hash to the dedup ledger. Re-recording a known hash is
// a no-op so repeated detections stay cheap.
func (s *Store) RecordHistory(ctx context.Context, entry HistoryEntry) error {
	seen := entry.FirstSeenAt
	if seen.IsZero() {
		seen = time.Now().UTC()
	}
	_, err := s.execWithRetry(
		ctx,
		`INSERT INTO file_history (sha256_hash, filename, source_site, file_size, first_seen_at)
         VALUES (?, ?, ?, ?, ?)
         ON CONFLICT(sha256_hash) DO NOTHING`,
		entry.SHA256Hash,
		entry.Filename,
		normalizeSiteName(entry.SourceSite),
		entry.FileSize,
		formatTime(seen),
	)
	if err != nil {
		return fmt.Errorf("record history: %w", err)
	}
	return nil
}

// HistoryByHash looks up a dedup-ledger entry. Returns nil when unseen.
func (s *Store) HistoryByHash(ctx context.Context, hash string) (*HistoryEntry, error) {
	row := s.db.QueryRowContext(
		ensureContext(ctx),
		`SELECT `+historyColumns+` FROM file_history WHERE sha256_hash = ?`,
		hash,
	)
	entry, err := scanHistory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("history by hash: %w", err)
	}
	return entry, nil
}

// RecordHistory adds a hash to the dedup ledger inside the transaction.
// Re-recording a known hash is a no-op.
func (tx *Tx) RecordHistory(ctx context.Context, entry HistoryEntry, now time.Time) error {
	seen := entry.FirstSeenAt
	if seen.IsZero() {
		seen = now
	}
	_, err := tx.tx.ExecContext(
		ensureContext(ctx),
		`INSERT INTO file_history (sha256_hash, filename, source_site, file_size, first_seen_at)
         VALUES (?, ?, ?, ?, ?)
         ON CONFLICT(sha256_hash) DO NOTHING`,
		entry.SHA256Hash,
		entry.Filename,
		normalizeSiteName(entry.SourceSite),
		entry.FileSize,
		formatTime(seen),
	)
	if err != nil {
		return fmt.Errorf("record history: %w", err)
	}
	return nil
}

// HistoryByHash looks up a dedup-ledger entry inside the transaction.
func (tx *Tx) HistoryByHash(ctx context.Context, hash string) (*HistoryEntry, error) {
	row := tx.tx.QueryRowContext(
		ensureContext(ctx),
		`SELECT `+historyColumns+` FROM file_history WHERE sha256_hash = ?`,
		hash,
	)
	entry, err := scanHistory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("history by hash: %w", err)
	}
	return entry, nil
}

// DeleteHistoryByHash removes a hash from the dedup ledger inside the
// transaction. Retransfer uses this so the re-uploaded file registers as new.
func (tx *Tx) DeleteHistoryByHash(ctx context.Context, hash string) error {
	if _, err := tx.tx.ExecContext(ensureContext(ctx), `DELETE FROM file_history WHERE sha256_hash = ?`, hash); err != nil {
		return fmt.Errorf("delete history: %w", err)
	}
	return nil
}
