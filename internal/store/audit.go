package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const auditColumns = "id, file_id, action, previous_state, new_state, performed_by, ip_address, details, created_at"

func scanAudit(scanner interface{ Scan(dest ...any) error }) (*AuditEntry, error) {
	var (
		id          string
		fileID      sql.NullString
		action      string
		prevRaw     sql.NullString
		newRaw      sql.NullString
		performedBy sql.NullString
		ipAddress   sql.NullString
		details     sql.NullString
		createdRaw  string
	)
	if err := scanner.Scan(&id, &fileID, &action, &prevRaw, &newRaw, &performedBy, &ipAddress, &details, &createdRaw); err != nil {
		return nil, err
	}
	entry := &AuditEntry{
		ID:          id,
		FileID:      fileID.String,
		Action:      action,
		PerformedBy: performedBy.String,
		IPAddress:   ipAddress.String,
		Details:     details.String,
	}
	if prevRaw.Valid {
		state := FileState(prevRaw.String)
		entry.PreviousState = &state
	}
	if newRaw.Valid {
		state := FileState(newRaw.String)
		entry.NewState = &state
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		entry.CreatedAt = created
	}
	return entry, nil
}

// NewAuditParams describes one audit fact to append.
type NewAuditParams struct {
	FileID        string
	Action        string
	PreviousState *FileState
	NewState      *FileState
	PerformedBy   string
	IPAddress     string
	Details       string
}

// InsertAudit appends an immutable audit entry inside the transaction.
func (tx *Tx) InsertAudit(ctx context.Context, params NewAuditParams, now time.Time) error {
	var prev, next any
	if params.PreviousState != nil {
		prev = string(*params.PreviousState)
	}
	if params.NewState != nil {
		next = string(*params.NewState)
	}
	_, err := tx.tx.ExecContext(
		ensureContext(ctx),
		`INSERT INTO audit_logs (id, file_id, action, previous_state, new_state, performed_by, ip_address, details, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(),
		nullableString(params.FileID),
		params.Action,
		prev,
		next,
		nullableString(params.PerformedBy),
		nullableString(params.IPAddress),
		nullableString(params.Details),
		formatTime(now),
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// AppendAudit appends one audit entry outside any surrounding transaction.
func (s *Store) AppendAudit(ctx context.Context, params NewAuditParams) error {
	return s.Transact(ctx, func(tx *Tx) error {
		return tx.InsertAudit(ctx, params, time.Now().UTC())
	})
}

// FileAudit returns the audit trail for a file, oldest first.
func (s *Store) FileAudit(ctx context.Context, fileID string) ([]*AuditEntry, error) {
	rows, err := s.db.QueryContext(
		ensureContext(ctx),
		`SELECT `+auditColumns+` FROM audit_logs WHERE file_id = ? ORDER BY created_at, id`,
		fileID,
	)
	if err != nil {
		return nil, fmt.Errorf("file audit: %w", err)
	}
	defer rows.Close()
	return collectAudit(rows)
}

// RecentAudit returns the newest audit entries across all files.
func (s *Store) RecentAudit(ctx context.Context, limit int) ([]*AuditEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(
		ensureContext(ctx),
		`SELECT `+auditColumns+` FROM audit_logs ORDER BY created_at DESC, id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("recent audit: %w", err)
	}
	defer rows.Close()
	return collectAudit(rows)
}

// LatestTransition returns the newest audit entry for a file whose new_state
// matches the given state, or nil when the trail holds none. Revert uses this
// to recover which edge was actually taken into the current state.
func (tx *Tx) LatestTransition(ctx context.Context, fileID string, state FileState) (*AuditEntry, error) {
	row := tx.tx.QueryRowContext(
		ensureContext(ctx),
		`SELECT `+auditColumns+` FROM audit_logs
         WHERE file_id = ? AND new_state = ? AND previous_state IS NOT NULL
         ORDER BY created_at DESC, id DESC LIMIT 1`,
		fileID,
		state,
	)
	entry, err := scanAudit(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest transition: %w", err)
	}
	return entry, nil
}

func collectAudit(rows *sql.Rows) ([]*AuditEntry, error) {
	var entries []*AuditEntry
	for rows.Next() {
		entry, err := scanAudit(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
