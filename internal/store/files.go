package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const fileColumns = "id, filename, source_site, source_path, file_size, sha256_hash, state, assigned_to, external_job_id, transfer_progress, error_message, locked, cleaned_up, detected_at, validated_at, transfer_started_at, transfer_completed_at, assigned_at, delivered_at, archived_at"

// NewFileParams carries the metadata a daemon reports on detection.
type NewFileParams struct {
	Filename   string
	SourceSite string
	SourcePath string
	FileSize   int64
	SHA256Hash string
}

func scanFile(scanner interface{ Scan(dest ...any) error }) (*File, error) {
	var (
		id            string
		filename      string
		sourceSite    string
		sourcePath    string
		fileSize      int64
		hash          string
		stateStr      string
		assignedTo    sql.NullString
		externalJobID sql.NullString
		progress      int
		errorMessage  sql.NullString
		locked        int
		cleanedUp     int
		detectedRaw   string
		validatedRaw  sql.NullString
		startedRaw    sql.NullString
		doneRaw       sql.NullString
		assignedRaw   sql.NullString
		deliveredRaw  sql.NullString
		archivedRaw   sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&filename,
		&sourceSite,
		&sourcePath,
		&fileSize,
		&hash,
		&stateStr,
		&assignedTo,
		&externalJobID,
		&progress,
		&errorMessage,
		&locked,
		&cleanedUp,
		&detectedRaw,
		&validatedRaw,
		&startedRaw,
		&doneRaw,
		&assignedRaw,
		&deliveredRaw,
		&archivedRaw,
	); err != nil {
		return nil, err
	}

	file := &File{
		ID:               id,
		Filename:         filename,
		SourceSite:       sourceSite,
		SourcePath:       sourcePath,
		FileSize:         fileSize,
		SHA256Hash:       hash,
		State:            FileState(stateStr),
		AssignedTo:       assignedTo.String,
		ExternalJobID:    externalJobID.String,
		TransferProgress: progress,
		ErrorMessage:     errorMessage.String,
		Locked:           locked != 0,
		CleanedUp:        cleanedUp != 0,
		ValidatedAt:      timePtr(validatedRaw),
		TransferStarted:  timePtr(startedRaw),
		TransferDone:     timePtr(doneRaw),
		AssignedAt:       timePtr(assignedRaw),
		DeliveredAt:      timePtr(deliveredRaw),
		ArchivedAt:       timePtr(archivedRaw),
	}
	if detected, err := parseTimeString(detectedRaw); err == nil {
		file.DetectedAt = detected
	}
	return file, nil
}

// CreateFile inserts a newly detected file in state detected.
func (s *Store) CreateFile(ctx context.Context, params NewFileParams) (*File, error) {
	id := uuid.NewString()
	now := time.Now().UTC()

	_, err := s.execWithRetry(
		ctx,
		`INSERT INTO files (id, filename, source_site, source_path, file_size, sha256_hash, state, detected_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id,
		params.Filename,
		strings.ToLower(strings.TrimSpace(params.SourceSite)),
		params.SourcePath,
		params.FileSize,
		params.SHA256Hash,
		StateDetected,
		formatTime(now),
	)
	if err != nil {
		return nil, fmt.Errorf("insert file: %w", err)
	}
	return s.GetFile(ctx, id)
}

// GetFile fetches a file by identifier. Returns nil when no row exists.
func (s *Store) GetFile(ctx context.Context, id string) (*File, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+fileColumns+` FROM files WHERE id = ?`, id)
	file, err := scanFile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get file: %w", err)
	}
	return file, nil
}

// FindFileBySource returns the file tracked from a site+path pair, if any.
func (s *Store) FindFileBySource(ctx context.Context, site, sourcePath string) (*File, error) {
	row := s.db.QueryRowContext(
		ensureContext(ctx),
		`SELECT `+fileColumns+` FROM files WHERE source_site = ? AND source_path = ?`,
		strings.ToLower(strings.TrimSpace(site)),
		sourcePath,
	)
	file, err := scanFile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find file by source: %w", err)
	}
	return file, nil
}

// FindFileByHash returns the first file with a matching content hash.
func (s *Store) FindFileByHash(ctx context.Context, hash string) (*File, error) {
	row := s.db.QueryRowContext(
		ensureContext(ctx),
		`SELECT `+fileColumns+` FROM files WHERE sha256_hash = ? ORDER BY detected_at LIMIT 1`,
		hash,
	)
	file, err := scanFile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find file by hash: %w", err)
	}
	return file, nil
}

// FileFilter narrows ListFiles results. Zero values mean no filtering.
type FileFilter struct {
	State  FileState
	Site   string
	Search string
}

// ListFiles returns files newest-first, optionally filtered.
func (s *Store) ListFiles(ctx context.Context, filter FileFilter) ([]*File, error) {
	query := `SELECT ` + fileColumns + ` FROM files`
	var (
		clauses []string
		args    []any
	)
	if filter.State != "" {
		clauses = append(clauses, "state = ?")
		args = append(args, filter.State)
	}
	if filter.Site != "" {
		clauses = append(clauses, "source_site = ?")
		args = append(args, strings.ToLower(strings.TrimSpace(filter.Site)))
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		clauses = append(clauses, "filename LIKE ?")
		args = append(args, "%"+search+"%")
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY detected_at DESC"

	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	defer rows.Close()

	var files []*File
	for rows.Next() {
		file, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		files = append(files, file)
	}
	return files, rows.Err()
}

// StatsByState returns a count of files grouped by state.
func (s *Store) StatsByState(ctx context.Context) (map[FileState]int, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), `SELECT state, COUNT(1) FROM files GROUP BY state`)
	if err != nil {
		return nil, fmt.Errorf("file stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[FileState]int)
	for rows.Next() {
		var state FileState
		var count int
		if err := rows.Scan(&state, &count); err != nil {
			return nil, err
		}
		stats[state] = count
	}
	return stats, rows.Err()
}

// SetTransferProgress updates the denormalized progress percent on a file row.
func (s *Store) SetTransferProgress(ctx context.Context, id string, percent int) error {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	if _, err := s.execWithRetry(ctx, `UPDATE files SET transfer_progress = ? WHERE id = ?`, percent, id); err != nil {
		return fmt.Errorf("set transfer progress: %w", err)
	}
	return nil
}

// stampColumns maps each state to the timestamp column stamped when it is
// entered. States absent from the map carry no timestamp.
var stampColumns = map[FileState]string{
	StateDetected:         "detected_at",
	StateValidated:        "validated_at",
	StateTransferring:     "transfer_started_at",
	StateTransferred:      "transfer_completed_at",
	StateColoristAssigned: "assigned_at",
	StateDeliveredToMAM:   "delivered_at",
	StateArchived:         "archived_at",
}

// StampColumn returns the timestamp column associated with entering a state,
// or "" when the state has none.
func StampColumn(state FileState) string {
	return stampColumns[state]
}

// FileChange describes one state transition applied under a FromStates guard.
// Optional fields mutate the columns the operation owns; everything else is
// left untouched.
type FileChange struct {
	ID            string
	FromStates    []FileState
	To            FileState
	StampNow      bool      // stamp To's timestamp column
	ClearStampOf  FileState // clear this state's timestamp column
	Assignee      string    // set assigned_to when non-empty
	ClearAssignee bool
	SetLocked     *bool
	ErrorMessage  *string // set error_message; ClearError wins when both set
	ClearError    bool
	ExternalJobID string // set external_job_id when non-empty
	SetProgress   *int   // set transfer_progress
}

// ApplyFileChange performs a guarded state update. It reports false without
// modifying anything when the row is no longer in one of FromStates, which is
// how concurrent operations on the same file lose the race.
func (tx *Tx) ApplyFileChange(ctx context.Context, change FileChange, now time.Time) (bool, error) {
	if len(change.FromStates) == 0 {
		return false, errors.New("file change requires source states")
	}

	sets := []string{"state = ?"}
	args := []any{change.To}

	if change.StampNow {
		if col := stampColumns[change.To]; col != "" {
			sets = append(sets, col+" = ?")
			args = append(args, formatTime(now))
		}
	}
	if change.ClearStampOf != "" {
		if col := stampColumns[change.ClearStampOf]; col != "" {
			sets = append(sets, col+" = NULL")
		}
	}
	if change.Assignee != "" {
		sets = append(sets, "assigned_to = ?")
		args = append(args, change.Assignee)
	} else if change.ClearAssignee {
		sets = append(sets, "assigned_to = NULL")
	}
	if change.SetLocked != nil {
		sets = append(sets, "locked = ?")
		args = append(args, boolToInt(*change.SetLocked))
	}
	if change.ClearError {
		sets = append(sets, "error_message = NULL")
	} else if change.ErrorMessage != nil {
		sets = append(sets, "error_message = ?")
		args = append(args, nullableString(*change.ErrorMessage))
	}
	if change.ExternalJobID != "" {
		sets = append(sets, "external_job_id = ?")
		args = append(args, change.ExternalJobID)
	}
	if change.SetProgress != nil {
		sets = append(sets, "transfer_progress = ?")
		args = append(args, *change.SetProgress)
	}

	guards := make([]any, len(change.FromStates))
	for i, state := range change.FromStates {
		guards[i] = state
	}
	query := `UPDATE files SET ` + strings.Join(sets, ", ") +
		` WHERE id = ? AND state IN (` + makePlaceholders(len(guards)) + `)`
	args = append(args, change.ID)
	args = append(args, guards...)

	res, err := tx.tx.ExecContext(ensureContext(ctx), query, args...)
	if err != nil {
		return false, fmt.Errorf("apply file change: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// InsertFile inserts a newly detected file inside the transaction and returns
// the stored row. A row already tracking the same site+path surfaces as a
// constraint violation.
func (tx *Tx) InsertFile(ctx context.Context, params NewFileParams, now time.Time) (*File, error) {
	id := uuid.NewString()
	_, err := tx.tx.ExecContext(
		ensureContext(ctx),
		`INSERT INTO files (id, filename, source_site, source_path, file_size, sha256_hash, state, detected_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id,
		params.Filename,
		strings.ToLower(strings.TrimSpace(params.SourceSite)),
		params.SourcePath,
		params.FileSize,
		params.SHA256Hash,
		StateDetected,
		formatTime(now),
	)
	if err != nil {
		return nil, fmt.Errorf("insert file: %w", err)
	}
	return tx.GetFile(ctx, id)
}

// FindFileBySource looks up a site+path pair inside the transaction.
func (tx *Tx) FindFileBySource(ctx context.Context, site, sourcePath string) (*File, error) {
	row := tx.tx.QueryRowContext(
		ensureContext(ctx),
		`SELECT `+fileColumns+` FROM files WHERE source_site = ? AND source_path = ?`,
		strings.ToLower(strings.TrimSpace(site)),
		sourcePath,
	)
	file, err := scanFile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find file by source: %w", err)
	}
	return file, nil
}

// GetFile fetches a file inside the transaction.
func (tx *Tx) GetFile(ctx context.Context, id string) (*File, error) {
	row := tx.tx.QueryRowContext(ensureContext(ctx), `SELECT `+fileColumns+` FROM files WHERE id = ?`, id)
	file, err := scanFile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get file: %w", err)
	}
	return file, nil
}

// DeleteFile removes a file row. Reports whether a row was deleted.
func (tx *Tx) DeleteFile(ctx context.Context, id string) (bool, error) {
	res, err := tx.tx.ExecContext(ensureContext(ctx), `DELETE FROM files WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete file: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// MarkFileCleaned sets the cleanedUp bookkeeping flag. Not a state change.
func (tx *Tx) MarkFileCleaned(ctx context.Context, id string) error {
	if _, err := tx.tx.ExecContext(ensureContext(ctx), `UPDATE files SET cleaned_up = 1 WHERE id = ?`, id); err != nil {
		return fmt.Errorf("mark file cleaned: %w", err)
	}
	return nil
}
