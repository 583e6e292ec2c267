package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const transferColumns = "id, file_id, external_job_id, status, bytes_transferred, retry_count, error_message, started_at, completed_at, created_at"

func scanTransfer(scanner interface{ Scan(dest ...any) error }) (*TransferJob, error) {
	var (
		id           string
		fileID       string
		externalID   sql.NullString
		status       string
		bytes        int64
		retries      int
		errorMessage sql.NullString
		startedRaw   sql.NullString
		doneRaw      sql.NullString
		createdRaw   string
	)
	if err := scanner.Scan(&id, &fileID, &externalID, &status, &bytes, &retries, &errorMessage, &startedRaw, &doneRaw, &createdRaw); err != nil {
		return nil, err
	}
	job := &TransferJob{
		ID:               id,
		FileID:           fileID,
		ExternalJobID:    externalID.String,
		Status:           status,
		BytesTransferred: bytes,
		RetryCount:       retries,
		ErrorMessage:     errorMessage.String,
		StartedAt:        timePtr(startedRaw),
		CompletedAt:      timePtr(doneRaw),
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		job.CreatedAt = created
	}
	return job, nil
}

// InsertTransferJob records a started transfer attempt inside the transaction.
func (tx *Tx) InsertTransferJob(ctx context.Context, fileID, externalJobID string, now time.Time) (string, error) {
	id := uuid.NewString()
	_, err := tx.tx.ExecContext(
		ensureContext(ctx),
		`INSERT INTO transfer_jobs (id, file_id, external_job_id, status, started_at, created_at)
         VALUES (?, ?, ?, ?, ?, ?)`,
		id,
		fileID,
		nullableString(externalJobID),
		TransferInProgress,
		formatTime(now),
		formatTime(now),
	)
	if err != nil {
		return "", fmt.Errorf("insert transfer job: %w", err)
	}
	return id, nil
}

// FinishTransferJob closes the open transfer attempt for a file, marking it
// completed or failed. A no-op when the file has no in-progress job.
func (tx *Tx) FinishTransferJob(ctx context.Context, fileID string, succeeded bool, bytes int64, errMessage string, now time.Time) error {
	status := TransferCompleted
	if !succeeded {
		status = TransferFailed
	}
	_, err := tx.tx.ExecContext(
		ensureContext(ctx),
		`UPDATE transfer_jobs
         SET status = ?, bytes_transferred = ?, error_message = ?, completed_at = ?
         WHERE file_id = ? AND status = ?`,
		status,
		bytes,
		nullableString(errMessage),
		formatTime(now),
		fileID,
		TransferInProgress,
	)
	if err != nil {
		return fmt.Errorf("finish transfer job: %w", err)
	}
	return nil
}

// BumpTransferRetry increments the retry counter on the open job for a file.
func (tx *Tx) BumpTransferRetry(ctx context.Context, fileID string) error {
	_, err := tx.tx.ExecContext(
		ensureContext(ctx),
		`UPDATE transfer_jobs SET retry_count = retry_count + 1 WHERE file_id = ? AND status = ?`,
		fileID,
		TransferInProgress,
	)
	if err != nil {
		return fmt.Errorf("bump transfer retry: %w", err)
	}
	return nil
}

// TransfersForFile returns transfer attempts for a file, oldest first.
func (s *Store) TransfersForFile(ctx context.Context, fileID string) ([]*TransferJob, error) {
	rows, err := s.db.QueryContext(
		ensureContext(ctx),
		`SELECT `+transferColumns+` FROM transfer_jobs WHERE file_id = ? ORDER BY created_at, id`,
		fileID,
	)
	if err != nil {
		return nil, fmt.Errorf("transfers for file: %w", err)
	}
	defer rows.Close()

	var jobs []*TransferJob
	for rows.Next() {
		job, err := scanTransfer(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// OpenTransfer returns the in-progress transfer job for a file, if any.
func (s *Store) OpenTransfer(ctx context.Context, fileID string) (*TransferJob, error) {
	row := s.db.QueryRowContext(
		ensureContext(ctx),
		`SELECT `+transferColumns+` FROM transfer_jobs WHERE file_id = ? AND status = ? LIMIT 1`,
		fileID,
		TransferInProgress,
	)
	job, err := scanTransfer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open transfer: %w", err)
	}
	return job, nil
}
