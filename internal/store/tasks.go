package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const cleanupColumns = "id, file_id, site, file_path, status, orchestrator_deleted, daemon_deleted, created_at, completed_at"
const retransferColumns = "id, file_id, site, file_path, sha256_hash, status, orchestrator_deleted, daemon_acknowledged, created_at, completed_at"

func scanCleanupTask(scanner interface{ Scan(dest ...any) error }) (*CleanupTask, error) {
	var (
		id           string
		fileID       string
		site         string
		filePath     string
		status       string
		orchDeleted  int
		daemonDelete int
		createdRaw   string
		completedRaw sql.NullString
	)
	if err := scanner.Scan(&id, &fileID, &site, &filePath, &status, &orchDeleted, &daemonDelete, &createdRaw, &completedRaw); err != nil {
		return nil, err
	}
	task := &CleanupTask{
		ID:                  id,
		FileID:              fileID,
		Site:                site,
		FilePath:            filePath,
		Status:              TaskStatus(status),
		OrchestratorDeleted: orchDeleted != 0,
		DaemonDeleted:       daemonDelete != 0,
		CompletedAt:         timePtr(completedRaw),
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		task.CreatedAt = created
	}
	return task, nil
}

func scanRetransferTask(scanner interface{ Scan(dest ...any) error }) (*RetransferTask, error) {
	var (
		id           string
		fileID       string
		site         string
		filePath     string
		hash         string
		status       string
		orchDeleted  int
		daemonAck    int
		createdRaw   string
		completedRaw sql.NullString
	)
	if err := scanner.Scan(&id, &fileID, &site, &filePath, &hash, &status, &orchDeleted, &daemonAck, &createdRaw, &completedRaw); err != nil {
		return nil, err
	}
	task := &RetransferTask{
		ID:                  id,
		FileID:              fileID,
		Site:                site,
		FilePath:            filePath,
		SHA256Hash:          hash,
		Status:              TaskStatus(status),
		OrchestratorDeleted: orchDeleted != 0,
		DaemonAcknowledged:  daemonAck != 0,
		CompletedAt:         timePtr(completedRaw),
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		task.CreatedAt = created
	}
	return task, nil
}

// InsertCleanupTask enqueues a deferred site-local delete inside the
// transaction. OrchestratorDeleted is set when the staged copy was already
// removed while the task was created.
func (tx *Tx) InsertCleanupTask(ctx context.Context, file *File, orchestratorDeleted bool, now time.Time) (string, error) {
	id := uuid.NewString()
	_, err := tx.tx.ExecContext(
		ensureContext(ctx),
		`INSERT INTO cleanup_tasks (id, file_id, site, file_path, status, orchestrator_deleted, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id,
		file.ID,
		file.SourceSite,
		file.SourcePath,
		TaskPending,
		boolToInt(orchestratorDeleted),
		formatTime(now),
	)
	if err != nil {
		return "", fmt.Errorf("insert cleanup task: %w", err)
	}
	return id, nil
}

// InsertRetransferTask enqueues a deferred re-upload for a rejected file. The
// file row is gone by the time a daemon reads this, so the task captures
// everything needed to re-register the file.
func (tx *Tx) InsertRetransferTask(ctx context.Context, file *File, now time.Time) (string, error) {
	id := uuid.NewString()
	_, err := tx.tx.ExecContext(
		ensureContext(ctx),
		`INSERT INTO retransfer_tasks (id, file_id, site, file_path, sha256_hash, status, orchestrator_deleted, created_at)
         VALUES (?, ?, ?, ?, ?, ?, 1, ?)`,
		id,
		file.ID,
		file.SourceSite,
		file.SourcePath,
		file.SHA256Hash,
		TaskPending,
		formatTime(now),
	)
	if err != nil {
		return "", fmt.Errorf("insert retransfer task: %w", err)
	}
	return id, nil
}

// GetCleanupTask fetches a cleanup task by identifier.
func (s *Store) GetCleanupTask(ctx context.Context, id string) (*CleanupTask, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+cleanupColumns+` FROM cleanup_tasks WHERE id = ?`, id)
	task, err := scanCleanupTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get cleanup task: %w", err)
	}
	return task, nil
}

// GetRetransferTask fetches a retransfer task by identifier.
func (s *Store) GetRetransferTask(ctx context.Context, id string) (*RetransferTask, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+retransferColumns+` FROM retransfer_tasks WHERE id = ?`, id)
	task, err := scanRetransferTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get retransfer task: %w", err)
	}
	return task, nil
}

// PendingCleanupTasks returns pending cleanup tasks for a site, oldest first.
func (s *Store) PendingCleanupTasks(ctx context.Context, site string) ([]*CleanupTask, error) {
	rows, err := s.db.QueryContext(
		ensureContext(ctx),
		`SELECT `+cleanupColumns+` FROM cleanup_tasks WHERE site = ? AND status = ? ORDER BY created_at, id`,
		normalizeSiteName(site),
		TaskPending,
	)
	if err != nil {
		return nil, fmt.Errorf("pending cleanup tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*CleanupTask
	for rows.Next() {
		task, err := scanCleanupTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// PendingRetransferTasks returns pending retransfer tasks for a site, oldest first.
func (s *Store) PendingRetransferTasks(ctx context.Context, site string) ([]*RetransferTask, error) {
	rows, err := s.db.QueryContext(
		ensureContext(ctx),
		`SELECT `+retransferColumns+` FROM retransfer_tasks WHERE site = ? AND status = ? ORDER BY created_at, id`,
		normalizeSiteName(site),
		TaskPending,
	)
	if err != nil {
		return nil, fmt.Errorf("pending retransfer tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*RetransferTask
	for rows.Next() {
		task, err := scanRetransferTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// CleanupTaskForFile fetches the cleanup task recorded for a file, if any.
func (tx *Tx) CleanupTaskForFile(ctx context.Context, fileID string) (*CleanupTask, error) {
	row := tx.tx.QueryRowContext(
		ensureContext(ctx),
		`SELECT `+cleanupColumns+` FROM cleanup_tasks WHERE file_id = ? ORDER BY created_at DESC, id DESC LIMIT 1`,
		fileID,
	)
	task, err := scanCleanupTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cleanup task for file: %w", err)
	}
	return task, nil
}

// GetCleanupTask fetches a cleanup task inside the transaction.
func (tx *Tx) GetCleanupTask(ctx context.Context, id string) (*CleanupTask, error) {
	row := tx.tx.QueryRowContext(ensureContext(ctx), `SELECT `+cleanupColumns+` FROM cleanup_tasks WHERE id = ?`, id)
	task, err := scanCleanupTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get cleanup task: %w", err)
	}
	return task, nil
}

// GetRetransferTask fetches a retransfer task inside the transaction.
func (tx *Tx) GetRetransferTask(ctx context.Context, id string) (*RetransferTask, error) {
	row := tx.tx.QueryRowContext(ensureContext(ctx), `SELECT `+retransferColumns+` FROM retransfer_tasks WHERE id = ?`, id)
	task, err := scanRetransferTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get retransfer task: %w", err)
	}
	return task, nil
}

// MarkCleanupDaemonDeleted records the daemon-side delete and closes the task
// when both sides are done.
func (tx *Tx) MarkCleanupDaemonDeleted(ctx context.Context, id string, now time.Time) error {
	_, err := tx.tx.ExecContext(
		ensureContext(ctx),
		`UPDATE cleanup_tasks
         SET daemon_deleted = 1,
             status = CASE WHEN orchestrator_deleted = 1 THEN ? ELSE status END,
             completed_at = CASE WHEN orchestrator_deleted = 1 THEN ? ELSE completed_at END
         WHERE id = ?`,
		TaskCompleted,
		formatTime(now),
		id,
	)
	if err != nil {
		return fmt.Errorf("mark cleanup daemon deleted: %w", err)
	}
	return nil
}

// MarkCleanupOrchestratorDeleted records the staging-side delete and closes
// the task when both sides are done.
func (tx *Tx) MarkCleanupOrchestratorDeleted(ctx context.Context, id string, now time.Time) error {
	_, err := tx.tx.ExecContext(
		ensureContext(ctx),
		`UPDATE cleanup_tasks
         SET orchestrator_deleted = 1,
             status = CASE WHEN daemon_deleted = 1 THEN ? ELSE status END,
             completed_at = CASE WHEN daemon_deleted = 1 THEN ? ELSE completed_at END
         WHERE id = ?`,
		TaskCompleted,
		formatTime(now),
		id,
	)
	if err != nil {
		return fmt.Errorf("mark cleanup orchestrator deleted: %w", err)
	}
	return nil
}

// MarkRetransferAcknowledged records the daemon's ack and closes the task.
func (tx *Tx) MarkRetransferAcknowledged(ctx context.Context, id string, now time.Time) error {
	_, err := tx.tx.ExecContext(
		ensureContext(ctx),
		`UPDATE retransfer_tasks
         SET daemon_acknowledged = 1, status = ?, completed_at = ?
         WHERE id = ?`,
		TaskCompleted,
		formatTime(now),
		id,
	)
	if err != nil {
		return fmt.Errorf("mark retransfer acknowledged: %w", err)
	}
	return nil
}

// StuckCleanupTasks returns pending cleanup tasks created before the cutoff.
func (s *Store) StuckCleanupTasks(ctx context.Context, cutoff time.Time) ([]*CleanupTask, error) {
	rows, err := s.db.QueryContext(
		ensureContext(ctx),
		`SELECT `+cleanupColumns+` FROM cleanup_tasks WHERE status = ? AND created_at < ? ORDER BY created_at, id`,
		TaskPending,
		formatTime(cutoff),
	)
	if err != nil {
		return nil, fmt.Errorf("stuck cleanup tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*CleanupTask
	for rows.Next() {
		task, err := scanCleanupTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// StuckRetransferTasks returns pending retransfer tasks created before the cutoff.
func (s *Store) StuckRetransferTasks(ctx context.Context, cutoff time.Time) ([]*RetransferTask, error) {
	rows, err := s.db.QueryContext(
		ensureContext(ctx),
		`SELECT `+retransferColumns+` FROM retransfer_tasks WHERE status = ? AND created_at < ? ORDER BY created_at, id`,
		TaskPending,
		formatTime(cutoff),
	)
	if err != nil {
		return nil, fmt.Errorf("stuck retransfer tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*RetransferTask
	for rows.Next() {
		task, err := scanRetransferTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}
