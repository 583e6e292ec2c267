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

const userColumns = "id, username, display_name, email, role, is_active, created_at"

func scanUser(scanner interface{ Scan(dest ...any) error }) (*User, error) {
	var (
		id         string
		username   string
		display    string
		email      sql.NullString
		role       string
		active     int
		createdRaw string
	)
	if err := scanner.Scan(&id, &username, &display, &email, &role, &active, &createdRaw); err != nil {
		return nil, err
	}
	user := &User{
		ID:          id,
		Username:    username,
		DisplayName: display,
		Email:       email.String,
		Role:        role,
		Active:      active != 0,
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		user.CreatedAt = created
	}
	return user, nil
}

// NewUserParams carries fields for user creation.
type NewUserParams struct {
	Username    string
	DisplayName string
	Email       string
	Role        string
}

// CreateUser inserts a user account. Role defaults to colorist.
func (s *Store) CreateUser(ctx context.Context, params NewUserParams) (*User, error) {
	role := strings.ToLower(strings.TrimSpace(params.Role))
	if role == "" {
		role = RoleColorist
	}
	id := uuid.NewString()
	_, err := s.execWithRetry(
		ctx,
		`INSERT INTO users (id, username, display_name, email, role, is_active, created_at)
         VALUES (?, ?, ?, ?, ?, 1, ?)`,
		id,
		strings.TrimSpace(params.Username),
		strings.TrimSpace(params.DisplayName),
		nullableString(strings.TrimSpace(params.Email)),
		role,
		formatTime(time.Now().UTC()),
	)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return s.GetUser(ctx, id)
}

// GetUser fetches a user by identifier. Returns nil when no row exists.
func (s *Store) GetUser(ctx context.Context, id string) (*User, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

// GetUserByUsername fetches a user by login name.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	row := s.db.QueryRowContext(
		ensureContext(ctx),
		`SELECT `+userColumns+` FROM users WHERE username = ?`,
		strings.TrimSpace(username),
	)
	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user by username: %w", err)
	}
	return user, nil
}

// ListUsers returns all users ordered by creation time.
func (s *Store) ListUsers(ctx context.Context) ([]*User, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), `SELECT `+userColumns+` FROM users ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

// SetUserActive flips an account's active flag.
func (s *Store) SetUserActive(ctx context.Context, id string, active bool) error {
	if _, err := s.execWithRetry(ctx, `UPDATE users SET is_active = ? WHERE id = ?`, boolToInt(active), id); err != nil {
		return fmt.Errorf("set user active: %w", err)
	}
	return nil
}

// GetUser fetches a user inside the transaction.
func (tx *Tx) GetUser(ctx context.Context, id string) (*User, error) {
	row := tx.tx.QueryRowContext(ensureContext(ctx), `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

// FirstActiveColorist returns the oldest active colorist account, or nil when
// none exists. Auto-assignment is deterministic: same pool, same pick.
func (tx *Tx) FirstActiveColorist(ctx context.Context) (*User, error) {
	row := tx.tx.QueryRowContext(
		ensureContext(ctx),
		`SELECT `+userColumns+` FROM users WHERE role = ? AND is_active = 1 ORDER BY created_at, id LIMIT 1`,
		RoleColorist,
	)
	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("first active colorist: %w", err)
	}
	return user, nil
}
