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

const siteColumns = "id, name, export_path, is_active, last_heartbeat"

func scanSite(scanner interface{ Scan(dest ...any) error }) (*Site, error) {
	var (
		id           string
		name         string
		exportPath   string
		active       int
		heartbeatRaw sql.NullString
	)
	if err := scanner.Scan(&id, &name, &exportPath, &active, &heartbeatRaw); err != nil {
		return nil, err
	}
	return &Site{
		ID:            id,
		Name:          name,
		ExportPath:    exportPath,
		Active:        active != 0,
		LastHeartbeat: timePtr(heartbeatRaw),
	}, nil
}

// CreateSite registers a site. Names are normalized to lowercase.
func (s *Store) CreateSite(ctx context.Context, name, exportPath string) (*Site, error) {
	id := uuid.NewString()
	_, err := s.execWithRetry(
		ctx,
		`INSERT INTO sites (id, name, export_path, is_active) VALUES (?, ?, ?, 1)`,
		id,
		normalizeSiteName(name),
		exportPath,
	)
	if err != nil {
		return nil, fmt.Errorf("insert site: %w", err)
	}
	return s.GetSite(ctx, id)
}

// GetSite fetches a site by identifier. Returns nil when no row exists.
func (s *Store) GetSite(ctx context.Context, id string) (*Site, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+siteColumns+` FROM sites WHERE id = ?`, id)
	site, err := scanSite(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get site: %w", err)
	}
	return site, nil
}

// GetSiteByName fetches a site by its normalized name.
func (s *Store) GetSiteByName(ctx context.Context, name string) (*Site, error) {
	row := s.db.QueryRowContext(
		ensureContext(ctx),
		`SELECT `+siteColumns+` FROM sites WHERE name = ?`,
		normalizeSiteName(name),
	)
	site, err := scanSite(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get site by name: %w", err)
	}
	return site, nil
}

// ListSites returns all sites ordered by name.
func (s *Store) ListSites(ctx context.Context) ([]*Site, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), `SELECT `+siteColumns+` FROM sites ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list sites: %w", err)
	}
	defer rows.Close()

	var sites []*Site
	for rows.Next() {
		site, err := scanSite(rows)
		if err != nil {
			return nil, err
		}
		sites = append(sites, site)
	}
	return sites, rows.Err()
}

// TouchSiteHeartbeat records a heartbeat for a site, creating the row if the
// daemon is calling in for the first time.
func (s *Store) TouchSiteHeartbeat(ctx context.Context, name string, at time.Time) (*Site, error) {
	normalized := normalizeSiteName(name)
	if normalized == "" {
		return nil, errors.New("site name required")
	}

	res, err := s.execWithRetry(
		ctx,
		`UPDATE sites SET last_heartbeat = ? WHERE name = ?`,
		formatTime(at),
		normalized,
	)
	if err != nil {
		return nil, fmt.Errorf("touch site heartbeat: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		_, err = s.execWithRetry(
			ctx,
			`INSERT INTO sites (id, name, export_path, is_active, last_heartbeat) VALUES (?, ?, '', 1, ?)
             ON CONFLICT(name) DO UPDATE SET last_heartbeat = excluded.last_heartbeat`,
			uuid.NewString(),
			normalized,
			formatTime(at),
		)
		if err != nil {
			return nil, fmt.Errorf("register site on heartbeat: %w", err)
		}
	}
	return s.GetSiteByName(ctx, normalized)
}

// SetSiteActive flips a site's active flag.
func (s *Store) SetSiteActive(ctx context.Context, id string, active bool) error {
	if _, err := s.execWithRetry(ctx, `UPDATE sites SET is_active = ? WHERE id = ?`, boolToInt(active), id); err != nil {
		return fmt.Errorf("set site active: %w", err)
	}
	return nil
}

// SetSiteExportPath updates where delivered masters land for a site.
func (s *Store) SetSiteExportPath(ctx context.Context, id, exportPath string) error {
	if _, err := s.execWithRetry(ctx, `UPDATE sites SET export_path = ? WHERE id = ?`, exportPath, id); err != nil {
		return fmt.Errorf("set site export path: %w", err)
	}
	return nil
}

func normalizeSiteName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
