// Package store provides the SQLite persistence layer for the broker:
// settings (vault address, session token, auto-save, excluded sites) and
// the capture journal. Passwords are never written here; they live only in
// the vault.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hazyhaar/credkeeper/dbopen"
)

// Store is the broker database handle.
type Store struct {
	DB *sql.DB
}

// Open opens (or creates) the broker SQLite database at path and applies
// the schema.
func Open(path string, opts ...dbopen.Option) (*Store, error) {
	allOpts := append([]dbopen.Option{
		dbopen.WithMkdirAll(),
		dbopen.WithSchema(Schema),
	}, opts...)

	db, err := dbopen.Open(path, allOpts...)
	if err != nil {
		return nil, err
	}
	if err := ensureSettingsRow(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{DB: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.DB.Close()
}

func ensureSettingsRow(db *sql.DB) error {
	_, err := db.Exec(`INSERT OR IGNORE INTO settings (id, updated_at) VALUES (1, ?)`,
		time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("store: seed settings row: %w", err)
	}
	return nil
}

// Settings is the persisted broker configuration. Token is the vault
// session token, kept so a broker restart does not force a re-login.
type Settings struct {
	ServerURL     string
	Username      string
	Token         string
	AutoSave      bool
	ExcludedSites []string
	UpdatedAt     int64
}

// LoadSettings reads the settings row.
func (s *Store) LoadSettings(ctx context.Context) (Settings, error) {
	var set Settings
	var autoSave int
	var excluded string
	err := s.DB.QueryRowContext(ctx, `
		SELECT server_url, username, token, auto_save, excluded_sites, updated_at
		FROM settings WHERE id = 1`).
		Scan(&set.ServerURL, &set.Username, &set.Token, &autoSave, &excluded, &set.UpdatedAt)
	if err != nil {
		return Settings{}, fmt.Errorf("store: load settings: %w", err)
	}
	set.AutoSave = autoSave != 0
	if err := json.Unmarshal([]byte(excluded), &set.ExcludedSites); err != nil {
		return Settings{}, fmt.Errorf("store: decode excluded sites: %w", err)
	}
	return set, nil
}

// SaveSettings rewrites the settings row.
func (s *Store) SaveSettings(ctx context.Context, set Settings) error {
	excluded, err := json.Marshal(nonNil(set.ExcludedSites))
	if err != nil {
		return fmt.Errorf("store: encode excluded sites: %w", err)
	}
	_, err = s.DB.ExecContext(ctx, `
		UPDATE settings
		SET server_url = ?, username = ?, token = ?, auto_save = ?,
		    excluded_sites = ?, updated_at = ?
		WHERE id = 1`,
		set.ServerURL, set.Username, set.Token, boolInt(set.AutoSave),
		string(excluded), time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("store: save settings: %w", err)
	}
	return nil
}

// SaveToken updates only the session token.
func (s *Store) SaveToken(ctx context.Context, token string) error {
	_, err := s.DB.ExecContext(ctx,
		`UPDATE settings SET token = ?, updated_at = ? WHERE id = 1`,
		token, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("store: save token: %w", err)
	}
	return nil
}

// CaptureOutcome classifies a capture journal entry.
type CaptureOutcome string

const (
	OutcomeSaved    CaptureOutcome = "saved"
	OutcomeUpdated  CaptureOutcome = "updated"
	OutcomeDeclined CaptureOutcome = "declined"
	OutcomeKept     CaptureOutcome = "kept" // stored credential left untouched
)

// Capture is one journal row.
type Capture struct {
	ID        string
	PageURL   string
	Platform  string
	Identity  string
	Outcome   CaptureOutcome
	CreatedAt int64
}

// LogCapture appends a journal row.
func (s *Store) LogCapture(ctx context.Context, c Capture) error {
	if c.CreatedAt == 0 {
		c.CreatedAt = time.Now().UnixMilli()
	}
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO capture_log (id, page_url, platform, identity, outcome, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID, c.PageURL, c.Platform, c.Identity, string(c.Outcome), c.CreatedAt)
	if err != nil {
		return fmt.Errorf("store: log capture: %w", err)
	}
	return nil
}

// RecentCaptures returns the newest journal rows, most recent first.
func (s *Store) RecentCaptures(ctx context.Context, limit int) ([]Capture, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, page_url, platform, identity, outcome, created_at
		FROM capture_log ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: recent captures: %w", err)
	}
	defer rows.Close()

	var out []Capture
	for rows.Next() {
		var c Capture
		var outcome string
		if err := rows.Scan(&c.ID, &c.PageURL, &c.Platform, &c.Identity, &outcome, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan capture: %w", err)
		}
		c.Outcome = CaptureOutcome(outcome)
		out = append(out, c)
	}
	return out, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
