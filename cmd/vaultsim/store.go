package main

import (
	"context"
	"crypto/cipher"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/hazyhaar/credkeeper/shield"
)

// schema holds vaultsim's tables plus the shield rate_limits table its
// middleware reads.
const schema = `
CREATE TABLE IF NOT EXISTS users (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    username      TEXT NOT NULL UNIQUE,
    password_hash BLOB NOT NULL,
    created_at    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS registrations (
    id             INTEGER PRIMARY KEY AUTOINCREMENT,
    platform_name  TEXT NOT NULL,
    email_address  TEXT NOT NULL DEFAULT '',
    login_username TEXT NOT NULL DEFAULT '',
    password_box   BLOB,
    notes          TEXT NOT NULL DEFAULT '',
    created_at     TEXT NOT NULL,
    updated_at     TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_registrations_platform ON registrations(platform_name);
` + shield.Schema

var errNotFound = errors.New("vaultsim: not found")

// registrationRow is a stored credential. The password never leaves the
// row struct decrypted; has_password is derived from the box.
type registrationRow struct {
	ID            uint64 `json:"id"`
	PlatformName  string `json:"platform_name"`
	EmailAddress  string `json:"email_address"`
	LoginUsername string `json:"login_username"`
	Notes         string `json:"notes"`
	HasPassword   bool   `json:"has_password"`
	CreatedAt     string `json:"created_at"`
	UpdatedAt     string `json:"updated_at"`
}

// vaultStore wraps SQLite with reversible password encryption. Passwords
// are sealed with ChaCha20-Poly1305, nonce prepended to the ciphertext.
type vaultStore struct {
	db  *sql.DB
	box cipher.AEAD
}

func newVaultStore(db *sql.DB, key []byte) (*vaultStore, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("vaultsim: cipher: %w", err)
	}
	return &vaultStore{db: db, box: aead}, nil
}

func (s *vaultStore) seal(password string) ([]byte, error) {
	if password == "" {
		return nil, nil
	}
	nonce := make([]byte, s.box.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return s.box.Seal(nonce, nonce, []byte(password), nil), nil
}

func (s *vaultStore) open(sealed []byte) (string, error) {
	if len(sealed) <= s.box.NonceSize() {
		return "", fmt.Errorf("vaultsim: sealed password too short")
	}
	nonce, ct := sealed[:s.box.NonceSize()], sealed[s.box.NonceSize():]
	plain, err := s.box.Open(nil, nonce, ct, nil)
	if err != nil {
		return "", fmt.Errorf("vaultsim: decrypt password: %w", err)
	}
	return string(plain), nil
}

// --- users

func (s *vaultStore) createUser(ctx context.Context, username, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO users (username, password_hash, created_at) VALUES (?, ?, ?)`,
		username, hash, time.Now().UTC().Format(time.RFC3339))
	return err
}

func (s *vaultStore) authenticate(ctx context.Context, username, password string) (string, error) {
	var id uint64
	var hash []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT id, password_hash FROM users WHERE username = ?`, username).Scan(&id, &hash)
	if err != nil {
		return "", errNotFound
	}
	if bcrypt.CompareHashAndPassword(hash, []byte(password)) != nil {
		return "", errNotFound
	}
	return fmt.Sprintf("%d", id), nil
}

// --- registrations

type draftIn struct {
	PlatformName  string `json:"platform_name"`
	EmailAddress  string `json:"email_address"`
	LoginUsername string `json:"login_username"`
	LoginPassword string `json:"login_password"`
	Notes         string `json:"notes"`
}

// findDuplicate returns the ID of an existing registration for the same
// platform and identity, or 0.
func (s *vaultStore) findDuplicate(ctx context.Context, d draftIn) (uint64, error) {
	var id uint64
	err := s.db.QueryRowContext(ctx, `
		SELECT id FROM registrations
		WHERE platform_name = ?
		  AND ((email_address <> '' AND email_address = ?)
		    OR (login_username <> '' AND login_username = ?))
		LIMIT 1`,
		d.PlatformName, d.EmailAddress, d.LoginUsername).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (s *vaultStore) create(ctx context.Context, d draftIn) (registrationRow, error) {
	sealed, err := s.seal(d.LoginPassword)
	if err != nil {
		return registrationRow{}, err
	}
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO registrations
			(platform_name, email_address, login_username, password_box, notes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		d.PlatformName, d.EmailAddress, d.LoginUsername, sealed, d.Notes, now, now)
	if err != nil {
		return registrationRow{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return registrationRow{}, err
	}
	return s.get(ctx, uint64(id))
}

func (s *vaultStore) get(ctx context.Context, id uint64) (registrationRow, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, platform_name, email_address, login_username,
		       password_box IS NOT NULL AND length(password_box) > 0,
		       notes, created_at, updated_at
		FROM registrations WHERE id = ?`, id)
	return scanRegistration(row)
}

func (s *vaultStore) list(ctx context.Context) ([]registrationRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, platform_name, email_address, login_username,
		       password_box IS NOT NULL AND length(password_box) > 0,
		       notes, created_at, updated_at
		FROM registrations ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]registrationRow, 0)
	for rows.Next() {
		r, err := scanRegistration(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// update rewrites the fields present in the draft. Empty strings leave the
// stored value alone; login_password set updates the sealed box.
func (s *vaultStore) update(ctx context.Context, id uint64, d draftIn) (registrationRow, error) {
	cur, err := s.get(ctx, id)
	if err != nil {
		return registrationRow{}, err
	}

	if d.PlatformName == "" {
		d.PlatformName = cur.PlatformName
	}
	if d.EmailAddress == "" {
		d.EmailAddress = cur.EmailAddress
	}
	if d.LoginUsername == "" {
		d.LoginUsername = cur.LoginUsername
	}
	if d.Notes == "" {
		d.Notes = cur.Notes
	}

	now := time.Now().UTC().Format(time.RFC3339)
	if d.LoginPassword != "" {
		sealed, err := s.seal(d.LoginPassword)
		if err != nil {
			return registrationRow{}, err
		}
		_, err = s.db.ExecContext(ctx, `
			UPDATE registrations
			SET platform_name = ?, email_address = ?, login_username = ?,
			    password_box = ?, notes = ?, updated_at = ?
			WHERE id = ?`,
			d.PlatformName, d.EmailAddress, d.LoginUsername, sealed, d.Notes, now, id)
		if err != nil {
			return registrationRow{}, err
		}
	} else {
		_, err = s.db.ExecContext(ctx, `
			UPDATE registrations
			SET platform_name = ?, email_address = ?, login_username = ?,
			    notes = ?, updated_at = ?
			WHERE id = ?`,
			d.PlatformName, d.EmailAddress, d.LoginUsername, d.Notes, now, id)
		if err != nil {
			return registrationRow{}, err
		}
	}
	return s.get(ctx, id)
}

func (s *vaultStore) delete(ctx context.Context, id uint64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM registrations WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return errNotFound
	}
	return nil
}

func (s *vaultStore) password(ctx context.Context, id uint64) (string, error) {
	var sealed []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT password_box FROM registrations WHERE id = ?`, id).Scan(&sealed)
	if err == sql.ErrNoRows {
		return "", errNotFound
	}
	if err != nil {
		return "", err
	}
	if len(sealed) == 0 {
		return "", nil
	}
	return s.open(sealed)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRegistration(row rowScanner) (registrationRow, error) {
	var r registrationRow
	var hasPw int
	err := row.Scan(&r.ID, &r.PlatformName, &r.EmailAddress, &r.LoginUsername,
		&hasPw, &r.Notes, &r.CreatedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return r, errNotFound
	}
	if err != nil {
		return r, err
	}
	r.HasPassword = hasPw == 1
	return r, nil
}
