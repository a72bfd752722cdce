// Package sqlite implements the local note store on an embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/and161185/note-sync/internal/crypto/sealer"
	"github.com/and161185/note-sync/internal/migrate"
	"github.com/and161185/note-sync/internal/model"
	"github.com/and161185/note-sync/internal/repository"
)

var (
	// ErrWrongPassphrase is returned by Open when the passphrase does not match the store.
	ErrWrongPassphrase = errors.New("wrong passphrase")
	// ErrSealed is returned when sealed content is read without a passphrase.
	ErrSealed = errors.New("content is sealed, passphrase required")
)

const (
	settingSalt  = "seal_salt"
	settingCheck = "seal_check"
	checkPlain   = "notesync"
)

// Store is a SQLite-backed repository.LocalStore. It is safe for concurrent use.
type Store struct {
	db     *sql.DB
	sealer *sealer.Sealer
	now    func() time.Time
}

var _ repository.LocalStore = (*Store)(nil)

// Open opens (creating if needed) the database at path and migrates it.
// A non-empty passphrase enables sealing of note content.
func Open(ctx context.Context, path, passphrase string) (*Store, error) {
	dsn := "file:" + (&url.URL{Path: path}).EscapedPath() + "?_busy_timeout=5000&_journal_mode=WAL"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite3 database: %w", err)
	}
	if path == ":memory:" {
		// every connection would see its own empty database
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if err := migrate.Local(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	s := &Store{db: db, now: time.Now}
	if passphrase != "" {
		if err := s.initSealer(ctx, passphrase); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// Sealed reports whether note content is encrypted at rest.
func (s *Store) Sealed() bool { return s.sealer != nil }

// initSealer loads or creates the salt and verifies the passphrase against the stored check blob.
func (s *Store) initSealer(ctx context.Context, passphrase string) error {
	salt, err := s.setting(ctx, settingSalt)
	if errors.Is(err, sql.ErrNoRows) {
		fresh, rerr := sealer.Rand(sealer.SaltLen)
		if rerr != nil {
			return rerr
		}
		// a concurrent opener may win; re-read below either way
		if _, err = s.db.ExecContext(ctx,
			`INSERT OR IGNORE INTO settings (name, value) VALUES (?, ?)`, settingSalt, fresh); err != nil {
			return fmt.Errorf("failed to store salt: %w", err)
		}
		salt, err = s.setting(ctx, settingSalt)
	}
	if err != nil {
		return fmt.Errorf("failed to load salt: %w", err)
	}

	sl, err := sealer.New(sealer.DeriveKey([]byte(passphrase), salt))
	if err != nil {
		return err
	}

	check, err := s.setting(ctx, settingCheck)
	switch {
	case err == nil:
		if _, oerr := sl.Open(settingCheck, 0, check); oerr != nil {
			return ErrWrongPassphrase
		}
	case errors.Is(err, sql.ErrNoRows):
		blob, serr := sl.Seal(settingCheck, 0, []byte(checkPlain))
		if serr != nil {
			return serr
		}
		if _, err = s.db.ExecContext(ctx,
			`INSERT OR IGNORE INTO settings (name, value) VALUES (?, ?)`, settingCheck, blob); err != nil {
			return fmt.Errorf("failed to store passphrase check: %w", err)
		}
	default:
		return fmt.Errorf("failed to load passphrase check: %w", err)
	}
	s.sealer = sl
	return nil
}

func (s *Store) setting(ctx context.Context, name string) ([]byte, error) {
	var v []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE name = ?`, name).Scan(&v)
	return v, err
}

// FetchAll returns a handle for every stored note, ordered by key.
func (s *Store) FetchAll(ctx context.Context) ([]repository.LocalHandle, error) {
	notes, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]repository.LocalHandle, len(notes))
	for i := range notes {
		out[i] = &Note{store: s, note: notes[i]}
	}
	return out, nil
}

// List returns every stored note, ordered by key.
func (s *Store) List(ctx context.Context) ([]model.Note, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT key, version, content, sealed, tags, system_tags, created_at, modified_at
FROM notes ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("failed to query notes: %w", err)
	}
	defer rows.Close()

	notes := make([]model.Note, 0)
	for rows.Next() {
		var (
			n                model.Note
			content          []byte
			sealed           bool
			tags, sys        string
			createdMs, modMs int64
		)
		if err := rows.Scan(&n.Key, &n.Version, &content, &sealed, &tags, &sys, &createdMs, &modMs); err != nil {
			return nil, fmt.Errorf("failed to scan note: %w", err)
		}
		if sealed {
			if s.sealer == nil {
				return nil, fmt.Errorf("note %q: %w", n.Key, ErrSealed)
			}
			if content, err = s.sealer.Open(n.Key, n.Version, content); err != nil {
				return nil, fmt.Errorf("note %q: failed to open content: %w", n.Key, err)
			}
		}
		n.Content = string(content)
		if err := json.Unmarshal([]byte(tags), &n.Tags); err != nil {
			return nil, fmt.Errorf("note %q: bad tags: %w", n.Key, err)
		}
		if err := json.Unmarshal([]byte(sys), &n.SystemTags); err != nil {
			return nil, fmt.Errorf("note %q: bad system tags: %w", n.Key, err)
		}
		n.CreatedAt, n.ModifiedAt = fromMillis(createdMs), fromMillis(modMs)
		notes = append(notes, n)
	}
	return notes, rows.Err()
}

// NewHandle returns an unsaved handle seeded with key and version.
func (s *Store) NewHandle(seed model.Seed) repository.LocalHandle {
	return &Note{store: s, note: model.Note{Key: seed.Key, Version: seed.Version}}
}

// save upserts n. A stored row with a higher version is left untouched.
func (s *Store) save(ctx context.Context, n *model.Note) error {
	content := []byte(n.Content)
	sealed := false
	if s.sealer != nil {
		blob, err := s.sealer.Seal(n.Key, n.Version, content)
		if err != nil {
			return fmt.Errorf("failed to seal content: %w", err)
		}
		content, sealed = blob, true
	}
	tags, err := marshalTags(n.Tags)
	if err != nil {
		return err
	}
	sys, err := marshalTags(n.SystemTags)
	if err != nil {
		return err
	}

	const q = `
INSERT INTO notes (key, version, content, sealed, tags, system_tags, created_at, modified_at, synced_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (key) DO UPDATE SET
  version=excluded.version, content=excluded.content, sealed=excluded.sealed,
  tags=excluded.tags, system_tags=excluded.system_tags,
  created_at=excluded.created_at, modified_at=excluded.modified_at, synced_at=excluded.synced_at
WHERE excluded.version >= notes.version`
	_, err = s.db.ExecContext(ctx, q, n.Key, n.Version, content, sealed, tags, sys,
		toMillis(n.CreatedAt), toMillis(n.ModifiedAt), s.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to upsert note: %w", err)
	}
	return nil
}

// remove deletes the row unless it holds a version newer than ver.
func (s *Store) remove(ctx context.Context, key string, ver int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM notes WHERE key = ? AND version <= ?`, key, ver); err != nil {
		return fmt.Errorf("failed to delete note: %w", err)
	}
	return nil
}

func marshalTags(tags []string) (string, error) {
	if tags == nil {
		tags = []string{}
	}
	b, err := json.Marshal(tags)
	return string(b), err
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
