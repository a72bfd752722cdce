package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/and161185/note-sync/internal/errs"
	"github.com/and161185/note-sync/internal/model"
)

// NoteRepo implements repository.RemoteStore over the notes table, scoped to one account.
type NoteRepo struct {
	db      *DB
	account uuid.UUID
}

// NewNoteRepo constructs a note repository for account.
func NewNoteRepo(db *DB, account uuid.UUID) *NoteRepo { return &NoteRepo{db: db, account: account} }

// Account returns the account the repository is scoped to.
func (r *NoteRepo) Account() uuid.UUID { return r.account }

// FetchAll returns every note of the account ordered by key, tombstones included.
func (r *NoteRepo) FetchAll(ctx context.Context) ([]model.Note, error) {
	const q = `
SELECT key, version, content, tags, system_tags, deleted, created_at, modified_at
FROM notes
WHERE account_id=$1
ORDER BY key`
	rows, err := r.db.Pool.Query(ctx, q, r.account)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Note
	for rows.Next() {
		var n model.Note
		if err = rows.Scan(&n.Key, &n.Version, &n.Content, &n.Tags, &n.SystemTags, &n.Deleted, &n.CreatedAt, &n.ModifiedAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// FetchOne returns a single note by key.
func (r *NoteRepo) FetchOne(ctx context.Context, key string) (*model.Note, error) {
	const q = `
SELECT key, version, content, tags, system_tags, deleted, created_at, modified_at
FROM notes WHERE account_id=$1 AND key=$2`
	var n model.Note
	err := r.db.Pool.QueryRow(ctx, q, r.account, key).
		Scan(&n.Key, &n.Version, &n.Content, &n.Tags, &n.SystemTags, &n.Deleted, &n.CreatedAt, &n.ModifiedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return &n, nil
}

// Put writes n with optimistic concurrency: n.Version is the base version the caller saw
// (0 for a new note). It returns the stored version.
func (r *NoteRepo) Put(ctx context.Context, n model.Note) (ver int64, err error) {
	if n.Key == "" {
		return 0, errors.New("validation: empty key")
	}
	if n.Version < 0 {
		return 0, errors.New("validation: negative base version")
	}

	tx, err := r.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		if e := tx.Commit(ctx); e != nil {
			err = e
		}
	}()

	const sel = `SELECT version FROM notes WHERE account_id=$1 AND key=$2 FOR UPDATE`
	const ins = `INSERT INTO notes (account_id, key, version, content, tags, system_tags, deleted) VALUES ($1,$2,$3,$4,$5,$6,$7)`
	const upd = `UPDATE notes SET version=$3, content=$4, tags=$5, system_tags=$6, deleted=$7, modified_at=now() WHERE account_id=$1 AND key=$2`

	tags, sys := nonNil(n.Tags), nonNil(n.SystemTags)

	var cur int64
	scanErr := tx.QueryRow(ctx, sel, r.account, n.Key).Scan(&cur)
	switch {
	case scanErr == nil:
		if cur != n.Version {
			return 0, fmt.Errorf("note %q: %w", n.Key, errs.ErrVersionConflict)
		}
		ver = cur + 1
		if _, err = tx.Exec(ctx, upd, r.account, n.Key, ver, n.Content, tags, sys, n.Deleted); err != nil {
			return 0, err
		}
	case errors.Is(scanErr, pgx.ErrNoRows):
		if n.Version != 0 {
			return 0, fmt.Errorf("note %q: %w", n.Key, errs.ErrVersionConflict)
		}
		ver = 1
		if _, err = tx.Exec(ctx, ins, r.account, n.Key, ver, n.Content, tags, sys, n.Deleted); err != nil {
			if isUniqueViolation(err) {
				return 0, fmt.Errorf("note %q: %w", n.Key, errs.ErrVersionConflict)
			}
			return 0, err
		}
	default:
		return 0, scanErr
	}
	return ver, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
