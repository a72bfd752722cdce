package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/and161185/note-sync/internal/errs"
	"github.com/and161185/note-sync/internal/model"
	"github.com/and161185/note-sync/internal/repository"
)

var _ repository.RemoteStore = (*NoteRepo)(nil)

var noteCols = []string{"key", "version", "content", "tags", "system_tags", "deleted", "created_at", "modified_at"}

func newDB(t *testing.T) (*DB, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	return &DB{Pool: mock}, mock
}

func TestNoteRepo_FetchAll_OK(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	account := uuid.Must(uuid.NewV4())
	r := NewNoteRepo(db, account)
	ts := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	mock.ExpectQuery(`SELECT key, version, content, tags, system_tags, deleted, created_at, modified_at\s+FROM notes\s+WHERE account_id=\$1\s+ORDER BY key`).
		WithArgs(account).
		WillReturnRows(pgxmock.NewRows(noteCols).
			AddRow("a", int64(5), "body a", []string{"work"}, []string{"pinned"}, false, ts, ts).
			AddRow("b", int64(2), "", []string{}, []string{}, true, ts, ts))

	notes, err := r.FetchAll(context.Background())
	require.NoError(t, err)
	require.Len(t, notes, 2)
	require.Equal(t, model.Note{
		Key: "a", Version: 5, Content: "body a",
		Tags: []string{"work"}, SystemTags: []string{"pinned"},
		CreatedAt: ts, ModifiedAt: ts,
	}, notes[0])
	require.True(t, notes[1].Deleted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNoteRepo_FetchAll_QueryError(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	account := uuid.Must(uuid.NewV4())
	r := NewNoteRepo(db, account)

	boom := errors.New("conn reset")
	mock.ExpectQuery(`FROM notes`).WithArgs(account).WillReturnError(boom)

	_, err := r.FetchAll(context.Background())
	require.ErrorIs(t, err, boom)
}

func TestNoteRepo_FetchOne_OK(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	account := uuid.Must(uuid.NewV4())
	r := NewNoteRepo(db, account)
	ts := time.Now().UTC()

	mock.ExpectQuery(`FROM notes WHERE account_id=\$1 AND key=\$2`).
		WithArgs(account, "a").
		WillReturnRows(pgxmock.NewRows(noteCols).
			AddRow("a", int64(7), "hi", []string{"work"}, []string{}, false, ts, ts))

	n, err := r.FetchOne(context.Background(), "a")
	require.NoError(t, err)
	require.Equal(t, int64(7), n.Version)
	require.Equal(t, "hi", n.Content)
	require.True(t, n.HasTag("work"))
}

func TestNoteRepo_FetchOne_NotFound(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	account := uuid.Must(uuid.NewV4())
	r := NewNoteRepo(db, account)

	mock.ExpectQuery(`FROM notes WHERE account_id=\$1 AND key=\$2`).
		WithArgs(account, "zzz").
		WillReturnError(pgx.ErrNoRows)

	_, err := r.FetchOne(context.Background(), "zzz")
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestNoteRepo_Put_Create_OK(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	account := uuid.Must(uuid.NewV4())
	r := NewNoteRepo(db, account)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT version FROM notes WHERE account_id=\$1 AND key=\$2 FOR UPDATE`).
		WithArgs(account, "a").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectExec(`INSERT INTO notes \(account_id, key, version, content, tags, system_tags, deleted\) VALUES \(\$1,\$2,\$3,\$4,\$5,\$6,\$7\)`).
		WithArgs(account, "a", int64(1), "body", []string{"work"}, []string{}, false).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	ver, err := r.Put(context.Background(), model.Note{Key: "a", Content: "body", Tags: []string{"work"}})
	require.NoError(t, err)
	require.Equal(t, int64(1), ver)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNoteRepo_Put_Update_OK(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	account := uuid.Must(uuid.NewV4())
	r := NewNoteRepo(db, account)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT version FROM notes WHERE account_id=\$1 AND key=\$2 FOR UPDATE`).
		WithArgs(account, "a").
		WillReturnRows(pgxmock.NewRows([]string{"version"}).AddRow(int64(3)))
	mock.ExpectExec(`UPDATE notes SET version=\$3, content=\$4, tags=\$5, system_tags=\$6, deleted=\$7, modified_at=now\(\) WHERE account_id=\$1 AND key=\$2`).
		WithArgs(account, "a", int64(4), "", []string{}, []string{}, true).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	ver, err := r.Put(context.Background(), model.Note{Key: "a", Version: 3, Deleted: true})
	require.NoError(t, err)
	require.Equal(t, int64(4), ver)
}

func TestNoteRepo_Put_VersionConflict(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	account := uuid.Must(uuid.NewV4())
	r := NewNoteRepo(db, account)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT version FROM notes`).
		WithArgs(account, "a").
		WillReturnRows(pgxmock.NewRows([]string{"version"}).AddRow(int64(5)))
	mock.ExpectRollback()

	_, err := r.Put(context.Background(), model.Note{Key: "a", Version: 4})
	require.ErrorIs(t, err, errs.ErrVersionConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNoteRepo_Put_CreateConflict(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	account := uuid.Must(uuid.NewV4())
	r := NewNoteRepo(db, account)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT version FROM notes`).
		WithArgs(account, "a").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	_, err := r.Put(context.Background(), model.Note{Key: "a", Version: 2})
	require.ErrorIs(t, err, errs.ErrVersionConflict)
}

func TestNoteRepo_Put_UniqueViolationIsConflict(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	account := uuid.Must(uuid.NewV4())
	r := NewNoteRepo(db, account)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT version FROM notes`).
		WithArgs(account, "a").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectExec(`INSERT INTO notes`).
		WithArgs(account, "a", int64(1), "x", []string{}, []string{}, false).
		WillReturnError(&pgconn.PgError{Code: "23505"})
	mock.ExpectRollback()

	_, err := r.Put(context.Background(), model.Note{Key: "a", Content: "x"})
	require.ErrorIs(t, err, errs.ErrVersionConflict)
}

func TestNoteRepo_Put_Validation(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewNoteRepo(db, uuid.Must(uuid.NewV4()))

	_, err := r.Put(context.Background(), model.Note{})
	require.Error(t, err)
	_, err = r.Put(context.Background(), model.Note{Key: "a", Version: -1})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIsUniqueViolation(t *testing.T) {
	require.True(t, isUniqueViolation(&pgconn.PgError{Code: "23505"}))
	require.False(t, isUniqueViolation(&pgconn.PgError{Code: "23503"}))
	require.False(t, isUniqueViolation(errors.New("x")))
}
