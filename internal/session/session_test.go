package session

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/and161185/note-sync/internal/config"
	"github.com/and161185/note-sync/internal/errs"
	"github.com/and161185/note-sync/internal/repository/postgres"
	"github.com/and161185/note-sync/internal/repository/sqlite"
	"github.com/and161185/note-sync/internal/service"
)

var testKey = []byte("test-signing-key")

func sign(t *testing.T, method jwt.SigningMethod, key any, claims jwt.RegisteredClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return s
}

func claimsFor(sub string, exp time.Duration) jwt.RegisteredClaims {
	c := jwt.RegisteredClaims{Subject: sub, IssuedAt: jwt.NewNumericDate(time.Now())}
	if exp != 0 {
		c.ExpiresAt = jwt.NewNumericDate(time.Now().Add(exp))
	}
	return c
}

func TestAccountFromToken(t *testing.T) {
	id := uuid.Must(uuid.NewV4())

	tests := []struct {
		name  string
		token string
		key   []byte
		ok    bool
	}{
		{"verified", sign(t, jwt.SigningMethodHS256, testKey, claimsFor(id.String(), time.Hour)), testKey, true},
		{"unverified", sign(t, jwt.SigningMethodHS256, []byte("whatever"), claimsFor(id.String(), time.Hour)), nil, true},
		{"wrong key", sign(t, jwt.SigningMethodHS256, []byte("other"), claimsFor(id.String(), time.Hour)), testKey, false},
		{"other method", sign(t, jwt.SigningMethodHS512, testKey, claimsFor(id.String(), time.Hour)), testKey, false},
		{"expired verified", sign(t, jwt.SigningMethodHS256, testKey, claimsFor(id.String(), -time.Minute)), testKey, false},
		{"expired unverified", sign(t, jwt.SigningMethodHS256, testKey, claimsFor(id.String(), -time.Minute)), nil, false},
		{"no expiry verified", sign(t, jwt.SigningMethodHS256, testKey, claimsFor(id.String(), 0)), testKey, false},
		{"no expiry unverified", sign(t, jwt.SigningMethodHS256, testKey, claimsFor(id.String(), 0)), nil, false},
		{"subject not uuid", sign(t, jwt.SigningMethodHS256, testKey, claimsFor("alice", time.Hour)), testKey, false},
		{"nil subject", sign(t, jwt.SigningMethodHS256, testKey, claimsFor(uuid.Nil.String(), time.Hour)), testKey, false},
		{"garbage", "not.a.jwt", nil, false},
		{"empty", "", testKey, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := AccountFromToken(tt.token, tt.key)
			if !tt.ok {
				require.ErrorIs(t, err, errs.ErrUnauthorized)
				return
			}
			require.NoError(t, err)
			require.Equal(t, id, got)
		})
	}
}

func TestAccount_ExplicitWins(t *testing.T) {
	id := uuid.Must(uuid.NewV4())
	got, err := Account(&config.Config{Account: id.String(), RemoteToken: "ignored"})
	require.NoError(t, err)
	require.Equal(t, id, got)

	_, err = Account(&config.Config{Account: "nope"})
	require.ErrorIs(t, err, errs.ErrInvalidConfig)

	_, err = Account(&config.Config{})
	require.ErrorIs(t, err, errs.ErrUnauthorized)
}

func TestOpen_FailsBeforeConnecting(t *testing.T) {
	cfg, err := config.FromEnv(nil)
	require.NoError(t, err)
	cfg.RemoteDSN = "postgres://localhost/notes"
	cfg.RemoteToken = "bad"

	_, err = Open(context.Background(), cfg, zaptest.NewLogger(t))
	require.ErrorIs(t, err, errs.ErrUnauthorized)
}

func TestOpen_BadDSN(t *testing.T) {
	cfg, err := config.FromEnv(nil)
	require.NoError(t, err)
	cfg.RemoteDSN = "definitely not a dsn"
	cfg.Account = uuid.Must(uuid.NewV4()).String()
	cfg.LocalPath = filepath.Join(t.TempDir(), "notes.db")

	_, err = Open(context.Background(), cfg, nil)
	require.ErrorContains(t, err, "connect remote")
}

func TestSession_ReconcilerSyncsIntoLocal(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	local, err := sqlite.Open(ctx, filepath.Join(t.TempDir(), "notes.db"), "")
	require.NoError(t, err)

	account := uuid.Must(uuid.NewV4())
	db := &postgres.DB{Pool: mock}
	s := &Session{
		Remote:    postgres.NewNoteRepo(db, account),
		Local:     local,
		Tag:       "work",
		db:        db,
		log:       zaptest.NewLogger(t),
		policy:    service.CancelOnError,
		opTimeout: time.Second,
	}
	defer s.Close()

	cols := []string{"key", "version", "content", "tags", "system_tags", "deleted", "created_at", "modified_at"}
	ts := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`FROM notes\s+WHERE account_id=\$1\s+ORDER BY key`).
		WithArgs(account).
		WillReturnRows(pgxmock.NewRows(cols).
			AddRow("c", int64(2), "hello", []string{"work"}, []string{}, false, ts, ts).
			AddRow("d", int64(1), "home", []string{"home"}, []string{}, false, ts, ts))
	mock.ExpectQuery(`FROM notes WHERE account_id=\$1 AND key=\$2`).
		WithArgs(account, "c").
		WillReturnRows(pgxmock.NewRows(cols).
			AddRow("c", int64(2), "hello", []string{"work"}, []string{}, false, ts, ts))

	require.NoError(t, s.Reconciler().Sync(ctx))
	require.NoError(t, mock.ExpectationsWereMet())

	notes, err := local.List(ctx)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	require.Equal(t, "c", notes[0].Key)
	require.Equal(t, int64(2), notes[0].Version)
	require.Equal(t, "hello", notes[0].Content)
	require.True(t, ts.Equal(notes[0].ModifiedAt))
}
