// Package migrate applies embedded SQL migrations.
package migrate

import (
	"context"
	"database/sql"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/and161185/note-sync/migrations"
)

// goose keeps dialect and base FS in package state.
var mu sync.Mutex

// Remote runs pending migrations of the remote notes schema against a PostgreSQL DSN.
func Remote(ctx context.Context, dsn string) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return err
	}
	defer db.Close()
	return Up(ctx, db, "postgres", "postgres")
}

// Local runs pending migrations of the local cache schema on an open SQLite handle.
func Local(ctx context.Context, db *sql.DB) error {
	return Up(ctx, db, "sqlite3", "sqlite")
}

// Up runs all pending migrations from dir of the embedded filesystem.
func Up(ctx context.Context, db *sql.DB, dialect, dir string) error {
	mu.Lock()
	defer mu.Unlock()

	goose.SetBaseFS(migrations.FS)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect(dialect); err != nil {
		return err
	}
	return goose.UpContext(ctx, db, dir)
}
