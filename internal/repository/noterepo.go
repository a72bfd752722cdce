// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"

	"github.com/and161185/note-sync/internal/model"
)

// RemoteStore provides read access to the authoritative note store.
// Implementations must be safe for concurrent use.
type RemoteStore interface {
	// FetchAll returns every note visible to the session, tombstones included.
	FetchAll(ctx context.Context) ([]model.Note, error)
	// FetchOne returns a single note by key, or errs.ErrNotFound.
	FetchOne(ctx context.Context, key string) (*model.Note, error)
}

// LocalStore enumerates locally tracked notes and mints handles for new ones.
// Implementations must be safe for concurrent use.
type LocalStore interface {
	// FetchAll returns a handle for every locally stored note.
	FetchAll(ctx context.Context) ([]LocalHandle, error)
	// NewHandle returns an unsaved handle seeded with key and version.
	NewHandle(seed model.Seed) LocalHandle
}

// LocalHandle is a local reference to one note.
type LocalHandle interface {
	Key() string
	Version() int64
	// Set overwrites the handle's fields from n. It never fails.
	Set(n *model.Note)
	// Save persists the handle.
	Save(ctx context.Context) error
	// Remove deletes the note locally.
	Remove(ctx context.Context) error
}
