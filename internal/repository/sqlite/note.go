package sqlite

import (
	"context"

	"github.com/and161185/note-sync/internal/model"
	"github.com/and161185/note-sync/internal/repository"
)

// Note is a handle to one locally stored note. A handle is owned by one goroutine.
type Note struct {
	store *Store
	note  model.Note
}

var _ repository.LocalHandle = (*Note)(nil)

func (n *Note) Key() string    { return n.note.Key }
func (n *Note) Version() int64 { return n.note.Version }

// Set overwrites every field from m.
func (n *Note) Set(m *model.Note) { n.note = *m.Clone() }

// Snapshot returns a copy of the handle's current state.
func (n *Note) Snapshot() model.Note { return *n.note.Clone() }

// Save inserts or replaces the note row. It does nothing when the stored row is newer.
func (n *Note) Save(ctx context.Context) error { return n.store.save(ctx, &n.note) }

// Remove deletes the note row unless the stored row is newer than the handle.
// Removing a note that was never saved succeeds.
func (n *Note) Remove(ctx context.Context) error {
	return n.store.remove(ctx, n.note.Key, n.note.Version)
}
