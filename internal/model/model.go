// Package model defines domain entities used by services and repositories.
package model

import (
	"slices"
	"time"
)

// Note is a single synchronized record, shared by the local and remote views.
type Note struct {
	Key        string    // opaque id, stable across local and remote
	Version    int64     // monotonically increasing revision (>= 0)
	Content    string    // note body
	Tags       []string  // user labels; selects notes for sync
	SystemTags []string  // service-managed labels (pinned, markdown, ...)
	Deleted    bool      // tombstone flag
	CreatedAt  time.Time // set by the remote store
	ModifiedAt time.Time // set by the remote store
}

// HasTag reports whether the note carries tag (exact match).
func (n *Note) HasTag(tag string) bool {
	return slices.Contains(n.Tags, tag)
}

// Clone returns a deep copy, so callers can retain a note without sharing slices.
func (n *Note) Clone() *Note {
	c := *n
	c.Tags = slices.Clone(n.Tags)
	c.SystemTags = slices.Clone(n.SystemTags)
	return &c
}

// Seed is the minimal state used to mint a local handle for a note only known remotely.
type Seed struct {
	Key     string
	Version int64
}
