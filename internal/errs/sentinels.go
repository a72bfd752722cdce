// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across repo/service layers.
var (
	// ErrNotFound indicates the requested note does not exist.
	ErrNotFound = errors.New("not found")

	// ErrVersionConflict indicates optimistic concurrency failure (base version mismatch).
	ErrVersionConflict = errors.New("version conflict")

	// ErrUnauthorized indicates missing, expired or malformed credentials.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrDuplicateKey indicates two worklist entries share a key.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrInvalidConfig indicates a configuration value failed validation.
	ErrInvalidConfig = errors.New("invalid config")
)

// Stage sentinels. An OpError carries one of these as its Op.
var (
	// ErrLocalFetch marks a failure enumerating local notes.
	ErrLocalFetch = errors.New("local fetch")

	// ErrRemoteFetch marks a failure reading remote notes (all or one).
	ErrRemoteFetch = errors.New("remote fetch")

	// ErrUpdate marks the first failed per-note update of a sync pass.
	ErrUpdate = errors.New("update")

	// ErrSave marks a failure persisting a local note.
	ErrSave = errors.New("save")

	// ErrRemove marks a failure removing a local note.
	ErrRemove = errors.New("remove")
)
