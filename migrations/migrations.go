// Package migrations embeds the goose SQL migrations for the remote and local schemas.
package migrations

import "embed"

// FS holds postgres/*.sql (remote store) and sqlite/*.sql (local store).
//
//go:embed postgres/*.sql sqlite/*.sql
var FS embed.FS
