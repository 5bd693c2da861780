package migrations

import "embed"

// FS holds the goose SQL migrations applied by database.Migrate.
//
//go:embed *.sql
var FS embed.FS
