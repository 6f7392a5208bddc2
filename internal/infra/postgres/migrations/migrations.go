package migrations

import "github.com/uptrace/bun/migrate"

// Migrations holds every schema change; each 2026xxxxxx_*.go file registers one.
var Migrations = migrate.NewMigrations()
