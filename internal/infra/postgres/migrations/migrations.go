// Package migrations holds the Postgres schema, applied with bun migrate.
package migrations

import "github.com/uptrace/bun/migrate"

// Migrations is the ordered set of schema changes. Each file registers one
// migration and bun names it after the file.
var Migrations = migrate.NewMigrations()
