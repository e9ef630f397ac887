package migrations

import "github.com/uptrace/bun/migrate"

// Migrations is the ordered set of schema changes; each file registers itself in init.
var Migrations = migrate.NewMigrations()
