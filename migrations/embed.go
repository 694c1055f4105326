// Package migrations embeds the storefront's SQL schema migrations.
package migrations

import "embed"

// FS holds every *.sql migration, applied in name order by
// database.RunMigrations.
//
//go:embed *.sql
var FS embed.FS
