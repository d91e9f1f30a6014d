// Package migrations embeds the schema migrations. The DDL is written to run
// unchanged on both sqlite3 and postgres.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
