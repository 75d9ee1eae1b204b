// Package migrations embeds the SQL migration files for the server
// PostgreSQL database.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
