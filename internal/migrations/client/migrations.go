// Package clientmigrations embeds the goose migrations for the
// client-local database.
package clientmigrations

import "embed"

//go:embed *.sql
var FS embed.FS
