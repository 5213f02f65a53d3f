// Package migrations embeds the SQLite schema for the sent-report history.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
