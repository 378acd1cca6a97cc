// Package migrations embeds the SQL schema of the chat service.
package migrations

import "embed"

// Files holds every .sql file in this directory; they are applied in lexical order.
//
//go:embed *.sql
var Files embed.FS
