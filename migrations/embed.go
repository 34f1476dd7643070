// Package migrations holds the SQL schema migrations, embedded so the binary
// can migrate a database without the source tree.
package migrations

import "embed"

// FS contains every *.sql migration in this directory.
//
//go:embed *.sql
var FS embed.FS
