// Package migrations embeds the SQL schema files so the migrate command can
// apply them without a copy of the source tree on disk.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
