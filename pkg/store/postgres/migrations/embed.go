// Package migrations embeds the versioned PostgreSQL schema history
// consumed by golang-migrate through its iofs source driver.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
