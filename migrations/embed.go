// Package migrations embeds the versioned SQL schema so the server, the migrate
// command and the integration tests apply the same files.
package migrations

import "embed"

// FS holds every *.up.sql / *.down.sql pair in this directory
//
//go:embed *.sql
var FS embed.FS
