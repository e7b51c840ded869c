// Package migrations embeds the goose SQL migrations so the API binary and
// cmd/migrate apply the same schema.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
