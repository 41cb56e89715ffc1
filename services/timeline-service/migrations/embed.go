// Package migrations embeds the timeline-service schema.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
