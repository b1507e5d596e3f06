// Package migrations embeds the schema files so a single binary can migrate
// any environment without external assets.
package migrations

import "embed"

//go:embed sqlite/*.sql
var SqliteMigrations embed.FS

//go:embed postgres/*.sql
var PostgresMigrations embed.FS
