package migrations

import "embed"

// SchemaDir is the directory of the schema migrations inside FS.
const SchemaDir = "schema"

//go:embed schema/*.sql
var FS embed.FS
