// Package schemas embeds the JSON Schema documents shipped with keiko.
package schemas

import _ "embed"

// AdapterSchemaJSON is the JSON Schema for adapter description files.
//
//go:embed adapter.schema.json
var AdapterSchemaJSON string
