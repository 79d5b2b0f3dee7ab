package schema

import _ "embed"

//go:embed vigiles-buildroot-config.schema.json
var ConfigSchema []byte

//go:embed vigiles-manifest.schema.json
var ManifestSchema []byte
