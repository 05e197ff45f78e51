package config

import (
	"fmt"
	"os"
)

func Template() string {
	return schemactlTemplate
}

func WriteTemplate(path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(schemactlTemplate), 0o600)
}

const schemactlTemplate = `schemas = "schemas.toml"

[codec]
diagnostics = true
max_diagnostics = 64
omit_null_terminator = false
log_bounds_failures = false

[header]
# Emit records with type code 255 for unsupported fields instead of
# withholding the header. Only enable with the schema owner's sign-off.
emit_invalid = false

[frame]
compression = "none" # none | lz4 | zstd
max_payload_bytes = 8388608

[inspect]
addr = ":9300"
cors_origins = ["http://localhost:3000"]
`
