package validate

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/TimesysGit/vigiles-buildroot/internal/config/schema"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"sigs.k8s.io/yaml"
)

const (
	configSchemaName   = "vigiles-buildroot-config.schema.json"
	manifestSchemaName = "vigiles-manifest.schema.json"
	packageRef         = "#/$defs/Package"
)

// ValidateAgainstSchema compiles the given schema bytes and runs it against
// the JSON in data.  The `name` is only used to identify the schema in errors.
func ValidateAgainstSchema(name string, schemaBytes, data []byte, ref string) error {
	comp := jsonschema.NewCompiler()
	if err := comp.AddResource(name, bytes.NewReader(schemaBytes)); err != nil {
		return fmt.Errorf("loading schema %q: %w", name, err)
	}

	// If ref is empty we compile the root; otherwise compile the subschema.
	target := name
	if ref != "" {
		if strings.HasPrefix(ref, "#") {
			target = name + ref
		} else {
			target = name + "#" + ref
		}
	}
	sch, err := comp.Compile(target)
	if err != nil {
		return fmt.Errorf("compiling schema %q: %w", name, err)
	}

	var doc interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("invalid JSON for %q: %w", name, err)
	}
	if err := sch.Validate(doc); err != nil {
		return fmt.Errorf("schema validation against %q failed: %w", name, err)
	}
	return nil
}

// ValidateConfigJSON runs the config schema against data
func ValidateConfigJSON(data []byte) error {
	return ValidateAgainstSchema(configSchemaName, schema.ConfigSchema, data, "")
}

// ValidateConfigYAML converts a YAML config document to JSON and validates it.
func ValidateConfigYAML(data []byte) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	jsonData, err := yaml.YAMLToJSON(data)
	if err != nil {
		return fmt.Errorf("converting YAML config to JSON: %w", err)
	}
	// An all-comment file converts to null.
	if string(bytes.TrimSpace(jsonData)) == "null" {
		return nil
	}
	return ValidateConfigJSON(jsonData)
}

// ValidateManifestJSON runs the manifest schema against data
func ValidateManifestJSON(data []byte) error {
	return ValidateAgainstSchema(manifestSchemaName, schema.ManifestSchema, data, "")
}

// ValidatePackageJSON validates one package entry of a manifest.
func ValidatePackageJSON(data []byte) error {
	return ValidateAgainstSchema(manifestSchemaName, schema.ManifestSchema, data, packageRef)
}
