package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/TimesysGit/vigiles-buildroot/internal/config/validate"
	"github.com/TimesysGit/vigiles-buildroot/internal/utils/logger"
	"github.com/TimesysGit/vigiles-buildroot/internal/utils/security"
	"go.uber.org/zap"
)

// Suffixes and extensions of the generated files.
const (
	ManifestSuffix = "manifest"
	JSONExt        = "json"
)

// FileName returns the path of an output file in dir. name is shortened so
// the base name stays within MaxNameLength.
func FileName(dir, name, suffix, ext string) string {
	limit := MaxNameLength - len(suffix) - len(ext) - 3
	if limit < 0 {
		limit = 0
	}
	if len(name) > limit {
		name = name[:limit]
	}
	return filepath.Join(dir, name+"-"+suffix+"."+ext)
}

// Marshal encodes v with a four-space indent and a trailing newline.
func Marshal(v any) ([]byte, error) {
	data, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// Write checks m against the manifest schema and writes it to dir. It
// returns the path written.
func Write(m *Manifest, dir string, log *zap.SugaredLogger) (string, error) {
	data, err := Marshal(m)
	if err != nil {
		return "", fmt.Errorf("error marshaling manifest to JSON: %w", err)
	}
	if err := validate.ValidateManifestJSON(data); err != nil {
		return "", fmt.Errorf("manifest failed validation: %w", err)
	}
	return WriteFile(data, dir, m.ManifestName, log)
}

// WriteDocument writes any output document, such as an SBOM, under the
// file name a manifest called name would get.
func WriteDocument(v any, dir, name string, log *zap.SugaredLogger) (string, error) {
	data, err := Marshal(v)
	if err != nil {
		return "", fmt.Errorf("error marshaling document to JSON: %w", err)
	}
	return WriteFile(data, dir, name, log)
}

// WriteFile writes encoded document data to the output file of name in dir.
func WriteFile(data []byte, dir, name string, log *zap.SugaredLogger) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory %s: %w", dir, err)
	}
	path := FileName(dir, name, ManifestSuffix, JSONExt)
	logger.OrNop(log).Infof("Writing Manifest to %s", path)
	if err := security.SafeWriteFile(path, data, 0644, security.RejectSymlinks); err != nil {
		return "", fmt.Errorf("error writing manifest: %w", err)
	}
	return path, nil
}

// WriteIntermediate dumps v to <dir>/debug/<phase>.json.
func WriteIntermediate(dir, phase string, v any, log *zap.SugaredLogger) error {
	debugDir := filepath.Join(dir, "debug")
	if err := os.MkdirAll(debugDir, 0755); err != nil {
		return fmt.Errorf("failed to create debug directory: %w", err)
	}
	data, err := Marshal(v)
	if err != nil {
		return fmt.Errorf("error marshaling %s: %w", phase, err)
	}
	path := filepath.Join(debugDir, phase+".json")
	logger.OrNop(log).Debugf("Writing %s", path)
	return security.SafeWriteFile(path, data, 0644, security.RejectSymlinks)
}
