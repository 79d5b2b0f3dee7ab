// internal/config/global.go
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/TimesysGit/vigiles-buildroot/internal/config/validate"
	"github.com/TimesysGit/vigiles-buildroot/internal/utils/logger"
	"github.com/TimesysGit/vigiles-buildroot/internal/utils/security"
	"github.com/TimesysGit/vigiles-buildroot/internal/utils/slice"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Output document formats.
const (
	FormatVigiles     = "vigiles"
	FormatCycloneDX14 = "cyclonedx_1.4"
	FormatSPDX23      = "spdx_2.3"
)

// DefaultSupplier is the organization recorded for packages without a
// package-supplier override.
const DefaultSupplier = "Buildroot ()"

// OutputDirEnv overrides the vigiles output directory.
const OutputDirEnv = "VIGILES_OUTPUT_DIR"

// SupportedFormats lists the accepted sbom_format values.
var SupportedFormats = []string{FormatVigiles, FormatCycloneDX14, FormatSPDX23}

// GlobalConfig holds tool-level settings shared by every run.
type GlobalConfig struct {
	Logging LoggingConfig `yaml:"logging" json:"logging"`

	OutputDir  string `yaml:"output_dir,omitempty" json:"output_dir,omitempty"` // Vigiles output directory (default: <odir>/vigiles)
	SBOMFormat string `yaml:"sbom_format" json:"sbom_format"`                   // vigiles, cyclonedx_1.4 or spdx_2.3

	IncludeVirtual      bool `yaml:"include_virtual" json:"include_virtual"`
	WriteIntermediate   bool `yaml:"write_intermediate" json:"write_intermediate"`
	RequireAllConfigs   bool `yaml:"require_all_configs" json:"require_all_configs"`
	RequireAllHashfiles bool `yaml:"require_all_hashfiles" json:"require_all_hashfiles"`

	ManifestName string `yaml:"manifest_name,omitempty" json:"manifest_name,omitempty"`
	Supplier     string `yaml:"supplier" json:"supplier"`

	Amendments AmendmentFiles `yaml:"amendments" json:"amendments"`
}

// LoggingConfig controls basic logging behavior
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`                   // debug, info (default), warn or error
	File  string `yaml:"file,omitempty" json:"file,omitempty"` // Optional log file path for teeing output to disk
}

// AmendmentFiles names the user CSV files merged into the manifest.
type AmendmentFiles struct {
	AdditionalPackages string `yaml:"additional_packages,omitempty" json:"additional_packages,omitempty"`
	ExcludePackages    string `yaml:"exclude_packages,omitempty" json:"exclude_packages,omitempty"`
	WhitelistCVEs      string `yaml:"whitelist_cves,omitempty" json:"whitelist_cves,omitempty"`
}

// DefaultGlobalConfig returns a GlobalConfig with sensible defaults
func DefaultGlobalConfig() *GlobalConfig {
	return &GlobalConfig{
		Logging: LoggingConfig{
			Level: "info",
		},
		SBOMFormat: FormatVigiles,
		Supplier:   DefaultSupplier,
	}
}

// LoadGlobalConfig loads configuration from configPath on top of the
// defaults. An empty or missing path yields the defaults.
func LoadGlobalConfig(configPath string, log *zap.SugaredLogger) (*GlobalConfig, error) {
	log = logger.OrNop(log)
	config := DefaultGlobalConfig()

	if configPath == "" {
		return config, nil
	}

	if _, err := os.Stat(configPath); err != nil {
		if os.IsNotExist(err) {
			return config, nil
		}
		if errors.Is(err, os.ErrPermission) {
			log.Warnf("Config file %s is not accessible (%v); using defaults", configPath, err)
			return config, nil
		}
		return nil, fmt.Errorf("accessing config file %s: %w", configPath, err)
	}

	ext := strings.ToLower(filepath.Ext(configPath))
	if ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("unsupported config file format: %s (supported: .yaml, .yml)", ext)
	}

	data, err := security.SafeReadFile(configPath, security.RejectSymlinks)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", configPath, err)
	}

	if err := validate.ValidateConfigYAML(data); err != nil {
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing YAML config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	log.Debugf("Loaded configuration from %s", configPath)
	return config, nil
}

// SaveGlobalConfig writes the configuration as YAML with explanatory comments.
func (gc *GlobalConfig) SaveGlobalConfig(configPath string) error {
	if configPath == "" {
		return fmt.Errorf("config path is empty")
	}
	if err := gc.Validate(); err != nil {
		return fmt.Errorf("config validation failed before save: %w", err)
	}

	commented := gc.renderCommentedYAML()
	if err := validate.ValidateConfigYAML([]byte(commented)); err != nil {
		return fmt.Errorf("config validation failed before save: %w", err)
	}

	dir := filepath.Dir(configPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}
	}

	if err := security.SafeWriteFile(configPath, []byte(commented), 0600, security.RejectSymlinks); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// YAML returns the configuration as plain YAML.
func (gc *GlobalConfig) YAML() (string, error) {
	data, err := yaml.Marshal(gc)
	if err != nil {
		return "", fmt.Errorf("marshaling config to YAML: %w", err)
	}
	return string(data), nil
}

func (gc *GlobalConfig) renderCommentedYAML() string {
	var b strings.Builder

	b.WriteString("# vigiles-buildroot - Global Configuration\n")
	b.WriteString("# Command line flags override the values below.\n\n")

	b.WriteString("logging:\n")
	fmt.Fprintf(&b, "  level: %q\n", gc.Logging.Level)
	b.WriteString("  # debug, info, warn or error\n")
	if gc.Logging.File != "" {
		fmt.Fprintf(&b, "  file: %q\n", gc.Logging.File)
		b.WriteString("  # Tee logs to this file (overwritten on each run)\n")
	}
	b.WriteString("\n")

	if gc.OutputDir != "" {
		fmt.Fprintf(&b, "output_dir: %q\n", gc.OutputDir)
	} else {
		b.WriteString("# output_dir: \"\"\n")
	}
	b.WriteString("# Vigiles output directory; defaults to <buildroot output>/vigiles.\n")
	fmt.Fprintf(&b, "# The %s environment variable takes precedence.\n\n", OutputDirEnv)

	fmt.Fprintf(&b, "sbom_format: %q\n", gc.SBOMFormat)
	fmt.Fprintf(&b, "# One of: %s\n\n", strings.Join(SupportedFormats, ", "))

	fmt.Fprintf(&b, "include_virtual: %t\n", gc.IncludeVirtual)
	b.WriteString("# Keep virtual packages, annotated with their provider\n\n")

	fmt.Fprintf(&b, "write_intermediate: %t\n", gc.WriteIntermediate)
	b.WriteString("# Dump each pipeline phase to <output_dir>/debug/<phase>.json\n\n")

	fmt.Fprintf(&b, "require_all_configs: %t\n", gc.RequireAllConfigs)
	fmt.Fprintf(&b, "require_all_hashfiles: %t\n", gc.RequireAllHashfiles)
	b.WriteString("# Exit with an error when a Config.in or .hash file is missing\n\n")

	if gc.ManifestName != "" {
		fmt.Fprintf(&b, "manifest_name: %q\n", gc.ManifestName)
	} else {
		b.WriteString("# manifest_name: \"\"\n")
	}
	b.WriteString("# Defaults to <hostname>-<machine>\n\n")

	fmt.Fprintf(&b, "supplier: %q\n", gc.Supplier)
	b.WriteString("# Organization recorded when a package sets no supplier\n\n")

	a := gc.Amendments
	if a.AdditionalPackages == "" && a.ExcludePackages == "" && a.WhitelistCVEs == "" {
		b.WriteString("amendments: {}\n")
	} else {
		b.WriteString("amendments:\n")
	}
	writeOptional(&b, "additional_packages", gc.Amendments.AdditionalPackages)
	writeOptional(&b, "exclude_packages", gc.Amendments.ExcludePackages)
	writeOptional(&b, "whitelist_cves", gc.Amendments.WhitelistCVEs)
	b.WriteString("  # CSV files; lines starting with '#' are ignored\n")

	return b.String()
}

func writeOptional(b *strings.Builder, key, value string) {
	if value == "" {
		fmt.Fprintf(b, "  # %s: \"\"\n", key)
		return
	}
	fmt.Fprintf(b, "  %s: %q\n", key, value)
}

// Validate checks the configuration for consistency.
// Defaults belong in DefaultGlobalConfig, not here.
func (gc *GlobalConfig) Validate() error {
	validLevels := []string{"debug", "info", "warn", "error"}
	if !slice.Contains(validLevels, gc.Logging.Level) {
		return fmt.Errorf("invalid log level %q, must be one of: %s",
			gc.Logging.Level, strings.Join(validLevels, ", "))
	}

	gc.SBOMFormat = strings.ToLower(strings.TrimSpace(gc.SBOMFormat))
	if !slice.Contains(SupportedFormats, gc.SBOMFormat) {
		return fmt.Errorf("%s is not a supported SBOM format, choose from: %s",
			gc.SBOMFormat, strings.Join(SupportedFormats, ", "))
	}

	if strings.TrimSpace(gc.Supplier) == "" {
		gc.Supplier = DefaultSupplier
	}

	gc.Logging.File = strings.TrimSpace(gc.Logging.File)
	gc.ManifestName = strings.TrimSpace(gc.ManifestName)

	return security.ValidateStructStrings(gc, security.DefaultLimits())
}

// GetConfigPaths returns the standard configuration file paths to check
func GetConfigPaths() []string {
	paths := []string{
		"vigiles-buildroot.yml",
		".vigiles-buildroot.yml",
		"vigiles-buildroot.yaml",
		".vigiles-buildroot.yaml",
	}

	if homeDir, _ := os.UserHomeDir(); homeDir != "" {
		paths = append(paths,
			filepath.Join(homeDir, ".config", "vigiles-buildroot", "config.yml"),
			filepath.Join(homeDir, ".config", "vigiles-buildroot", "config.yaml"),
		)
	}

	return append(paths,
		"/etc/vigiles-buildroot/config.yml",
		"/etc/vigiles-buildroot/config.yaml",
	)
}

// FindConfigFile searches for a configuration file in standard locations
func FindConfigFile() string {
	for _, path := range GetConfigPaths() {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// ResolveOutputDir picks the vigiles output directory: the environment
// override, then the configured directory, then <odir>/vigiles. Overrides
// that do not exist or are not writable fall back to the default.
func ResolveOutputDir(configured, odir string, log *zap.SugaredLogger) string {
	log = logger.OrNop(log)
	fallback := filepath.Join(odir, "vigiles")

	dir := os.Getenv(OutputDirEnv)
	if dir == "" {
		dir = configured
	}
	if dir == "" {
		return fallback
	}

	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		log.Warnf("Vigiles output directory %s doesn't exist. SBOM will be generated at default location.", dir)
		return fallback
	}
	if !writable(dir) {
		log.Warnf("Vigiles output directory %s is not writable. SBOM will be generated at default location.", dir)
		return fallback
	}
	return dir
}

func writable(dir string) bool {
	f, err := os.CreateTemp(dir, ".vigiles-write-check-*")
	if err != nil {
		return false
	}
	name := f.Name()
	_ = f.Close()
	_ = os.Remove(name)
	return true
}
