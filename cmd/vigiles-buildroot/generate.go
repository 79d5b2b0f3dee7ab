package main

import (
	"fmt"
	"strings"

	"github.com/TimesysGit/vigiles-buildroot/internal/config"
	"github.com/TimesysGit/vigiles-buildroot/internal/pipeline"
	"github.com/TimesysGit/vigiles-buildroot/internal/utils/slice"
	"github.com/spf13/cobra"
)

// Generate command flags
var (
	baseDir       string
	outputDir     string
	buildDir      string
	manifestName  string
	additional    string
	exclude       string
	whitelist     string
	writeIntm     bool
	enableDebug   bool
	includeVirt   bool
	vigilesOutput string
	sbomFormat    string
	requireConfig bool
	requireHashes bool
)

// createGenerateCommand creates the generate subcommand
func createGenerateCommand() *cobra.Command {
	generateCmd := &cobra.Command{
		Use:   "generate [flags]",
		Short: "Generate the manifest of a Buildroot build",
		Long: `Generate the Vigiles manifest of a configured Buildroot build.

The Buildroot .config is read from the output directory, the Buildroot
source directory or the current directory, in that order. Buildroot make is
run to query the package variables, so the output directory must be
configured.`,
		Args: cobra.NoArgs,
		RunE: executeGenerate,
	}

	f := generateCmd.Flags()
	f.StringVarP(&baseDir, "base", "B", "", "Buildroot source directory (default: current directory)")
	f.StringVarP(&outputDir, "output", "o", "", "Buildroot output directory (default: <base>/output)")
	f.StringVarP(&buildDir, "build", "b", "", "Buildroot build directory (default: <output>/build)")
	f.StringVarP(&manifestName, "name", "N", "", "Custom manifest name")
	f.StringVarP(&additional, "additional-packages", "A", "", "File of additional packages to include")
	f.StringVarP(&exclude, "exclude-packages", "E", "", "File of packages to exclude")
	f.StringVarP(&whitelist, "whitelist-cves", "W", "", "File of CVEs to ignore")
	f.BoolVarP(&writeIntm, "write-intermediate", "I", false, "Save intermediate JSON dictionaries")
	f.BoolVarP(&enableDebug, "enable-debug", "D", false, "Enable debug output")
	f.BoolVarP(&includeVirt, "include-virtual", "v", false, "Include virtual packages in the generated SBOM")
	f.StringVarP(&vigilesOutput, "vigiles-output", "O", "", "Location of the vigiles output folder")
	f.StringVarP(&sbomFormat, "sbom-format", "f", "", "SBOM format: "+strings.Join(config.SupportedFormats, ", "))
	f.BoolVarP(&requireConfig, "require-all-configs", "c", false, "Fail when a Config.in is missing")
	f.BoolVarP(&requireHashes, "require-all-hashfiles", "i", false, "Fail when a .hash file is missing")

	return generateCmd
}

// applyGenerateFlags overrides the configuration with the flags that were set.
func applyGenerateFlags(cmd *cobra.Command, gc *config.GlobalConfig) error {
	flags := cmd.Flags()
	if flags.Changed("name") {
		gc.ManifestName = strings.TrimSpace(manifestName)
	}
	if flags.Changed("additional-packages") {
		gc.Amendments.AdditionalPackages = strings.TrimSpace(additional)
	}
	if flags.Changed("exclude-packages") {
		gc.Amendments.ExcludePackages = strings.TrimSpace(exclude)
	}
	if flags.Changed("whitelist-cves") {
		gc.Amendments.WhitelistCVEs = strings.TrimSpace(whitelist)
	}
	if flags.Changed("write-intermediate") {
		gc.WriteIntermediate = writeIntm
	}
	if flags.Changed("include-virtual") {
		gc.IncludeVirtual = includeVirt
	}
	if flags.Changed("vigiles-output") {
		gc.OutputDir = strings.TrimSpace(vigilesOutput)
	}
	if flags.Changed("require-all-configs") {
		gc.RequireAllConfigs = requireConfig
	}
	if flags.Changed("require-all-hashfiles") {
		gc.RequireAllHashfiles = requireHashes
	}
	if flags.Changed("sbom-format") {
		format := strings.ToLower(strings.TrimSpace(sbomFormat))
		if !slice.Contains(config.SupportedFormats, format) {
			return fmt.Errorf("%s is not a supported SBOM format, choose from: %s",
				format, strings.Join(config.SupportedFormats, ", "))
		}
		gc.SBOMFormat = format
	}
	return nil
}

// executeGenerate handles the generate command execution logic
func executeGenerate(cmd *cobra.Command, args []string) error {
	gc := currentConfig()
	if err := applyGenerateFlags(cmd, gc); err != nil {
		return err
	}
	if enableDebug && logHandle != nil {
		logHandle.SetLevel("debug")
	}
	log := currentLogger()

	res, err := pipeline.Run(pipeline.Options{
		TopDir:    strings.TrimSpace(baseDir),
		OutputDir: strings.TrimSpace(outputDir),
		BuildDir:  strings.TrimSpace(buildDir),
		Config:    gc,
		Logger:    log,
	})
	if res != nil && res.Path != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "Manifest written to %s\n", res.Path)
	}
	if err != nil {
		log.Errorf("manifest generation failed: %v", err)
		return err
	}
	log.Info("manifest generation completed successfully")
	return nil
}
