package main

import (
	"fmt"
	"os"

	"github.com/TimesysGit/vigiles-buildroot/internal/config"
	"github.com/TimesysGit/vigiles-buildroot/internal/utils/logger"
	"github.com/TimesysGit/vigiles-buildroot/internal/utils/security"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// Command-line flags that can override config file settings
var (
	configFile string = "" // Path to config file
	logLevel   string = "" // Empty means use config file value
	logFile    string = "" // Empty means use config file value
)

// Set up by the root command before any subcommand runs.
var (
	globalConfig *config.GlobalConfig
	logHandle    *logger.Handle
)

func main() {
	rootCmd := createRootCommand()
	security.AttachRecursive(rootCmd, security.DefaultLimits())

	err := rootCmd.Execute()
	if logHandle != nil {
		logHandle.Close()
	}
	if err != nil {
		os.Exit(1)
	}
}

// createRootCommand creates and configures the root cobra command with all subcommands
func createRootCommand() *cobra.Command {
	// Run the root hooks as well as those security.AttachRecursive adds to
	// each subcommand.
	cobra.EnableTraverseRunHooks = true

	rootCmd := &cobra.Command{
		Use:   "vigiles-buildroot",
		Short: "Vigiles SBOM generator for Buildroot",
		Long: `vigiles-buildroot collects the packages of a configured Buildroot build,
with their versions, licenses, CPE ids, patches, checksums and dependencies,
and writes them as a Vigiles manifest or as a CycloneDX or SPDX SBOM.

Use 'vigiles-buildroot --help' to see available commands.
Use 'vigiles-buildroot <command> --help' for more information about a command.`,
		SilenceUsage:      true,
		PersistentPreRunE: initialize,
	}

	// Add global flags
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "",
		"Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "",
		"Log file path to tee logs (overrides configuration file)")

	rootCmd.AddCommand(createGenerateCommand())
	rootCmd.AddCommand(createConfigCommand())
	rootCmd.AddCommand(createVersionCommand())

	return rootCmd
}

// initialize loads the configuration and builds the logger.
func initialize(cmd *cobra.Command, args []string) error {
	configFilePath := configFile
	if configFilePath == "" {
		configFilePath = config.FindConfigFile()
	}

	gc, err := config.LoadGlobalConfig(configFilePath, nil)
	if err != nil {
		return fmt.Errorf("error loading configuration: %w", err)
	}
	if logLevel != "" {
		gc.Logging.Level = logLevel
	}
	if logFile != "" {
		gc.Logging.File = logFile
	}

	h, err := logger.New(logger.Config{
		Level:    gc.Logging.Level,
		FilePath: gc.Logging.File,
		Writer:   cmd.ErrOrStderr(),
	})
	if err != nil {
		return fmt.Errorf("error setting up logging: %w", err)
	}
	if logHandle != nil {
		logHandle.Close()
	}
	globalConfig, logHandle = gc, h

	if configFilePath != "" {
		h.Sugar().Debugf("Using configuration from: %s", configFilePath)
	}
	return nil
}

// currentConfig returns the loaded configuration, or the defaults when a
// subcommand runs without the root command.
func currentConfig() *config.GlobalConfig {
	if globalConfig == nil {
		globalConfig = config.DefaultGlobalConfig()
	}
	return globalConfig
}

func currentLogger() *zap.SugaredLogger {
	if logHandle == nil {
		return logger.OrNop(nil)
	}
	return logHandle.Sugar()
}
