package manifest

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/TimesysGit/vigiles-buildroot/internal/buildroot"
)

// Fixed document values.
const (
	Distro          = "buildroot"
	Image           = "rootfs"
	ManifestVersion = "1.22"
	DefaultHostname = "buildroot"
	MaxNameLength   = 256
)

// BuildContext is the build and target metadata of the manifest.
type BuildContext struct {
	Arch          string
	CPU           string
	Commit        string
	Date          string
	DistroVersion string
	Hostname      string
	Machine       string
}

// NewBuildContext derives the build context from the Buildroot .config,
// the Buildroot version and the source revision.
func NewBuildContext(cfg buildroot.DotConfig, brVersion, commit string, now time.Time) BuildContext {
	arch := cfg["arch"]
	if commit == "" {
		commit = "Release"
	}
	return BuildContext{
		Arch:          arch,
		CPU:           cfg.Get("gcc-target-cpu", arch),
		Commit:        commit,
		Date:          now.UTC().Format(time.DateOnly),
		DistroVersion: brVersion,
		Hostname:      cfg.Get("target-generic-hostname", DefaultHostname),
		Machine:       MachineName(cfg),
	}
}

// MachineName is the defconfig name without its _defconfig suffix. A
// configuration made from scratch has the defconfig "defconfig", in which
// case the target CPU or the architecture is used.
func MachineName(cfg buildroot.DotConfig) string {
	defconfig := filepath.Base(cfg.Get("defconfig", "custom"))
	if defconfig != "defconfig" {
		return strings.ReplaceAll(defconfig, "_defconfig", "")
	}
	return cfg.Get("gcc-target-cpu", cfg["arch"])
}
