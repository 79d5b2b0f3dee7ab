package buildroot

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/TimesysGit/vigiles-buildroot/internal/utils/logger"
	"github.com/TimesysGit/vigiles-buildroot/internal/utils/shell"
	"go.uber.org/zap"
)

// ErrMakeFailed is returned when the Buildroot make process cannot run.
var ErrMakeFailed = errors.New("could not execute Buildroot make process")

// Make runs printvars against one Buildroot source and output directory.
type Make struct {
	TopDir    string
	OutputDir string
	Logger    *zap.SugaredLogger
}

// Dependency index variables, queried over every package.
var SweepVars = []string{
	"%_FINAL_RECURSIVE_DEPENDENCIES",
	"%_IS_VIRTUAL",
	"%_RAWNAME",
}

var (
	globalSingleVars = []string{"BR2_ARCH", "BR2_DEFCONFIG", "BR2_VERSION", "BR2_EXTERNAL_DIRS"}
	globalMultiVars  = []string{"BR2_GCC_TARGET%", "BR2_LINUX_KERNEL%", "BR2_PACKAGE%", "BR2_TARGET_UBOOT%"}
)

// PrimaryVars returns the printvars patterns for the given package
// attribute suffixes plus the global build variables.
func PrimaryVars(suffixes []string) []string {
	vars := make([]string, 0, len(suffixes)+len(globalSingleVars)+len(globalMultiVars))
	for _, s := range suffixes {
		vars = append(vars, "%_"+KeyToKconfig(s))
	}
	vars = append(vars, globalSingleVars...)
	return append(vars, globalMultiVars...)
}

// Command returns the make invocation printing vars.
func (m *Make) Command(vars []string) string {
	args := []string{"make"}
	if m.TopDir != "" {
		args = append(args, "-C", shell.Quote(m.TopDir))
	}
	if m.OutputDir != "" {
		args = append(args, shell.Quote("O="+m.OutputDir))
	}
	args = append(args, "BR2_HAVE_DOT_CONFIG=y", "-s", "printvars",
		shell.Quote("VARS="+strings.Join(vars, " ")))
	return strings.Join(args, " ")
}

// PrintVars runs printvars and returns the KEY=VALUE lines of its output.
func (m *Make) PrintVars(vars []string) ([]string, error) {
	log := logger.OrNop(m.Logger)

	out, err := shell.ExecCmd(m.Command(vars), []string{"LC_ALL=C"})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMakeFailed, err)
	}

	var lines []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.Contains(line, "=") {
			lines = append(lines, line)
		}
	}
	log.Debugf("printvars: %d variables for %d patterns", len(lines), len(vars))
	return lines, nil
}

// ExternalDirs returns the BR2_EXTERNAL trees named in dirs, skipping the
// buildroot and vigiles-buildroot trees themselves.
func ExternalDirs(dirs string) []string {
	var paths []string
	for _, p := range strings.Fields(dirs) {
		switch filepath.Base(p) {
		case "buildroot", "vigiles-buildroot":
			continue
		}
		paths = append(paths, p)
	}
	return paths
}

// GitRevision returns the HEAD commit of the repository at dir.
func GitRevision(dir string) (string, error) {
	cmd := "git rev-parse HEAD"
	if dir != "" {
		cmd = "git -C " + shell.Quote(dir) + " rev-parse HEAD"
	}
	out, err := shell.ExecCmd(cmd, nil)
	if err != nil {
		return "", fmt.Errorf("determining Buildroot git HEAD: %w", err)
	}
	rev := strings.TrimSpace(strings.SplitN(out, "\n", 2)[0])
	if rev == "" {
		return "", fmt.Errorf("determining Buildroot git HEAD: empty output")
	}
	return rev, nil
}

// ReleaseID is the identifier used for packages without any version: the
// Buildroot version, else the source revision, else "Release".
func ReleaseID(version, revision string) string {
	switch {
	case version != "":
		return version
	case revision != "":
		return revision
	default:
		return "Release"
	}
}
