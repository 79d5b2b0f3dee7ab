package buildroot

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/TimesysGit/vigiles-buildroot/internal/utils/logger"
	"github.com/TimesysGit/vigiles-buildroot/internal/utils/security"
	"go.uber.org/zap"
)

// ErrNoDotConfig is returned when no Buildroot .config can be found.
var ErrNoDotConfig = errors.New("no Buildroot .config found")

// DotConfig maps .config options, converted to key form with the BR2_
// prefix removed, to their unquoted values.
type DotConfig map[string]string

// Get returns the value of key, or def when it is unset.
func (c DotConfig) Get(key, def string) string {
	if v, ok := c[key]; ok && v != "" {
		return v
	}
	return def
}

// Enabled reports whether key is set to an affirmative value.
func (c DotConfig) Enabled(key string) bool {
	b, ok := ParseBool(c[key])
	return ok && b
}

// FindDotConfig returns the first existing .config among
// <odir>/.config, <topdir>/.config and ./.config.
func FindDotConfig(odir, topdir string) (string, error) {
	candidates := []string{
		filepath.Join(odir, ".config"),
		filepath.Join(topdir, ".config"),
		filepath.Join(".", ".config"),
	}
	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && !info.IsDir() {
			return c, nil
		}
	}
	return "", ErrNoDotConfig
}

// ReadDotConfig locates and parses the Buildroot .config.
func ReadDotConfig(odir, topdir string, log *zap.SugaredLogger) (DotConfig, string, error) {
	log = logger.OrNop(log)

	path, err := FindDotConfig(odir, topdir)
	if err != nil {
		return nil, "", fmt.Errorf("%w: configure the Buildroot build or specify the build directory", err)
	}
	log.Debugf("Using Buildroot Config at %s", path)

	data, err := security.SafeReadFile(path, security.ResolveSymlinks)
	if err != nil {
		return nil, path, fmt.Errorf("reading Buildroot .config %s: %w", path, err)
	}

	cfg := ParseDotConfig(data)
	log.Debugf("Buildroot Config: %d Options", len(cfg))
	return cfg, path, nil
}

// ParseDotConfig parses the BR2_ lines of a .config. Comment lines such as
// "# BR2_FOO is not set" are skipped.
func ParseDotConfig(data []byte) DotConfig {
	cfg := DotConfig{}
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), " \t\r")
		if !strings.HasPrefix(line, "BR2_") {
			continue
		}
		key, value, found := strings.Cut(line[len("BR2_"):], "=")
		if !found {
			continue
		}
		cfg[KconfigToKey(key)] = Unquote(value)
	}
	return cfg
}

// BootDirs lists the firmware directories below <topdir>/boot.
func BootDirs(topdir string) []string {
	entries, err := os.ReadDir(filepath.Join(topdir, "boot"))
	if err != nil {
		return nil
	}
	var dirs []string
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, e.Name())
		}
	}
	return dirs
}

// ConfiguredPackages returns the sorted package names enabled in cfg:
// every package-<name> option (except *-supports), every target-<bootdir>
// firmware option and linux for linux-kernel.
func ConfiguredPackages(cfg DotConfig, bootDirs []string) []string {
	firmware := make(map[string]string, len(bootDirs))
	for _, d := range bootDirs {
		firmware["target-"+d] = d
	}

	seen := map[string]bool{}
	for key := range cfg {
		if !cfg.Enabled(key) {
			continue
		}
		switch {
		case strings.HasPrefix(key, "package-"):
			if !strings.HasSuffix(key, "-supports") {
				seen[strings.TrimPrefix(key, "package-")] = true
			}
		case firmware[key] != "":
			seen[firmware[key]] = true
		case key == "linux-kernel":
			seen["linux"] = true
		}
	}

	pkgs := make([]string, 0, len(seen))
	for p := range seen {
		pkgs = append(pkgs, p)
	}
	sort.Strings(pkgs)
	return pkgs
}

// GlobalPatchDirs returns the directories named by BR2_GLOBAL_PATCH_DIR.
func GlobalPatchDirs(cfg DotConfig) []string {
	return strings.Fields(cfg["global-patch-dir"])
}
