package resolve

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/TimesysGit/vigiles-buildroot/internal/utils/security"
	"github.com/TimesysGit/vigiles-buildroot/internal/utils/shell"
	"go.uber.org/multierr"
)

// ErrNoVersion is returned when a Makefile declares no usable version.
var ErrNoVersion = errors.New("no version declared in Makefile")

// ReadVersionFile derives a version from the Makefile in dir, either from
// VERSION.PATCHLEVEL[.SUBLEVEL] (plus EXTRAVERSION when withExtra is set)
// or from PACKAGE_VERSION. When neither is assigned literally, make is
// asked to expand them.
func ReadVersionFile(dir string, withExtra bool) (string, error) {
	if dir == "" {
		return "", fmt.Errorf("source directory not defined")
	}
	makefile := filepath.Join(dir, "Makefile")
	if _, err := os.Stat(makefile); err != nil {
		return "", fmt.Errorf("source directory not found: %s: %w", makefile, err)
	}

	data, err := security.SafeReadFile(makefile, security.ResolveSymlinks)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", makefile, err)
	}

	var major, minor, revision, extra string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		parts := strings.Split(scanner.Text(), "=")
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimRight(strings.TrimSpace(parts[0]), ":?")
		key = strings.TrimSpace(key)
		val := strings.TrimSpace(parts[1])
		switch key {
		case "VERSION":
			major = val
		case "PATCHLEVEL":
			minor = val
		case "SUBLEVEL":
			revision = val
		case "EXTRAVERSION":
			extra = val
		case "PACKAGE_VERSION":
			if val != "" {
				return val, nil
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("parsing %s: %w", makefile, err)
	}

	var version string
	if major != "" && minor != "" {
		version = major + "." + minor
		if revision != "" {
			version += "." + revision
		}
		if withExtra {
			version += extra
		}
	}
	if version != "" {
		return version, nil
	}
	return versionFromMake(dir)
}

func versionFromMake(dir string) (string, error) {
	var errs []error
	for _, v := range []string{"VERSION", "PACKAGE_VERSION"} {
		cmd := fmt.Sprintf("make -s -C %s -f Makefile --eval %s print-%s",
			shell.Quote(dir), shell.Quote(fmt.Sprintf("print-%s:; @echo $(%s)", v, v)), v)
		out, err := shell.ExecCmd(cmd, nil)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if out = strings.TrimSpace(out); out != "" {
			return out, nil
		}
	}
	if len(errs) > 0 {
		return "", fmt.Errorf("%w in %s: %w", ErrNoVersion, dir, multierr.Combine(errs...))
	}
	return "", fmt.Errorf("%w in %s", ErrNoVersion, dir)
}
