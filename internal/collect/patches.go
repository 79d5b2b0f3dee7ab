package collect

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/TimesysGit/vigiles-buildroot/internal/pkginfo"
	"github.com/TimesysGit/vigiles-buildroot/internal/utils/logger"
	"github.com/TimesysGit/vigiles-buildroot/internal/utils/security"
	"github.com/TimesysGit/vigiles-buildroot/internal/utils/slice"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/charmap"
)

var (
	cveInText = regexp.MustCompile(`CVE-\d{4}-\d+`)
	// Only the last CVE id of a file name is recognized.
	cveInFileName = regexp.MustCompile(`.*([Cc][Vv][Ee]-\d{4}-\d+)`)
)

// AttachPatches records the patches of every package in pkgs along with
// the CVEs they fix.
func AttachPatches(pkgs pkginfo.Map, t *Tree, globalPatchDirs []string, log *zap.SugaredLogger) {
	log = logger.OrNop(log)
	for _, name := range pkgs.Names() {
		p := pkgs[name]
		key := p.RawName
		if key == "" {
			key = p.Name
		}
		makefile, ok := t.Makefile(key)
		if !ok {
			continue
		}
		p.Makefile = makefile

		paths := FindPatches(filepath.Dir(makefile), p.Name, p.Version, globalPatchDirs)
		if len(paths) == 0 {
			continue
		}
		names := make([]string, len(paths))
		for i, path := range paths {
			names[i] = filepath.Base(path)
		}
		p.Patches = slice.SortedUnique(names)
		p.PatchedCVEs = PatchedCVEs(paths, log)
		if len(p.PatchedCVEs) > 0 {
			log.Debugf("Patched CVEs for %s: %d patches, CVEs %v", p.Name, len(paths), slice.SortedKeys(p.PatchedCVEs))
		}
	}
}

// FindPatches returns every .patch file below makedir, plus those of the
// package in each global patch directory: <dir>/<name>/<version>/ when it
// exists, else <dir>/<name>/.
func FindPatches(makedir, name, version string, globalPatchDirs []string) []string {
	var paths []string
	_ = filepath.WalkDir(makedir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), ".patch") {
			paths = append(paths, path)
		}
		return nil
	})

	for _, gdir := range globalPatchDirs {
		dir := filepath.Join(gdir, name, version)
		if !isDir(dir) {
			dir = filepath.Join(gdir, name)
		}
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if !e.IsDir() && strings.HasSuffix(e.Name(), ".patch") {
				paths = append(paths, filepath.Join(dir, e.Name()))
			}
		}
	}
	return paths
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// PatchedCVEs maps each CVE id named by a patch file name or mentioned in
// its text to the sorted names of the patches.
func PatchedCVEs(paths []string, log *zap.SugaredLogger) map[string][]string {
	log = logger.OrNop(log)
	found := map[string][]string{}
	for _, path := range paths {
		patch := filepath.Base(path)
		var cves []string
		if m := cveInFileName.FindStringSubmatch(patch); m != nil {
			cves = append(cves, strings.ToUpper(m[1]))
		}

		text, err := readPatch(path, log)
		if err != nil {
			log.Warnf("Could not read patch %s: %v", path, err)
		} else {
			cves = append(cves, cveInText.FindAllString(text, -1)...)
		}

		for _, cve := range cves {
			if !slice.Contains(found[cve], patch) {
				found[cve] = append(found[cve], patch)
			}
		}
	}
	for cve, patches := range found {
		found[cve] = slice.SortedUnique(patches)
	}
	return found
}

func readPatch(path string, log *zap.SugaredLogger) (string, error) {
	data, err := security.SafeReadFile(path, security.ResolveSymlinks)
	if err != nil {
		return "", err
	}
	if utf8.Valid(data) {
		return string(data), nil
	}
	log.Debugf("Patch %s is not UTF-8, reading it as ISO 8859-1", path)
	decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(data)
	if err != nil {
		return "", err
	}
	return string(decoded), nil
}
