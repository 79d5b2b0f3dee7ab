// Package collect gathers what the Buildroot source tree says about each
// package: its makefile, its Config.in, its patches and its .hash file.
package collect

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/TimesysGit/vigiles-buildroot/internal/buildroot"
	"github.com/TimesysGit/vigiles-buildroot/internal/utils/logger"
	"go.uber.org/zap"
)

var walkSubdirs = map[string]bool{
	"boot":      true,
	"linux":     true,
	"package":   true,
	"toolchain": true,
}

var hashSubdirs = map[string]bool{
	"boot":    true,
	"linux":   true,
	"package": true,
}

var makefileExcludes = compileExcludes(
	"boot/common.mk",
	"linux/linux-ext-.*.mk",
	"package/freescale-imx/freescale-imx.mk",
	"package/gcc/gcc.mk",
	"package/gstreamer/gstreamer.mk",
	"package/gstreamer1/gstreamer1.mk",
	"package/gtk2-themes/gtk2-themes.mk",
	"package/matchbox/matchbox.mk",
	"package/opengl/opengl.mk",
	"package/qt5/qt5.mk",
	"package/x11r7/x11r7.mk",
	"package/doc-asciidoc.mk",
	"package/pkg-.*.mk",
	"package/nvidia-tegra23/nvidia-tegra23.mk",
)

func compileExcludes(patterns ...string) []*regexp.Regexp {
	res := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		res[i] = regexp.MustCompile("^" + p)
	}
	return res
}

func excludedMakefile(rel string) bool {
	for _, re := range makefileExcludes {
		if re.MatchString(rel) {
			return true
		}
	}
	return false
}

// Tree is the package layout of one or more Buildroot trees.
type Tree struct {
	// Makefiles maps package names to their .mk file.
	Makefiles map[string]string
	// Declarations maps package directory names to their Config.in.
	Declarations map[string]string
	// HashFiles maps package directory names to their .hash file.
	HashFiles map[string]string
}

// ScanOptions configures ScanTree.
type ScanOptions struct {
	// OutputDir is the Buildroot output directory; a directory with its
	// base name is skipped.
	OutputDir string
	Logger    *zap.SugaredLogger
}

// ScanTree walks the boot, linux, package and toolchain directories of
// every root. Later roots take precedence, so external trees listed after
// the Buildroot tree override its packages.
func ScanTree(roots []string, opts ScanOptions) (*Tree, error) {
	log := logger.OrNop(opts.Logger)

	skipDirs := map[string]bool{"build": true}
	if opts.OutputDir != "" {
		skipDirs[filepath.Base(filepath.Clean(opts.OutputDir))] = true
	}

	t := &Tree{
		Makefiles:    map[string]string{},
		Declarations: map[string]string{},
		HashFiles:    map[string]string{},
	}
	for _, root := range roots {
		if _, err := os.Stat(root); err != nil {
			log.Warnf("Skipping package tree %s: %v", root, err)
			continue
		}
		if err := t.scan(root, skipDirs); err != nil {
			return nil, fmt.Errorf("scanning package tree %s: %w", root, err)
		}
	}
	log.Debugf("Package trees: %d makefiles, %d Config.in, %d hash files",
		len(t.Makefiles), len(t.Declarations), len(t.HashFiles))
	return t, nil
}

func (t *Tree) scan(root string, skipDirs map[string]bool) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if path != root && skipDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}

		top, _, nested := strings.Cut(rel, "/")
		if !nested || !walkSubdirs[top] {
			return nil
		}
		dir := filepath.Dir(path)
		name := d.Name()

		switch {
		case name == "Config.in":
			t.Declarations[filepath.Base(dir)] = path
		case strings.HasSuffix(name, ".mk"):
			if excludedMakefile(rel) {
				return nil
			}
			t.Makefiles[buildroot.KconfigToKey(strings.TrimSuffix(name, ".mk"))] = path
		case strings.HasSuffix(name, ".hash") && hashSubdirs[top]:
			t.HashFiles[filepath.Base(dir)] = path
		}
		return nil
	})
}

// Declaration returns the Config.in of the package named name.
func (t *Tree) Declaration(name string) (string, bool) {
	p, ok := t.Declarations[name]
	return p, ok
}

// Makefile returns the .mk file of the package named name.
func (t *Tree) Makefile(name string) (string, bool) {
	p, ok := t.Makefiles[name]
	return p, ok
}

// KnownPackages returns the configured packages that have a makefile.
func KnownPackages(configured []string, t *Tree) []string {
	var known []string
	for _, name := range configured {
		if _, ok := t.Makefiles[name]; ok {
			known = append(known, name)
		}
	}
	return known
}
