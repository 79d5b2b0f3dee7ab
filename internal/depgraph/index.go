package depgraph

import (
	"sort"
	"strings"

	"github.com/TimesysGit/vigiles-buildroot/internal/buildroot"
)

// Suffixes of the all-packages sweep.
const (
	depsSuffix    = "_FINAL_RECURSIVE_DEPENDENCIES"
	virtualSuffix = "_IS_VIRTUAL"
	rawnameSuffix = "_RAWNAME"
)

// Info is what Buildroot reports about one package in the sweep.
type Info struct {
	RawName      string
	IsVirtual    bool
	Dependencies []string
}

// Index is the build-tool info of every package Buildroot knows, keyed by
// the make form of the package name (FOO_BAR).
type Index struct {
	entries map[string]*Info
}

// ParseIndex builds an Index from the KEY=VALUE output of the sweep.
func ParseIndex(lines []string) *Index {
	idx := &Index{entries: map[string]*Info{}}
	for _, line := range lines {
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(buildroot.Unquote(value))

		switch {
		case strings.HasSuffix(key, depsSuffix):
			idx.entry(strings.TrimSuffix(key, depsSuffix)).Dependencies = strings.Fields(value)
		case strings.HasSuffix(key, virtualSuffix):
			b, _ := buildroot.ParseBool(value)
			idx.entry(strings.TrimSuffix(key, virtualSuffix)).IsVirtual = b
		case strings.HasSuffix(key, rawnameSuffix):
			if f := strings.Fields(value); len(f) > 0 {
				idx.entry(strings.TrimSuffix(key, rawnameSuffix)).RawName = f[0]
			}
		}
	}
	delete(idx.entries, "")
	return idx
}

func (idx *Index) entry(kconfig string) *Info {
	info, ok := idx.entries[kconfig]
	if !ok {
		info = &Info{}
		idx.entries[kconfig] = info
	}
	return info
}

// Lookup returns the info of name, given in key (foo-bar) or make form.
func (idx *Index) Lookup(name string) (*Info, bool) {
	if idx == nil {
		return nil, false
	}
	info, ok := idx.entries[buildroot.KeyToKconfig(name)]
	return info, ok
}

// RawName returns the rawname Buildroot uses for name, or name itself.
func (idx *Index) RawName(name string) string {
	if info, ok := idx.Lookup(name); ok && info.RawName != "" {
		return info.RawName
	}
	return name
}

// IsVirtual reports whether Buildroot flags name as a virtual package.
func (idx *Index) IsVirtual(name string) bool {
	info, ok := idx.Lookup(name)
	return ok && info.IsVirtual
}

// Dependencies returns the recursive build dependencies of name.
func (idx *Index) Dependencies(name string) []string {
	if info, ok := idx.Lookup(name); ok {
		return info.Dependencies
	}
	return nil
}

// Len returns the number of indexed packages.
func (idx *Index) Len() int {
	if idx == nil {
		return 0
	}
	return len(idx.entries)
}

// Names returns the make form of every indexed package, sorted.
func (idx *Index) Names() []string {
	names := make([]string, 0, idx.Len())
	if idx != nil {
		for n := range idx.entries {
			names = append(names, n)
		}
	}
	sort.Strings(names)
	return names
}
