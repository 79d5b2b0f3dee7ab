// Package ingest turns the flat KEY=VALUE output of Buildroot's printvars
// into per-package attribute records and global build metadata.
//
// Package variables are matched against two suffix tables. Every line is
// first checked against the internal table (variables Buildroot sets for
// each package it knows), which establishes the set of known packages.
// Only then is every line checked against the user table (variables a
// package makefile may override), and a match is accepted only when the
// remaining prefix names a known package. Within a table the longest
// suffix is tried first, so foo-cve-version can never produce a foo-cve
// package regardless of input order.
package ingest

import (
	"errors"
	"sort"
	"strings"

	"github.com/TimesysGit/vigiles-buildroot/internal/buildroot"
	"github.com/TimesysGit/vigiles-buildroot/internal/utils/logger"
	"go.uber.org/zap"
)

// ErrNoVariables is returned when the variable dump holds no KEY=VALUE lines.
var ErrNoVariables = errors.New("no Buildroot make variables to ingest")

// Field order of a synthesized CPE 2.3 identifier.
const (
	CPEPrefix = iota
	CPEVendor
	CPEProduct
	CPEVersion
	CPEUpdate
	CPEEdition
	CPELanguage
	CPESWEdition
	CPETargetSW
	CPETargetHW
	CPEOther
	NumCPEFields
)

// CPEParts holds the cpe-id-* component overrides of a package, indexed by
// the CPE field constants. Empty means unset.
type CPEParts [NumCPEFields]string

// Empty reports whether no component is set.
func (c CPEParts) Empty() bool {
	return c == CPEParts{}
}

// RawPackage is the attribute record of one package as read from make.
type RawPackage struct {
	Name string

	BuildDir       string
	SrcDir         string
	OverrideSrcDir string
	RawName        string
	IsVirtual      bool

	Version          string
	CVEVersion       string
	CVEProduct       string
	License          string
	IgnoreCVEs       string
	CPEID            string
	CPE              CPEParts
	Site             string
	Source           string
	SiteMethod       string
	DownloadLocation string
	LevelOfSupport   string
	EndOfLife        string
	Supplier         string
}

// Globals are the BR2_ variables, grouped by subsystem with the subsystem
// prefix removed.
type Globals struct {
	Providers  map[string]string `json:"providers"`
	Toolchain  map[string]string `json:"toolchain"`
	Kernel     map[string]string `json:"kernel"`
	Bootloader map[string]string `json:"bootloader"`
	Packaging  map[string]string `json:"packaging"`
	Meta       map[string]string `json:"meta"`
}

// Result is the output of Ingest.
type Result struct {
	Packages map[string]*RawPackage
	Globals  Globals
}

// Options configures Ingest.
type Options struct {
	Logger *zap.SugaredLogger
}

type suffixRule struct {
	suffix    string
	fullValue bool
	set       func(p *RawPackage, value string)
}

func cpePart(i int) func(*RawPackage, string) {
	return func(p *RawPackage, v string) { p.CPE[i] = v }
}

var internalRules = longestFirst([]suffixRule{
	{suffix: "builddir", set: func(p *RawPackage, v string) { p.BuildDir = v }},
	{suffix: "srcdir", set: func(p *RawPackage, v string) { p.SrcDir = v }},
	{suffix: "override-srcdir", set: func(p *RawPackage, v string) { p.OverrideSrcDir = v }},
	{suffix: "is-virtual", set: func(p *RawPackage, v string) { p.IsVirtual = true }},
	{suffix: "rawname", set: func(p *RawPackage, v string) { p.RawName = v }},
})

var userRules = longestFirst([]suffixRule{
	{suffix: "version", set: func(p *RawPackage, v string) { p.Version = v }},
	{suffix: "cve-version", set: func(p *RawPackage, v string) { p.CVEVersion = v }},
	{suffix: "cve-product", set: func(p *RawPackage, v string) { p.CVEProduct = v }},
	{suffix: "license", fullValue: true, set: func(p *RawPackage, v string) { p.License = v }},
	{suffix: "ignore-cves", fullValue: true, set: func(p *RawPackage, v string) { p.IgnoreCVEs = v }},
	{suffix: "cpe-id", set: func(p *RawPackage, v string) { p.CPEID = v }},
	{suffix: "cpe-id-prefix", set: cpePart(CPEPrefix)},
	{suffix: "cpe-id-vendor", set: cpePart(CPEVendor)},
	{suffix: "cpe-id-product", set: cpePart(CPEProduct)},
	{suffix: "cpe-id-version", set: cpePart(CPEVersion)},
	{suffix: "cpe-id-update", set: cpePart(CPEUpdate)},
	{suffix: "cpe-id-edition", set: cpePart(CPEEdition)},
	{suffix: "cpe-id-language", set: cpePart(CPELanguage)},
	{suffix: "cpe-id-sw-edition", set: cpePart(CPESWEdition)},
	{suffix: "cpe-id-target-sw", set: cpePart(CPETargetSW)},
	{suffix: "cpe-id-target-hw", set: cpePart(CPETargetHW)},
	{suffix: "cpe-id-other", set: cpePart(CPEOther)},
	{suffix: "site", set: func(p *RawPackage, v string) { p.Site = v }},
	{suffix: "source", set: func(p *RawPackage, v string) { p.Source = v }},
	{suffix: "site-method", set: func(p *RawPackage, v string) { p.SiteMethod = v }},
	{suffix: "level-of-support", fullValue: true, set: func(p *RawPackage, v string) { p.LevelOfSupport = v }},
	{suffix: "end-of-life", set: func(p *RawPackage, v string) { p.EndOfLife = v }},
	{suffix: "package-supplier", fullValue: true, set: func(p *RawPackage, v string) { p.Supplier = v }},
})

func longestFirst(rules []suffixRule) []suffixRule {
	sort.SliceStable(rules, func(i, j int) bool {
		return len(rules[i].suffix) > len(rules[j].suffix)
	})
	return rules
}

// Suffixes returns every package attribute suffix, internal ones first.
func Suffixes() []string {
	out := make([]string, 0, len(internalRules)+len(userRules))
	for _, r := range internalRules {
		out = append(out, r.suffix)
	}
	for _, r := range userRules {
		out = append(out, r.suffix)
	}
	return out
}

type variable struct {
	key   string
	value string
}

// Ingest parses lines into package records. Names in universe are known
// packages even when no internal variable mentions them.
func Ingest(universe []string, lines []string, opts Options) (*Result, error) {
	log := logger.OrNop(opts.Logger)

	res := &Result{
		Packages: make(map[string]*RawPackage, len(universe)),
		Globals: Globals{
			Providers:  map[string]string{},
			Toolchain:  map[string]string{},
			Kernel:     map[string]string{},
			Bootloader: map[string]string{},
			Packaging:  map[string]string{},
			Meta:       map[string]string{},
		},
	}
	for _, name := range universe {
		res.pkg(name)
	}

	var vars []variable
	parsed := 0
	for _, line := range lines {
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		parsed++
		key := buildroot.KconfigToKey(strings.TrimSpace(k))
		value := strings.TrimSpace(buildroot.Unquote(v))
		if value == "" {
			continue
		}
		if b, isBool := buildroot.ParseBool(value); isBool && !b {
			continue
		}
		if strings.HasPrefix(key, "br2-") {
			res.Globals.route(strings.TrimPrefix(key, "br2-"), value)
			continue
		}
		vars = append(vars, variable{key: key, value: value})
	}
	if parsed == 0 {
		return res, ErrNoVariables
	}

	consumed := make([]bool, len(vars))
	for i, v := range vars {
		for _, r := range internalRules {
			name, ok := cutSuffix(v.key, r.suffix)
			if !ok {
				continue
			}
			r.set(res.pkg(name), firstToken(v.value))
			consumed[i] = true
			break
		}
	}

	for i, v := range vars {
		if consumed[i] {
			continue
		}
		for _, r := range userRules {
			name, ok := cutSuffix(v.key, r.suffix)
			if !ok {
				continue
			}
			p, known := res.Packages[name]
			if !known {
				continue
			}
			value := v.value
			if !r.fullValue {
				value = firstToken(value)
			}
			r.set(p, value)
			break
		}
	}

	for _, p := range res.Packages {
		p.DownloadLocation = downloadLocation(p)
		p.SiteMethod = ""
	}

	log.Debugf("Ingested %d variables into %d packages", parsed, len(res.Packages))
	return res, nil
}

func (r *Result) pkg(name string) *RawPackage {
	p, ok := r.Packages[name]
	if !ok {
		p = &RawPackage{Name: name}
		r.Packages[name] = p
	}
	return p
}

func (g *Globals) route(key, value string) {
	switch {
	case strings.HasPrefix(key, "package-provides-"):
		virt := strings.TrimPrefix(key, "package-provides-")
		if !strings.HasPrefix(virt, "host-") {
			g.Providers[virt] = value
		}
	case strings.HasPrefix(key, "package-"):
		name := strings.TrimPrefix(key, "package-")
		if !strings.HasPrefix(name, "host-") && !strings.HasSuffix(name, "-supports") {
			g.Packaging[name] = value
		}
	case strings.HasPrefix(key, "linux-kernel-"):
		g.Kernel[strings.TrimPrefix(key, "linux-kernel-")] = value
	case strings.HasPrefix(key, "target-uboot-"):
		g.Bootloader[strings.TrimPrefix(key, "target-uboot-")] = value
	case strings.HasPrefix(key, "gcc-target-"):
		g.Toolchain[strings.TrimPrefix(key, "gcc-target-")] = value
	default:
		g.Meta[key] = value
	}
}

func cutSuffix(key, suffix string) (string, bool) {
	name, ok := strings.CutSuffix(key, "-"+suffix)
	if !ok || name == "" {
		return "", false
	}
	return name, true
}

func firstToken(value string) string {
	if f := strings.Fields(value); len(f) > 0 {
		return f[0]
	}
	return ""
}

func downloadLocation(p *RawPackage) string {
	loc := p.Site
	if p.Source != "" && p.SiteMethod != "git" {
		if loc == "" {
			return p.Source
		}
		loc = strings.TrimSuffix(loc, "/") + "/" + p.Source
	}
	return loc
}
