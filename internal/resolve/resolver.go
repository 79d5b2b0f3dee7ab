// Package resolve turns the raw attribute records read from make into the
// canonical package map: names are fixed up, defaults filled in, CPE ids
// built and checked, versions cleaned and virtual packages settled.
package resolve

import (
	"path/filepath"
	"sort"
	"strings"

	"github.com/TimesysGit/vigiles-buildroot/internal/config"
	"github.com/TimesysGit/vigiles-buildroot/internal/ingest"
	"github.com/TimesysGit/vigiles-buildroot/internal/pkginfo"
	"github.com/TimesysGit/vigiles-buildroot/internal/utils/logger"
	"github.com/TimesysGit/vigiles-buildroot/internal/utils/slice"
	"go.uber.org/zap"
)

// Package names that get their version from their own Makefile.
const (
	KernelPackage     = "linux"
	BootloaderPackage = "uboot"
)

var defaultCVEProducts = map[string]string{
	KernelPackage:     "linux_kernel",
	BootloaderPackage: "u-boot",
}

// VirtualLookup reports whether Buildroot considers a package virtual.
type VirtualLookup interface {
	IsVirtual(name string) bool
}

// Resolver holds what is needed to canonicalize one package set.
type Resolver struct {
	Logger *zap.SugaredLogger
	// IncludeVirtual keeps virtual packages, annotated with their provider.
	IncludeVirtual bool
	// Virtual is the authoritative virtual package lookup; may be nil.
	Virtual VirtualLookup
	// BuildDir is the Buildroot output directory that relative package
	// directories are resolved against.
	BuildDir string
	// Release replaces versions that are still unset.
	Release string
	// DefaultSupplier is used for packages without a package-supplier.
	DefaultSupplier string
}

// Catalog is the resolved package map plus the renames applied to it.
type Catalog struct {
	Packages pkginfo.Map
	// Renames maps a name from the variable dump to its rawname.
	Renames map[string]string
}

// Canonical returns the name name was renamed to, or name itself.
func (c *Catalog) Canonical(name string) string {
	if to, ok := c.Renames[name]; ok {
		return to
	}
	return name
}

// Package returns a copy of the resolved record of name.
func (c *Catalog) Package(name string) (*pkginfo.Package, bool) {
	p, ok := c.Packages[c.Canonical(name)]
	if !ok {
		return nil, false
	}
	return p.Clone(), true
}

// Resolve canonicalizes raw. providers maps virtual package names to the
// package providing them.
func (r *Resolver) Resolve(raw map[string]*ingest.RawPackage, providers map[string]string) *Catalog {
	log := logger.OrNop(r.Logger)

	fixed, renames, dropped := FixupRawNames(raw)
	for from, to := range renames {
		log.Debugf("Rawname fixup: %s -> %s", from, to)
	}
	for _, name := range dropped {
		log.Debugf("Rawname fixup: %s not moved, %s already present", name, raw[name].RawName)
	}

	cat := &Catalog{Packages: make(pkginfo.Map, len(fixed)), Renames: renames}
	for _, name := range slice.SortedKeys(fixed) {
		cat.Packages[name] = r.resolvePackage(name, fixed[name], log)
	}

	r.resolveVirtual(cat, providers, log)
	r.resolveFirmwareVersions(cat, log)

	for _, p := range cat.Packages {
		ApplyRelease(p, r.Release)
	}

	log.Debugf("Resolved %d packages", len(cat.Packages))
	return cat
}

// FixupRawNames re-keys every record whose rawname differs from its key.
// Moves are computed from a snapshot so no record is seen twice. A record
// already stored under its own rawname is never replaced, and host-*
// records yield to target records moving onto the same rawname. Records
// that lost such a collision are returned in dropped and left out.
func FixupRawNames(raw map[string]*ingest.RawPackage) (fixed map[string]*ingest.RawPackage, renames map[string]string, dropped []string) {
	renames = map[string]string{}
	fixed = make(map[string]*ingest.RawPackage, len(raw))

	var movers []string
	for _, name := range slice.SortedKeys(raw) {
		p := raw[name]
		if p.RawName == "" || p.RawName == name {
			fixed[name] = p
			continue
		}
		movers = append(movers, name)
	}
	sort.SliceStable(movers, func(i, j int) bool {
		return !isHost(movers[i]) && isHost(movers[j])
	})

	for _, name := range movers {
		p := raw[name]
		if _, taken := fixed[p.RawName]; taken {
			dropped = append(dropped, name)
			continue
		}
		moved := *p
		moved.Name = p.RawName
		fixed[p.RawName] = &moved
		renames[name] = p.RawName
	}
	sort.Strings(dropped)
	return fixed, renames, dropped
}

func isHost(name string) bool {
	return strings.HasPrefix(name, "host-")
}

// ApplyDefaults fills the fields that must never be empty. It is
// idempotent.
func ApplyDefaults(name string, p *pkginfo.Package) {
	if p.Name == "" {
		p.Name = name
	}
	if p.Version == "" {
		p.Version = pkginfo.Unset
	}
	if p.License == "" {
		p.License = pkginfo.UnknownLicense
	}
	if p.CVEProduct == "" {
		if def, ok := defaultCVEProducts[p.Name]; ok {
			p.CVEProduct = def
		} else {
			p.CVEProduct = p.Name
		}
	}
	if p.CVEVersion == "" {
		p.CVEVersion = p.Version
	}
}

// ApplyRelease gives p the release identifier when its version is still
// unset. An empty release leaves p alone.
func ApplyRelease(p *pkginfo.Package, release string) {
	if release == "" {
		return
	}
	if p.Version == pkginfo.Unset {
		p.Version = release
	}
	if p.CVEVersion == pkginfo.Unset || p.CVEVersion == "" {
		p.CVEVersion = p.Version
	}
}

func (r *Resolver) resolvePackage(name string, raw *ingest.RawPackage, log *zap.SugaredLogger) *pkginfo.Package {
	p := &pkginfo.Package{
		Name:             raw.Name,
		RawName:          raw.RawName,
		Version:          raw.Version,
		CVEVersion:       raw.CVEVersion,
		CVEProduct:       raw.CVEProduct,
		License:          raw.License,
		DownloadLocation: raw.DownloadLocation,
		IgnoreCVEs:       raw.IgnoreCVEs,
		IsVirtual:        raw.IsVirtual,
		BuildDir:         r.absolute(raw.BuildDir),
		SrcDir:           r.absolute(raw.SrcDir),
		OverrideSrcDir:   raw.OverrideSrcDir,
	}
	ApplyDefaults(name, p)

	parts := raw.CPE
	if parts[ingest.CPEVersion] == pkginfo.CustomVersion && raw.OverrideSrcDir != "" {
		v, err := ReadVersionFile(raw.OverrideSrcDir, true)
		if err != nil {
			log.Warnf("%s: could not determine custom version from %s: %v", name, raw.OverrideSrcDir, err)
		} else {
			log.Debugf("%s: custom version %s", name, v)
			p.Version, p.CVEVersion = v, v
			parts[ingest.CPEVersion] = v
		}
	}

	switch {
	case raw.CPEID != "":
		p.CPEID = raw.CPEID
		if !ValidCPE(p.CPEID) {
			log.Warnf("%s: invalid cpe-id %q", name, raw.CPEID)
			p.CPEID = pkginfo.UnknownCPE
		}
	default:
		p.CPEID = BuildCPE(parts)
	}

	if v, changed := SanitizeVersion(p.Version); changed {
		log.Debugf("%s: version %s -> %s", name, p.Version, v)
		p.Version = v
	}
	if v, changed := SanitizeVersion(p.CVEVersion); changed {
		log.Debugf("%s: cve_version %s -> %s", name, p.CVEVersion, v)
		p.CVEVersion = v
	}

	if raw.LevelOfSupport != "" {
		if level, ok := NormalizeSupportLevel(raw.LevelOfSupport); ok {
			p.LevelOfSupport = level
		} else {
			log.Warnf("%s: dropping invalid level-of-support %q", name, raw.LevelOfSupport)
		}
	}
	if raw.EndOfLife != "" {
		if ValidEndOfLife(raw.EndOfLife) {
			p.EndOfLife = raw.EndOfLife
		} else {
			log.Warnf("%s: dropping invalid end-of-life %q, expected YYYY-MM-DD", name, raw.EndOfLife)
		}
	}

	def := r.DefaultSupplier
	if def == "" {
		def = config.DefaultSupplier
	}
	p.Supplier = FormatSupplier(raw.Supplier, def)
	return p
}

func (r *Resolver) isVirtual(name string, p *pkginfo.Package, providers map[string]string) bool {
	if p.IsVirtual {
		return true
	}
	if _, ok := providers[name]; ok {
		return true
	}
	return r.Virtual != nil && r.Virtual.IsVirtual(name)
}

func (r *Resolver) resolveVirtual(cat *Catalog, providers map[string]string, log *zap.SugaredLogger) {
	for _, name := range cat.Packages.Names() {
		p := cat.Packages[name]
		if !r.isVirtual(name, p, providers) {
			continue
		}
		if !r.IncludeVirtual {
			log.Debugf("Removing virtual package %s", name)
			delete(cat.Packages, name)
			continue
		}

		provider := cat.Canonical(providers[name])
		impl, ok := cat.Packages[provider]
		if provider == "" || !ok || impl == p {
			log.Warnf("Virtual package %s has no resolvable provider; removing it", name)
			delete(cat.Packages, name)
			continue
		}
		p.IsVirtual = true
		p.Provider = provider
		p.Version = impl.Version
		p.CVEVersion = impl.CVEVersion
		p.License = impl.License
		log.Debugf("Virtual package %s provided by %s %s", name, provider, impl.Version)
	}
}

func (r *Resolver) resolveFirmwareVersions(cat *Catalog, log *zap.SugaredLogger) {
	for _, name := range []string{KernelPackage, BootloaderPackage} {
		p, ok := cat.Packages[name]
		if !ok || (p.CVEVersion != "" && p.CVEVersion != pkginfo.Unset) {
			continue
		}
		if p.BuildDir == "" {
			log.Warnf("%s: build directory not defined", name)
			continue
		}
		v, err := ReadVersionFile(p.BuildDir, name == KernelPackage)
		if err != nil {
			log.Warnf("%s: could not read version from %s: %v", name, p.BuildDir, err)
			continue
		}
		log.Debugf("%s: version %s from Makefile", name, v)
		p.CVEVersion = v
	}
}

func (r *Resolver) absolute(dir string) string {
	if dir == "" || filepath.IsAbs(dir) || r.BuildDir == "" {
		return dir
	}
	return filepath.Join(r.BuildDir, dir)
}
