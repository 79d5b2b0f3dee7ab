// Package manifest assembles the Vigiles manifest: the package map, the
// build metadata and the user amendments, written as one JSON document.
package manifest

import (
	"strings"

	"github.com/TimesysGit/vigiles-buildroot/internal/pkginfo"
	"github.com/TimesysGit/vigiles-buildroot/internal/utils/logger"
	"github.com/TimesysGit/vigiles-buildroot/internal/utils/slice"
	"go.uber.org/zap"
)

// Manifest is the Vigiles manifest document. Fields are kept in key order.
type Manifest struct {
	AdditionalLicenses map[string]string   `json:"additional_licenses,omitempty"`
	AdditionalPackages map[string][]string `json:"additional_packages,omitempty"`
	Arch               string              `json:"arch"`
	Commit             string              `json:"commit"`
	CPU                string              `json:"cpu"`
	Date               string              `json:"date"`
	Distro             string              `json:"distro"`
	DistroVersion      string              `json:"distro_version"`
	Hostname           string              `json:"hostname"`
	Image              string              `json:"image"`
	Machine            string              `json:"machine"`
	ManifestName       string              `json:"manifest_name"`
	ManifestVersion    string              `json:"manifest_version"`
	Packages           pkginfo.Map         `json:"packages"`
	Whitelist          []string            `json:"whitelist,omitempty"`
}

// ManifestName returns name, or hostname-machine when name is empty,
// truncated to MaxNameLength.
func ManifestName(name string, ctx BuildContext, log *zap.SugaredLogger) string {
	if name == "" {
		name = ctx.Hostname + "-" + ctx.Machine
	}
	if len(name) > MaxNameLength {
		logger.OrNop(log).Warnf("Manifest name is longer than %d characters, truncating it", MaxNameLength)
		name = name[:MaxNameLength]
	}
	return name
}

// Assemble builds the manifest from pkgs. pkgs is modified in place: the
// excluded packages are removed, references to them are dropped and every
// remaining record gets its final defaults.
func Assemble(name string, ctx BuildContext, pkgs pkginfo.Map, am Amendments, log *zap.SugaredLogger) *Manifest {
	log = logger.OrNop(log)

	for key, p := range pkgs {
		finalDefaults(key, p)
	}

	m := &Manifest{
		Arch:            ctx.Arch,
		CPU:             ctx.CPU,
		Commit:          ctx.Commit,
		Date:            ctx.Date,
		Distro:          Distro,
		DistroVersion:   ctx.DistroVersion,
		Hostname:        ctx.Hostname,
		Image:           Image,
		Machine:         ctx.Machine,
		ManifestVersion: ManifestVersion,
		ManifestName:    ManifestName(name, ctx, log),
		Packages:        pkgs,
	}

	if len(am.AdditionalPackages) > 0 {
		m.AdditionalPackages = am.AdditionalPackages
		m.AdditionalLicenses = am.AdditionalLicenses
	}

	if removed := Exclude(pkgs, am.Exclude); len(removed) > 0 {
		log.Infof("Excluding packages: %v", removed)
	}

	if wl := Whitelist(pkgs, am.Whitelist); len(wl) > 0 {
		m.Whitelist = wl
	}
	return m
}

// Exclude removes every package whose name is in names, and drops the
// removed names from the dependencies of the others. It returns the
// removed keys.
func Exclude(pkgs pkginfo.Map, names []string) []string {
	if len(names) == 0 {
		return nil
	}
	drop := make(map[string]bool, len(names))
	for _, n := range names {
		drop[n] = true
	}

	var removed []string
	for _, key := range pkgs.Names() {
		name := pkgs[key].Name
		if name == "" {
			name = key
		}
		if drop[name] {
			delete(pkgs, key)
			removed = append(removed, key)
		}
	}
	for _, p := range pkgs {
		if p.Dependencies != nil {
			p.Dependencies.Build = slice.RemoveAll(p.Dependencies.Build, drop)
			p.Dependencies.Runtime = slice.RemoveAll(p.Dependencies.Runtime, drop)
		}
	}
	return removed
}

// Whitelist returns the sorted union of cves and the ignore-cves of every
// package.
func Whitelist(pkgs pkginfo.Map, cves []string) []string {
	all := append([]string(nil), cves...)
	for _, p := range pkgs {
		all = append(all, strings.Fields(p.IgnoreCVEs)...)
	}
	if len(all) == 0 {
		return nil
	}
	return slice.SortedUnique(all)
}

func finalDefaults(key string, p *pkginfo.Package) {
	if p.Version == "" {
		p.Version = pkginfo.Unset
	}
	if p.CVEVersion == "" {
		p.CVEVersion = p.Version
	}
	if p.Name == "" {
		p.Name = key
	}
	if p.CVEProduct == "" {
		p.CVEProduct = key
	}
	if p.License == "" {
		p.License = pkginfo.UnknownLicense
	}
	if p.Checksums == nil {
		p.Checksums = []pkginfo.Checksum{}
	}
	if d := p.Dependencies; d != nil {
		if d.Build == nil {
			d.Build = []string{}
		}
		if d.Runtime == nil {
			d.Runtime = []string{}
		}
	}
}
