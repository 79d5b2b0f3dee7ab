// Package pkginfo defines the canonical package record shared by every
// pipeline phase.
package pkginfo

import "sort"

// Roles a package can hold in the image.
const (
	RoleComponent = "component"
	RoleBuild     = "build"
	RoleRuntime   = "runtime"
)

// Sentinels used when a value cannot be determined.
const (
	Unset          = "unset"
	UnknownCPE     = "UNKNOWN"
	UnknownLicense = "unknown"
	CustomVersion  = "custom"
)

// Comments recorded on packages that are only present as dependencies.
const (
	CommentBuildDep        = "Dependency Only; This component was identified as a build dependency by Vigiles"
	CommentRuntimeDep      = "Dependency Only; This component was identified as a runtime dependency by Vigiles"
	CommentBuildRuntimeDep = "Dependency Only; This component was identified as a build and runtime dependency by Vigiles"
)

// Dependencies holds the sorted build and runtime dependency names.
type Dependencies struct {
	Build   []string `json:"build"`
	Runtime []string `json:"runtime"`
}

// Checksum is one entry from a package .hash file.
type Checksum struct {
	Algorithm string `json:"algorithm"`
	Value     string `json:"checksum_value"`
}

// Package is the canonical per-package record.
type Package struct {
	Name             string `json:"name"`
	RawName          string `json:"rawname,omitempty"`
	Version          string `json:"version"`
	CVEVersion       string `json:"cve_version"`
	CVEProduct       string `json:"cve_product"`
	License          string `json:"license"`
	CPEID            string `json:"cpe_id,omitempty"`
	DownloadLocation string `json:"download_location,omitempty"`
	Supplier         string `json:"package_supplier,omitempty"`
	LevelOfSupport   string `json:"level_of_support,omitempty"`
	EndOfLife        string `json:"end_of_life,omitempty"`
	IgnoreCVEs       string `json:"ignore_cves,omitempty"`
	Provider         string `json:"provider,omitempty"`

	Dependencies  *Dependencies `json:"dependencies,omitempty"`
	ComponentType []string      `json:"component_type,omitempty"`
	Comment       string        `json:"comment,omitempty"`

	Patches     []string            `json:"patches,omitempty"`
	PatchedCVEs map[string][]string `json:"patched_cves,omitempty"`
	Checksums   []Checksum          `json:"checksums"`

	// Build system details that never reach the manifest.
	IsVirtual      bool   `json:"-"`
	BuildDir       string `json:"-"`
	SrcDir         string `json:"-"`
	OverrideSrcDir string `json:"-"`
	Makefile       string `json:"-"`
}

// Map is a package set keyed by canonical name.
type Map map[string]*Package

// Names returns the keys of m in order.
func (m Map) Names() []string {
	names := make([]string, 0, len(m))
	for n := range m {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// HasRole reports whether p carries role.
func (p *Package) HasRole(role string) bool {
	for _, r := range p.ComponentType {
		if r == role {
			return true
		}
	}
	return false
}

// AddRole records role on p, keeping ComponentType sorted, and refreshes
// the dependency-only comment. It reports whether the role was new.
func (p *Package) AddRole(role string) bool {
	if role == "" || p.HasRole(role) {
		return false
	}
	p.ComponentType = append(p.ComponentType, role)
	sort.Strings(p.ComponentType)
	p.updateComment()
	return true
}

// DependencyOnly reports whether p is present only because another
// package depends on it.
func (p *Package) DependencyOnly() bool {
	return len(p.ComponentType) > 0 && !p.HasRole(RoleComponent)
}

func (p *Package) updateComment() {
	if !p.DependencyOnly() {
		return
	}
	build, runtime := p.HasRole(RoleBuild), p.HasRole(RoleRuntime)
	switch {
	case build && runtime:
		p.Comment = CommentBuildRuntimeDep
	case build:
		p.Comment = CommentBuildDep
	case runtime:
		p.Comment = CommentRuntimeDep
	}
}

// Clone returns a deep copy of p.
func (p *Package) Clone() *Package {
	c := *p
	if p.Dependencies != nil {
		d := Dependencies{
			Build:   append([]string(nil), p.Dependencies.Build...),
			Runtime: append([]string(nil), p.Dependencies.Runtime...),
		}
		c.Dependencies = &d
	}
	c.ComponentType = append([]string(nil), p.ComponentType...)
	c.Patches = append([]string(nil), p.Patches...)
	if p.PatchedCVEs != nil {
		c.PatchedCVEs = make(map[string][]string, len(p.PatchedCVEs))
		for k, v := range p.PatchedCVEs {
			c.PatchedCVEs[k] = append([]string(nil), v...)
		}
	}
	if p.Checksums != nil {
		c.Checksums = append([]Checksum{}, p.Checksums...)
	}
	return &c
}
