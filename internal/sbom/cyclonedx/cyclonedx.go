// Package cyclonedx exports a Vigiles manifest as a CycloneDX 1.4 BOM.
package cyclonedx

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	cdx "github.com/CycloneDX/cyclonedx-go"
	"github.com/TimesysGit/vigiles-buildroot/internal/config"
	"github.com/TimesysGit/vigiles-buildroot/internal/config/version"
	"github.com/TimesysGit/vigiles-buildroot/internal/manifest"
	"github.com/TimesysGit/vigiles-buildroot/internal/pkginfo"
	"github.com/TimesysGit/vigiles-buildroot/internal/utils/slice"
	"github.com/google/uuid"
	"github.com/package-url/packageurl-go"
)

// Document constants.
const (
	Author                = "vigiles-buildroot"
	RootVersion           = "1"
	NameSuffix            = "cyclonedx"
	AdditionalDescription = "Additional package"
)

var hashAlgorithms = map[string]cdx.HashAlgorithm{
	"MD5":    cdx.HashAlgoMD5,
	"SHA1":   cdx.HashAlgoSHA1,
	"SHA256": cdx.HashAlgoSHA256,
	"SHA384": cdx.HashAlgoSHA384,
	"SHA512": cdx.HashAlgoSHA512,
}

// Exporter converts manifests to BOMs. The zero value is ready to use.
type Exporter struct {
	// NewRef returns a fresh bom-ref; upper-case UUIDs by default.
	NewRef func() string
	// Now returns the creation time; time.Now by default.
	Now func() time.Time

	refs map[string]string
}

func (e *Exporter) newRef() string {
	if e.NewRef != nil {
		return e.NewRef()
	}
	return strings.ToUpper(uuid.New().String())
}

func (e *Exporter) ref(name string) string {
	if r, ok := e.refs[name]; ok {
		return r
	}
	return e.newRef()
}

// Convert builds the BOM of m. Excluded packages must already have been
// removed from m.
func (e *Exporter) Convert(m *manifest.Manifest) *cdx.BOM {
	now := time.Now
	if e.Now != nil {
		now = e.Now
	}

	names := m.Packages.Names()
	e.refs = make(map[string]string, len(names))
	for _, key := range names {
		e.refs[m.Packages[key].Name] = e.newRef()
	}

	bom := cdx.NewBOM()
	bom.SerialNumber = "urn:uuid:" + uuid.New().String()
	bom.Metadata = &cdx.Metadata{
		Timestamp: now().UTC().Format(time.RFC3339),
		Component: &cdx.Component{
			BOMRef:   e.newRef(),
			Type:     cdx.ComponentTypeApplication,
			Name:     m.ManifestName + "-" + NameSuffix,
			Version:  RootVersion,
			Supplier: &cdx.OrganizationalEntity{Name: config.DefaultSupplier},
		},
		Tools: &cdx.ToolsChoice{
			Tools: &[]cdx.Tool{{
				Vendor:  version.Vendor,
				Name:    version.Toolname,
				Version: version.Version,
			}},
		},
		Authors: &[]cdx.OrganizationalContact{{Name: Author}},
	}

	components := make([]cdx.Component, 0, len(names))
	var deps []cdx.Dependency
	var vulns []cdx.Vulnerability
	for _, key := range names {
		p := m.Packages[key]
		c := e.component(p)
		components = append(components, c)
		if d := e.dependency(c.BOMRef, p); d != nil {
			deps = append(deps, *d)
		}
		vulns = append(vulns, e.vulnerabilities(c, p)...)
	}

	for _, name := range slice.SortedKeys(m.AdditionalPackages) {
		for _, ver := range m.AdditionalPackages[name] {
			c := e.component(&pkginfo.Package{
				Name:    name,
				Version: ver,
				License: m.AdditionalLicenses[name+ver],
			})
			c.Description = AdditionalDescription
			components = append(components, c)
		}
	}

	bom.Components = &components
	if len(deps) > 0 {
		bom.Dependencies = &deps
	}
	if len(vulns) > 0 {
		bom.Vulnerabilities = &vulns
	}
	return bom
}

func (e *Exporter) component(p *pkginfo.Package) cdx.Component {
	ver := p.CVEVersion
	if ver == "" {
		ver = p.Version
	}
	c := cdx.Component{
		BOMRef:   e.ref(p.Name),
		Type:     cdx.ComponentTypeLibrary,
		Name:     p.Name,
		Version:  ver,
		Supplier: &cdx.OrganizationalEntity{Name: supplierName(p.Supplier)},
		PackageURL: (&packageurl.PackageURL{
			Type:    packageurl.TypeGeneric,
			Name:    p.Name,
			Version: ver,
		}).String(),
	}
	if p.License != "" {
		c.Licenses = &cdx.Licenses{{License: &cdx.License{Name: p.License}}}
	}
	if p.CPEID != "" && !strings.EqualFold(p.CPEID, pkginfo.UnknownCPE) {
		c.CPE = p.CPEID
	}

	var hashes []cdx.Hash
	for _, cs := range p.Checksums {
		if algo, ok := hashAlgorithms[cs.Algorithm]; ok {
			hashes = append(hashes, cdx.Hash{Algorithm: algo, Value: cs.Value})
		}
	}
	if len(hashes) > 0 {
		c.Hashes = &hashes
	}

	if len(p.Patches) > 0 {
		patches := make([]cdx.Patch, 0, len(p.Patches))
		for _, patch := range p.Patches {
			cp := cdx.Patch{Type: cdx.PatchTypeBackport, Diff: &cdx.Diff{URL: patch}}
			var issues []cdx.Issue
			for _, cve := range slice.SortedKeys(p.PatchedCVEs) {
				if slice.Contains(p.PatchedCVEs[cve], patch) {
					issues = append(issues, cdx.Issue{Type: cdx.IssueTypeSecurity, ID: cve, Name: cve})
				}
			}
			if len(issues) > 0 {
				cp.Resolves = &issues
			}
			patches = append(patches, cp)
		}
		c.Pedigree = &cdx.Pedigree{Patches: &patches}
	}
	return c
}

// dependency returns the dependency entry of a package, skipping edges to
// packages that are not part of the BOM.
func (e *Exporter) dependency(ref string, p *pkginfo.Package) *cdx.Dependency {
	if p.Dependencies == nil {
		return nil
	}
	var on []string
	for _, dep := range append(append([]string(nil), p.Dependencies.Build...), p.Dependencies.Runtime...) {
		if r, ok := e.refs[dep]; ok && !slice.Contains(on, r) {
			on = append(on, r)
		}
	}
	if len(on) == 0 {
		return nil
	}
	return &cdx.Dependency{Ref: ref, Dependencies: &on}
}

func (e *Exporter) vulnerabilities(c cdx.Component, p *pkginfo.Package) []cdx.Vulnerability {
	var out []cdx.Vulnerability
	add := func(id string, state cdx.ImpactAnalysisState) {
		affects := cdx.Affects{Ref: c.BOMRef}
		if c.Version != "" {
			affects.Range = &[]cdx.AffectedVersions{{Version: c.Version}}
		}
		out = append(out, cdx.Vulnerability{
			BOMRef:   e.newRef(),
			ID:       id,
			Analysis: &cdx.VulnerabilityAnalysis{State: state},
			Affects:  &[]cdx.Affects{affects},
		})
	}
	for _, cve := range strings.Fields(p.IgnoreCVEs) {
		add(cve, cdx.IASNotAffected)
	}
	for _, cve := range slice.SortedKeys(p.PatchedCVEs) {
		add(cve, cdx.IASResolvedWithPedigree)
	}
	return out
}

func supplierName(s string) string {
	s = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "Organization:"))
	if s == "" {
		return config.DefaultSupplier
	}
	return s
}

// Encode renders bom as pretty-printed CycloneDX 1.4 JSON.
func Encode(bom *cdx.BOM) ([]byte, error) {
	var buf bytes.Buffer
	enc := cdx.NewBOMEncoder(&buf, cdx.BOMFileFormatJSON).SetPretty(true)
	if err := enc.EncodeVersion(bom, cdx.SpecVersion1_4); err != nil {
		return nil, fmt.Errorf("failed to encode CycloneDX BOM: %w", err)
	}
	return buf.Bytes(), nil
}
