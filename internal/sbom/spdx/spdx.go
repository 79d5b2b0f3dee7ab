// Package spdx exports a Vigiles manifest as an SPDX 2.3 JSON document.
package spdx

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/TimesysGit/vigiles-buildroot/internal/config/version"
	"github.com/TimesysGit/vigiles-buildroot/internal/manifest"
	"github.com/TimesysGit/vigiles-buildroot/internal/pkginfo"
	"github.com/TimesysGit/vigiles-buildroot/internal/utils/logger"
	"github.com/TimesysGit/vigiles-buildroot/internal/utils/slice"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Constants used for SPDX metadata generation
const (
	SPDXVersion       = "SPDX-2.3"
	SPDXDataLicense   = "CC0-1.0"
	SPDXDocumentID    = "SPDXRef-DOCUMENT"
	SPDXNamespaceBase = "https://spdx.org/spdxdocs"
	NoAssertion       = "NOASSERTION"
)

// Holds the SPDX Document header information
type Document struct {
	SPDXVersion       string         `json:"spdxVersion"`
	DataLicense       string         `json:"dataLicense"`
	SPDXID            string         `json:"SPDXID"`
	DocumentName      string         `json:"name"`
	DocumentNamespace string         `json:"documentNamespace"`
	CreationInfo      CreationInfo   `json:"creationInfo"`
	Packages          []Package      `json:"packages"`
	Relationships     []Relationship `json:"relationships,omitempty"`
}

// Time stamp and creation information
type CreationInfo struct {
	Created  string   `json:"created"`
	Creators []string `json:"creators"`
}

// Holds one package of the SPDX document
type Package struct {
	SPDXID           string        `json:"SPDXID"`
	Name             string        `json:"name"`
	VersionInfo      string        `json:"versionInfo,omitempty"`
	DownloadLocation string        `json:"downloadLocation"`
	FilesAnalyzed    bool          `json:"filesAnalyzed"`
	LicenseDeclared  string        `json:"licenseDeclared"`
	LicenseConcluded string        `json:"licenseConcluded"`
	Supplier         string        `json:"supplier,omitempty"`
	Checksums        []Checksum    `json:"checksums,omitempty"`
	Comment          string        `json:"comment,omitempty"`
	Description      string        `json:"description,omitempty"`
	ExternalRefs     []ExternalRef `json:"externalRefs,omitempty"`
}

// Holds the checksum value for a package
type Checksum struct {
	Algorithm     string `json:"algorithm"`
	ChecksumValue string `json:"checksumValue"`
}

// ExternalRef points a package at its CPE identifier.
type ExternalRef struct {
	ReferenceCategory string `json:"referenceCategory"`
	ReferenceType     string `json:"referenceType"`
	ReferenceLocator  string `json:"referenceLocator"`
}

// Relationship links two SPDX elements.
type Relationship struct {
	SPDXElementID      string `json:"spdxElementId"`
	RelationshipType   string `json:"relationshipType"`
	RelatedSPDXElement string `json:"relatedSpdxElement"`
}

// SPDX allows only specific checksum algorithms here
var validAlgos = map[string]bool{
	"SHA1":   true,
	"SHA256": true,
	"MD5":    true,
}

var idUnsafe = regexp.MustCompile(`[^A-Za-z0-9.\-]`)

// Options configures Convert.
type Options struct {
	Logger *zap.SugaredLogger
	// Now returns the creation time; time.Now by default.
	Now func() time.Time
}

// Convert builds the SPDX document of m.
func Convert(m *manifest.Manifest, opts Options) *Document {
	log := logger.OrNop(opts.Logger)
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}

	doc := &Document{
		SPDXVersion:       SPDXVersion,
		DataLicense:       SPDXDataLicense,
		SPDXID:            SPDXDocumentID,
		DocumentName:      m.ManifestName,
		DocumentNamespace: generateDocumentNamespace(m.ManifestName),
		CreationInfo: CreationInfo{
			Created: now().UTC().Format("2006-01-02T15:04:05Z"),
			Creators: []string{
				fmt.Sprintf("Tool: %s-%s", version.Toolname, version.Version),
				fmt.Sprintf("Organization: %s", version.Vendor),
			},
		},
	}

	names := m.Packages.Names()
	ids := make(map[string]string, len(names))
	for _, key := range names {
		ids[m.Packages[key].Name] = packageID(m.Packages[key].Name)
	}

	for _, key := range names {
		p := m.Packages[key]
		doc.Packages = append(doc.Packages, convertPackage(p))
		doc.Relationships = append(doc.Relationships, Relationship{
			SPDXElementID:      SPDXDocumentID,
			RelationshipType:   "DESCRIBES",
			RelatedSPDXElement: ids[p.Name],
		})
		if p.Dependencies == nil {
			continue
		}
		for _, dep := range slice.SortedUnique(append(append([]string(nil), p.Dependencies.Build...), p.Dependencies.Runtime...)) {
			if depID, ok := ids[dep]; ok {
				doc.Relationships = append(doc.Relationships, Relationship{
					SPDXElementID:      ids[p.Name],
					RelationshipType:   "DEPENDS_ON",
					RelatedSPDXElement: depID,
				})
			}
		}
	}

	for _, name := range slice.SortedKeys(m.AdditionalPackages) {
		for _, ver := range m.AdditionalPackages[name] {
			sp := convertPackage(&pkginfo.Package{Name: name, Version: ver, License: m.AdditionalLicenses[name+ver]})
			sp.SPDXID = packageID(name + "-" + ver)
			sp.Description = "Additional package"
			doc.Packages = append(doc.Packages, sp)
		}
	}

	log.Infof("Generated SPDX document for %d packages", len(doc.Packages))
	return doc
}

func convertPackage(p *pkginfo.Package) Package {
	ver := p.CVEVersion
	if ver == "" {
		ver = p.Version
	}
	sp := Package{
		SPDXID:           packageID(p.Name),
		Name:             p.Name,
		VersionInfo:      ver,
		DownloadLocation: fallbackToDefault(p.DownloadLocation, NoAssertion),
		FilesAnalyzed:    false,
		LicenseDeclared:  spdxLicense(p.License),
		LicenseConcluded: NoAssertion,
		Supplier:         spdxSupplier(p.Supplier),
		Comment:          p.Comment,
	}

	// If the checksum is not specified or missing, leave field out
	for _, c := range p.Checksums {
		algo := strings.ToUpper(c.Algorithm)
		if validAlgos[algo] {
			sp.Checksums = append(sp.Checksums, Checksum{Algorithm: algo, ChecksumValue: c.Value})
		}
	}

	if p.CPEID != "" && p.CPEID != pkginfo.UnknownCPE {
		sp.ExternalRefs = []ExternalRef{{
			ReferenceCategory: "SECURITY",
			ReferenceType:     "cpe23Type",
			ReferenceLocator:  p.CPEID,
		}}
	}
	return sp
}

func packageID(name string) string {
	return "SPDXRef-Package-" + idUnsafe.ReplaceAllString(name, "-")
}

func fallbackToDefault(val, fallback string) string {
	if val == "" {
		return fallback
	}
	return val
}

func spdxLicense(license string) string {
	if license == "" || license == pkginfo.UnknownLicense {
		return NoAssertion
	}
	return license
}

func generateDocumentNamespace(name string) string {
	return fmt.Sprintf("%s/%s-%s", SPDXNamespaceBase, name, uuid.New().String())
}

// spdxSupplier keeps an existing "Organization:" or "Person:" form. For
// anything that appears as "Name <email>" it uses the Person form,
// otherwise the Organization form.
func spdxSupplier(supplier string) string {
	s := strings.TrimSpace(supplier)
	if s == "" {
		return NoAssertion
	}
	if strings.HasPrefix(s, "Organization:") || strings.HasPrefix(s, "Person:") {
		return s
	}
	if name, rest, ok := strings.Cut(s, "<"); ok {
		email, _, _ := strings.Cut(rest, ">")
		name, email = strings.TrimSpace(name), strings.TrimSpace(email)
		if name != "" && email != "" {
			return fmt.Sprintf("Person: %s (%s)", name, email)
		}
	}
	return "Organization: " + s
}
