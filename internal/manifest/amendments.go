package manifest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/TimesysGit/vigiles-buildroot/internal/config"
	"github.com/TimesysGit/vigiles-buildroot/internal/pkginfo"
	"github.com/TimesysGit/vigiles-buildroot/internal/utils/logger"
	"github.com/TimesysGit/vigiles-buildroot/internal/utils/security"
	"github.com/TimesysGit/vigiles-buildroot/internal/utils/slice"
	"go.uber.org/zap"
)

// Amendments are the user-curated changes to the package set.
type Amendments struct {
	// AdditionalPackages maps a package name to its sorted versions.
	AdditionalPackages map[string][]string
	// AdditionalLicenses maps name+version to a license.
	AdditionalLicenses map[string]string
	// Exclude lists package names to drop.
	Exclude []string
	// Whitelist lists CVE ids to ignore.
	Whitelist []string
}

// LoadAmendments reads the amendment CSV files. Missing or unreadable
// files are skipped with a warning.
func LoadAmendments(files config.AmendmentFiles, log *zap.SugaredLogger) Amendments {
	log = logger.OrNop(log)
	var a Amendments

	if rows := readCSV(files.AdditionalPackages, "additional-package", log); rows != nil {
		a.AdditionalPackages, a.AdditionalLicenses = ParseAdditionalPackages(rows)
		log.Infof("Adding Packages: %v", slice.SortedKeys(a.AdditionalLicenses))
	}
	if rows := readCSV(files.ExcludePackages, "exclude-package", log); rows != nil {
		a.Exclude = ParseExcludedPackages(rows)
		log.Debugf("Requested packages to exclude: %v", a.Exclude)
	}
	if rows := readCSV(files.WhitelistCVEs, "CVE whitelist", log); rows != nil {
		a.Whitelist = ParseWhitelist(rows)
		log.Debugf("Requested CVEs to ignore: %v", a.Whitelist)
	}
	return a
}

func readCSV(path, kind string, log *zap.SugaredLogger) [][]string {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		log.Warnf("Skipping non-existent %s file: %s", kind, path)
		return nil
	}
	data, err := security.SafeReadFile(path, security.ResolveSymlinks)
	if err != nil {
		log.Warnf("Could not read %s file %s: %v", kind, path, err)
		return nil
	}
	rows, err := ParseCSV(strings.NewReader(string(data)))
	if err != nil {
		log.Warnf("%s: %v", kind, err)
		return nil
	}
	return rows
}

// ParseCSV returns the rows of r that are neither empty nor comments.
func ParseCSV(r io.Reader) ([][]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	rows := [][]string{}
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parsing CSV: %w", err)
		}
		if blankRow(row) || strings.HasPrefix(row[0], "#") {
			continue
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func blankRow(row []string) bool {
	for _, f := range row {
		if f != "" {
			return false
		}
	}
	return true
}

// ParseAdditionalPackages reads product,version,license rows. A leading
// "product" header row is skipped.
func ParseAdditionalPackages(rows [][]string) (map[string][]string, map[string]string) {
	type entry struct{ pkg, ver, license string }
	var entries []entry
	for _, row := range rows {
		pkg := strings.TrimSpace(row[0])
		if pkg == "" {
			continue
		}
		e := entry{pkg: pkg, license: pkginfo.UnknownLicense}
		if len(row) > 1 {
			e.ver = strings.TrimSpace(row[1])
		}
		if len(row) > 2 {
			e.license = strings.TrimSpace(row[2])
		}
		entries = append(entries, e)
	}
	if len(entries) > 0 && strings.EqualFold(entries[0].pkg, "product") {
		entries = entries[1:]
	}

	packages := map[string][]string{}
	licenses := map[string]string{}
	for _, e := range entries {
		pkg := strings.ReplaceAll(e.pkg, " ", "-")
		ver := strings.ReplaceAll(e.ver, " ", ".")
		packages[pkg] = slice.SortedUnique(append(packages[pkg], ver))
		licenses[pkg+ver] = e.license
	}
	return packages, licenses
}

// ParseExcludedPackages returns the lower-cased package names of rows.
func ParseExcludedPackages(rows [][]string) []string {
	var names []string
	for _, row := range rows {
		names = append(names, strings.ReplaceAll(strings.ToLower(strings.TrimSpace(row[0])), " ", "-"))
	}
	return slice.SortedUnique(names)
}

// ParseWhitelist returns the upper-cased CVE ids of rows.
func ParseWhitelist(rows [][]string) []string {
	var cves []string
	for _, row := range rows {
		cves = append(cves, strings.ReplaceAll(strings.ToUpper(strings.TrimSpace(row[0])), " ", "-"))
	}
	return slice.SortedUnique(cves)
}
