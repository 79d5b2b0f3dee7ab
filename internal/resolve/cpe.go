package resolve

import (
	"regexp"
	"strings"

	"github.com/TimesysGit/vigiles-buildroot/internal/ingest"
	"github.com/TimesysGit/vigiles-buildroot/internal/pkginfo"
)

// CPE 2.3 formatted string and CPE 2.2 URI grammars.
const (
	cpeSpecial  = `\\[\\*?!"#$%&'()+,/:;<=>@\[\]^` + "`" + `{|}~]`
	cpeAVString = `(((\?*|\*?)([[:alnum:]\-._]|` + cpeSpecial + `)+(\?*|\*?))|[*\-])`
	cpeLang     = `(([[:alpha:]]{2,3}(-([[:alpha:]]{2}|[[:digit:]]{3}))?)|[*\-])`
)

var (
	cpe23Pattern = regexp.MustCompile(`^cpe:2\.3:[aho*\-](:` + cpeAVString + `){5}(:` + cpeLang + `)(:` + cpeAVString + `){4}$`)
	cpe22Pattern = regexp.MustCompile(`^[cC][pP][eE]:/[AHOaho]?(:[[:alnum:]._\-~%]*){0,6}$`)
)

// ValidCPE reports whether id matches the CPE 2.3 or CPE 2.2 grammar.
func ValidCPE(id string) bool {
	return cpe23Pattern.MatchString(id) || cpe22Pattern.MatchString(id)
}

// BuildCPE joins the CPE components in field order, using "*" for the
// missing ones. The result is UNKNOWN when it is not a valid CPE.
func BuildCPE(parts ingest.CPEParts) string {
	fields := make([]string, len(parts))
	for i, p := range parts {
		if p == "" {
			p = "*"
		}
		fields[i] = p
	}
	id := strings.Join(fields, ":")
	if !ValidCPE(id) {
		return pkginfo.UnknownCPE
	}
	return id
}
