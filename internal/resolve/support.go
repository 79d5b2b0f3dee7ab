package resolve

import (
	"strings"
	"time"
)

var supportLevels = map[string]bool{
	"unspecified":            true,
	"supported":              true,
	"community-supported":    true,
	"commercially-supported": true,
	"unsupported":            true,
	"end-of-life":            true,
}

// NormalizeSupportLevel lower-cases v and joins words with dashes. ok is
// false when the result is not an accepted level of support.
func NormalizeSupportLevel(v string) (level string, ok bool) {
	level = strings.ToLower(strings.Join(strings.FieldsFunc(v, func(r rune) bool {
		return r == ' ' || r == '_' || r == '-' || r == '\t'
	}), "-"))
	return level, supportLevels[level]
}

// ValidEndOfLife reports whether v is a YYYY-MM-DD date.
func ValidEndOfLife(v string) bool {
	_, err := time.Parse(time.DateOnly, v)
	return err == nil
}

const organizationPrefix = "Organization:"

// FormatSupplier returns "Organization: <name>" for supplier, or for def
// when supplier is empty.
func FormatSupplier(supplier, def string) string {
	name := strings.TrimSpace(supplier)
	if name == "" {
		name = strings.TrimSpace(def)
	}
	name = strings.TrimSpace(strings.TrimPrefix(name, organizationPrefix))
	return organizationPrefix + " " + name
}
