// Package buildroot holds the helpers that talk to a Buildroot tree: name
// conversion between make variables and package keys, the .config reader,
// the printvars runner and external tree discovery.
package buildroot

import "strings"

// KconfigToKey converts a make/Kconfig identifier (FOO_BAR) to the
// lower-case dashed key form used throughout the package map (foo-bar).
func KconfigToKey(name string) string {
	return strings.ToLower(strings.ReplaceAll(name, "_", "-"))
}

// KeyToKconfig converts a package key (foo-bar) to its make form (FOO_BAR).
func KeyToKconfig(name string) string {
	return strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
}

// ParseBool interprets the affirmative and negative tokens understood by
// make and Kconfig. ok is false when value is neither.
func ParseBool(value string) (b bool, ok bool) {
	switch strings.ToLower(value) {
	case "y", "yes", "true":
		return true, true
	case "n", "no", "false":
		return false, true
	}
	return false, false
}

// Unquote strips every double quote from a make or .config value.
func Unquote(value string) string {
	return strings.ReplaceAll(value, `"`, "")
}
