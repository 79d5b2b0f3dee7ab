package resolve

import "regexp"

var vcsHashSuffix = regexp.MustCompile(`-g[0-9A-Fa-f]{40}$`)

// SanitizeVersion strips a trailing "-g<40 hex digits>" revision suffix.
// It reports whether v was rewritten.
func SanitizeVersion(v string) (string, bool) {
	loc := vcsHashSuffix.FindStringIndex(v)
	if loc == nil {
		return v, false
	}
	return v[:loc[0]], true
}
