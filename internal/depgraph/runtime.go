package depgraph

import (
	"regexp"
	"strings"
)

var runtimeSelect = regexp.MustCompile(`select BR2_PACKAGE_(.*) #\s*(runtime|run-time)`)

// RuntimeOptions returns the BR2_PACKAGE_ option names, without the
// prefix, that a Config.in selects with a runtime annotation.
func RuntimeOptions(configIn []byte) []string {
	var opts []string
	for _, m := range runtimeSelect.FindAllSubmatch(configIn, -1) {
		if f := strings.Fields(string(m[1])); len(f) > 0 {
			opts = append(opts, f[0])
		}
	}
	return opts
}
