package slice

import (
	"cmp"
	"slices"
	"strings"
)

// Contains reports whether str is in slice.
func Contains(slice []string, str string) bool {
	return slices.Contains(slice, str)
}

// SortedUnique returns the distinct elements of in, sorted.
func SortedUnique[T cmp.Ordered](in []T) []T {
	out := slices.Clone(in)
	slices.Sort(out)
	return slices.Compact(out)
}

// RemoveAll returns slice without any element present in drop.
func RemoveAll(slice []string, drop map[string]bool) []string {
	if len(drop) == 0 {
		return slice
	}
	out := make([]string, 0, len(slice))
	for _, item := range slice {
		if !drop[item] {
			out = append(out, item)
		}
	}
	return out
}

// SplitCSV splits s on commas and drops empty, trimmed parts.
func SplitCSV(s string) []string {
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

// SortedKeys returns the keys of m in order.
func SortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
