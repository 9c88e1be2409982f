package core

import (
	"math"
	"regexp"
	"strings"
)

var nonSlugRegex = regexp.MustCompile(`[^a-z0-9]+`)

// CleanString trims all leading and trailing whitespace in `s` and optionally lowers it.
func CleanString(s string, lower ...bool) string {
	s = strings.TrimSpace(s)
	if len(lower) > 0 && lower[0] {
		return strings.ToLower(s)
	}
	return s
}

// Slugify lowers `s` and joins its alphanumeric runs with `sep`.
func Slugify(s, sep string) string {
	s = nonSlugRegex.ReplaceAllString(strings.ToLower(s), " ")
	return strings.Join(strings.Fields(s), sep)
}

// ClampPercent rounds `v` and bounds it to [0, 100].
func ClampPercent(v float64) int {
	if math.IsNaN(v) || v <= 0 {
		return 0
	}
	if v >= 100 {
		return 100
	}
	return int(math.Round(v))
}

// ContainsString reports whether `s` is in `list`.
func ContainsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
