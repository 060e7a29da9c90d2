// Package slug derives canonical, URL-safe identifiers from display names.
// Identical names always produce identical slugs; this is the system's only
// form of natural-key deduplication, so the algorithm must not drift.
package slug

import (
	"regexp"
	"strings"
)

var (
	disallowed = regexp.MustCompile(`[^a-z0-9-]`)
	hyphenRuns = regexp.MustCompile(`-+`)
	whitespace = regexp.MustCompile(`\s+`)
)

// Make turns a human-entered name into a lowercase hyphenated identifier.
// Swedish å/ä/ö are folded to ASCII; everything else outside [a-z0-9-] is
// stripped. Returns "" when nothing survives — callers must treat that as an
// invalid name and refuse to create the entity.
func Make(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = strings.NewReplacer("å", "a", "ä", "a", "ö", "o").Replace(s)
	s = whitespace.ReplaceAllString(s, "-")
	s = disallowed.ReplaceAllString(s, "")
	s = hyphenRuns.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}
