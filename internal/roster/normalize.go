package roster

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// RemoveDiacritics removes diacritical marks from a string (e.g., "Jiří" -> "Jiri").
func RemoveDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, _ := transform.String(t, s)
	return result
}

// NormalizeID normalizes a student ID or name for comparison
// (lowercase, no diacritics, spaces for dashes and underscores).
func NormalizeID(id string) string {
	id = RemoveDiacritics(id)
	id = strings.ToLower(id)
	id = strings.NewReplacer("-", " ", "_", " ").Replace(id)
	return strings.Join(strings.Fields(id), " ")
}
