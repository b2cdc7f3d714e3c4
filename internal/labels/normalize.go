// Package labels normalizes identity labels for display and search.
package labels

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/kozaktomas/face-attendance/internal/database"
)

// RemoveDiacritics removes diacritical marks from a string (e.g., "Jiří" -> "Jiri").
func RemoveDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, _ := transform.String(t, s)
	return result
}

// Clean trims a label and collapses inner whitespace, keeping case and diacritics.
func Clean(label string) string {
	return strings.Join(strings.Fields(norm.NFC.String(label)), " ")
}

// Normalize prepares a name for comparison (lowercase, no diacritics, spaces for dashes).
func Normalize(name string) string {
	name = RemoveDiacritics(name)
	name = strings.ToLower(name)
	name = strings.ReplaceAll(name, "-", " ")
	return strings.Join(strings.Fields(name), " ")
}

// Matches reports whether query matches the identity ID or label.
// An empty query matches everything.
func Matches(id database.Identity, query string) bool {
	q := Normalize(query)
	if q == "" {
		return true
	}
	return strings.Contains(Normalize(id.Label), q) || strings.Contains(strings.ToLower(id.ID), q)
}

// Filter returns the identities matching query, preserving order.
func Filter(ids []database.Identity, query string) []database.Identity {
	out := make([]database.Identity, 0, len(ids))
	for _, id := range ids {
		if Matches(id, query) {
			out = append(out, id)
		}
	}
	return out
}
