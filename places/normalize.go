package places

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// diacriticStripper is built once and reused: NFD-decompose, drop
// combining marks, re-encode. Shared by NormalizeName (lookup key) and
// Slugify (url_slug key), both of which strip diacritics before
// lowering/dashing.
var diacriticStripper = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

func stripDiacritics(s string) string {
	out, _, err := transform.String(diacriticStripper, s)
	if err != nil {
		return s
	}
	return out
}

// NormalizeName lowercases and strips diacritics, the normalized form
// used as the normalized_name map key and as the comparand for duplicate
// name+country+kind detection in duplicate reconciliation.
func NormalizeName(s string) string {
	return strings.ToLower(strings.TrimSpace(stripDiacritics(s)))
}

// Slugify computes the url_slug lookup key: NFD-normalize, strip
// diacritics, lowercase, replace non-alphanumerics with `-`, collapse and
// trim: the key for the gazetteer's url_slug -> []Place index.
func Slugify(s string) string {
	s = strings.ToLower(stripDiacritics(s))
	var b strings.Builder
	lastDash := true // avoid leading dash
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			lastDash = false
			continue
		}
		if !lastDash {
			b.WriteByte('-')
			lastDash = true
		}
	}
	out := strings.Trim(b.String(), "-")
	return out
}
