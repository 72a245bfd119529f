// Package textnorm normalizes user-entered identifiers before they are stored or compared.
package textnorm

import (
	"path"
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

// Email normalizes an email address for lookup (NFKC, trimmed, lowercase).
func Email(email string) string {
	return strings.ToLower(strings.TrimSpace(norm.NFKC.String(email)))
}

// Username trims and NFC-normalizes a display name. Case is preserved.
func Username(name string) string {
	return strings.Join(strings.Fields(norm.NFC.String(name)), " ")
}

// ImageID turns a catalog filename or user supplied id into a detail store key.
// "faiss_dataset/A01234.jpg" -> "A01234".
func ImageID(s string) string {
	s = strings.TrimSpace(norm.NFC.String(s))
	s = path.Base(s)
	if ext := path.Ext(s); ext != "" {
		s = strings.TrimSuffix(s, ext)
	}
	if s == "." || s == "/" {
		return ""
	}
	return s
}
