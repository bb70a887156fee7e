package correlation

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var stripAccents = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// normalizeName lowercases a team or league name, strips accents, and
// collapses whitespace so that feed spelling variants compare equal.
func normalizeName(name string) string {
	name = strings.ToLower(name)
	name, _, _ = transform.String(stripAccents, name)
	name = strings.Join(strings.Fields(name), " ")
	return strings.TrimSpace(name)
}
