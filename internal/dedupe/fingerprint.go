package dedupe

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var multiSpace = regexp.MustCompile(`\s{2,}`)

// diacriticStripper removes combining marks so accented and unaccented
// spellings of the same label produce the same fingerprint.
var diacriticStripper = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Fingerprint builds the normalized-text dedupe key: diacritics stripped,
// lowercased, trimmed, internal whitespace collapsed to single spaces.
// Stable across runs for identical input; records are unique by this key
// within one document and kind.
func Fingerprint(text string) string {
	if stripped, _, err := transform.String(diacriticStripper, text); err == nil {
		text = stripped
	}
	text = strings.ToLower(strings.TrimSpace(text))
	text = multiSpace.ReplaceAllString(text, " ")
	return text
}
