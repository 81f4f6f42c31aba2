package slug

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var slugRegexp = regexp.MustCompile(`[^a-z0-9]+`)

// letters without a decomposed ASCII base form.
var specialLetters = strings.NewReplacer(
	"ı", "i",
	"ß", "ss",
	"ø", "o",
	"æ", "ae",
	"œ", "oe",
	"ł", "l",
	"đ", "d",
)

// Generate creates a URL-friendly key from the given name. Accented Latin
// letters are folded to ASCII; other non-alphanumeric runs become a single
// hyphen.
//
// Examples:
//   - "Wooden Matryoshka" → "wooden-matryoshka"
//   - "Crème Brûlée Set" → "creme-brulee-set"
//   - "Çay Bardağı" → "cay-bardagi"
func Generate(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = specialLetters.Replace(s)

	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	if folded, _, err := transform.String(t, s); err == nil {
		s = folded
	}

	s = slugRegexp.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}
