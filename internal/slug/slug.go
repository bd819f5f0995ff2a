// Package slug derives permalinks from display names.
package slug

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// ligatures covers letters that do not decompose into an ASCII base letter.
var ligatures = strings.NewReplacer(
	"ß", "ss", "ẞ", "SS",
	"æ", "ae", "Æ", "AE",
	"œ", "oe", "Œ", "OE",
	"ø", "o", "Ø", "O",
	"ł", "l", "Ł", "L",
	"đ", "d", "Đ", "D",
	"ð", "d", "Ð", "D",
	"þ", "th", "Þ", "TH",
	"ı", "i",
)

// ASCII transliterates s to plain ASCII. Accents are stripped after canonical
// decomposition; characters without an ASCII form become spaces.
func ASCII(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, ligatures.Replace(s))
	if err != nil {
		out = s
	}

	return strings.Map(func(r rune) rune {
		if r > unicode.MaxASCII {
			return ' '
		}
		return r
	}, out)
}

// Make returns the lowercase, hyphen-joined ASCII slug of name.
// Every character outside [A-Za-z0-9] separates words, underscore included.
// The result is empty when name has no ASCII letters or digits.
func Make(name string) string {
	words := strings.FieldsFunc(ASCII(name), func(r rune) bool {
		return !isWordChar(r)
	})
	return strings.ToLower(strings.Join(words, "-"))
}

func isWordChar(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}
