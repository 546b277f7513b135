package domain

import (
	"strings"

	"github.com/gosimple/slug"
	"golang.org/x/text/unicode/norm"
)

// symbolWords spells out symbols that carry meaning in a name, so that
// "Electronics & Gadgets" and "Electronics Gadgets" get different slugs.
// Underscores become separators like any other punctuation.
var symbolWords = strings.NewReplacer(
	"&", " and ",
	"%", " percent ",
	"$", " dollar ",
	"|", " or ",
	"<", " less ",
	">", " greater ",
	"_", " ",
)

// Slugify returns the lowercase, URL-safe form of name. Compatibility forms
// are normalized first, a few symbols are spelled out, and the rest is
// transliterated to ASCII, so "Café" gives "cafe" and "Книги" gives "knigi".
// Runs of other characters collapse to a single hyphen and the result never
// starts or ends with one.
func Slugify(name string) string {
	return slug.Make(symbolWords.Replace(norm.NFKC.String(name)))
}
