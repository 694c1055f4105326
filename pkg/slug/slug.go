package slug

import (
	"regexp"
	"strings"
)

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// Accented Latin letters found in Dutch, French and German product names.
var transliterate = strings.NewReplacer(
	"à", "a", "á", "a", "â", "a", "ä", "a", "å", "a",
	"ç", "c",
	"è", "e", "é", "e", "ê", "e", "ë", "e",
	"ì", "i", "í", "i", "î", "i", "ï", "i",
	"ñ", "n",
	"ò", "o", "ó", "o", "ô", "o", "ö", "o", "ø", "o",
	"ù", "u", "ú", "u", "û", "u", "ü", "u",
	"ÿ", "y",
	"ß", "ss", "æ", "ae", "œ", "oe",
)

// Normalize turns a product name or a client-supplied reference into the
// canonical slug form used for catalog lookups.
//
//   - "Trekker 2P Ultralight" -> "trekker-2p-ultralight"
//   - "  Tente Légère  " -> "tente-legere"
func Normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = transliterate.Replace(s)
	s = nonAlnum.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

