package pronoun

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// codes maps terse directory codes to human-readable labels.
var codes = map[string]string{
	"hh":          "he/him",
	"hi":          "he/it",
	"hs":          "he/she",
	"ht":          "he/they",
	"ih":          "it/him",
	"ii":          "it/its",
	"is":          "it/she",
	"it":          "it/they",
	"shh":         "she/he",
	"sh":          "she/her",
	"si":          "she/it",
	"st":          "she/they",
	"th":          "they/he",
	"ti":          "they/it",
	"ts":          "they/she",
	"tt":          "they/them",
	"any":         Any,
	"other":       "other",
	"ask":         "ask",
	"avoid":       "avoid",
	"unspecified": Unspecified,
}

// Normalize maps a raw directory reply to a label. Known codes are
// expanded; anything else passes through trimmed and lowercased.
// An empty reply is "unspecified".
func Normalize(raw string) string {
	s := strings.ToLower(strings.TrimSpace(norm.NFKC.String(raw)))
	if s == "" {
		return Unspecified
	}
	if label, ok := codes[s]; ok {
		return label
	}
	return s
}
