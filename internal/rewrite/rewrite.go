// Package rewrite applies pronoun decisions to the original message text.
package rewrite

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/hpungsan/pronounguard/internal/resolve"
)

// Edit is one applied replacement. Position is the byte offset in the
// original text.
type Edit struct {
	Original  string `json:"original"`
	Corrected string `json:"corrected"`
	Position  int    `json:"position"`
}

// Result is the rewritten text and its edits in ascending position order.
type Result struct {
	Text  string `json:"text"`
	Edits []Edit `json:"edits"`
}

type span struct {
	start, end int
	edit       Edit
}

// Apply rewrites original. Decisions are taken in descending position
// order; a decision is dropped when it is out of bounds, when its span no
// longer holds the wrong token as a whole word, or when it overlaps a span
// already accepted. Apply has no side effects.
func Apply(original string, decisions []resolve.Decision) Result {
	ordered := make([]resolve.Decision, len(decisions))
	copy(ordered, decisions)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Position > ordered[j].Position })

	var accepted []span
	limit := len(original)
	for _, d := range ordered {
		start, end := d.Position, d.Position+len(d.WrongToken)
		if d.WrongToken == "" || start < 0 || end > len(original) || end > limit {
			continue
		}
		matched := original[start:end]
		if !strings.EqualFold(matched, d.WrongToken) || !wholeWord(original, start, end) {
			continue
		}
		accepted = append(accepted, span{
			start: start,
			end:   end,
			edit:  Edit{Original: matched, Corrected: MatchCase(matched, d.Replacement), Position: start},
		})
		limit = start
	}

	res := Result{Edits: make([]Edit, 0, len(accepted))}
	var b strings.Builder
	b.Grow(len(original))
	cursor := 0
	for i := len(accepted) - 1; i >= 0; i-- {
		s := accepted[i]
		b.WriteString(original[cursor:s.start])
		b.WriteString(s.edit.Corrected)
		cursor = s.end
		res.Edits = append(res.Edits, s.edit)
	}
	b.WriteString(original[cursor:])
	res.Text = b.String()
	return res
}

// MatchCase renders replacement in the case shape of matched: all upper,
// first letter upper, or lower. Casers are stateful, so each call gets its own.
func MatchCase(matched, replacement string) string {
	first, _ := utf8.DecodeRuneInString(matched)
	switch {
	case matched != "" && strings.ToUpper(matched) == matched && strings.ToLower(matched) != matched:
		return cases.Upper(language.Und).String(replacement)
	case unicode.IsUpper(first):
		return cases.Title(language.Und).String(replacement)
	default:
		return cases.Lower(language.Und).String(replacement)
	}
}

func wholeWord(text string, start, end int) bool {
	if start > 0 {
		r, _ := utf8.DecodeLastRuneInString(text[:start])
		if isWord(r) {
			return false
		}
	}
	if end < len(text) {
		r, _ := utf8.DecodeRuneInString(text[end:])
		if isWord(r) {
			return false
		}
	}
	return true
}

func isWord(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
