package scan

import (
	"regexp"
	"strings"
)

// Confidence heuristics
const (
	BaseConfidence  = 50
	ClauseStartBump = 20
	VerbBump        = 20
	PersonalBump    = 15
	NonPersonalDrop = 25

	// contextRadius is how far around a token nearby-word signals are read.
	contextRadius = 60
)

// Signal names recorded on occurrences.
const (
	SignalClauseStart = "clause_start"
	SignalVerb        = "verb_follows"
	SignalURL         = "url"
	SignalQuote       = "quote"
)

// followVerbs are verbs whose presence right after a pronoun suggests a
// genuine subject use.
var followVerbs = map[string]bool{
	"is": true, "was": true, "will": true, "can": true, "should": true, "would": true,
	"has": true, "had": true, "goes": true, "went": true, "says": true, "said": true,
}

var contractions = []string{"s", "re", "ll", "d", "ve"}

type category struct {
	name  string
	words map[string]bool
}

func words(ws ...string) map[string]bool {
	m := make(map[string]bool, len(ws))
	for _, w := range ws {
		m[w] = true
	}
	return m
}

// personalCategories raise confidence once each.
var personalCategories = []category{
	{name: "people", words: words("person", "individual", "user", "member")},
	{name: "relations", words: words("friend", "colleague")},
}

// nonPersonalCategories lower confidence once each. The quote category
// also fires when the token sits inside double quotes.
var nonPersonalCategories = []category{
	{name: "media", words: words("movie", "film", "show", "series", "song", "album", "game", "episode", "anime", "manga", "tv", "book")},
	{name: "fiction", words: words("story", "fiction", "fictional", "character", "plot", "chapter", "novel", "protagonist", "villain", "canon")},
	{name: SignalQuote, words: words("quote", "quoted", "quoting", "lyric", "lyrics", "excerpt")},
}

var (
	wordRe = regexp.MustCompile(`[a-z]+`)
	urlRe  = regexp.MustCompile(`(?i)\bhttps?://|\bwww\.`)
)

// score rates how likely text[start:end] is a referential pronoun use.
func score(text string, start, end int) (int, []string) {
	conf := BaseConfidence
	var signals []string

	if atClauseStart(text, start) {
		conf += ClauseStartBump
		signals = append(signals, SignalClauseStart)
	}
	if followedByVerb(text, end) {
		conf += VerbBump
		signals = append(signals, SignalVerb)
	}

	lo := max(0, start-contextRadius)
	hi := min(len(text), end+contextRadius)
	window := strings.ToLower(text[lo:start] + " " + text[end:hi])
	present := make(map[string]bool)
	for _, w := range wordRe.FindAllString(window, -1) {
		present[w] = true
	}

	for _, c := range personalCategories {
		if hasAny(present, c.words) {
			conf += PersonalBump
			signals = append(signals, c.name)
		}
	}
	for _, c := range nonPersonalCategories {
		hit := hasAny(present, c.words)
		if c.name == SignalQuote && insideQuotes(text, start) {
			hit = true
		}
		if hit {
			conf -= NonPersonalDrop
			signals = append(signals, c.name)
		}
	}
	if urlRe.MatchString(text[lo:hi]) {
		conf -= NonPersonalDrop
		signals = append(signals, SignalURL)
	}

	return Clamp(conf), signals
}

// Clamp bounds a confidence to [0, 100].
func Clamp(c int) int {
	if c < 0 {
		return 0
	}
	if c > 100 {
		return 100
	}
	return c
}

func hasAny(present, ws map[string]bool) bool {
	for w := range ws {
		if present[w] {
			return true
		}
	}
	return false
}

// atClauseStart reports whether only spaces separate pos from the text
// start or from clause punctuation.
func atClauseStart(text string, pos int) bool {
	i := pos - 1
	for i >= 0 && (text[i] == ' ' || text[i] == '\t') {
		i--
	}
	if i < 0 {
		return true
	}
	return strings.IndexByte(".!?;:(\n", text[i]) >= 0
}

// followedByVerb checks for a contraction glued to the token or a listed
// verb as the next word.
func followedByVerb(text string, end int) bool {
	rest := text[end:]
	if after, ok := cutApostrophe(rest); ok {
		for _, c := range contractions {
			if strings.HasPrefix(strings.ToLower(after), c) && !isWordAt(after, len(c)) {
				return true
			}
		}
	}

	rest = strings.TrimLeft(rest, " \t")
	n := 0
	for n < len(rest) && isLetter(rest[n]) {
		n++
	}
	return n > 0 && followVerbs[strings.ToLower(rest[:n])]
}

func cutApostrophe(s string) (string, bool) {
	if after, ok := strings.CutPrefix(s, "'"); ok {
		return after, true
	}
	return strings.CutPrefix(s, "’")
}

// insideQuotes reports whether an odd number of double quotes precede
// pos on its line.
func insideQuotes(text string, pos int) bool {
	lineStart := strings.LastIndexByte(text[:pos], '\n') + 1
	segment := text[lineStart:pos]
	n := strings.Count(segment, `"`) + strings.Count(segment, "“") + strings.Count(segment, "”")
	return n%2 == 1
}

func isLetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

func isWordByte(b byte) bool {
	return isLetter(b) || (b >= '0' && b <= '9') || b == '_'
}

func isWordAt(s string, i int) bool {
	return i < len(s) && isWordByte(s[i])
}
