package scan

import (
	"regexp"
	"sort"
	"strings"
)

// findMentions locates markers for p: <@id>, <@!id>, @id and @name.
// Bare @ markers must not be glued to a word on either side, which keeps
// e-mail addresses out.
func findMentions(text string, p Person) []Mention {
	var out []Mention

	tagged := regexp.MustCompile(`<@!?` + regexp.QuoteMeta(p.ID) + `>`)
	for _, loc := range tagged.FindAllStringIndex(text, -1) {
		out = append(out, Mention{PersonID: p.ID, Marker: text[loc[0]:loc[1]], Position: loc[0], End: loc[1]})
	}

	handles := make([]string, 0, len(p.Names)+1)
	seen := make(map[string]bool)
	for _, h := range append([]string{p.ID}, p.Names...) {
		h = strings.TrimSpace(h)
		if h == "" || seen[strings.ToLower(h)] {
			continue
		}
		seen[strings.ToLower(h)] = true
		handles = append(handles, regexp.QuoteMeta(h))
	}
	sort.SliceStable(handles, func(i, j int) bool { return len(handles[i]) > len(handles[j]) })

	bare := regexp.MustCompile(`(?i)@(?:` + strings.Join(handles, "|") + `)`)
	for _, loc := range bare.FindAllStringIndex(text, -1) {
		start, end := loc[0], loc[1]
		if start > 0 && (isWordByte(text[start-1]) || text[start-1] == '<') {
			continue
		}
		if isWordAt(text, end) {
			continue
		}
		out = append(out, Mention{PersonID: p.ID, Marker: text[start:end], Position: start, End: end})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out
}
