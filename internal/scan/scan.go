// Package scan finds pronoun occurrences in chat text, scores each one's
// likelihood of referring to a tracked person, and correlates occurrences
// with the people mentioned in the text.
//
// Scanning never shifts offsets: ignorable regions are blanked rather than
// removed, so every Position refers to the original text as well.
package scan

import (
	"regexp"
	"sort"
	"strings"

	"github.com/hpungsan/pronounguard/internal/pronoun"
)

// Person is someone referenced by a message. Names are display names that
// may appear as @Name markers besides the ID.
type Person struct {
	ID    string   `json:"id"`
	Names []string `json:"names,omitempty"`
}

// Window is the span around a mention marker whose pronouns count as
// nearby: Before bytes ahead of the marker and After bytes past its end.
type Window struct {
	Name   string `json:"name"`
	Before int    `json:"before"`
	After  int    `json:"after"`
}

var (
	// ProximityWindow looks mostly forward from the marker.
	ProximityWindow = Window{Name: "proximity", Before: 100, After: 300}
	// CorrelationWindow is symmetric.
	CorrelationWindow = Window{Name: "correlation", Before: 200, After: 200}
)

// WindowByName returns a named window policy.
func WindowByName(name string) (Window, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", ProximityWindow.Name:
		return ProximityWindow, true
	case CorrelationWindow.Name:
		return CorrelationWindow, true
	}
	return Window{}, false
}

// Options tunes a scan. The zero value strips ignorable regions and uses
// ProximityWindow.
type Options struct {
	KeepIgnorable bool
	Window        Window
}

// Occurrence is one matched pronoun.
type Occurrence struct {
	Token      string       `json:"token"`
	Original   string       `json:"original"`
	Role       pronoun.Role `json:"role"`
	Position   int          `json:"position"`
	End        int          `json:"end"`
	Confidence int          `json:"confidence"`
	Signals    []string     `json:"signals,omitempty"`
}

// Mention is a reference marker for a person.
type Mention struct {
	PersonID string `json:"person_id"`
	Marker   string `json:"marker"`
	Position int    `json:"position"`
	End      int    `json:"end"`
}

// Result is the output of a scan.
type Result struct {
	// Text is the detection text: the input with ignorable regions blanked.
	Text        string              `json:"-"`
	Occurrences []Occurrence        `json:"occurrences"`
	Mentions    []Mention           `json:"mentions"`
	Nearby      map[string][]string `json:"nearby"`

	window  Window
	byID    map[string][]Mention
	persons []string
}

// Scanner matches the forms of one pronoun table.
type Scanner struct {
	table   *pronoun.Table
	pattern *regexp.Regexp
}

// New builds a scanner over table; nil uses the default table.
func New(table *pronoun.Table) *Scanner {
	if table == nil {
		table = pronoun.DefaultTable()
	}
	forms := table.Forms()
	quoted := make([]string, len(forms))
	for i, f := range forms {
		quoted[i] = regexp.QuoteMeta(f)
	}
	return &Scanner{
		table:   table,
		pattern: regexp.MustCompile(`(?i)\b(?:` + strings.Join(quoted, "|") + `)\b`),
	}
}

// Table returns the scanner's pronoun table.
func (s *Scanner) Table() *pronoun.Table { return s.table }

// Scan finds occurrences and mentions in text. Identical input always
// yields identical output.
func (s *Scanner) Scan(text string, people []Person, opts Options) *Result {
	window := opts.Window
	if window.Before == 0 && window.After == 0 {
		window = ProximityWindow
	}

	detect := text
	if !opts.KeepIgnorable {
		detect = MaskIgnorable(text)
	}

	res := &Result{
		Text:   detect,
		Nearby: make(map[string][]string, len(people)),
		window: window,
		byID:   make(map[string][]Mention, len(people)),
	}

	for _, p := range people {
		if p.ID == "" {
			continue
		}
		if _, seen := res.byID[p.ID]; !seen {
			res.persons = append(res.persons, p.ID)
		}
		ms := findMentions(detect, p)
		res.byID[p.ID] = append(res.byID[p.ID], ms...)
		res.Mentions = append(res.Mentions, ms...)
	}
	sort.SliceStable(res.Mentions, func(i, j int) bool {
		return res.Mentions[i].Position < res.Mentions[j].Position
	})

	for _, loc := range s.pattern.FindAllStringIndex(detect, -1) {
		start, end := loc[0], loc[1]
		if insideMention(res.Mentions, start) {
			continue
		}
		original := text[start:end]
		conf, signals := score(detect, start, end)
		res.Occurrences = append(res.Occurrences, Occurrence{
			Token:      strings.ToLower(original),
			Original:   original,
			Role:       s.table.RoleOf(original),
			Position:   start,
			End:        end,
			Confidence: conf,
			Signals:    signals,
		})
	}

	for _, id := range res.persons {
		res.Nearby[id] = uniqueTokens(res.ForPerson(id))
	}

	return res
}

// ForPerson returns the occurrences inside any of the person's mention
// windows. A person with no marker in the text is treated as referenced
// by the whole message.
func (r *Result) ForPerson(personID string) []Occurrence {
	mentions, ok := r.byID[personID]
	if !ok {
		return nil
	}
	if len(mentions) == 0 {
		return append([]Occurrence(nil), r.Occurrences...)
	}
	var out []Occurrence
	for _, occ := range r.Occurrences {
		if r.inWindow(mentions, occ) {
			out = append(out, occ)
		}
	}
	return out
}

// Distance is the byte distance from occ to the person's nearest marker.
// It returns -1 when the person has no marker.
func (r *Result) Distance(personID string, occ Occurrence) int {
	best := -1
	for _, m := range r.byID[personID] {
		var d int
		switch {
		case occ.End <= m.Position:
			d = m.Position - occ.End
		case occ.Position >= m.End:
			d = occ.Position - m.End
		}
		if best < 0 || d < best {
			best = d
		}
	}
	return best
}

// Window returns the window policy used for the scan.
func (r *Result) Window() Window { return r.window }

func (r *Result) inWindow(mentions []Mention, occ Occurrence) bool {
	for _, m := range mentions {
		lo := m.Position - r.window.Before
		hi := m.End + r.window.After
		if occ.Position >= lo && occ.Position < hi {
			return true
		}
	}
	return false
}

func insideMention(mentions []Mention, pos int) bool {
	for _, m := range mentions {
		if pos >= m.Position && pos < m.End {
			return true
		}
	}
	return false
}

func uniqueTokens(occs []Occurrence) []string {
	seen := make(map[string]bool, len(occs))
	out := make([]string, 0, len(occs))
	for _, o := range occs {
		if !seen[o.Token] {
			seen[o.Token] = true
			out = append(out, o.Token)
		}
	}
	sort.Strings(out)
	return out
}
