package pronoun

import (
	"regexp"
	"strings"
)

// Expected is a label expanded into the role table a person accepts.
type Expected struct {
	Label   string
	Sets    []Set
	roles   map[Role][]string
	allowed map[string]bool
}

// Allows reports whether token belongs to any of the expected sets.
func (e *Expected) Allows(token string) bool {
	return e.allowed[strings.ToLower(token)]
}

// HasRole reports whether the expected sets define role.
func (e *Expected) HasRole(role Role) bool {
	return len(e.roles[role]) > 0
}

// Replacement returns the first-listed form for role.
func (e *Expected) Replacement(role Role) (string, bool) {
	forms := e.roles[role]
	if len(forms) == 0 {
		return "", false
	}
	return forms[0], true
}

var labelSplit = regexp.MustCompile(`[/,\s]+`)

// Parse expands label into an Expected role table. Exact set labels match
// directly; otherwise the label is split on '/', ',' or whitespace and each
// part must appear in some known set. The first matched set supplies the
// replacement forms and later sets only fill roles it lacks.
// Sentinel labels never parse.
func (t *Table) Parse(label string) (*Expected, bool) {
	label = strings.ToLower(strings.TrimSpace(label))
	if IsSentinel(label) {
		return nil, false
	}

	if s, ok := t.Lookup(label); ok {
		return newExpected(label, []Set{s}), true
	}

	var matched []Set
	used := make(map[string]bool)
	for _, part := range labelSplit.Split(label, -1) {
		if part == "" {
			continue
		}
		s, ok := t.setForPart(part)
		if !ok {
			return nil, false
		}
		if !used[s.Label] {
			used[s.Label] = true
			matched = append(matched, s)
		}
	}
	if len(matched) == 0 {
		return nil, false
	}
	return newExpected(label, matched), true
}

// setForPart finds the set a label part refers to, preferring a subject match.
func (t *Table) setForPart(part string) (Set, bool) {
	for _, s := range t.sets {
		if first, ok := s.First(RoleSubject); ok && first == part {
			return s, true
		}
	}
	for _, s := range t.sets {
		if s.Contains(part) {
			return s, true
		}
	}
	return Set{}, false
}

func newExpected(label string, sets []Set) *Expected {
	e := &Expected{
		Label:   label,
		Sets:    sets,
		roles:   make(map[Role][]string, len(Roles)),
		allowed: make(map[string]bool),
	}
	for _, s := range sets {
		for _, role := range Roles {
			forms := s.Forms[role]
			if len(forms) > 0 && len(e.roles[role]) == 0 {
				e.roles[role] = forms
			}
			for _, f := range forms {
				e.allowed[f] = true
			}
		}
	}
	return e
}
