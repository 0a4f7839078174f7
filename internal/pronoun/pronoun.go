// Package pronoun holds the fixed pronoun-set table, grammatical roles and
// label handling shared by the scanner and the resolver.
package pronoun

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Role is the grammatical function of a pronoun form.
type Role string

const (
	RoleSubject               Role = "subject"
	RoleObject                Role = "object"
	RolePossessiveDeterminer  Role = "possessive_determiner"
	RolePossessiveIndependent Role = "possessive_independent"
	RoleReflexive             Role = "reflexive"
)

// Roles lists every role in lookup priority order. A form that fills more
// than one role (her, his, it, its) is assigned the first role it appears in.
var Roles = []Role{
	RoleSubject,
	RoleObject,
	RolePossessiveDeterminer,
	RolePossessiveIndependent,
	RoleReflexive,
}

// Sentinel labels.
const (
	Unspecified = "unspecified"
	Any         = "any"
)

// Set is a named bundle of word forms for one grammatical identity.
// The first form listed for a role is the one used as a replacement.
type Set struct {
	Label string
	Forms map[Role][]string
}

// First returns the first-listed form for role.
func (s Set) First(role Role) (string, bool) {
	forms := s.Forms[role]
	if len(forms) == 0 {
		return "", false
	}
	return forms[0], true
}

// Contains reports whether token is any form of the set.
func (s Set) Contains(token string) bool {
	token = strings.ToLower(token)
	for _, forms := range s.Forms {
		for _, f := range forms {
			if f == token {
				return true
			}
		}
	}
	return false
}

func set(label, subject, object, posDet, posInd string, reflexive ...string) Set {
	return Set{
		Label: label,
		Forms: map[Role][]string{
			RoleSubject:               {subject},
			RoleObject:                {object},
			RolePossessiveDeterminer:  {posDet},
			RolePossessiveIndependent: {posInd},
			RoleReflexive:             reflexive,
		},
	}
}

// builtinSets is the default table. Order matters: Parse prefers earlier
// sets when a label part matches several.
var builtinSets = []Set{
	set("he/him", "he", "him", "his", "his", "himself"),
	set("she/her", "she", "her", "her", "hers", "herself"),
	set("they/them", "they", "them", "their", "theirs", "themselves", "themself"),
	set("it/its", "it", "it", "its", "its", "itself"),
	set("xe/xem", "xe", "xem", "xyr", "xyrs", "xemself"),
	set("ze/hir", "ze", "hir", "hir", "hirs", "hirself"),
	set("ze/zir", "ze", "zir", "zir", "zirs", "zirself"),
	set("fae/faer", "fae", "faer", "faer", "faers", "faerself"),
	set("ey/em", "ey", "em", "eir", "eirs", "emself"),
}

var formPattern = regexp.MustCompile(`^[a-z]+$`)

// Table is an immutable lookup over a list of pronoun sets.
type Table struct {
	sets    []Set
	byLabel map[string]int
	roleOf  map[string]Role
	forms   []string
}

// DefaultTable returns the built-in table.
func DefaultTable() *Table {
	t, err := NewTable(builtinSets)
	if err != nil {
		panic(err)
	}
	return t
}

// NewTable validates sets and builds a table from them.
func NewTable(sets []Set) (*Table, error) {
	t := &Table{
		byLabel: make(map[string]int, len(sets)),
		roleOf:  make(map[string]Role),
	}
	seen := make(map[string]bool)

	for _, s := range sets {
		label := strings.ToLower(strings.TrimSpace(s.Label))
		if label == "" {
			return nil, fmt.Errorf("pronoun set with empty label")
		}
		if _, dup := t.byLabel[label]; dup {
			return nil, fmt.Errorf("duplicate pronoun set %q", label)
		}

		norm := Set{Label: label, Forms: make(map[Role][]string, len(Roles))}
		total := 0
		for _, role := range Roles {
			for _, f := range s.Forms[role] {
				f = strings.ToLower(strings.TrimSpace(f))
				if f == "" {
					continue
				}
				if !formPattern.MatchString(f) {
					return nil, fmt.Errorf("pronoun set %q: invalid form %q", label, f)
				}
				norm.Forms[role] = append(norm.Forms[role], f)
				total++
			}
		}
		if total == 0 {
			return nil, fmt.Errorf("pronoun set %q has no forms", label)
		}

		t.byLabel[label] = len(t.sets)
		t.sets = append(t.sets, norm)
	}

	// Role lookup walks roles before sets so a form keeps the same role
	// regardless of which set introduced it.
	for _, role := range Roles {
		for _, s := range t.sets {
			for _, f := range s.Forms[role] {
				if _, ok := t.roleOf[f]; !ok {
					t.roleOf[f] = role
				}
				if !seen[f] {
					seen[f] = true
					t.forms = append(t.forms, f)
				}
			}
		}
	}

	// Longest first so regex alternation never prefers a prefix.
	sort.SliceStable(t.forms, func(i, j int) bool {
		if len(t.forms[i]) != len(t.forms[j]) {
			return len(t.forms[i]) > len(t.forms[j])
		}
		return t.forms[i] < t.forms[j]
	})

	return t, nil
}

// With returns a new table containing the receiver's sets followed by extra.
func (t *Table) With(extra []Set) (*Table, error) {
	if len(extra) == 0 {
		return t, nil
	}
	all := make([]Set, 0, len(t.sets)+len(extra))
	all = append(all, t.sets...)
	all = append(all, extra...)
	return NewTable(all)
}

// Sets returns the table's sets in declaration order.
func (t *Table) Sets() []Set {
	out := make([]Set, len(t.sets))
	copy(out, t.sets)
	return out
}

// Lookup returns the set registered under label.
func (t *Table) Lookup(label string) (Set, bool) {
	i, ok := t.byLabel[strings.ToLower(strings.TrimSpace(label))]
	if !ok {
		return Set{}, false
	}
	return t.sets[i], true
}

// Forms returns the union of all known forms, longest first.
func (t *Table) Forms() []string {
	out := make([]string, len(t.forms))
	copy(out, t.forms)
	return out
}

// IsForm reports whether token is a known pronoun form.
func (t *Table) IsForm(token string) bool {
	_, ok := t.roleOf[strings.ToLower(token)]
	return ok
}

// RoleOf returns the grammatical role of token, falling back to subject
// for unknown tokens.
func (t *Table) RoleOf(token string) Role {
	if r, ok := t.roleOf[strings.ToLower(token)]; ok {
		return r
	}
	return RoleSubject
}

// IsSentinel reports whether label means "no correction ever applies".
func IsSentinel(label string) bool {
	label = strings.ToLower(strings.TrimSpace(label))
	return label == "" || label == Unspecified || label == Any
}
