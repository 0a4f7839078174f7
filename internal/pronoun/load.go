package pronoun

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// setFile is the YAML layout for extra pronoun sets:
//
//	sets:
//	  - label: xe/xir
//	    subject: [xe]
//	    object: [xir]
//	    possessive_determiner: [xir]
//	    possessive_independent: [xirs]
//	    reflexive: [xirself]
type setFile struct {
	Sets []setEntry `yaml:"sets"`
}

type setEntry struct {
	Label                 string   `yaml:"label"`
	Subject               []string `yaml:"subject"`
	Object                []string `yaml:"object"`
	PossessiveDeterminer  []string `yaml:"possessive_determiner"`
	PossessiveIndependent []string `yaml:"possessive_independent"`
	Reflexive             []string `yaml:"reflexive"`
}

// ParseSets decodes extra pronoun sets from YAML.
func ParseSets(data []byte) ([]Set, error) {
	var f setFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse pronoun sets: %w", err)
	}
	sets := make([]Set, 0, len(f.Sets))
	for _, e := range f.Sets {
		sets = append(sets, Set{
			Label: e.Label,
			Forms: map[Role][]string{
				RoleSubject:               e.Subject,
				RoleObject:                e.Object,
				RolePossessiveDeterminer:  e.PossessiveDeterminer,
				RolePossessiveIndependent: e.PossessiveIndependent,
				RoleReflexive:             e.Reflexive,
			},
		})
	}
	return sets, nil
}

// LoadTable returns the default table extended with the sets in path.
// An empty path returns the default table.
func LoadTable(path string) (*Table, error) {
	base := DefaultTable()
	if path == "" {
		return base, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pronoun sets: %w", err)
	}
	extra, err := ParseSets(data)
	if err != nil {
		return nil, err
	}
	return base.With(extra)
}
