package resolve

import (
	"fmt"

	"github.com/hpungsan/pronounguard/internal/pronoun"
)

// Kind names an outcome variant.
type Kind string

const (
	KindNoPronouns       Kind = "no_pronouns"
	KindAllCorrect       Kind = "all_correct"
	KindUnspecified      Kind = "unspecified"
	KindUnparseableLabel Kind = "unparseable_label"
	KindBelowThreshold   Kind = "below_threshold"
	KindCorrections      Kind = "corrections"
)

// Decision is one flagged pronoun and its replacement.
type Decision struct {
	PersonID      string       `json:"person_id"`
	WrongToken    string       `json:"wrong_token"`
	Original      string       `json:"original"`
	ExpectedLabel string       `json:"expected_label"`
	Replacement   string       `json:"replacement"`
	Role          pronoun.Role `json:"role"`
	Position      int          `json:"position"`
	Confidence    int          `json:"confidence"`
}

// Header is carried by every outcome.
type Header struct {
	PersonID   string `json:"person_id"`
	Label      string `json:"label"`
	Confidence int    `json:"confidence"`
}

// Head returns the header.
func (h Header) Head() Header { return h }

// Outcome is the result of resolving one person. The set of variants is
// closed: NoPronouns, AllCorrect, Unspecified, UnparseableLabel,
// BelowThreshold and Corrections.
type Outcome interface {
	Head() Header
	Kind() Kind
	Explanation() string
	outcome()
}

// NoPronouns means no occurrence was attributed to the person.
type NoPronouns struct{ Header }

// AllCorrect means every occurrence already fits the expected label.
// Skipped counts mismatching tokens whose role the label does not define.
type AllCorrect struct {
	Header
	Skipped int
}

// Unspecified means the label is unspecified or accepts any pronouns.
type Unspecified struct{ Header }

// UnparseableLabel means the label matched no known pronoun set.
type UnparseableLabel struct{ Header }

// BelowThreshold means mismatches exist but the aggregated confidence did
// not reach Floor. Rejected holds the decisions for diagnostics.
type BelowThreshold struct {
	Header
	Floor    int
	Rejected []Decision
}

// Corrections holds the accepted decisions.
type Corrections struct {
	Header
	Decisions []Decision
}

func (NoPronouns) Kind() Kind       { return KindNoPronouns }
func (AllCorrect) Kind() Kind       { return KindAllCorrect }
func (Unspecified) Kind() Kind      { return KindUnspecified }
func (UnparseableLabel) Kind() Kind { return KindUnparseableLabel }
func (BelowThreshold) Kind() Kind   { return KindBelowThreshold }
func (Corrections) Kind() Kind      { return KindCorrections }

func (NoPronouns) outcome()       {}
func (AllCorrect) outcome()       {}
func (Unspecified) outcome()      {}
func (UnparseableLabel) outcome() {}
func (BelowThreshold) outcome()   {}
func (Corrections) outcome()      {}

func (o NoPronouns) Explanation() string { return "no pronouns found" }

func (o AllCorrect) Explanation() string {
	if o.Skipped > 0 {
		return fmt.Sprintf("all pronouns correct (%d without a matching role)", o.Skipped)
	}
	return "all pronouns correct"
}

func (o Unspecified) Explanation() string {
	return fmt.Sprintf("pronouns for %s are %q; nothing to check", o.PersonID, o.Label)
}

func (o UnparseableLabel) Explanation() string {
	return fmt.Sprintf("cannot parse pronoun label %q", o.Label)
}

func (o BelowThreshold) Explanation() string {
	return fmt.Sprintf("%d mismatch(es) for %s at confidence %d, below floor %d",
		len(o.Rejected), o.PersonID, o.Confidence, o.Floor)
}

func (o Corrections) Explanation() string {
	return fmt.Sprintf("%d correction(s) for %s (%s) at confidence %d",
		len(o.Decisions), o.PersonID, o.Label, o.Confidence)
}

// Decisions returns the accepted decisions of o, or nil for any variant
// other than Corrections.
func Decisions(o Outcome) []Decision {
	if c, ok := o.(Corrections); ok {
		return c.Decisions
	}
	return nil
}

// Report is the flat, serializable view of an outcome.
type Report struct {
	Kind        Kind       `json:"kind"`
	PersonID    string     `json:"person_id"`
	Label       string     `json:"label"`
	Confidence  int        `json:"confidence"`
	Explanation string     `json:"explanation"`
	Decisions   []Decision `json:"decisions,omitempty"`
	Rejected    []Decision `json:"rejected,omitempty"`
	Suppressed  bool       `json:"suppressed,omitempty"`
}

// NewReport flattens o.
func NewReport(o Outcome) Report {
	h := o.Head()
	r := Report{
		Kind:        o.Kind(),
		PersonID:    h.PersonID,
		Label:       h.Label,
		Confidence:  h.Confidence,
		Explanation: o.Explanation(),
	}
	switch v := o.(type) {
	case Corrections:
		r.Decisions = v.Decisions
	case BelowThreshold:
		r.Rejected = v.Rejected
	}
	return r
}
