// Package resolve decides which pronoun occurrences mismatch a person's
// declared pronouns and what each should be replaced with.
package resolve

import (
	"strings"

	"github.com/hpungsan/pronounguard/internal/pronoun"
	"github.com/hpungsan/pronounguard/internal/scan"
)

const (
	// ItPenalty is subtracted from it/its candidates, which are often
	// non-personal.
	ItPenalty = 15

	// NearbyConfidence is assigned to tokens in the set-based variant,
	// where no positional evidence exists.
	NearbyConfidence = 100
)

// Aggregation combines a person's candidate confidences into one score.
type Aggregation string

const (
	AggregateMax   Aggregation = "max"
	AggregateMean  Aggregation = "mean"
	AggregateBlend Aggregation = "blend"
)

// ParseAggregation maps a config name to an Aggregation; empty is max.
func ParseAggregation(name string) (Aggregation, bool) {
	switch Aggregation(strings.ToLower(strings.TrimSpace(name))) {
	case "", AggregateMax:
		return AggregateMax, true
	case AggregateMean:
		return AggregateMean, true
	case AggregateBlend:
		return AggregateBlend, true
	}
	return "", false
}

func (a Aggregation) apply(ds []Decision) int {
	if len(ds) == 0 {
		return 0
	}
	hi, sum := 0, 0
	for _, d := range ds {
		hi = max(hi, d.Confidence)
		sum += d.Confidence
	}
	mean := sum / len(ds)
	switch a {
	case AggregateMean:
		return mean
	case AggregateBlend:
		return (hi + mean) / 2
	default:
		return hi
	}
}

// Input is one person's resolution request.
type Input struct {
	PersonID    string
	Label       string
	Occurrences []scan.Occurrence
	Floor       int
	Aggregation Aggregation
}

// Resolver expands labels against a pronoun table.
type Resolver struct {
	table *pronoun.Table
}

// New returns a resolver over table; nil uses the default table.
func New(table *pronoun.Table) *Resolver {
	if table == nil {
		table = pronoun.DefaultTable()
	}
	return &Resolver{table: table}
}

// Resolve classifies the person's occurrences. Candidates pass the gate
// together when the aggregated confidence reaches Floor.
func (r *Resolver) Resolve(in Input) Outcome {
	h := Header{PersonID: in.PersonID, Label: in.Label}

	if pronoun.IsSentinel(strings.ToLower(strings.TrimSpace(in.Label))) {
		return Unspecified{h}
	}
	expected, ok := r.table.Parse(in.Label)
	if !ok {
		return UnparseableLabel{h}
	}
	if len(in.Occurrences) == 0 {
		return NoPronouns{h}
	}

	var (
		candidates []Decision
		skipped    int
	)
	for _, occ := range in.Occurrences {
		token := strings.ToLower(occ.Token)
		if expected.Allows(token) {
			continue
		}
		role := occ.Role
		if role == "" {
			role = r.table.RoleOf(token)
		}
		replacement, ok := expected.Replacement(role)
		if !ok {
			skipped++
			continue
		}
		conf := occ.Confidence
		if token == "it" || token == "its" {
			conf = scan.Clamp(conf - ItPenalty)
		}
		candidates = append(candidates, Decision{
			PersonID:      in.PersonID,
			WrongToken:    token,
			Original:      occ.Original,
			ExpectedLabel: expected.Label,
			Replacement:   replacement,
			Role:          role,
			Position:      occ.Position,
			Confidence:    conf,
		})
	}

	if len(candidates) == 0 {
		h.Confidence = 100
		return AllCorrect{Header: h, Skipped: skipped}
	}

	agg := in.Aggregation
	if agg == "" {
		agg = AggregateMax
	}
	h.Confidence = agg.apply(candidates)
	if h.Confidence < in.Floor {
		return BelowThreshold{Header: h, Floor: in.Floor, Rejected: candidates}
	}
	return Corrections{Header: h, Decisions: candidates}
}

// ResolveNearby is the set-based variant: it checks the unique tokens seen
// near a person's markers. Decisions carry Position -1, so they describe
// suggested replacements rather than rewritable spans.
func (r *Resolver) ResolveNearby(personID, label string, nearby []string, floor int) Outcome {
	occs := make([]scan.Occurrence, 0, len(nearby))
	for _, tok := range nearby {
		tok = strings.ToLower(strings.TrimSpace(tok))
		if tok == "" {
			continue
		}
		occs = append(occs, scan.Occurrence{
			Token:      tok,
			Original:   tok,
			Role:       r.table.RoleOf(tok),
			Position:   -1,
			End:        -1,
			Confidence: NearbyConfidence,
		})
	}
	return r.Resolve(Input{
		PersonID:    personID,
		Label:       label,
		Occurrences: occs,
		Floor:       floor,
		Aggregation: AggregateMax,
	})
}
