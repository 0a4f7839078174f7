package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/hpungsan/pronounguard/internal/dedupe"
	"github.com/hpungsan/pronounguard/internal/resolve"
	"github.com/hpungsan/pronounguard/internal/rewrite"
)

// KindSuppressed marks a person skipped because their duplicate quota for
// the context is spent.
const KindSuppressed resolve.Kind = "suppressed"

// CorrectOutput is the result of Correct.
type CorrectOutput struct {
	Text     string           `json:"text"`
	Edits    []rewrite.Edit   `json:"edits"`
	Outcomes []resolve.Report `json:"outcomes"`
	Summary  string           `json:"summary"`
	Changed  bool             `json:"changed"`
}

// Correct rewrites mismatched pronouns at the correct-mode floor. People
// whose duplicate quota is spent still claim their pronouns but are not
// resolved, so nothing of theirs is rewritten. One tracker record is
// appended per person whose pronouns were rewritten.
func (e *Engine) Correct(ctx context.Context, req Request) (*CorrectOutput, error) {
	people, err := mergePeople(req.People)
	if err != nil {
		return nil, err
	}
	fp := e.fingerprint(req.Text)

	suppressed := make(map[string]bool)
	for _, person := range people {
		if e.tracker.IsDuplicate(e.key(req.Context, person.ID), fp) {
			suppressed[person.ID] = true
		}
	}

	p, err := e.run(ctx, req, e.opts.CorrectFloor, suppressed)
	if err != nil {
		return nil, err
	}

	var decisions []resolve.Decision
	byPosition := make(map[int]string)
	for _, r := range p.runs {
		for _, d := range resolve.Decisions(r.outcome) {
			decisions = append(decisions, d)
			byPosition[d.Position] = d.PersonID
		}
	}
	rw := rewrite.Apply(req.Text, decisions)

	corrected := make(map[string]bool)
	for _, edit := range rw.Edits {
		id := byPosition[edit.Position]
		if id == "" || corrected[id] {
			continue
		}
		corrected[id] = true
		e.tracker.Record(e.key(req.Context, id), fp)
	}

	reports := make([]resolve.Report, len(p.runs))
	for i, r := range p.runs {
		if r.skipped {
			reports[i] = e.suppressedReport(r.person.ID)
			continue
		}
		reports[i] = resolve.NewReport(r.outcome)
	}

	return &CorrectOutput{
		Text:     rw.Text,
		Edits:    rw.Edits,
		Outcomes: reports,
		Summary:  summarize(reports),
		Changed:  rw.Text != req.Text,
	}, nil
}

func (e *Engine) key(contextKey, personID string) dedupe.Key {
	return dedupe.Key{Context: contextKey, Person: personID}
}

func (e *Engine) fingerprint(text string) string {
	if !e.opts.Fingerprint {
		return ""
	}
	return dedupe.Fingerprint(text)
}

func (e *Engine) suppressedReport(personID string) resolve.Report {
	msg := fmt.Sprintf("corrections for %s suppressed: duplicate within %s (limit %d)",
		personID, e.tracker.Window(), e.tracker.MaxPerWindow())
	return resolve.Report{
		Kind:        KindSuppressed,
		PersonID:    personID,
		Explanation: msg,
		Suppressed:  true,
	}
}

func summarize(reports []resolve.Report) string {
	if len(reports) == 0 {
		return "no people referenced"
	}
	parts := make([]string, len(reports))
	for i, r := range reports {
		parts[i] = r.Explanation
	}
	return strings.Join(parts, "; ")
}
