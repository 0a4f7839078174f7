package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/hpungsan/pronounguard/internal/resolve"
	"github.com/hpungsan/pronounguard/internal/rewrite"
)

// CheckOutput is the result of Check.
type CheckOutput struct {
	Proceed   bool             `json:"proceed"`
	Summary   string           `json:"summary"`
	Outcomes  []resolve.Report `json:"outcomes"`
	Suggested string           `json:"suggested,omitempty"`
	Edits     []rewrite.Edit   `json:"edits,omitempty"`
}

// Check is the blocking mode. It resolves at the check-mode floor and
// fails Proceed when the rewriter accepts at least one edit. A mismatch
// whose duplicate quota is spent does not block again. Each person owning
// an accepted edit appends a tracker record.
func (e *Engine) Check(ctx context.Context, req Request) (*CheckOutput, error) {
	p, err := e.run(ctx, req, e.opts.CheckFloor, nil)
	if err != nil {
		return nil, err
	}
	fp := e.fingerprint(req.Text)
	reports := p.reports()

	var (
		repeated  []string
		decisions []resolve.Decision
	)
	byPosition := make(map[int]string)
	for i, r := range p.runs {
		ds := resolve.Decisions(r.outcome)
		if len(ds) == 0 {
			continue
		}
		if e.tracker.IsDuplicate(e.key(req.Context, r.person.ID), fp) {
			reports[i].Suppressed = true
			repeated = append(repeated, r.person.ID)
			continue
		}
		for _, d := range ds {
			decisions = append(decisions, d)
			byPosition[d.Position] = d.PersonID
		}
	}

	rw := rewrite.Apply(req.Text, decisions)
	var blockers []string
	blocked := make(map[string]bool)
	for _, edit := range rw.Edits {
		id := byPosition[edit.Position]
		if id == "" || blocked[id] {
			continue
		}
		blocked[id] = true
		blockers = append(blockers, id)
		e.tracker.Record(e.key(req.Context, id), fp)
	}

	out := &CheckOutput{
		Proceed:  len(rw.Edits) == 0,
		Outcomes: reports,
	}
	if !out.Proceed {
		out.Suggested = rw.Text
		out.Edits = rw.Edits
	}
	out.Summary = checkSummary(blockers, repeated, out.Edits)
	return out, nil
}

func checkSummary(blockers, repeated []string, edits []rewrite.Edit) string {
	var parts []string
	if len(blockers) > 0 {
		changes := make([]string, len(edits))
		for i, ed := range edits {
			changes[i] = ed.Original + " -> " + ed.Corrected
		}
		parts = append(parts, fmt.Sprintf("pronoun mismatch for %s: %s",
			strings.Join(blockers, ", "), strings.Join(changes, ", ")))
	}
	if len(repeated) > 0 {
		parts = append(parts, fmt.Sprintf("mismatch for %s already flagged in this window; not blocking again",
			strings.Join(repeated, ", ")))
	}
	if len(parts) == 0 {
		return "no blocking mismatches"
	}
	return strings.Join(parts, "; ")
}
