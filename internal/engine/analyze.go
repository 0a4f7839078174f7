package engine

import (
	"context"

	"github.com/hpungsan/pronounguard/internal/resolve"
	"github.com/hpungsan/pronounguard/internal/rewrite"
	"github.com/hpungsan/pronounguard/internal/scan"
)

// PersonView is what the pipeline learned about one person.
type PersonView struct {
	ID        string            `json:"id"`
	Label     string            `json:"label"`
	Source    string            `json:"source,omitempty"`
	Cached    bool              `json:"cached"`
	Nearby    []string          `json:"nearby"`
	Suggested map[string]string `json:"suggested,omitempty"` // nearby mismatch -> replacement
}

// Report is the output of Analyze.
type Report struct {
	People      []PersonView      `json:"people"`
	Occurrences []scan.Occurrence `json:"occurrences"`
	Mentions    []scan.Mention    `json:"mentions"`
	Outcomes    []resolve.Report  `json:"outcomes"`
	Preview     rewrite.Result    `json:"preview"`
	Window      string            `json:"window"`
	Floor       int               `json:"floor"`
}

// Analyze runs the full pipeline at the correct-mode floor and previews
// the rewrite. It never touches the duplicate tracker.
func (e *Engine) Analyze(ctx context.Context, req Request) (*Report, error) {
	floor := e.opts.CorrectFloor
	p, err := e.run(ctx, req, floor, nil)
	if err != nil {
		return nil, err
	}

	var decisions []resolve.Decision
	people := make([]PersonView, len(p.runs))
	for i, r := range p.runs {
		decisions = append(decisions, resolve.Decisions(r.outcome)...)
		people[i] = PersonView{
			ID:        r.person.ID,
			Label:     r.label.Label,
			Source:    r.label.Source,
			Cached:    r.label.Cached,
			Nearby:    r.nearby,
			Suggested: e.suggest(r, floor),
		}
	}

	return &Report{
		People:      people,
		Occurrences: p.scan.Occurrences,
		Mentions:    p.scan.Mentions,
		Outcomes:    p.reports(),
		Preview:     rewrite.Apply(req.Text, decisions),
		Window:      p.scan.Window().Name,
		Floor:       floor,
	}, nil
}

// suggest runs the set-based check over a person's nearby tokens.
func (e *Engine) suggest(r personRun, floor int) map[string]string {
	ds := resolve.Decisions(e.resolver.ResolveNearby(r.person.ID, r.label.Label, r.nearby, floor))
	if len(ds) == 0 {
		return nil
	}
	out := make(map[string]string, len(ds))
	for _, d := range ds {
		out[d.WrongToken] = d.Replacement
	}
	return out
}
