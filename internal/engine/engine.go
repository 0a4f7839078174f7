// Package engine wires the directory, scanner, resolver, rewriter and
// duplicate tracker into the operations exposed by the CLI, MCP and HTTP
// surfaces.
package engine

import (
	"context"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hpungsan/pronounguard/internal/config"
	"github.com/hpungsan/pronounguard/internal/dedupe"
	"github.com/hpungsan/pronounguard/internal/directory"
	"github.com/hpungsan/pronounguard/internal/errors"
	"github.com/hpungsan/pronounguard/internal/pronoun"
	"github.com/hpungsan/pronounguard/internal/resolve"
	"github.com/hpungsan/pronounguard/internal/scan"
)

// Default gate floors.
const (
	DefaultCorrectFloor = 70
	DefaultCheckFloor   = 80
)

// RequestSource is the source recorded for labels supplied in a request.
const RequestSource = "request"

// maxResolvers bounds concurrent person resolutions per request.
const maxResolvers = 8

// Person is someone referenced by a message.
type Person = scan.Person

// Request is the input shared by Analyze, Correct and Check.
type Request struct {
	// Context groups duplicate records, e.g. a channel or conversation ID.
	Context string            `json:"context"`
	Text    string            `json:"text"`
	People  []Person          `json:"people"`
	Labels  map[string]string `json:"labels,omitempty"`
}

// Options configures an Engine.
type Options struct {
	Table         *pronoun.Table
	Directory     *directory.Directory
	Tracker       *dedupe.Tracker
	Logger        *zap.Logger
	Resolve       directory.ResolveOptions
	CorrectFloor  int
	CheckFloor    int
	Window        scan.Window
	Aggregation   resolve.Aggregation
	KeepIgnorable bool
	Fingerprint   bool
}

// OptionsFromConfig maps configuration onto engine options. Table,
// Directory, Tracker and Logger are left for the caller.
func OptionsFromConfig(cfg *config.Config) (Options, error) {
	window, ok := scan.WindowByName(cfg.WindowPolicy)
	if !ok {
		return Options{}, errors.NewInvalidRequest("window_policy must be one of: proximity, correlation")
	}
	agg, ok := resolve.ParseAggregation(cfg.Aggregation)
	if !ok {
		return Options{}, errors.NewInvalidRequest("aggregation must be one of: max, mean, blend")
	}
	return Options{
		Resolve: directory.ResolveOptions{
			Sources:        cfg.Sources,
			CustomEndpoint: cfg.CustomEndpoint,
			Timeout:        time.Duration(cfg.SourceTimeoutMs) * time.Millisecond,
		},
		CorrectFloor:  cfg.CorrectFloor,
		CheckFloor:    cfg.CheckFloor,
		Window:        window,
		Aggregation:   agg,
		KeepIgnorable: cfg.KeepIgnorable,
		Fingerprint:   cfg.Fingerprint,
	}, nil
}

// Engine is safe for concurrent use.
type Engine struct {
	scanner  *scan.Scanner
	resolver *resolve.Resolver
	dir      *directory.Directory
	tracker  *dedupe.Tracker
	log      *zap.Logger
	opts     Options
}

// New builds an engine. A nil Directory, Tracker or Logger gets an
// in-memory default.
func New(opts Options) *Engine {
	if opts.Table == nil {
		opts.Table = pronoun.DefaultTable()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Directory == nil {
		opts.Directory = directory.New(directory.Options{Logger: opts.Logger})
	}
	if opts.Tracker == nil {
		opts.Tracker = dedupe.New(dedupe.Options{Logger: opts.Logger})
	}
	if opts.CorrectFloor <= 0 {
		opts.CorrectFloor = DefaultCorrectFloor
	}
	if opts.CheckFloor <= 0 {
		opts.CheckFloor = DefaultCheckFloor
	}
	if opts.Aggregation == "" {
		opts.Aggregation = resolve.AggregateMax
	}
	if opts.Window.Before == 0 && opts.Window.After == 0 {
		opts.Window = scan.ProximityWindow
	}
	return &Engine{
		scanner:  scan.New(opts.Table),
		resolver: resolve.New(opts.Table),
		dir:      opts.Directory,
		tracker:  opts.Tracker,
		log:      opts.Logger,
		opts:     opts,
	}
}

// Directory returns the engine's pronoun directory.
func (e *Engine) Directory() *directory.Directory { return e.dir }

// Tracker returns the engine's duplicate tracker.
func (e *Engine) Tracker() *dedupe.Tracker { return e.tracker }

// personRun is one person's path through the pipeline. A skipped run
// keeps its claimed occurrences but has no label and no outcome.
type personRun struct {
	person  Person
	label   directory.Result
	nearby  []string
	outcome resolve.Outcome
	skipped bool
}

// pipeline is the shared scan and resolve pass.
type pipeline struct {
	scan *scan.Result
	runs []personRun
}

// run validates the request, resolves every person's label, scans the
// text once, and resolves each person at floor. People in skip still take
// part in the scan and in ownership, so their pronouns are never handed to
// someone else, but they are neither looked up nor resolved.
func (e *Engine) run(ctx context.Context, req Request, floor int, skip map[string]bool) (*pipeline, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, errors.NewInvalidRequest("text is required")
	}
	people, err := mergePeople(req.People)
	if err != nil {
		return nil, err
	}

	labels, err := e.resolveLabels(ctx, people, req.Labels, skip)
	if err != nil {
		return nil, err
	}

	res := e.scanner.Scan(req.Text, people, scan.Options{
		KeepIgnorable: e.opts.KeepIgnorable,
		Window:        e.opts.Window,
	})
	owned := assignOwners(res, people)

	p := &pipeline{scan: res, runs: make([]personRun, len(people))}
	for i, person := range people {
		if skip[person.ID] {
			p.runs[i] = personRun{person: person, nearby: res.Nearby[person.ID], skipped: true}
			continue
		}
		occs := owned[person.ID]
		p.runs[i] = personRun{
			person: person,
			label:  labels[i],
			nearby: res.Nearby[person.ID],
			outcome: e.resolver.Resolve(resolve.Input{
				PersonID:    person.ID,
				Label:       labels[i].Label,
				Occurrences: occs,
				Floor:       floor,
				Aggregation: e.opts.Aggregation,
			}),
		}
		e.log.Debug("resolved person",
			zap.String("person_id", person.ID),
			zap.String("context", req.Context),
			zap.String("source", labels[i].Source),
			zap.String("outcome", string(p.runs[i].outcome.Kind())))
	}
	return p, nil
}

// resolveLabels looks up every person through the directory, one
// goroutine per person. Sources for a single person stay sequential. A
// label supplied in the request applies to that request only and never
// reaches the directory cache.
func (e *Engine) resolveLabels(ctx context.Context, people []Person, supplied map[string]string, skip map[string]bool) ([]directory.Result, error) {
	out := make([]directory.Result, len(people))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxResolvers)
	for i, p := range people {
		if skip[p.ID] {
			continue
		}
		if label, ok := supplied[p.ID]; ok {
			out[i] = directory.Result{Label: pronoun.Normalize(label), Source: RequestSource}
			continue
		}
		g.Go(func() error {
			out[i] = e.dir.Resolve(gctx, p.ID, e.opts.Resolve)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, errors.NewInternal(err)
	}
	if ctx.Err() != nil {
		return nil, errors.NewInternal(ctx.Err())
	}
	return out, nil
}

// mergePeople drops duplicate IDs, folding their display names together.
func mergePeople(in []Person) ([]Person, error) {
	out := make([]Person, 0, len(in))
	index := make(map[string]int, len(in))
	for _, p := range in {
		id := strings.TrimSpace(p.ID)
		if id == "" {
			return nil, errors.NewInvalidRequest("person id must not be empty")
		}
		if i, ok := index[id]; ok {
			out[i].Names = append(out[i].Names, p.Names...)
			continue
		}
		index[id] = len(out)
		out = append(out, Person{ID: id, Names: append([]string(nil), p.Names...)})
	}
	return out, nil
}

// assignOwners gives each occurrence to the person whose marker is
// nearest. A person without a marker only keeps occurrences nobody with a
// marker claims. Ties go to the person listed first.
func assignOwners(res *scan.Result, people []Person) map[string][]scan.Occurrence {
	type claim struct {
		person   string
		distance int
	}
	owner := make(map[int]claim)
	for _, p := range people {
		for _, occ := range res.ForPerson(p.ID) {
			d := res.Distance(p.ID, occ)
			if d < 0 {
				d = math.MaxInt
			}
			if c, ok := owner[occ.Position]; ok && c.distance <= d {
				continue
			}
			owner[occ.Position] = claim{person: p.ID, distance: d}
		}
	}

	out := make(map[string][]scan.Occurrence, len(people))
	for _, occ := range res.Occurrences {
		if c, ok := owner[occ.Position]; ok {
			out[c.person] = append(out[c.person], occ)
		}
	}
	return out
}

// reports flattens every run's outcome.
func (p *pipeline) reports() []resolve.Report {
	out := make([]resolve.Report, len(p.runs))
	for i, r := range p.runs {
		out[i] = resolve.NewReport(r.outcome)
	}
	return out
}
