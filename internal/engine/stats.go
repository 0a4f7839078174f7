package engine

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/hpungsan/pronounguard/internal/dedupe"
	"github.com/hpungsan/pronounguard/internal/directory"
	"github.com/hpungsan/pronounguard/internal/errors"
)

// ResolveOutput is the result of Resolve.
type ResolveOutput struct {
	PersonID string `json:"person_id"`
	directory.Result
}

// Resolve looks up one person's label through the directory.
func (e *Engine) Resolve(ctx context.Context, personID string) (*ResolveOutput, error) {
	personID = strings.TrimSpace(personID)
	if personID == "" {
		return nil, errors.NewInvalidRequest("person id is required")
	}
	res := e.dir.Resolve(ctx, personID, e.opts.Resolve)
	return &ResolveOutput{PersonID: personID, Result: res}, nil
}

// StatsInput narrows the tracker views; both fields are optional.
type StatsInput struct {
	Person  string `json:"person,omitempty"`
	Context string `json:"context,omitempty"`
}

// StatsOutput is a point-in-time view of the engine's stores.
type StatsOutput struct {
	Tracker   dedupe.Summary  `json:"tracker"`
	Directory directory.Stats `json:"directory"`
	Person    *dedupe.Summary `json:"person,omitempty"`
	Context   *dedupe.Summary `json:"context,omitempty"`
}

// Stats reports tracker and directory state at call time.
func (e *Engine) Stats(in StatsInput) *StatsOutput {
	out := &StatsOutput{
		Tracker:   e.tracker.Stats(),
		Directory: e.dir.Stats(),
	}
	if in.Person != "" {
		s := e.tracker.PersonStats(in.Person)
		out.Person = &s
	}
	if in.Context != "" {
		s := e.tracker.ContextStats(in.Context)
		out.Context = &s
	}
	return out
}

// ClearScope selects what Clear removes.
type ClearScope string

const (
	ClearAll     ClearScope = "all"
	ClearPerson  ClearScope = "person"
	ClearContext ClearScope = "context"
	ClearKey     ClearScope = "key"
	ClearCache   ClearScope = "cache"
)

// ClearInput contains parameters for Clear.
type ClearInput struct {
	Scope   ClearScope `json:"scope"`
	Person  string     `json:"person,omitempty"`
	Context string     `json:"context,omitempty"`
}

// ClearOutput reports what was removed.
type ClearOutput struct {
	Records      int `json:"records"`
	CacheEntries int `json:"cache_entries"`
}

// Clear removes duplicate records and cached labels. "all" empties both
// stores; "person" also drops the person's cached label; "cache" empties
// only the directory cache.
func (e *Engine) Clear(in ClearInput) (*ClearOutput, error) {
	if in.Scope == "" {
		in.Scope = ClearAll
	}
	out := &ClearOutput{}
	switch in.Scope {
	case ClearAll:
		out.Records = e.tracker.ClearAll()
		out.CacheEntries = e.dir.Clear()
	case ClearPerson:
		if in.Person == "" {
			return nil, errors.NewInvalidRequest("person is required for scope person")
		}
		out.Records = e.tracker.ClearPerson(in.Person)
		if e.dir.Invalidate(in.Person) {
			out.CacheEntries = 1
		}
	case ClearContext:
		if in.Context == "" {
			return nil, errors.NewInvalidRequest("context is required for scope context")
		}
		out.Records = e.tracker.ClearContext(in.Context)
	case ClearKey:
		if in.Person == "" {
			return nil, errors.NewInvalidRequest("person is required for scope key")
		}
		out.Records = e.tracker.ClearKey(e.key(in.Context, in.Person))
	case ClearCache:
		out.CacheEntries = e.dir.Clear()
	default:
		return nil, errors.NewInvalidRequest("scope must be one of: all, person, context, key, cache")
	}
	e.log.Info("cleared",
		zap.String("scope", string(in.Scope)),
		zap.Int("records", out.Records),
		zap.Int("cache_entries", out.CacheEntries))
	return out, nil
}
