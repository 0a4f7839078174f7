// Package directory resolves a person's declared pronouns from an ordered
// list of sources and caches successful answers for a bounded time.
//
// Every pronoun lookup in pronounguard routes through a Directory. Sources
// are tried sequentially in the caller's order, each under its own
// deadline; a failing or slow source is logged and skipped. Only labels
// other than "unspecified" are cached, so a negative answer is retried on
// the next call.
package directory

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/hpungsan/pronounguard/internal/pronoun"
)

// Defaults
const (
	DefaultTTL     = 5 * time.Minute
	DefaultTimeout = 5000 * time.Millisecond
)

// Source is one place a person's pronouns can be looked up.
// Lookup returns the raw reply; the directory normalizes it.
type Source interface {
	Name() string
	Lookup(ctx context.Context, personID string) (string, error)
}

// Record is a cached resolution.
type Record struct {
	PersonID   string    `json:"person_id"`
	Label      string    `json:"label"`
	Source     string    `json:"source"`
	ResolvedAt time.Time `json:"resolved_at"`
}

// Result is the outcome of Resolve.
type Result struct {
	Label  string `json:"label"`
	Source string `json:"source,omitempty"`
	Cached bool   `json:"cached"`
}

// ResolveOptions selects the sources for one resolution.
type ResolveOptions struct {
	// Sources are source names in the order to try. Empty uses the
	// directory's default order.
	Sources []string
	// CustomEndpoint, when set, provides the "custom" source for this call.
	CustomEndpoint string
	// Timeout bounds each source attempt. Zero uses the directory default.
	Timeout time.Duration
}

// Options configures a Directory.
type Options struct {
	TTL        time.Duration
	Timeout    time.Duration
	Order      []string
	Logger     *zap.Logger
	HTTPClient *http.Client
	Clock      func() time.Time
}

// Stats is a read-only view of the cache.
type Stats struct {
	Entries  int            `json:"entries"`
	Fresh    int            `json:"fresh"`
	Hits     int64          `json:"hits"`
	Misses   int64          `json:"misses"`
	Failures map[string]int `json:"failures,omitempty"`
}

// Directory is the pronoun cache plus its sources. Safe for concurrent use.
type Directory struct {
	mu       sync.Mutex
	cache    map[string]Record
	sources  map[string]Source
	order    []string
	hits     int64
	misses   int64
	failures map[string]int

	ttl     time.Duration
	timeout time.Duration
	client  *http.Client
	now     func() time.Time
	logger  *zap.Logger
	group   singleflight.Group
}

// New creates a Directory with the given sources registered. When
// opts.Order is empty the registration order is the default order.
func New(opts Options, sources ...Source) *Directory {
	d := &Directory{
		cache:    make(map[string]Record),
		sources:  make(map[string]Source),
		failures: make(map[string]int),
		ttl:      opts.TTL,
		timeout:  opts.Timeout,
		client:   opts.HTTPClient,
		now:      opts.Clock,
		logger:   opts.Logger,
	}
	if d.ttl <= 0 {
		d.ttl = DefaultTTL
	}
	if d.timeout <= 0 {
		d.timeout = DefaultTimeout
	}
	if d.client == nil {
		d.client = http.DefaultClient
	}
	if d.now == nil {
		d.now = time.Now
	}
	if d.logger == nil {
		d.logger = zap.NewNop()
	}

	for _, s := range sources {
		d.Register(s)
	}
	if len(opts.Order) > 0 {
		d.order = append([]string(nil), opts.Order...)
	}
	return d
}

// Register adds or replaces a source. New names are appended to the
// default order.
func (d *Directory) Register(src Source) {
	d.mu.Lock()
	defer d.mu.Unlock()
	name := src.Name()
	if _, exists := d.sources[name]; !exists {
		d.order = append(d.order, name)
	}
	d.sources[name] = src
}

// SourceNames returns the default source order.
func (d *Directory) SourceNames() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.order...)
}

// Resolve returns the person's label. A fresh cache entry is returned
// without touching any source. Failures never surface as errors; the
// worst case is "unspecified".
func (d *Directory) Resolve(ctx context.Context, personID string, opts ResolveOptions) Result {
	personID = strings.TrimSpace(personID)
	if personID == "" {
		return Result{Label: pronoun.Unspecified}
	}

	if rec, ok := d.Cached(personID); ok {
		d.mu.Lock()
		d.hits++
		d.mu.Unlock()
		return Result{Label: rec.Label, Source: rec.Source, Cached: true}
	}

	d.mu.Lock()
	d.misses++
	d.mu.Unlock()

	key := personID + "\x00" + strings.Join(opts.Sources, ",") + "\x00" + opts.CustomEndpoint
	v, _, _ := d.group.Do(key, func() (any, error) {
		return d.resolveSources(ctx, personID, opts), nil
	})
	return v.(Result)
}

func (d *Directory) resolveSources(ctx context.Context, personID string, opts ResolveOptions) Result {
	names := opts.Sources
	if len(names) == 0 {
		names = d.SourceNames()
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = d.timeout
	}

	for _, name := range names {
		if ctx.Err() != nil {
			d.logger.Debug("resolution cancelled",
				zap.String("person_id", personID),
				zap.Error(ctx.Err()))
			break
		}

		src, ok := d.source(name, opts.CustomEndpoint)
		if !ok {
			d.logger.Warn("unknown pronoun source", zap.String("source", name))
			continue
		}

		raw, err := attempt(ctx, src, personID, timeout)
		if err != nil {
			d.noteFailure(name)
			d.logger.Warn("pronoun source failed",
				zap.String("source", name),
				zap.String("person_id", personID),
				zap.Error(err))
			continue
		}

		label := pronoun.Normalize(raw)
		if label == pronoun.Unspecified {
			continue
		}

		d.store(Record{
			PersonID:   personID,
			Label:      label,
			Source:     name,
			ResolvedAt: d.now(),
		})
		return Result{Label: label, Source: name}
	}

	return Result{Label: pronoun.Unspecified}
}

// source finds a registered source. "custom" is built on demand from the
// call's endpoint template, which takes precedence over a registered one.
func (d *Directory) source(name, customEndpoint string) (Source, bool) {
	if name == CustomSourceName && customEndpoint != "" {
		return NewCustomSource(customEndpoint, d.client), true
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	src, ok := d.sources[name]
	return src, ok
}

// attempt runs one lookup under its own deadline. The lookup is abandoned
// at the deadline even if the source ignores its context.
func attempt(ctx context.Context, src Source, personID string, timeout time.Duration) (string, error) {
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type reply struct {
		raw string
		err error
	}
	ch := make(chan reply, 1)
	go func() {
		raw, err := src.Lookup(actx, personID)
		ch <- reply{raw: raw, err: err}
	}()

	select {
	case r := <-ch:
		return r.raw, r.err
	case <-actx.Done():
		return "", actx.Err()
	}
}

// Cached returns the cache entry for personID if it is still fresh.
func (d *Directory) Cached(personID string) (Record, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	rec, ok := d.cache[personID]
	if !ok {
		return Record{}, false
	}
	if d.now().Sub(rec.ResolvedAt) >= d.ttl {
		delete(d.cache, personID)
		return Record{}, false
	}
	return rec, true
}

// Put seeds the cache with a label, normalized like a source reply.
// Sentinel "unspecified" is never stored.
func (d *Directory) Put(personID, label, source string) {
	label = pronoun.Normalize(label)
	if label == pronoun.Unspecified {
		return
	}
	d.store(Record{PersonID: personID, Label: label, Source: source, ResolvedAt: d.now()})
}

func (d *Directory) store(rec Record) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cache[rec.PersonID] = rec
}

func (d *Directory) noteFailure(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failures[name]++
}

// Invalidate drops one person's entry. Returns true if one existed.
func (d *Directory) Invalidate(personID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.cache[personID]
	delete(d.cache, personID)
	return ok
}

// Clear drops every cache entry and returns how many were dropped.
func (d *Directory) Clear() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := len(d.cache)
	d.cache = make(map[string]Record)
	return n
}

// Records returns the fresh cache entries.
func (d *Directory) Records() []Record {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.now()
	out := make([]Record, 0, len(d.cache))
	for _, rec := range d.cache {
		if now.Sub(rec.ResolvedAt) < d.ttl {
			out = append(out, rec)
		}
	}
	return out
}

// Stats reports cache counters at call time.
func (d *Directory) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.now()
	s := Stats{
		Entries: len(d.cache),
		Hits:    d.hits,
		Misses:  d.misses,
	}
	for _, rec := range d.cache {
		if now.Sub(rec.ResolvedAt) < d.ttl {
			s.Fresh++
		}
	}
	if len(d.failures) > 0 {
		s.Failures = make(map[string]int, len(d.failures))
		for k, v := range d.failures {
			s.Failures[k] = v
		}
	}
	return s
}

// Close clears the cache and counters.
func (d *Directory) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cache = make(map[string]Record)
	d.failures = make(map[string]int)
	d.hits, d.misses = 0, 0
}
