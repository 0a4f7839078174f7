// Package dedupe tracks correction events per (context, person) key and
// suppresses further corrections once a rolling window's quota is spent.
package dedupe

import (
	"context"
	"crypto/rand"
	"fmt"
	"hash/fnv"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

const (
	DefaultWindow        = 30 * time.Minute
	DefaultMaxPerWindow  = 2
	DefaultSweepInterval = 30 * time.Minute
)

// Key groups records: one conversation or channel and one person.
type Key struct {
	Context string `json:"context"`
	Person  string `json:"person"`
}

// Record is one correction event.
type Record struct {
	ID          string    `json:"id"`
	Key         Key       `json:"key"`
	Timestamp   time.Time `json:"timestamp"`
	Fingerprint string    `json:"fingerprint,omitempty"`
}

// Summary is a read-only view over a subset of the records, computed at
// call time.
type Summary struct {
	Records  int        `json:"records"`
	InWindow int        `json:"in_window"`
	Keys     int        `json:"keys"`
	Contexts int        `json:"contexts"`
	People   int        `json:"people"`
	Oldest   *time.Time `json:"oldest,omitempty"`
	Newest   *time.Time `json:"newest,omitempty"`
}

// Options configures a Tracker. Zero values take the defaults.
type Options struct {
	Window        time.Duration
	MaxPerWindow  int
	SweepInterval time.Duration
	Clock         func() time.Time
	Logger        *zap.Logger
}

// Tracker is safe for concurrent use.
type Tracker struct {
	mu        sync.Mutex
	records   map[Key][]Record
	lastSweep time.Time
	entropy   io.Reader

	window   time.Duration
	max      int
	interval time.Duration
	now      func() time.Time
	log      *zap.Logger
}

// New creates an empty tracker.
func New(opts Options) *Tracker {
	t := &Tracker{
		records:  make(map[Key][]Record),
		entropy:  ulid.Monotonic(rand.Reader, 0),
		window:   opts.Window,
		max:      opts.MaxPerWindow,
		interval: opts.SweepInterval,
		now:      opts.Clock,
		log:      opts.Logger,
	}
	if t.window <= 0 {
		t.window = DefaultWindow
	}
	if t.max <= 0 {
		t.max = DefaultMaxPerWindow
	}
	if t.interval <= 0 {
		t.interval = DefaultSweepInterval
	}
	if t.now == nil {
		t.now = time.Now
	}
	if t.log == nil {
		t.log = zap.NewNop()
	}
	t.lastSweep = t.now()
	return t
}

// Fingerprint hashes message content with FNV-1a 64.
func Fingerprint(content string) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(content))
	return fmt.Sprintf("%016x", h.Sum64())
}

// Window returns the rolling window length.
func (t *Tracker) Window() time.Duration { return t.window }

// MaxPerWindow returns the per-key quota.
func (t *Tracker) MaxPerWindow() int { return t.max }

// IsDuplicate reports whether key has used its quota inside the window,
// or, when fingerprint is non-empty, already holds an in-window record
// with the same fingerprint.
func (t *Tracker) IsDuplicate(key Key, fingerprint string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	t.maybeSweepLocked(now)

	count := 0
	for _, r := range t.records[key] {
		if !t.inWindow(r, now) {
			continue
		}
		count++
		if fingerprint != "" && r.Fingerprint == fingerprint {
			return true
		}
	}
	return count >= t.max
}

// Record appends an event for key at the current time.
func (t *Tracker) Record(key Key, fingerprint string) Record {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	t.maybeSweepLocked(now)

	r := Record{
		ID:          ulid.MustNew(ulid.Timestamp(now), t.entropy).String(),
		Key:         key,
		Timestamp:   now,
		Fingerprint: fingerprint,
	}
	t.records[key] = append(t.records[key], r)
	return r
}

// Sweep drops records older than twice the window and removes empty keys.
// It returns the number of records dropped.
func (t *Tracker) Sweep() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sweepLocked(t.now())
}

// Start runs Sweep every sweep interval until ctx is done or stop is
// called. stop waits for the sweeper to exit.
func (t *Tracker) Start(ctx context.Context) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(t.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				t.Sweep()
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

// ClearAll removes every record.
func (t *Tracker) ClearAll() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, rs := range t.records {
		n += len(rs)
	}
	t.records = make(map[Key][]Record)
	return n
}

// ClearKey removes the records for one key.
func (t *Tracker) ClearKey(key Key) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := len(t.records[key])
	delete(t.records, key)
	return n
}

// ClearPerson removes a person's records in every context.
func (t *Tracker) ClearPerson(person string) int {
	return t.clearWhere(func(k Key) bool { return k.Person == person })
}

// ClearContext removes every person's records in one context.
func (t *Tracker) ClearContext(contextKey string) int {
	return t.clearWhere(func(k Key) bool { return k.Context == contextKey })
}

// PersonStats summarizes a person's records across contexts.
func (t *Tracker) PersonStats(person string) Summary {
	return t.summarize(func(k Key) bool { return k.Person == person })
}

// ContextStats summarizes one context's records.
func (t *Tracker) ContextStats(contextKey string) Summary {
	return t.summarize(func(k Key) bool { return k.Context == contextKey })
}

// Stats summarizes every record.
func (t *Tracker) Stats() Summary {
	return t.summarize(func(Key) bool { return true })
}

func (t *Tracker) clearWhere(match func(Key) bool) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for k, rs := range t.records {
		if match(k) {
			n += len(rs)
			delete(t.records, k)
		}
	}
	return n
}

func (t *Tracker) summarize(match func(Key) bool) Summary {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	t.maybeSweepLocked(now)

	var s Summary
	contexts := make(map[string]bool)
	people := make(map[string]bool)
	for k, rs := range t.records {
		if !match(k) || len(rs) == 0 {
			continue
		}
		s.Keys++
		contexts[k.Context] = true
		people[k.Person] = true
		for _, r := range rs {
			s.Records++
			if t.inWindow(r, now) {
				s.InWindow++
			}
			ts := r.Timestamp
			if s.Oldest == nil || ts.Before(*s.Oldest) {
				s.Oldest = &ts
			}
			if s.Newest == nil || ts.After(*s.Newest) {
				s.Newest = &ts
			}
		}
	}
	s.Contexts = len(contexts)
	s.People = len(people)
	return s
}

func (t *Tracker) inWindow(r Record, now time.Time) bool {
	return now.Sub(r.Timestamp) < t.window
}

func (t *Tracker) maybeSweepLocked(now time.Time) {
	if now.Sub(t.lastSweep) >= t.interval {
		t.sweepLocked(now)
	}
}

func (t *Tracker) sweepLocked(now time.Time) int {
	t.lastSweep = now
	cutoff := 2 * t.window
	dropped := 0
	for k, rs := range t.records {
		kept := rs[:0]
		for _, r := range rs {
			if now.Sub(r.Timestamp) > cutoff {
				dropped++
				continue
			}
			kept = append(kept, r)
		}
		if len(kept) == 0 {
			delete(t.records, k)
			continue
		}
		t.records[k] = kept
	}
	if dropped > 0 {
		t.log.Debug("swept duplicate records", zap.Int("dropped", dropped), zap.Int("keys", len(t.records)))
	}
	return dropped
}
