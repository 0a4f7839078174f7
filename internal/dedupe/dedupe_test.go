package dedupe

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTracker(clock *fakeClock, quota int) *Tracker {
	return New(Options{Window: 10 * time.Minute, MaxPerWindow: quota, Clock: clock.Now})
}

func TestTracker_WindowBoundary(t *testing.T) {
	clock := newClock()
	tr := newTracker(clock, 2)
	key := Key{Context: "chan-1", Person: "alice"}

	assert.False(t, tr.IsDuplicate(key, ""))
	tr.Record(key, "")
	assert.False(t, tr.IsDuplicate(key, ""))
	tr.Record(key, "")
	assert.True(t, tr.IsDuplicate(key, ""), "third attempt inside window is suppressed")

	clock.Advance(10*time.Minute - time.Millisecond)
	assert.True(t, tr.IsDuplicate(key, ""))

	clock.Advance(time.Millisecond)
	assert.False(t, tr.IsDuplicate(key, ""), "allowed once the window elapses")
}

func TestTracker_KeysAreIndependent(t *testing.T) {
	tr := newTracker(newClock(), 1)
	tr.Record(Key{Context: "a", Person: "alice"}, "")

	assert.True(t, tr.IsDuplicate(Key{Context: "a", Person: "alice"}, ""))
	assert.False(t, tr.IsDuplicate(Key{Context: "b", Person: "alice"}, ""))
	assert.False(t, tr.IsDuplicate(Key{Context: "a", Person: "bob"}, ""))
}

func TestTracker_Fingerprint(t *testing.T) {
	clock := newClock()
	tr := newTracker(clock, 5)
	key := Key{Context: "c", Person: "p"}
	fp := Fingerprint("He is here")

	tr.Record(key, fp)
	assert.True(t, tr.IsDuplicate(key, fp))
	assert.False(t, tr.IsDuplicate(key, Fingerprint("He is there")))
	assert.False(t, tr.IsDuplicate(key, ""))

	clock.Advance(11 * time.Minute)
	assert.False(t, tr.IsDuplicate(key, fp))
}

func TestFingerprint(t *testing.T) {
	assert.Equal(t, Fingerprint("hello"), Fingerprint("hello"))
	assert.NotEqual(t, Fingerprint("hello"), Fingerprint("hello!"))
	assert.Len(t, Fingerprint(""), 16)
	// FNV-1a 64 offset basis.
	assert.Equal(t, "cbf29ce484222325", Fingerprint(""))
}

func TestTracker_RecordIDs(t *testing.T) {
	tr := newTracker(newClock(), 5)
	key := Key{Context: "c", Person: "p"}
	a := tr.Record(key, "")
	b := tr.Record(key, "")

	_, err := ulid.Parse(a.ID)
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Less(t, a.ID, b.ID)
	assert.Equal(t, key, a.Key)
}

func TestTracker_Sweep(t *testing.T) {
	clock := newClock()
	tr := newTracker(clock, 5)
	old := Key{Context: "c", Person: "old"}
	fresh := Key{Context: "c", Person: "fresh"}

	tr.Record(old, "")
	clock.Advance(15 * time.Minute)
	tr.Record(fresh, "")

	clock.Advance(5*time.Minute + time.Second)
	assert.Equal(t, 1, tr.Sweep())

	s := tr.Stats()
	assert.Equal(t, 1, s.Records)
	assert.Equal(t, 1, s.Keys)
	assert.Equal(t, 0, tr.PersonStats("old").Records)
	assert.Equal(t, 0, tr.Sweep())
}

func TestTracker_LazySweep(t *testing.T) {
	clock := newClock()
	tr := New(Options{Window: time.Minute, SweepInterval: 5 * time.Minute, Clock: clock.Now})
	tr.Record(Key{Context: "c", Person: "p"}, "")

	clock.Advance(3 * time.Minute)
	assert.Equal(t, 1, tr.Stats().Records, "expired but interval not reached")

	clock.Advance(2 * time.Minute)
	assert.Equal(t, 0, tr.Stats().Records)
}

func TestTracker_Clear(t *testing.T) {
	tr := newTracker(newClock(), 5)
	tr.Record(Key{Context: "a", Person: "alice"}, "")
	tr.Record(Key{Context: "a", Person: "bob"}, "")
	tr.Record(Key{Context: "b", Person: "alice"}, "")
	tr.Record(Key{Context: "b", Person: "bob"}, "")
	tr.Record(Key{Context: "c", Person: "carol"}, "")

	assert.Equal(t, 1, tr.ClearKey(Key{Context: "c", Person: "carol"}))
	assert.Equal(t, 0, tr.ClearKey(Key{Context: "c", Person: "carol"}))
	assert.Equal(t, 2, tr.ClearPerson("alice"))
	assert.Equal(t, 1, tr.ClearContext("a"))
	assert.Equal(t, 1, tr.Stats().Records)
	assert.Equal(t, 1, tr.ClearAll())
	assert.Equal(t, 0, tr.Stats().Records)
}

func TestTracker_Stats(t *testing.T) {
	clock := newClock()
	tr := newTracker(clock, 5)
	start := clock.Now()

	tr.Record(Key{Context: "a", Person: "alice"}, "")
	clock.Advance(time.Minute)
	tr.Record(Key{Context: "b", Person: "alice"}, "")
	clock.Advance(time.Minute)
	tr.Record(Key{Context: "b", Person: "bob"}, "")

	ps := tr.PersonStats("alice")
	assert.Equal(t, 2, ps.Records)
	assert.Equal(t, 2, ps.Contexts)
	assert.Equal(t, 1, ps.People)
	require.NotNil(t, ps.Oldest)
	require.NotNil(t, ps.Newest)
	assert.True(t, ps.Oldest.Equal(start))
	assert.True(t, ps.Newest.Equal(start.Add(time.Minute)))

	cs := tr.ContextStats("b")
	assert.Equal(t, 2, cs.Records)
	assert.Equal(t, 2, cs.People)
	assert.Equal(t, 1, cs.Contexts)

	clock.Advance(8 * time.Minute)
	all := tr.Stats()
	assert.Equal(t, 3, all.Records)
	assert.Equal(t, 2, all.InWindow, "computed at call time")
	assert.Equal(t, 3, all.Keys)

	empty := tr.PersonStats("nobody")
	assert.Zero(t, empty.Records)
	assert.Nil(t, empty.Oldest)
}

func TestTracker_Defaults(t *testing.T) {
	tr := New(Options{})
	assert.Equal(t, DefaultWindow, tr.Window())
	assert.Equal(t, DefaultMaxPerWindow, tr.MaxPerWindow())
}

func TestTracker_Start(t *testing.T) {
	clock := newClock()
	tr := New(Options{Window: time.Minute, SweepInterval: 5 * time.Millisecond, Clock: clock.Now})
	tr.Record(Key{Context: "c", Person: "p"}, "")
	clock.Advance(3 * time.Minute)

	stop := tr.Start(context.Background())
	defer stop()

	require.Eventually(t, func() bool {
		tr.mu.Lock()
		defer tr.mu.Unlock()
		return len(tr.records) == 0
	}, time.Second, 5*time.Millisecond)
}

func TestTracker_StartStopsOnContext(t *testing.T) {
	tr := New(Options{SweepInterval: time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	stop := tr.Start(ctx)
	cancel()
	stop()
}

func TestTracker_Concurrent(t *testing.T) {
	tr := New(Options{MaxPerWindow: 1000})
	key := Key{Context: "c", Person: "p"}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				if !tr.IsDuplicate(key, "") {
					tr.Record(key, "")
				}
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 200, tr.Stats().Records)
}
