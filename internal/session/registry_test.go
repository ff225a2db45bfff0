package session

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/letsdeepchat/MedAppAuto/internal/dialogue"
)

var registryNow = time.Date(2026, time.January, 5, 8, 0, 0, 0, time.UTC)

type registryClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *registryClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *registryClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestRegistry(t *testing.T, opts ...Option) (*Registry, *registryClock) {
	t.Helper()
	clock := &registryClock{t: registryNow}
	opts = append([]Option{WithClock(clock.Now)}, opts...)
	return NewRegistry(nil, opts...), clock
}

func TestGetOrCreateReturnsSameSession(t *testing.T) {
	r, _ := newTestRegistry(t)

	first := r.GetOrCreate("sess-1")
	second := r.GetOrCreate("sess-1")

	require.Same(t, first, second)
	assert.Equal(t, "sess-1", first.ID)
	assert.Equal(t, 1, r.Len())
}

func TestBlankIDGetsUUID(t *testing.T) {
	r, _ := newTestRegistry(t)

	a := r.GetOrCreate("")
	b := r.GetOrCreate("")

	require.NotEmpty(t, a.ID)
	require.NotEmpty(t, b.ID)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, 2, r.Len())
}

func TestTouchRefreshesActivity(t *testing.T) {
	r, clock := newTestRegistry(t, WithIdleTimeout(30*time.Minute))

	r.GetOrCreate("sess-1")
	clock.Advance(10 * time.Minute)
	r.Touch("sess-1")

	// 35m since creation but only 25m since the touch.
	clock.Advance(25 * time.Minute)
	assert.Equal(t, 0, r.EvictExpired(clock.Now()))

	// Touching an unknown id is a no-op.
	r.Touch("missing")
	assert.Equal(t, 1, r.Len())
}

func TestWithSessionRefreshesActivity(t *testing.T) {
	r, clock := newTestRegistry(t, WithIdleTimeout(30*time.Minute))

	r.WithSession("sess-1", func(*dialogue.Session) {})
	clock.Advance(25 * time.Minute)
	r.WithSession("sess-1", func(*dialogue.Session) {})
	clock.Advance(25 * time.Minute)

	assert.Equal(t, 0, r.EvictExpired(clock.Now()))
	assert.Equal(t, 1, r.Len())
}

func TestEvictExpired(t *testing.T) {
	r, clock := newTestRegistry(t, WithIdleTimeout(30*time.Minute))

	r.GetOrCreate("stale")
	clock.Advance(20 * time.Minute)
	r.GetOrCreate("fresh")

	clock.Advance(15 * time.Minute) // stale idle 35m, fresh idle 15m
	evicted := r.EvictExpired(clock.Now())

	assert.Equal(t, 1, evicted)
	assert.Equal(t, 1, r.Len())

	// The evicted id comes back as a brand-new session.
	replaced := r.GetOrCreate("stale")
	assert.Equal(t, clock.Now(), replaced.CreatedAt)
}

func TestTouchKeepsSessionAlive(t *testing.T) {
	r, clock := newTestRegistry(t, WithIdleTimeout(30*time.Minute))

	r.GetOrCreate("sess-1")
	clock.Advance(25 * time.Minute)
	r.Touch("sess-1")
	clock.Advance(25 * time.Minute)

	assert.Equal(t, 0, r.EvictExpired(clock.Now()))
	assert.Equal(t, 1, r.Len())
}

func TestWithSessionSerializesTurns(t *testing.T) {
	r, _ := newTestRegistry(t)

	// Unsynchronized writes from every goroutine; the per-session lock is
	// what keeps this race-free.
	const turns = 50
	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < turns; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.WithSession("sess-1", func(s *dialogue.Session) {
				counter++
				s.LastActivity = registryNow
			})
		}()
	}
	wg.Wait()

	assert.Equal(t, turns, counter)
	assert.Equal(t, 1, r.Len())
}

// The janitor must not read session fields that a turn writes under the turn
// lock. Run with -race: turns update LastActivity the way the dialogue
// machine does while the janitor sweeps continuously.
func TestEvictionConcurrentWithTurns(t *testing.T) {
	r, clock := newTestRegistry(t, WithIdleTimeout(time.Minute))

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				r.EvictExpired(clock.Now())
			}
		}
	}()

	for i := 0; i < 200; i++ {
		r.WithSession("sess-1", func(s *dialogue.Session) {
			s.LastActivity = clock.Now()
		})
	}
	close(stop)
	wg.Wait()

	assert.Equal(t, 1, r.Len())
}
