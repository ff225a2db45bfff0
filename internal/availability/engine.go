// Package availability computes free slots and owns every appointment
// mutation. All booking, reschedule and cancel calls for a doctor are
// serialized through that doctor's lock, so two concurrent callers can never
// both commit overlapping slots.
package availability

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/letsdeepchat/MedAppAuto/internal/clinicdata"
	"github.com/letsdeepchat/MedAppAuto/internal/observability/metrics"
	"github.com/letsdeepchat/MedAppAuto/internal/schedule"
	"github.com/letsdeepchat/MedAppAuto/pkg/logging"
)

var tracer = otel.Tracer("medapp.internal.availability")

var (
	// ErrSlotNoLongerAvailable signals that a slot presented earlier was
	// taken before the caller committed. Callers should re-query.
	ErrSlotNoLongerAvailable = errors.New("availability: slot no longer available")
	// ErrAppointmentNotFound covers unknown and already-cancelled ids.
	ErrAppointmentNotFound = errors.New("availability: appointment not found")
	// ErrUnknownAppointmentType rejects requests for types outside the catalog.
	ErrUnknownAppointmentType = errors.New("availability: unknown appointment type")
	// ErrUnknownDoctor rejects requests for doctors outside the dataset.
	ErrUnknownDoctor = errors.New("availability: unknown doctor")
)

// Event is emitted after a mutation commits. Sinks run asynchronously and
// their failures never roll back the mutation.
type Event struct {
	Kind        EventKind
	Appointment *schedule.Appointment
	FeeCents    int
}

// EventKind tags committed mutations for side-effect consumers.
type EventKind string

const (
	EventBooked      EventKind = "booked"
	EventRescheduled EventKind = "rescheduled"
	EventCancelled   EventKind = "cancelled"
)

// EventSink receives post-commit events (calendar sync, notifications).
type EventSink interface {
	Publish(evt Event)
}

// FeeDefaults is the clinic-wide cancellation policy applied when an
// appointment type does not override it.
type FeeDefaults struct {
	CutoffHours    int
	LateFeeCents   int
	NoShowFeeCents int
}

// Engine enforces the scheduling invariants over a Schedule Store.
type Engine struct {
	data    *clinicdata.Dataset
	store   schedule.AppointmentStore
	logger  *logging.Logger
	metrics *metrics.BookingMetrics
	sink    EventSink

	now      func() time.Time
	buffer   time.Duration
	pageSize int
	horizon  time.Duration
	fees     FeeDefaults

	mu    sync.Mutex
	locks map[string]*sync.Mutex

	idSeq atomic.Uint64
}

// Option configures the engine.
type Option func(*Engine)

// WithClock injects the time source. Tests use a fixed clock.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithBuffer sets the idle time required around every appointment.
func WithBuffer(d time.Duration) Option {
	return func(e *Engine) {
		if d >= 0 {
			e.buffer = d
		}
	}
}

// WithPageSize caps how many slots a single availability page returns.
func WithPageSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.pageSize = n
		}
	}
}

// WithHorizon sets how far ahead availability searches by default.
func WithHorizon(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.horizon = d
		}
	}
}

// WithFeeDefaults overrides the clinic-wide cancellation fee policy.
func WithFeeDefaults(f FeeDefaults) Option {
	return func(e *Engine) { e.fees = f }
}

// WithEventSink attaches a post-commit side-effect consumer.
func WithEventSink(sink EventSink) Option {
	return func(e *Engine) { e.sink = sink }
}

// WithMetrics attaches booking counters.
func WithMetrics(m *metrics.BookingMetrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// NewEngine creates an availability engine over the given reference data and
// appointment store.
func NewEngine(data *clinicdata.Dataset, store schedule.AppointmentStore, logger *logging.Logger, opts ...Option) *Engine {
	if data == nil {
		panic("availability: dataset required")
	}
	if store == nil {
		panic("availability: appointment store required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	e := &Engine{
		data:     data,
		store:    store,
		logger:   logger,
		now:      time.Now,
		buffer:   10 * time.Minute,
		pageSize: 5,
		horizon:  7 * 24 * time.Hour,
		fees: FeeDefaults{
			CutoffHours:    24,
			LateFeeCents:   5000,
			NoShowFeeCents: 10000,
		},
		locks: make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// doctorLock returns the mutex serializing mutations on one doctor's timeline.
func (e *Engine) doctorLock(doctorID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.locks[doctorID]
	if !ok {
		l = &sync.Mutex{}
		e.locks[doctorID] = l
	}
	return l
}

// lockDoctors acquires locks for one or two doctors in id order so that a
// cross-doctor reschedule cannot deadlock against another.
func (e *Engine) lockDoctors(a, b string) func() {
	if b == "" || a == b {
		l := e.doctorLock(a)
		l.Lock()
		return l.Unlock
	}
	first, second := a, b
	if second < first {
		first, second = second, first
	}
	l1, l2 := e.doctorLock(first), e.doctorLock(second)
	l1.Lock()
	l2.Lock()
	return func() {
		l2.Unlock()
		l1.Unlock()
	}
}

// newConfirmationID builds an APT id from the current timestamp plus a
// counter suffix so ids stay unique within the same second.
func (e *Engine) newConfirmationID() string {
	seq := e.idSeq.Add(1)
	return fmt.Sprintf("APT%s%03d", e.now().UTC().Format("20060102150405"), seq%1000)
}

func (e *Engine) publish(evt Event) {
	if e.sink == nil {
		return
	}
	e.sink.Publish(evt)
}
