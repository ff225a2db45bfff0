package metrics

import "github.com/prometheus/client_golang/prometheus"

// BookingMetrics exposes counters for availability engine operations.
type BookingMetrics struct {
	operationsTotal *prometheus.CounterVec
	feeCentsTotal   prometheus.Counter
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		operationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medapp",
			Subsystem: "booking",
			Name:      "operations_total",
			Help:      "Booking engine operations by type and outcome",
		}, []string{"operation", "outcome"}),
		feeCentsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "medapp",
			Subsystem: "booking",
			Name:      "cancellation_fee_cents_total",
			Help:      "Total cancellation fees assessed, in cents",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.operationsTotal, m.feeCentsTotal)
	return m
}

func (m *BookingMetrics) ObserveOperation(operation, outcome string) {
	if m == nil {
		return
	}
	m.operationsTotal.WithLabelValues(operation, outcome).Inc()
}

func (m *BookingMetrics) ObserveCancellationFee(cents int) {
	if m == nil {
		return
	}
	m.feeCentsTotal.Add(float64(cents))
}

// ConversationMetrics exposes counters for dialogue traffic.
type ConversationMetrics struct {
	turnsTotal     *prometheus.CounterVec
	faqTotal       *prometheus.CounterVec
	sessionsActive prometheus.Gauge
}

func NewConversationMetrics(reg prometheus.Registerer) *ConversationMetrics {
	m := &ConversationMetrics{
		turnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medapp",
			Subsystem: "conversation",
			Name:      "turns_total",
			Help:      "Conversation turns by classified intent",
		}, []string{"intent"}),
		faqTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medapp",
			Subsystem: "conversation",
			Name:      "faq_lookups_total",
			Help:      "Knowledge base lookups by result",
		}, []string{"result"}),
		sessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "medapp",
			Subsystem: "conversation",
			Name:      "sessions_active",
			Help:      "Sessions currently tracked by the registry",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.turnsTotal, m.faqTotal, m.sessionsActive)
	return m
}

func (m *ConversationMetrics) ObserveTurn(intent string) {
	if m == nil {
		return
	}
	m.turnsTotal.WithLabelValues(intent).Inc()
}

func (m *ConversationMetrics) ObserveFAQ(result string) {
	if m == nil {
		return
	}
	m.faqTotal.WithLabelValues(result).Inc()
}

func (m *ConversationMetrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.sessionsActive.Set(float64(n))
}
