package observability

import "github.com/prometheus/client_golang/prometheus"

// Pipeline metrics. Label values are drawn from fixed sets (topics, event
// types, consumer names, urgency levels) so cardinality stays bounded.
var (
	// EventsPublished counts publish attempts by topic, event type and
	// outcome (ok|error).
	EventsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "intake_events_published_total",
			Help: "Events published to the bus.",
		},
		[]string{"topic", "type", "outcome"},
	)

	// EventsConsumed counts handled deliveries by consumer, event type and
	// outcome (processed|duplicate|ignored|poison|retry|panic).
	EventsConsumed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "intake_events_consumed_total",
			Help: "Events consumed from the bus by outcome.",
		},
		[]string{"consumer", "type", "outcome"},
	)

	// EventHandleSeconds measures handler latency.
	EventHandleSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "intake_event_handle_seconds",
			Help:    "Time spent handling one delivery.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"consumer", "type"},
	)

	// Classifications counts newly written classification records.
	Classifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "intake_classifications_total",
			Help: "Classification records created by urgency.",
		},
		[]string{"urgency"},
	)

	// CaseEvents counts case lifecycle changes (created|assigned|status_changed|note_added).
	CaseEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "intake_cases_total",
			Help: "Case lifecycle changes.",
		},
		[]string{"event"},
	)
)

func init() {
	prometheus.MustRegister(EventsPublished, EventsConsumed, EventHandleSeconds, Classifications, CaseEvents)
}
