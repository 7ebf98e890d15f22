package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	TurnsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "helpdesk_turns_total",
			Help: "Assistant turns produced, by response type",
		},
		[]string{"response_type"},
	)

	TurnDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "helpdesk_turn_duration_seconds",
			Help:    "Time to resolve a chat turn",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"response_type"},
	)

	TurnErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "helpdesk_turn_errors_total",
			Help: "Chat turns that failed without appending to the transcript",
		},
	)

	ConfidenceScore = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "helpdesk_confidence_score",
			Help:    "Answer confidence scores",
			Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
		},
	)

	EscalationsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "helpdesk_escalations_created_total",
			Help: "Escalation tickets created",
		},
	)

	TicketTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "helpdesk_ticket_transitions_total",
			Help: "Ticket status changes",
		},
		[]string{"trigger", "to"}, // trigger: reply, status
	)

	FeedbackTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "helpdesk_feedback_total",
			Help: "Feedback submissions by outcome",
		},
		[]string{"outcome"}, // accepted, dropped, failed
	)

	NotificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "helpdesk_notifications_total",
			Help: "Operator notifications by outcome",
		},
		[]string{"outcome"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "helpdesk_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)

var initOnce sync.Once

// Init registers all collectors with the default registry
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(TurnsTotal)
		prometheus.MustRegister(TurnDuration)
		prometheus.MustRegister(TurnErrors)
		prometheus.MustRegister(ConfidenceScore)
		prometheus.MustRegister(EscalationsCreated)
		prometheus.MustRegister(TicketTransitions)
		prometheus.MustRegister(FeedbackTotal)
		prometheus.MustRegister(NotificationsTotal)
		prometheus.MustRegister(HTTPRequestDuration)
	})
}

func Handler() http.Handler {
	return promhttp.Handler()
}
