package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	bookingAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clinicsched",
			Name:      "booking_attempts_total",
			Help:      "Count of booking attempts by outcome.",
		},
		[]string{"outcome"},
	)

	bookingCommitDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "clinicsched",
			Name:      "booking_commit_duration_seconds",
			Help:      "Latency of the conditional appointment insert.",
			Buckets:   prometheus.DefBuckets,
		},
	)

	slotsComputed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "clinicsched",
			Name:      "slots_computed_total",
			Help:      "Count of available-slot computations.",
		},
	)

	statusChanges = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clinicsched",
			Name:      "appointment_status_changes_total",
			Help:      "Count of appointment status changes by target status.",
		},
		[]string{"status"},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clinicsched",
			Name:      "http_requests_total",
			Help:      "Count of API requests by route and status code.",
		},
		[]string{"route", "code"},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(bookingAttempts, bookingCommitDuration, slotsComputed, statusChanges, httpRequests)
	})
}

func IncBookingAttempt(outcome string) {
	bookingAttempts.WithLabelValues(outcome).Inc()
}

func ObserveCommit(d time.Duration) {
	bookingCommitDuration.Observe(d.Seconds())
}

func IncSlotsComputed() {
	slotsComputed.Inc()
}

func IncStatusChange(status string) {
	statusChanges.WithLabelValues(status).Inc()
}

func IncHTTPRequest(route, code string) {
	httpRequests.WithLabelValues(route, code).Inc()
}
