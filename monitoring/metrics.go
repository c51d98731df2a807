package monitoring

import (
	"context"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ticketsIssued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tickets_issued_total",
			Help: "Tickets issued by type and payment source",
		},
		[]string{"type", "source"},
	)

	validations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticket_validations_total",
			Help: "Door scans by outcome",
		},
		[]string{"outcome"},
	)

	captures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "card_captures_total",
			Help: "Card capture requests by outcome",
		},
		[]string{"outcome"},
	)

	emails = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "emails_total",
			Help: "Buyer emails by kind and delivery outcome",
		},
		[]string{"kind", "outcome"},
	)

	pendingOrders = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pending_orders",
			Help: "Orders awaiting payment by method",
		},
		[]string{"method"},
	)

	goroutineCount = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "active_goroutines_total",
			Help: "Current number of active goroutines",
		},
	)

	issueDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ticket_issue_duration_seconds",
			Help:    "Time to mint and persist a ticket",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
		[]string{"source"},
	)
)

// PendingSource reports in-memory order bookkeeping.
type PendingSource interface {
	PendingCardOrders() int
	PendingReservations() int
}

type Monitor struct {
	source   PendingSource
	interval time.Duration
}

func NewMonitor(source PendingSource) *Monitor {
	return &Monitor{source: source, interval: 30 * time.Second}
}

// Run samples gauges until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.Collect()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Collect()
		}
	}
}

func (m *Monitor) Collect() {
	pendingOrders.WithLabelValues("card").Set(float64(m.source.PendingCardOrders()))
	pendingOrders.WithLabelValues("transfer").Set(float64(m.source.PendingReservations()))
	goroutineCount.Set(float64(runtime.NumGoroutine()))
}

func TrackIssued(ticketType, source string, took time.Duration) {
	ticketsIssued.WithLabelValues(ticketType, source).Inc()
	issueDuration.WithLabelValues(source).Observe(took.Seconds())
}

func TrackValidation(outcome string) {
	validations.WithLabelValues(outcome).Inc()
}

func TrackCapture(outcome string) {
	captures.WithLabelValues(outcome).Inc()
}

func TrackEmail(kind, outcome string) {
	emails.WithLabelValues(kind, outcome).Inc()
}
