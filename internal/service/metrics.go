package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	armedTimers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "reminder",
			Name:      "armed_timers",
			Help:      "Number of timers currently waiting to fire.",
		},
	)

	remindersCreatedCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "reminder",
			Name:      "created_total",
			Help:      "Total reminders created.",
		},
		[]string{"origin"}, // "create", "snooze"
	)

	remindersCancelledCounter = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "reminder",
			Name:      "cancelled_total",
			Help:      "Total reminders cancelled before firing.",
		},
	)

	deliveriesCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "reminder",
			Name:      "deliveries_total",
			Help:      "Total fire events by outcome.",
		},
		[]string{"status"}, // "sent", "failed", "skipped", "error_storage"
	)

	deliveryDurationHist = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "reminder",
			Name:      "delivery_duration_seconds",
			Help:      "Duration of notifier calls.",
			Buckets:   prometheus.DefBuckets,
		},
	)

	recoveredCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "reminder",
			Name:      "recovered_total",
			Help:      "Reminders processed by startup recovery.",
		},
		[]string{"status"}, // "armed", "error"
	)
)
