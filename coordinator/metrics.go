package coordinator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RoundTotal counts finished rounds by outcome.
	RoundTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fedlearn_round_total",
			Help: "Total number of training rounds by status",
		},
		[]string{"status"},
	)

	RoundDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fedlearn_round_duration_seconds",
			Help:    "Wall time of a training round in seconds",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		},
	)

	RoundParticipants = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fedlearn_round_participants",
			Help: "Clients whose evaluation reports were aggregated in the last round",
		},
	)

	ClientFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fedlearn_client_failures_total",
			Help: "Client calls that failed, timed out or returned an unusable report",
		},
		[]string{"phase"},
	)

	GlobalLoss = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fedlearn_global_loss",
			Help: "Weighted evaluation loss of the last completed round",
		},
	)

	ClientsEligible = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fedlearn_clients_eligible",
			Help: "Registered clients that are not excluded",
		},
	)
)
