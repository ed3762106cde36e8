// Package metrics defines the Prometheus collectors exported by an autocomplete replica.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "autocomplete"

// Notification outcomes recorded by NotificationsTotal.
const (
	NotificationApplied   = "applied"
	NotificationStale     = "stale"
	NotificationMalformed = "malformed"
	NotificationDropped   = "dropped"
)

var (
	// SearchLatency measures prefix searches against the local index.
	// Labels: status (ok, error)
	SearchLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "index",
		Name:      "search_latency_seconds",
		Help:      "Prefix search latency in seconds",
		Buckets:   []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
	}, []string{"status"})

	// SubmitsTotal counts phrase submissions.
	// Labels: status (ok, invalid, store_unavailable)
	SubmitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sync",
		Name:      "submits_total",
		Help:      "Phrase submissions by outcome",
	}, []string{"status"})

	// NotificationsTotal counts inbound change notifications.
	// Labels: result (applied, stale, malformed, dropped)
	NotificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sync",
		Name:      "notifications_total",
		Help:      "Inbound change notifications by result",
	}, []string{"result"})

	// StoreErrorsTotal counts failed counter store calls.
	// Labels: op (snapshot, increment, get, publish, subscribe), kind (timeout, unavailable)
	StoreErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "store",
		Name:      "errors_total",
		Help:      "Counter store failures by operation",
	}, []string{"op", "kind"})

	// StoreLatency measures counter store round trips.
	// Labels: op
	StoreLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "store",
		Name:      "latency_seconds",
		Help:      "Counter store round trip latency in seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"op"})

	// IndexedPhrases tracks the number of complete phrases in the local index.
	IndexedPhrases = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "index",
		Name:      "phrases",
		Help:      "Complete phrases held by the local index",
	})

	// UnconfirmedPhrases tracks phrases whose local count awaits reconciliation.
	UnconfirmedPhrases = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "sync",
		Name:      "unconfirmed_phrases",
		Help:      "Phrases with an optimistic local count not yet confirmed by the store",
	})

	// SubscriptionState is 1 for the current subscription state and 0 for the others.
	// Labels: state (disconnected, subscribing, active, failed)
	SubscriptionState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "sync",
		Name:      "subscription_state",
		Help:      "Current state of the change notification subscription",
	}, []string{"state"})
)
