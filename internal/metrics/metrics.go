// Package metrics exposes Prometheus collectors for the pairing engine and
// its transports.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// QueueDepth tracks the current number of searching users.
	QueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "anonchat_queue_depth",
		Help: "Current number of users waiting for a partner",
	})

	// ActiveSessions tracks the current number of active chat sessions.
	ActiveSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "anonchat_active_sessions",
		Help: "Current number of active chat sessions",
	})

	// MatchesTotal counts sessions created by the pairing engine.
	MatchesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "anonchat_matches_total",
		Help: "Total number of pairs matched",
	})

	// MatchWait records how long the matched candidate had been waiting.
	MatchWait = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "anonchat_match_wait_seconds",
		Help:    "Time the matched candidate spent in the queue",
		Buckets: []float64{1, 5, 10, 30, 60, 90, 120},
	})

	// SearchTimeoutsTotal counts searches that expired without a partner.
	SearchTimeoutsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "anonchat_search_timeouts_total",
		Help: "Total number of searches that timed out",
	})

	// SessionsEndedTotal counts torn down sessions by reason.
	SessionsEndedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "anonchat_sessions_ended_total",
		Help: "Total number of sessions ended",
	}, []string{"reason"}) // reason = "user", "ban", "admin", "reveal_timeout", "reveal_done", "invariant"

	// RevealOutcomesTotal counts resolved reveal requests.
	RevealOutcomesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "anonchat_reveal_outcomes_total",
		Help: "Total number of resolved reveal requests",
	}, []string{"outcome"}) // outcome = "exchanged", "declined"

	// WarningsTotal counts issued moderation warnings.
	WarningsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "anonchat_warnings_total",
		Help: "Total number of warnings issued",
	})

	// BansTotal counts bans by source: "auto" or "admin".
	BansTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "anonchat_bans_total",
		Help: "Total number of users banned",
	}, []string{"source"})

	// MessagesTotal counts relayed messages by outcome: "relayed" or "blocked".
	MessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "anonchat_messages_total",
		Help: "Total number of messages processed",
	}, []string{"type"})

	// DeliveryFailuresTotal counts notices that could not reach the user.
	DeliveryFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "anonchat_delivery_failures_total",
		Help: "Total number of notices that could not be delivered",
	}, []string{"kind"})
)

func init() {
	prometheus.MustRegister(
		QueueDepth,
		ActiveSessions,
		MatchesTotal,
		MatchWait,
		SearchTimeoutsTotal,
		SessionsEndedTotal,
		RevealOutcomesTotal,
		WarningsTotal,
		BansTotal,
		MessagesTotal,
		DeliveryFailuresTotal,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
