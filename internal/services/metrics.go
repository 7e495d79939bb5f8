package services

import "github.com/prometheus/client_golang/prometheus"

// Relay outcomes used as the "outcome" label.
const (
	outcomeRelayed  = "relayed"
	outcomeNotified = "notified"
	outcomeIgnored  = "ignored"
	outcomeFailed   = "failed"
)

// Relay directions used as the "direction" label.
const (
	directionToGroup = "to_group"
	directionToUser  = "to_user"
	directionNone    = "none"
)

var (
	// relayEvents counts handled events by direction, kind (new|edited) and outcome.
	relayEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_events_total",
			Help: "Total number of inbound events handled by the relay.",
		},
		[]string{"direction", "kind", "outcome"},
	)

	// threadsCreated counts forum topics that were created and kept.
	threadsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_threads_created_total",
			Help: "Total number of forum topics created for new users.",
		},
	)

	// orphanedThreads counts topics created by the loser of a first-contact race.
	orphanedThreads = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_orphaned_threads_total",
			Help: "Total number of forum topics left unmapped after losing a creation race.",
		},
	)
)

func init() {
	prometheus.MustRegister(relayEvents, threadsCreated, orphanedThreads)
}
