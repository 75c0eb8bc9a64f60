package xmppsession

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	stateTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "uxmpp",
			Subsystem: "session",
			Name:      "state_transitions_total",
			Help:      "Session state transitions by target state",
		},
		[]string{"to"},
	)

	stanzasTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "uxmpp",
			Subsystem: "session",
			Name:      "stanzas_total",
			Help:      "Top-level stream elements by direction",
		},
		[]string{"dir"},
	)
)

func init() {
	prometheus.MustRegister(stateTransitions, stanzasTotal)
}
