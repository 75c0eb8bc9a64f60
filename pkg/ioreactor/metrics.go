package ioreactor

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	bytesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "uxmpp",
			Subsystem: "reactor",
			Name:      "bytes_total",
			Help:      "Bytes transferred by the reactor worker",
		},
		[]string{"dir"}, // read, write
	)

	operationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "uxmpp",
			Subsystem: "reactor",
			Name:      "operations_total",
			Help:      "Completed reactor operations by direction and result",
		},
		[]string{"dir", "result"},
	)
)

func init() {
	prometheus.MustRegister(bytesTotal, operationsTotal)
}
