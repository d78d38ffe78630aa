package attest

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	attempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "skland",
		Subsystem: "attest",
		Name:      "attempts_total",
		Help:      "Device id handshake attempts by result.",
	}, []string{"result"})

	acquisitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "skland",
		Subsystem: "attest",
		Name:      "acquisitions_total",
		Help:      "Device id acquisitions after retries by result.",
	}, []string{"result"})
)
