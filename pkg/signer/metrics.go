package signer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var signs = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "skland",
	Subsystem: "signer",
	Name:      "signatures_total",
	Help:      "Request signatures computed.",
})
