package store

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	writesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "echoclub_store_writes_total",
		Help: "Accepted document writes per collection.",
	}, []string{"collection"})

	deletesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "echoclub_store_deletes_total",
		Help: "Accepted document deletes per collection.",
	}, []string{"collection"})

	snapshotsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "echoclub_store_snapshots_delivered_total",
		Help: "Full-result snapshots fanned out to subscribers.",
	}, []string{"collection"})

	subscribersGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "echoclub_store_subscribers",
		Help: "Live subscriptions per collection.",
	}, []string{"collection"})
)
