package middleware

import (
	"sync"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Feed and mutation metrics for the dev server.
var (
	// FeedConnections tracks open change-feed websocket connections.
	FeedConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "quad_feed_connections",
		Help: "Open realtime change-feed connections",
	})

	// FeedEventsTotal counts broadcast change-feed events by table.
	FeedEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quad_feed_events_total",
		Help: "Realtime events broadcast, by table and type",
	}, []string{"table", "type"})

	// MutationsTotal counts authoritative writes by kind and outcome.
	MutationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quad_mutations_total",
		Help: "Authoritative mutations, by kind and outcome",
	}, []string{"kind", "outcome"})
)

var (
	promOnce sync.Once
	prom     *fiberprometheus.FiberPrometheus
)

// InitMetrics returns the prometheus middleware for the fiber app. The
// middleware registers collectors in the default registry, so it is built
// once and shared across server instances.
func InitMetrics(serviceName string) *fiberprometheus.FiberPrometheus {
	promOnce.Do(func() {
		prom = fiberprometheus.New(serviceName)
	})
	return prom
}
