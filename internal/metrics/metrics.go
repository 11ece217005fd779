// Package metrics exposes the Prometheus counters of a trader run.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	TicksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "trader_ticks_total", Help: "Clock ticks processed"},
		[]string{"trader"},
	)
	DeferredTicksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "trader_deferred_ticks_total", Help: "Ticks whose bar was not final yet"},
		[]string{"trader"},
	)
	RefreshesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "trader_level_refreshes_total", Help: "Target refreshes per level"},
		[]string{"trader", "level"},
	)
	SignalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "trader_signals_total", Help: "Trading signals emitted"},
		[]string{"trader", "kind"},
	)
	DeliveryFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "trader_delivery_failures_total", Help: "Signals a listener failed to accept"},
		[]string{"trader", "listener"},
	)
)

func init() {
	prometheus.MustRegister(TicksTotal, DeferredTicksTotal, RefreshesTotal, SignalsTotal, DeliveryFailuresTotal)
}

func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
