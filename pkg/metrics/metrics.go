// Package metrics instruments the client runtime with prometheus counters
// and histograms. The whole package is optional: a nil *Metrics is a valid
// receiver and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/axonlab/mirador/internal/common/config"
)

type Metrics struct {
	registry   *prometheus.Registry
	loginCnt   *prometheus.CounterVec
	listingCnt *prometheus.CounterVec
	tileCnt    *prometheus.CounterVec
	tileDur    *prometheus.HistogramVec
}

// New builds a metrics registry with standard process and Go collectors plus
// the runtime's own instruments.
func New(cfg config.MetricsConfig) *Metrics {
	ns := cfg.Namespace
	r := prometheus.NewRegistry()
	r.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	r.MustRegister(collectors.NewGoCollector())

	loginCnt := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: ns, Name: "logins_total"}, []string{"status"})
	listingCnt := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: ns, Name: "listing_fetches_total"}, []string{"kind", "status"})
	tileCnt := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: ns, Name: "tile_reads_total"}, []string{"backend", "status"})
	tileDur := prometheus.NewHistogramVec(prometheus.HistogramOpts{Namespace: ns, Name: "tile_read_duration_seconds", Buckets: cfg.Buckets}, []string{"backend"})
	r.MustRegister(loginCnt, listingCnt, tileCnt, tileDur)

	return &Metrics{
		registry:   r,
		loginCnt:   loginCnt,
		listingCnt: listingCnt,
		tileCnt:    tileCnt,
		tileDur:    tileDur,
	}
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// ObserveLogin records one login attempt.
func (m *Metrics) ObserveLogin(err error) {
	if m == nil {
		return
	}
	m.loginCnt.WithLabelValues(status(err)).Inc()
}

// ObserveListing records one listing fetch for an entity kind.
func (m *Metrics) ObserveListing(kind string, err error) {
	if m == nil {
		return
	}
	m.listingCnt.WithLabelValues(kind, status(err)).Inc()
}

// ObserveTileRead records one tile read on a backend.
func (m *Metrics) ObserveTileRead(backend string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.tileCnt.WithLabelValues(backend, status(err)).Inc()
	if err == nil {
		m.tileDur.WithLabelValues(backend).Observe(d.Seconds())
	}
}

// Handler exposes the registry over HTTP for scraping.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
