// Package metrics exposes the four observability counters named in §6
// (tracksDiscovered, checkCount, lastTrackPlayedAt, polling) as Prometheus
// metrics, one vector per counter labeled by source identifier. No call
// site in the example corpus exercises prometheus/client_golang directly
// (it only arrives transitively through an otel exporter chain elsewhere in
// the corpus); it is wired here per the standard Go ecosystem convention for
// exactly this kind of service observability surface.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry implements poller.Metrics against a dedicated prometheus
// registry, so a process embedding multiple independent components doesn't
// collide on metric names via the global default registry.
type Registry struct {
	registry *prometheus.Registry

	polling           *prometheus.GaugeVec
	tracksDiscovered  *prometheus.CounterVec
	checkCount        *prometheus.GaugeVec
	lastTrackPlayedAt *prometheus.GaugeVec
}

// New constructs a Registry with all four vectors registered.
func New() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		registry: reg,
		polling: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "scrobbled",
			Name:      "source_polling",
			Help:      "1 if the source's Poller is in the Polling state, 0 otherwise.",
		}, []string{"source"}),
		tracksDiscovered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scrobbled",
			Name:      "source_tracks_discovered_total",
			Help:      "Plays accepted by the Dispatcher for this source, cumulative.",
		}, []string{"source"}),
		checkCount: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "scrobbled",
			Name:      "source_check_count",
			Help:      "Consecutive empty cycles since this source's last discovery.",
		}, []string{"source"}),
		lastTrackPlayedAt: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "scrobbled",
			Name:      "source_last_track_played_at_seconds",
			Help:      "Unix timestamp of this source's lastTrackPlayedAt.",
		}, []string{"source"}),
	}

	reg.MustRegister(r.polling, r.tracksDiscovered, r.checkCount, r.lastTrackPlayedAt)
	return r
}

// SetPolling implements poller.Metrics.
func (r *Registry) SetPolling(identifier string, polling bool) {
	v := 0.0
	if polling {
		v = 1.0
	}
	r.polling.WithLabelValues(identifier).Set(v)
}

// AddTracksDiscovered implements poller.Metrics.
func (r *Registry) AddTracksDiscovered(identifier string, n int) {
	r.tracksDiscovered.WithLabelValues(identifier).Add(float64(n))
}

// SetCheckCount implements poller.Metrics.
func (r *Registry) SetCheckCount(identifier string, n int) {
	r.checkCount.WithLabelValues(identifier).Set(float64(n))
}

// SetLastTrackPlayedAt implements poller.Metrics.
func (r *Registry) SetLastTrackPlayedAt(identifier string, t time.Time) {
	r.lastTrackPlayedAt.WithLabelValues(identifier).Set(float64(t.Unix()))
}

// Handler returns the HTTP handler a caller mounts to expose metrics for
// scraping.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
