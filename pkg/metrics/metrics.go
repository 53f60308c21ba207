package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector records topology lifecycle events.
type Collector interface {
	SnapshotPublished(version uint64, build time.Duration)
	ConfigRejected(reason string)
	RouteLookup(result string)
}

// Rejection reasons.
const (
	ReasonParse    = "parse"
	ReasonValidate = "validate"
	ReasonStale    = "stale"
	ReasonPersist  = "persist"
)

// Prometheus implements Collector on client_golang metrics.
type Prometheus struct {
	published     prometheus.Counter
	rejected      *prometheus.CounterVec
	version       prometheus.Gauge
	buildDuration prometheus.Histogram
	routes        *prometheus.CounterVec
}

// NewPrometheus registers the topology metrics with reg.
func NewPrometheus(reg prometheus.Registerer) *Prometheus {
	f := promauto.With(reg)
	return &Prometheus{
		published: f.NewCounter(prometheus.CounterOpts{
			Name: "hyperkv_topology_snapshots_published_total",
			Help: "Number of configuration snapshots installed",
		}),
		rejected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "hyperkv_topology_configs_rejected_total",
			Help: "Number of configurations refused, by reason",
		}, []string{"reason"}),
		version: f.NewGauge(prometheus.GaugeOpts{
			Name: "hyperkv_topology_version",
			Help: "Version of the current configuration snapshot",
		}),
		buildDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "hyperkv_topology_build_duration_seconds",
			Help:    "Time spent decoding and validating a configuration",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.25},
		}),
		routes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "hyperkv_route_lookups_total",
			Help: "Point leader lookups, by result",
		}, []string{"result"}),
	}
}

func (p *Prometheus) SnapshotPublished(version uint64, build time.Duration) {
	p.published.Inc()
	p.version.Set(float64(version))
	p.buildDuration.Observe(build.Seconds())
}

func (p *Prometheus) ConfigRejected(reason string) {
	p.rejected.WithLabelValues(reason).Inc()
}

func (p *Prometheus) RouteLookup(result string) {
	p.routes.WithLabelValues(result).Inc()
}

// Nop discards everything.
type Nop struct{}

func (Nop) SnapshotPublished(uint64, time.Duration) {}
func (Nop) ConfigRejected(string)                   {}
func (Nop) RouteLookup(string)                      {}
