package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"csmcp/internal/domain"
)

type PrometheusMetrics struct {
	requestDuration *prometheus.HistogramVec
	tokenRefreshes  *prometheus.CounterVec
	schemaLoads     *prometheus.HistogramVec
}

func NewPrometheusMetrics(registerer prometheus.Registerer) *PrometheusMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registerer)

	return &PrometheusMetrics{
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "csmcp_request_duration_seconds",
				Help:    "Duration of content-services API requests in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"operation", "status"},
		),
		tokenRefreshes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "csmcp_token_refreshes_total",
				Help: "Total number of token refresh attempts",
			},
			[]string{"topology", "outcome"},
		),
		schemaLoads: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "csmcp_schema_loads_seconds",
				Help:    "Duration of class metadata loads in seconds",
				Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"root_class", "status"},
		),
	}
}

func (p *PrometheusMetrics) ObserveRequest(operation string, duration time.Duration, err error) {
	p.requestDuration.WithLabelValues(operation, statusLabel(err)).Observe(duration.Seconds())
}

func (p *PrometheusMetrics) ObserveTokenRefresh(topology domain.AuthTopology, err error) {
	p.tokenRefreshes.WithLabelValues(string(topology), statusLabel(err)).Inc()
}

func (p *PrometheusMetrics) ObserveSchemaLoad(rootClass string, duration time.Duration, err error) {
	p.schemaLoads.WithLabelValues(rootClass, statusLabel(err)).Observe(duration.Seconds())
}

func statusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

var _ domain.Metrics = (*PrometheusMetrics)(nil)
