package telemetry

import (
	"time"

	"csmcp/internal/domain"
)

type NoopMetrics struct{}

func NewNoopMetrics() *NoopMetrics {
	return &NoopMetrics{}
}

func (n *NoopMetrics) ObserveRequest(_ string, _ time.Duration, _ error) {}

func (n *NoopMetrics) ObserveTokenRefresh(_ domain.AuthTopology, _ error) {}

func (n *NoopMetrics) ObserveSchemaLoad(_ string, _ time.Duration, _ error) {}

var _ domain.Metrics = (*NoopMetrics)(nil)
