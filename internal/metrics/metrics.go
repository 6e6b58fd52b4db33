package metrics

import (
	"github.com/liquid-miners/lm-engine/internal/config"
	"github.com/liquid-miners/lm-engine/internal/metrics/metricsTypes"
	"github.com/liquid-miners/lm-engine/internal/metrics/prometheus"
	"go.uber.org/zap"
)

// MetricsClient is implemented by each concrete sink (prometheus, noop).
type MetricsClient interface {
	Incr(name string, labels []metricsTypes.MetricsLabel, value float64) error
	Gauge(name string, value float64, labels []metricsTypes.MetricsLabel) error
}

// MetricsSink fans metric writes out to every configured client. Failures are
// logged and swallowed; metrics never fail an engine operation.
type MetricsSink struct {
	logger  *zap.Logger
	clients []MetricsClient
}

func NewMetricsSink(l *zap.Logger, clients ...MetricsClient) *MetricsSink {
	return &MetricsSink{
		logger:  l,
		clients: clients,
	}
}

func (ms *MetricsSink) Incr(name string, labels []metricsTypes.MetricsLabel, value float64) {
	for _, c := range ms.clients {
		if err := c.Incr(name, labels, value); err != nil {
			ms.logger.Sugar().Warnw("Failed to write incr metric",
				zap.String("name", name),
				zap.Error(err),
			)
		}
	}
}

func (ms *MetricsSink) Gauge(name string, value float64, labels []metricsTypes.MetricsLabel) {
	for _, c := range ms.clients {
		if err := c.Gauge(name, value, labels); err != nil {
			ms.logger.Sugar().Warnw("Failed to write gauge metric",
				zap.String("name", name),
				zap.Error(err),
			)
		}
	}
}

// InitMetricsSinksFromConfig wires up the sinks enabled in the config.
func InitMetricsSinksFromConfig(cfg *config.Config, l *zap.Logger) ([]MetricsClient, error) {
	clients := make([]MetricsClient, 0)

	if cfg.PrometheusConfig.Enabled {
		promClient, err := prometheus.NewPrometheusMetricsClient(&prometheus.PrometheusMetricsConfig{
			Metrics: metricsTypes.Metrics,
		}, l)
		if err != nil {
			return nil, err
		}
		clients = append(clients, promClient)
	}

	return clients, nil
}
