package metricsTypes

type MetricsType string

const (
	MetricsType_Incr  MetricsType = "incr"
	MetricsType_Gauge MetricsType = "gauge"
)

type MetricsTypeConfig struct {
	Name   string
	Labels []string
}

type MetricsLabel struct {
	Name  string
	Value string
}

// Metric names emitted by the engine.
const (
	Metric_Incr_ProofAccepted  = "proof_accepted"
	Metric_Incr_ProofRejected  = "proof_rejected"
	Metric_Incr_RewardsFunded  = "rewards_funded"
	Metric_Incr_ClaimSettled   = "claim_settled"
	Metric_Gauge_CurrentEpoch  = "current_epoch"
	Metric_Incr_HttpRequest    = "http_request"
	Metric_Gauge_RegisteredLPs = "registered_pools"
)

// Metrics declares every metric up front so sinks can pre-register them.
var Metrics = map[MetricsType][]MetricsTypeConfig{
	MetricsType_Incr: {
		{Name: Metric_Incr_ProofAccepted, Labels: []string{"pool"}},
		{Name: Metric_Incr_ProofRejected, Labels: []string{"pool", "reason"}},
		{Name: Metric_Incr_RewardsFunded, Labels: []string{"pool"}},
		{Name: Metric_Incr_ClaimSettled, Labels: []string{"pool", "kind"}},
		{Name: Metric_Incr_HttpRequest, Labels: []string{"method", "path", "status"}},
	},
	MetricsType_Gauge: {
		{Name: Metric_Gauge_CurrentEpoch, Labels: []string{"pool"}},
		{Name: Metric_Gauge_RegisteredLPs, Labels: []string{}},
	},
}
