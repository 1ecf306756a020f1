package models

// SLASnapshot is a consistent read of the SLA tracker state.
type SLASnapshot struct {
	Count            int     `json:"count"`
	AverageLatencyMS float64 `json:"average_latency_ms"`
	MaxLatencyMS     float64 `json:"max_latency_ms"`
	MinLatencyMS     float64 `json:"min_latency_ms"`
	SLAMS            float64 `json:"sla_ms"`
	SLABreaches      int64   `json:"sla_breaches"`
}
