package domain

import "time"

// ProbeOutcome is the result of one reachability check against one endpoint.
// LatencyMS is only meaningful on success, FailureReason only on failure.
type ProbeOutcome struct {
	Address       string    `json:"address"`
	Name          string    `json:"name"`
	Timestamp     time.Time `json:"timestamp"`
	Success       bool      `json:"success"`
	LatencyMS     *float64  `json:"latency_ms"` // nil when the report had no time= token
	FailureReason string    `json:"failure_reason,omitempty"`
}

// Succeeded builds a success outcome for ep.
func Succeeded(ep Endpoint, at time.Time, latencyMS *float64) ProbeOutcome {
	return ProbeOutcome{
		Address:   ep.Address,
		Name:      ep.Name,
		Timestamp: at,
		Success:   true,
		LatencyMS: latencyMS,
	}
}

// Failed builds a failure outcome for ep.
func Failed(ep Endpoint, at time.Time, reason string) ProbeOutcome {
	return ProbeOutcome{
		Address:       ep.Address,
		Name:          ep.Name,
		Timestamp:     at,
		FailureReason: reason,
	}
}
