package domain

import "time"

// TraceTrigger records why a path trace was run.
type TraceTrigger string

const (
	TriggerStateChange TraceTrigger = "state_change"
	TriggerManual      TraceTrigger = "manual"
)

// PathHop is one line of a path trace. Address is empty for a timed-out hop.
type PathHop struct {
	Ordinal   int      `json:"ordinal"`
	Address   string   `json:"address,omitempty"`
	LatencyMS *float64 `json:"latency_ms,omitempty"`
	TimedOut  bool     `json:"timed_out"`
}

// PathTrace is the parsed result of one multi-hop trace toward Target.
type PathTrace struct {
	ID            int64        `json:"id,omitempty"`
	OutageID      *int64       `json:"outage_id,omitempty"`
	Target        string       `json:"target"`
	Timestamp     time.Time    `json:"timestamp"`
	Hops          []PathHop    `json:"hops"`
	ReachedTarget bool         `json:"reached_target"`
	Trigger       TraceTrigger `json:"trigger"`
	Error         string       `json:"error,omitempty"`
}

// HopLabel is a coarse guess at what sits at a given hop ordinal.
func HopLabel(ordinal int) string {
	switch {
	case ordinal <= 0:
		return "Unknown"
	case ordinal == 1:
		return "Gateway"
	case ordinal == 2:
		return "ISP Modem"
	case ordinal == 3:
		return "ISP Router"
	default:
		return "ISP Backbone"
	}
}
