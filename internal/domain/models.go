package domain

import "time"

// Endpoint is a named network address that gets probed on every tick.
// Identity is the address.
type Endpoint struct {
	Name    string `json:"name" yaml:"name"`
	Address string `json:"address" yaml:"address"`
}

// Outage is the interval during which aggregate connectivity was Offline.
type Outage struct {
	ID                int64      `json:"id,omitempty"`
	StartTime         time.Time  `json:"start_time"`
	EndTime           *time.Time `json:"end_time,omitempty"`
	DurationSecs      *float64   `json:"duration_secs,omitempty"`
	AffectedEndpoints []string   `json:"affected_endpoints"`
	FailingHop        *int       `json:"failing_hop,omitempty"`
	FailingHopAddress string     `json:"failing_hop_address,omitempty"`
	Notes             string     `json:"notes,omitempty"`
}

// NewOutage opens an outage at now. The affected list is copied.
func NewOutage(affected []string, now time.Time) *Outage {
	cp := make([]string, len(affected))
	copy(cp, affected)
	return &Outage{
		StartTime:         now,
		AffectedEndpoints: cp,
	}
}

// Close stamps the end time and the elapsed seconds. A clock that went
// backwards yields a zero duration rather than a negative one.
func (o *Outage) Close(now time.Time) {
	end := now
	secs := now.Sub(o.StartTime).Seconds()
	if secs < 0 {
		secs = 0
	}
	o.EndTime = &end
	o.DurationSecs = &secs
}

// Open reports whether the outage has not been closed yet.
func (o *Outage) Open() bool { return o.EndTime == nil }

// Clone returns a deep copy so callers cannot reach into tracker-owned state.
func (o *Outage) Clone() *Outage {
	if o == nil {
		return nil
	}
	cp := *o
	cp.AffectedEndpoints = append([]string(nil), o.AffectedEndpoints...)
	if o.EndTime != nil {
		t := *o.EndTime
		cp.EndTime = &t
	}
	if o.DurationSecs != nil {
		d := *o.DurationSecs
		cp.DurationSecs = &d
	}
	if o.FailingHop != nil {
		h := *o.FailingHop
		cp.FailingHop = &h
	}
	return &cp
}
