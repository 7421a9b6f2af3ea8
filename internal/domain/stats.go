package domain

import "time"

// Stats summarises the outages recorded in a period.
type Stats struct {
	PeriodStart           time.Time `json:"period_start"`
	PeriodEnd             time.Time `json:"period_end"`
	TotalOutages          int       `json:"total_outages"`
	TotalDowntimeSecs     float64   `json:"total_downtime_secs"`
	AvailabilityPercent   float64   `json:"availability_percent"`
	AvgOutageDurationSecs *float64  `json:"avg_outage_duration_secs,omitempty"`
	MostCommonFailingHop  *int      `json:"most_common_failing_hop,omitempty"`
}

// ComputeStats derives Stats from the outages that started in [since, until].
// Open outages count toward the total but contribute no downtime. Ties for
// the most common hop go to the lowest ordinal.
func ComputeStats(outages []Outage, since, until time.Time) Stats {
	st := Stats{
		PeriodStart:         since,
		PeriodEnd:           until,
		TotalOutages:        len(outages),
		AvailabilityPercent: 100,
	}

	counts := map[int]int{}
	for _, o := range outages {
		if o.DurationSecs != nil {
			st.TotalDowntimeSecs += *o.DurationSecs
		}
		if o.FailingHop != nil {
			counts[*o.FailingHop]++
		}
	}

	if period := until.Sub(since).Seconds(); period > 0 {
		st.AvailabilityPercent = (period - st.TotalDowntimeSecs) / period * 100
		if st.AvailabilityPercent < 0 {
			st.AvailabilityPercent = 0
		}
	}
	if st.TotalOutages > 0 {
		avg := st.TotalDowntimeSecs / float64(st.TotalOutages)
		st.AvgOutageDurationSecs = &avg
	}

	best, bestN := 0, 0
	for hop, n := range counts {
		if n > bestN || (n == bestN && hop < best) {
			best, bestN = hop, n
		}
	}
	if bestN > 0 {
		st.MostCommonFailingHop = &best
	}
	return st
}
