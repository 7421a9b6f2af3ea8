package tracker

import "github.com/hamed0406/netvigil/internal/domain"

type EventKind int

const (
	NoChange EventKind = iota
	Degraded
	Offline
	Recovered
)

func (k EventKind) String() string {
	switch k {
	case Degraded:
		return "degraded"
	case Offline:
		return "offline"
	case Recovered:
		return "recovered"
	default:
		return "no_change"
	}
}

func (k EventKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// Event is what Process reports for one outcome.
//
// Level is the level after the outcome was processed and Previous the level
// before it, so a Degraded to Online step shows up as a NoChange event with
// Previous != Level. Failing is set for Degraded and Offline, Outage for
// Offline and Recovered, Trace for Offline when a diagnoser is configured.
type Event struct {
	Kind     EventKind         `json:"kind"`
	Level    domain.Level      `json:"level"`
	Previous domain.Level      `json:"previous"`
	Failing  []string          `json:"failing,omitempty"`
	Outage   *domain.Outage    `json:"outage,omitempty"`
	Trace    *domain.PathTrace `json:"trace,omitempty"`
}

// LevelChanged reports whether the aggregate level moved.
func (e Event) LevelChanged() bool { return e.Level != e.Previous }

// EndpointState holds the running counters for one endpoint.
type EndpointState struct {
	domain.Endpoint
	ConsecutiveFailures  int                  `json:"consecutive_failures"`
	ConsecutiveSuccesses int                  `json:"consecutive_successes"`
	Last                 *domain.ProbeOutcome `json:"last,omitempty"`
}

func (s *EndpointState) update(o domain.ProbeOutcome) {
	if o.Success {
		s.ConsecutiveFailures = 0
		s.ConsecutiveSuccesses++
	} else {
		s.ConsecutiveSuccesses = 0
		s.ConsecutiveFailures++
	}
	last := o
	s.Last = &last
}

func (s EndpointState) Failing() bool { return s.ConsecutiveFailures > 0 }

func (s *EndpointState) copy() EndpointState {
	cp := *s
	if s.Last != nil {
		last := *s.Last
		cp.Last = &last
	}
	return cp
}

// Snapshot is a consistent view of the tracker for status reporting.
type Snapshot struct {
	Level              domain.Level    `json:"level"`
	Outage             *domain.Outage  `json:"outage,omitempty"`
	Endpoints          []EndpointState `json:"endpoints"`
	Failing            []string        `json:"failing"`
	AggregateFailures  int             `json:"aggregate_failures"`
	AggregateSuccesses int             `json:"aggregate_successes"`
	Primary            string          `json:"primary"`
}
