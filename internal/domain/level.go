package domain

import "strings"

// Level is the aggregate connectivity state.
type Level int

const (
	Online Level = iota
	Degraded
	Offline
)

func (l Level) String() string {
	switch l {
	case Online:
		return "ONLINE"
	case Degraded:
		return "DEGRADED"
	case Offline:
		return "OFFLINE"
	default:
		return "UNKNOWN"
	}
}

func (l Level) MarshalText() ([]byte, error) { return []byte(l.String()), nil }

func (l *Level) UnmarshalText(b []byte) error {
	switch strings.ToUpper(string(b)) {
	case "ONLINE":
		*l = Online
	case "DEGRADED":
		*l = Degraded
	case "OFFLINE":
		*l = Offline
	default:
		*l = Online
	}
	return nil
}
