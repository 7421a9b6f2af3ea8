package report

import (
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/hamed0406/netvigil/internal/domain"
	"github.com/hamed0406/netvigil/internal/tracker"
)

func (s Style) levelMark(l domain.Level) string {
	if !s.Fancy {
		return "[" + l.String() + "]"
	}
	switch l {
	case domain.Online:
		return "● " + l.String()
	case domain.Degraded:
		return "◐ " + l.String()
	default:
		return "○ " + l.String()
	}
}

// Status writes the tracker snapshot served by the daemon.
func (s Style) Status(w io.Writer, snap tracker.Snapshot, now time.Time) {
	fmt.Fprintf(w, "Status: %s\n", s.levelMark(snap.Level))
	if snap.Outage != nil {
		fmt.Fprintf(w, "Outage #%d since %s (%s)\n",
			snap.Outage.ID,
			snap.Outage.StartTime.Local().Format("2006-01-02 15:04:05"),
			humanize.RelTime(snap.Outage.StartTime, now, "ago", "from now"))
	}
	fmt.Fprintln(w, s.rule(59))
	for _, ep := range snap.Endpoints {
		state := "ok"
		if ep.Failing() {
			state = fmt.Sprintf("failing x%d", ep.ConsecutiveFailures)
		}
		lat := "-"
		if ep.Last != nil && ep.Last.LatencyMS != nil {
			lat = fmt.Sprintf("%.1f ms", *ep.Last.LatencyMS)
		}
		fmt.Fprintf(w, "%-20s %-16s %-10s %s\n", Truncate(ep.Name, 20), ep.Address, lat, state)
	}
	if snap.Primary != "" {
		fmt.Fprintf(w, "Diagnosis target: %s\n", snap.Primary)
	}
}

// Samples writes one line per probe outcome. The CLI uses it when no
// daemon is reachable.
func (s Style) Samples(w io.Writer, outcomes []domain.ProbeOutcome) {
	for _, o := range outcomes {
		if o.Success {
			lat := "-"
			if o.LatencyMS != nil {
				lat = fmt.Sprintf("%.1f ms", *o.LatencyMS)
			}
			fmt.Fprintf(w, "%-20s %-16s %s\n", Truncate(o.Name, 20), o.Address, lat)
			continue
		}
		fmt.Fprintf(w, "%-20s %-16s FAIL (%s)\n", Truncate(o.Name, 20), o.Address, o.FailureReason)
	}
}
