// Package report renders monitor data as plain text for the command line.
package report

import (
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/hamed0406/netvigil/internal/domain"
	"github.com/hamed0406/netvigil/internal/pathtrace"
)

// Style picks the glyphs used for rules and bars. Fancy needs a UTF-8
// terminal.
type Style struct {
	Fancy bool
}

func (s Style) rule(n int) string {
	if s.Fancy {
		return strings.Repeat("─", n)
	}
	return strings.Repeat("-", n)
}

func (s Style) heavyRule(n int) string {
	if s.Fancy {
		return strings.Repeat("═", n)
	}
	return strings.Repeat("=", n)
}

var ErrBadPeriod = errors.New("period must look like 30m, 24h, 7d or 1w")

// ParsePeriod parses <n><unit> where unit is one of s, m, h, d, w.
func ParsePeriod(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if len(s) < 2 {
		return 0, ErrBadPeriod
	}
	n, err := strconv.Atoi(s[:len(s)-1])
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %q", ErrBadPeriod, s)
	}
	var unit time.Duration
	switch s[len(s)-1] {
	case 's':
		unit = time.Second
	case 'm':
		unit = time.Minute
	case 'h':
		unit = time.Hour
	case 'd':
		unit = 24 * time.Hour
	case 'w':
		unit = 7 * 24 * time.Hour
	default:
		return 0, fmt.Errorf("%w: %q", ErrBadPeriod, s)
	}
	return time.Duration(n) * unit, nil
}

// FormatDuration renders seconds the way the status output shows outage
// lengths: 5.0s, 1m 5s, 1h 1m, 2h.
func FormatDuration(secs float64) string {
	switch {
	case secs < 60:
		return fmt.Sprintf("%.1fs", secs)
	case secs < 3600:
		mins := math.Floor(secs / 60)
		rem := math.Mod(secs, 60)
		if rem < 1 {
			return fmt.Sprintf("%dm", int64(mins))
		}
		return fmt.Sprintf("%dm %ds", int64(mins), int64(rem))
	default:
		hours := math.Floor(secs / 3600)
		mins := math.Floor(math.Mod(secs, 3600) / 60)
		if mins < 1 {
			return fmt.Sprintf("%dh", int64(hours))
		}
		return fmt.Sprintf("%dh %dm", int64(hours), int64(mins))
	}
}

// ProgressBar draws percent (0..100) as width cells.
func (s Style) ProgressBar(percent float64, width int) string {
	full, empty := "#", "."
	if s.Fancy {
		full, empty = "█", "░"
	}
	filled := int(math.Round(percent / 100 * float64(width)))
	if filled < 0 {
		filled = 0
	}
	if filled > width {
		filled = width
	}
	return strings.Repeat(full, filled) + strings.Repeat(empty, width-filled)
}

// Truncate shortens s to max bytes, ending in "..." when cut.
func Truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return strings.Repeat(".", max)
	}
	return s[:max-3] + "..."
}

// Trace writes a hop table followed by a verdict line.
func (s Style) Trace(w io.Writer, tr domain.PathTrace) {
	fmt.Fprintf(w, "Traceroute to %s\n", tr.Target)
	fmt.Fprintln(w, s.heavyRule(59))
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Hop  IP                  Latency   Segment")
	fmt.Fprintln(w, s.rule(59))
	for _, h := range tr.Hops {
		addr, lat := "*", "*"
		if h.Address != "" {
			addr = h.Address
		}
		if h.LatencyMS != nil {
			lat = fmt.Sprintf("%.2f ms", *h.LatencyMS)
		}
		fmt.Fprintf(w, "%3d  %-18s  %-9s %s\n", h.Ordinal, addr, lat, domain.HopLabel(h.Ordinal))
	}
	fmt.Fprintln(w)

	if tr.Error != "" {
		fmt.Fprintf(w, "Trace error: %s\n", tr.Error)
	}
	if tr.ReachedTarget {
		fmt.Fprintf(w, "Target reached in %d hops.\n", len(tr.Hops))
	} else if hop, addr, ok := pathtrace.FailingHop(tr); ok {
		fmt.Fprintf(w, "Target NOT reached. Last responding hop: %d (%s, %s)\n", hop, addr, domain.HopLabel(hop))
	} else {
		fmt.Fprintln(w, "Target NOT reached. No hops responded.")
	}
}

// Outages writes one line per outage, newest first as given.
func (s Style) Outages(w io.Writer, outages []domain.Outage, now time.Time) {
	if len(outages) == 0 {
		fmt.Fprintln(w, "No outages recorded.")
		return
	}
	for _, o := range outages {
		dur := "ongoing"
		if o.DurationSecs != nil {
			dur = FormatDuration(*o.DurationSecs)
		}
		hop := "-"
		if o.FailingHop != nil {
			hop = fmt.Sprintf("%d %s (%s)", *o.FailingHop, o.FailingHopAddress, domain.HopLabel(*o.FailingHop))
		}
		fmt.Fprintf(w, "#%-5d %s  %-19s %-9s hop %s  [%s]\n",
			o.ID,
			o.StartTime.Local().Format("2006-01-02 15:04:05"),
			humanize.RelTime(o.StartTime, now, "ago", "from now"),
			dur, hop,
			Truncate(strings.Join(o.AffectedEndpoints, ", "), 40))
	}
}

// Stats writes the availability summary for a period.
func (s Style) Stats(w io.Writer, st domain.Stats) {
	fmt.Fprintf(w, "Period: %s to %s\n",
		st.PeriodStart.Local().Format("2006-01-02 15:04"),
		st.PeriodEnd.Local().Format("2006-01-02 15:04"))
	fmt.Fprintln(w, s.rule(40))
	fmt.Fprintf(w, "Availability:   %s %.3f%%\n", s.ProgressBar(st.AvailabilityPercent, 20), st.AvailabilityPercent)
	fmt.Fprintf(w, "Outages:        %s\n", humanize.Comma(int64(st.TotalOutages)))
	fmt.Fprintf(w, "Total downtime: %s\n", FormatDuration(st.TotalDowntimeSecs))
	if st.AvgOutageDurationSecs != nil {
		fmt.Fprintf(w, "Avg duration:   %s\n", FormatDuration(*st.AvgOutageDurationSecs))
	}
	if st.MostCommonFailingHop != nil {
		fmt.Fprintf(w, "Usual culprit:  hop %d (%s)\n", *st.MostCommonFailingHop, domain.HopLabel(*st.MostCommonFailingHop))
	}
}
