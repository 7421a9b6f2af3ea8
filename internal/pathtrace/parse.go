package pathtrace

import (
	"bufio"
	"net"
	"strconv"
	"strings"

	"github.com/hamed0406/netvigil/internal/domain"
)

// ParseReport turns a line-oriented traceroute (or tracert) report into hops.
// Lines that do not start with a hop ordinal are skipped.
func ParseReport(report string) []domain.PathHop {
	var hops []domain.PathHop
	sc := bufio.NewScanner(strings.NewReader(report))
	for sc.Scan() {
		if hop, ok := parseHopLine(sc.Text()); ok {
			hops = append(hops, hop)
		}
	}
	return hops
}

func parseHopLine(line string) (domain.PathHop, bool) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return domain.PathHop{}, false
	}
	n, err := strconv.Atoi(fields[0])
	if err != nil || n < 1 {
		return domain.PathHop{}, false
	}
	hop := domain.PathHop{Ordinal: n}

	if fields[1] == "*" && !hasAddress(fields[2:]) {
		hop.TimedOut = true
		return hop, true
	}

	if !isLatencyToken(fields[1]) {
		// traceroute layout: ordinal, address, latency ms
		hop.Address = fields[1]
	} else if last := strings.Trim(fields[len(fields)-1], "[]"); net.ParseIP(last) != nil {
		// tracert layout: ordinal, latencies, address last
		hop.Address = last
	} else if addr := firstAddress(fields[1:]); addr != "" {
		// traceroute with some probes lost before the responder: 3  *  10.0.0.2  5.0 ms
		hop.Address = addr
	} else {
		hop.TimedOut = true
		return hop, true
	}
	hop.LatencyMS = firstLatency(fields)
	return hop, true
}

func firstAddress(fields []string) string {
	for _, f := range fields {
		if ip := strings.Trim(f, "[]"); net.ParseIP(ip) != nil {
			return ip
		}
	}
	return ""
}

func hasAddress(fields []string) bool { return firstAddress(fields) != "" }

func isLatencyToken(s string) bool {
	if s == "*" {
		return true
	}
	_, err := strconv.ParseFloat(strings.TrimPrefix(s, "<"), 64)
	return err == nil
}

// firstLatency returns the number sitting right before the first "ms" token.
func firstLatency(fields []string) *float64 {
	for i := 1; i < len(fields); i++ {
		if fields[i] != "ms" {
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimPrefix(fields[i-1], "<"), 64)
		if err == nil {
			return &v
		}
	}
	return nil
}

// FailingHop names the last hop that answered before the trail went cold.
// It reports false when the target was reached or no hop answered at all.
//
// An isolated silent hop followed by a later answering hop is not flagged:
// the later hop wins. Downstream displays rely on exactly this reading.
func FailingHop(tr domain.PathTrace) (int, string, bool) {
	if tr.ReachedTarget {
		return 0, "", false
	}
	for i := len(tr.Hops) - 1; i >= 0; i-- {
		h := tr.Hops[i]
		if !h.TimedOut && h.Address != "" {
			return h.Ordinal, h.Address, true
		}
	}
	return 0, "", false
}

func reached(hops []domain.PathHop, target string) bool {
	if len(hops) == 0 {
		return false
	}
	last := hops[len(hops)-1]
	return last.Address != "" && last.Address == target
}

// ValidTarget rejects targets that traceroute could read as a flag or that
// carry shell metacharacters.
func ValidTarget(t string) bool {
	if t == "" || len(t) > 253 || strings.HasPrefix(t, "-") {
		return false
	}
	return !strings.ContainsAny(t, " \t\r\n/\\;&|`$")
}
