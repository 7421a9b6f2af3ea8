package report

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/hamed0406/netvigil/internal/domain"
	"github.com/hamed0406/netvigil/internal/tracker"
)

func TestStatus(t *testing.T) {
	now := time.Date(2025, 8, 18, 12, 0, 0, 0, time.UTC)
	lat := 12.34
	ok := domain.Succeeded(domain.Endpoint{Name: "Cloudflare", Address: "1.1.1.1"}, now, &lat)
	snap := tracker.Snapshot{
		Level:  domain.Offline,
		Outage: &domain.Outage{ID: 7, StartTime: now.Add(-5 * time.Minute)},
		Endpoints: []tracker.EndpointState{
			{Endpoint: domain.Endpoint{Name: "Google DNS", Address: "8.8.8.8"}, ConsecutiveFailures: 3},
			{Endpoint: domain.Endpoint{Name: "Cloudflare", Address: "1.1.1.1"}, ConsecutiveSuccesses: 1, Last: &ok},
		},
		Primary: "8.8.8.8",
	}

	var buf bytes.Buffer
	Style{}.Status(&buf, snap, now)
	out := buf.String()
	for _, want := range []string{"Status: [OFFLINE]", "Outage #7", "5 minutes ago", "failing x3", "12.3 ms", "Diagnosis target: 8.8.8.8"} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in:\n%s", want, out)
		}
	}

	buf.Reset()
	Style{Fancy: true}.Status(&buf, tracker.Snapshot{Level: domain.Online}, now)
	if !strings.HasPrefix(buf.String(), "Status: ● ONLINE") {
		t.Fatalf("unexpected fancy status %q", buf.String())
	}
}

func TestSamples(t *testing.T) {
	now := time.Now()
	lat := 9.0
	var buf bytes.Buffer
	Style{}.Samples(&buf, []domain.ProbeOutcome{
		domain.Succeeded(domain.Endpoint{Name: "Gateway", Address: "192.168.1.1"}, now, &lat),
		domain.Failed(domain.Endpoint{Name: "Google DNS", Address: "8.8.8.8"}, now, "timeout"),
	})
	out := buf.String()
	if !strings.Contains(out, "9.0 ms") || !strings.Contains(out, "FAIL (timeout)") {
		t.Fatalf("unexpected samples:\n%s", out)
	}
}
