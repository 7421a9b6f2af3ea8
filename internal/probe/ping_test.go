package probe

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"

	"github.com/hamed0406/netvigil/internal/domain"
)

type fakeRunner struct {
	out   Output
	err   error
	block bool

	name string
	args []string
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) (Output, error) {
	f.name, f.args = name, args
	if f.block {
		<-ctx.Done()
		return Output{ExitCode: -1}, nil
	}
	return f.out, f.err
}

func newTestPinger(r Runner) *ExecPinger {
	p := NewExecPinger(100*time.Millisecond, zap.NewNop())
	p.Runner = r
	p.Clock = clock.NewMock()
	p.goos = "linux"
	return p
}

var google = domain.Endpoint{Name: "Google DNS", Address: "8.8.8.8"}

func TestExecPinger_Success(t *testing.T) {
	r := &fakeRunner{out: Output{Stdout: []byte(
		"PING 8.8.8.8 (8.8.8.8) 56(84) bytes of data.\n" +
			"64 bytes from 8.8.8.8: icmp_seq=1 ttl=117 time=14.2 ms\n")}}
	got := newTestPinger(r).Probe(context.Background(), google)

	if !got.Success {
		t.Fatalf("want success, got %+v", got)
	}
	if got.LatencyMS == nil || *got.LatencyMS != 14.2 {
		t.Fatalf("want 14.2ms, got %v", got.LatencyMS)
	}
	if got.Name != "Google DNS" || got.Address != "8.8.8.8" {
		t.Fatalf("endpoint not carried: %+v", got)
	}
	if r.name != "ping" {
		t.Fatalf("want ping, got %q", r.name)
	}
}

func TestExecPinger_SuccessWithoutLatency(t *testing.T) {
	r := &fakeRunner{out: Output{Stdout: []byte("1 packets transmitted, 1 received\n")}}
	got := newTestPinger(r).Probe(context.Background(), google)
	if !got.Success || got.LatencyMS != nil {
		t.Fatalf("want success with nil latency, got %+v", got)
	}
}

func TestExecPinger_LaunchFailure(t *testing.T) {
	r := &fakeRunner{err: errors.New(`exec: "ping": executable file not found in $PATH`)}
	got := newTestPinger(r).Probe(context.Background(), google)
	if got.Success {
		t.Fatalf("want failure")
	}
	want := `failed to execute ping: exec: "ping": executable file not found in $PATH`
	if got.FailureReason != want {
		t.Fatalf("want %q, got %q", want, got.FailureReason)
	}
}

func TestExecPinger_KilledAtDeadline(t *testing.T) {
	got := newTestPinger(&fakeRunner{block: true}).Probe(context.Background(), google)
	if got.Success || got.FailureReason != ReasonTimeout {
		t.Fatalf("want timeout, got %+v", got)
	}
}

func TestExecPinger_ClassifiedFailure(t *testing.T) {
	r := &fakeRunner{out: Output{
		ExitCode: 1,
		Stdout:   []byte("1 packets transmitted, 0 received, 100% packet loss, time 0ms\n"),
	}}
	got := newTestPinger(r).Probe(context.Background(), google)
	if got.FailureReason != ReasonTimeout {
		t.Fatalf("want timeout, got %q", got.FailureReason)
	}
}

func TestParseLatency(t *testing.T) {
	cases := []struct {
		in   string
		want *float64
	}{
		{"64 bytes from 1.1.1.1: icmp_seq=0 ttl=57 time=0.042 ms", ptr(0.042)},
		{"64 bytes from 1.1.1.1: icmp_seq=0 ttl=57 time=1234.5 ms", ptr(1234.5)},
		{"time=12 ms\ntime=99 ms", ptr(12)},
		{"no timing here", nil},
	}
	for _, c := range cases {
		got := ParseLatency([]byte(c.in))
		if diff := cmp.Diff(c.want, got); diff != "" {
			t.Fatalf("ParseLatency(%q) mismatch (-want +got):\n%s", c.in, diff)
		}
	}
}

func TestClassifyFailure(t *testing.T) {
	cases := []struct {
		stdout, stderr string
		want           string
	}{
		{"2 packets transmitted, 0 packets received, 100.0% packet loss", "", ReasonTimeout},
		{"Request timeout for icmp_seq 0", "", ReasonTimeout},
		{"", "ping: sendto: No route to host", ReasonNoRoute},
		{"", "connect: Network is unreachable", ReasonNetworkUnreachable},
		{"", "ping: cannot resolve nowhere.invalid: Unknown host", ReasonDNSFailure},
		{"", "ping: nowhere.invalid: Name or service not known", ReasonDNSFailure},
		{"", "\n  ping: permission denied\nmore", "ping: permission denied"},
		{"", "", ReasonGeneric},
	}
	for _, c := range cases {
		if got := ClassifyFailure([]byte(c.stdout), []byte(c.stderr)); got != c.want {
			t.Fatalf("ClassifyFailure(%q, %q): want %q, got %q", c.stdout, c.stderr, c.want, got)
		}
	}
}

func TestPingArgs(t *testing.T) {
	cases := []struct {
		goos    string
		timeout time.Duration
		want    []string
	}{
		{"linux", 2 * time.Second, []string{"-c", "1", "-W", "2", "8.8.8.8"}},
		{"linux", 1500 * time.Millisecond, []string{"-c", "1", "-W", "2", "8.8.8.8"}},
		{"linux", 10 * time.Millisecond, []string{"-c", "1", "-W", "1", "8.8.8.8"}},
		{"darwin", 2 * time.Second, []string{"-c", "1", "-W", "2000", "8.8.8.8"}},
		{"windows", 2 * time.Second, []string{"-n", "1", "-w", "2000", "8.8.8.8"}},
	}
	for _, c := range cases {
		got := PingArgs(c.goos, c.timeout, "8.8.8.8")
		if diff := cmp.Diff(c.want, got); diff != "" {
			t.Fatalf("%s/%v mismatch (-want +got):\n%s", c.goos, c.timeout, diff)
		}
	}
}

type fakeLookup struct {
	ips []net.IP
	err error
}

func (f fakeLookup) LookupIP(context.Context, string, string) ([]net.IP, error) {
	return f.ips, f.err
}

func TestCheckDNS(t *testing.T) {
	ctx := context.Background()

	if s := CheckDNS(ctx, nil, "1.1.1.1"); s.Class != DNSLiteral || !s.OK() {
		t.Fatalf("want literal, got %+v", s)
	}
	if s := CheckDNS(ctx, nil, "https://example.com"); s.Class != DNSInvalidName {
		t.Fatalf("want invalid name, got %+v", s)
	}

	ok := fakeLookup{ips: []net.IP{net.ParseIP("2001:db8::1"), net.ParseIP("192.0.2.1")}}
	s := CheckDNS(ctx, ok, "example.com")
	if s.Class != DNSResolves {
		t.Fatalf("want resolves, got %+v", s)
	}
	if !s.firstIP().Equal(net.ParseIP("192.0.2.1")) {
		t.Fatalf("want v4 preferred, got %v", s.firstIP())
	}

	nx := fakeLookup{err: &net.DNSError{Err: "no such host", Name: "nowhere.invalid", IsNotFound: true}}
	if s := CheckDNS(ctx, nx, "nowhere.invalid"); s.Class != DNSNXDomain || s.OK() {
		t.Fatalf("want NXDOMAIN, got %+v", s)
	}

	tmp := fakeLookup{err: &net.DNSError{Err: "i/o timeout", IsTimeout: true}}
	if s := CheckDNS(ctx, tmp, "example.com"); s.Class != DNSTemporary {
		t.Fatalf("want temporary, got %+v", s)
	}
}

func TestICMPPinger_DNSFailureAndNotStarted(t *testing.T) {
	p := NewICMPPinger(50*time.Millisecond, nil)
	p.Resolver = fakeLookup{err: &net.DNSError{IsNotFound: true}}

	got := p.Probe(context.Background(), domain.Endpoint{Name: "x", Address: "nowhere.invalid"})
	if got.FailureReason != ReasonDNSFailure {
		t.Fatalf("want dns failure, got %+v", got)
	}

	got = p.Probe(context.Background(), google)
	if got.Success || got.FailureReason != ErrPingerNotStarted.Error() {
		t.Fatalf("want not started failure, got %+v", got)
	}
}

func ptr(v float64) *float64 { return &v }
