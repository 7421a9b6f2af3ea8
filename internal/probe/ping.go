package probe

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"math"
	"regexp"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/hamed0406/netvigil/internal/domain"
)

// Failure classes shared by every prober.
const (
	ReasonTimeout            = "timeout"
	ReasonNoRoute            = "no route"
	ReasonNetworkUnreachable = "network unreachable"
	ReasonDNSFailure         = "dns failure"
	ReasonGeneric            = "ping failed"
)

// grace lets the ping binary report its own timeout before we kill it.
const grace = 500 * time.Millisecond

var latencyRe = regexp.MustCompile(`time=\s*([0-9]*\.?[0-9]+)`)

// ExecPinger probes with the system ping binary, one packet per call.
type ExecPinger struct {
	Runner  Runner
	Timeout time.Duration
	Clock   clock.Clock
	Logger  *zap.Logger

	goos string
}

func NewExecPinger(timeout time.Duration, logger *zap.Logger) *ExecPinger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExecPinger{
		Runner:  ExecRunner{},
		Timeout: timeout,
		Clock:   clock.New(),
		Logger:  logger,
		goos:    runtime.GOOS,
	}
}

func (p *ExecPinger) Probe(ctx context.Context, ep domain.Endpoint) domain.ProbeOutcome {
	now := p.Clock.Now()

	pctx, cancel := context.WithTimeout(ctx, p.Timeout+grace)
	defer cancel()

	out, err := p.Runner.Run(pctx, "ping", PingArgs(p.goos, p.Timeout, ep.Address)...)
	if err != nil {
		if errors.Is(pctx.Err(), context.DeadlineExceeded) {
			return domain.Failed(ep, now, ReasonTimeout)
		}
		p.Logger.Warn("ping_launch_failed", zap.String("address", ep.Address), zap.Error(err))
		return domain.Failed(ep, now, "failed to execute ping: "+err.Error())
	}

	if out.ExitCode == 0 {
		return domain.Succeeded(ep, now, ParseLatency(out.Stdout))
	}
	if errors.Is(pctx.Err(), context.DeadlineExceeded) {
		return domain.Failed(ep, now, ReasonTimeout)
	}
	return domain.Failed(ep, now, ClassifyFailure(out.Stdout, out.Stderr))
}

// PingArgs builds a single-packet ping command line for goos.
func PingArgs(goos string, timeout time.Duration, address string) []string {
	ms := timeout.Milliseconds()
	if ms < 1 {
		ms = 1
	}
	switch goos {
	case "windows":
		return []string{"-n", "1", "-w", strconv.FormatInt(ms, 10), address}
	case "darwin", "freebsd", "netbsd", "openbsd":
		// BSD ping takes -W in milliseconds.
		return []string{"-c", "1", "-W", strconv.FormatInt(ms, 10), address}
	default:
		secs := int64(math.Ceil(timeout.Seconds()))
		if secs < 1 {
			secs = 1
		}
		return []string{"-c", "1", "-W", strconv.FormatInt(secs, 10), address}
	}
}

// ParseLatency returns the first time=<ms> value in a ping report, or nil.
func ParseLatency(report []byte) *float64 {
	m := latencyRe.FindSubmatch(report)
	if m == nil {
		return nil
	}
	v, err := strconv.ParseFloat(string(m[1]), 64)
	if err != nil {
		return nil
	}
	return &v
}

// ClassifyFailure maps a failed ping report to a coarse reason.
func ClassifyFailure(stdout, stderr []byte) string {
	text := string(stdout) + "\n" + string(stderr)
	switch {
	case strings.Contains(text, "100% packet loss"),
		strings.Contains(text, "100.0% packet loss"),
		strings.Contains(text, "Request timeout"),
		strings.Contains(text, "Request timed out"):
		return ReasonTimeout
	case strings.Contains(text, "No route to host"):
		return ReasonNoRoute
	case strings.Contains(text, "Network is unreachable"):
		return ReasonNetworkUnreachable
	case strings.Contains(text, "Unknown host"),
		strings.Contains(text, "unknown host"),
		strings.Contains(text, "cannot resolve"),
		strings.Contains(text, "Name or service not known"),
		strings.Contains(text, "Temporary failure in name resolution"):
		return ReasonDNSFailure
	}
	if line := firstLine(stderr); line != "" {
		return line
	}
	return ReasonGeneric
}

func firstLine(b []byte) string {
	sc := bufio.NewScanner(bytes.NewReader(b))
	for sc.Scan() {
		if s := strings.TrimSpace(sc.Text()); s != "" {
			return s
		}
	}
	return ""
}
