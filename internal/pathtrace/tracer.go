// Package pathtrace runs a multi-hop path trace and locates the last hop
// that still answers.
package pathtrace

import (
	"context"
	"errors"
	"runtime"
	"strconv"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/hamed0406/netvigil/internal/domain"
	"github.com/hamed0406/netvigil/internal/probe"
)

const (
	DefaultHopTimeout = 2 * time.Second
	DefaultMaxHops    = 30

	// slack on top of hops*timeout before the trace is killed
	overallSlack = 5 * time.Second
)

type Tracer struct {
	Runner     probe.Runner
	HopTimeout time.Duration
	MaxHops    int
	Clock      clock.Clock
	Logger     *zap.Logger

	goos string
}

func New(hopTimeout time.Duration, maxHops int, logger *zap.Logger) *Tracer {
	if hopTimeout <= 0 {
		hopTimeout = DefaultHopTimeout
	}
	if maxHops <= 0 {
		maxHops = DefaultMaxHops
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracer{
		Runner:     probe.ExecRunner{},
		HopTimeout: hopTimeout,
		MaxHops:    maxHops,
		Clock:      clock.New(),
		Logger:     logger,
		goos:       runtime.GOOS,
	}
}

// Trace runs one path trace toward target. Failures are recorded in the
// result's Error field; whatever output was produced before a failure or a
// deadline is still parsed.
func (t *Tracer) Trace(ctx context.Context, target string) domain.PathTrace {
	res := domain.PathTrace{
		Target:    target,
		Timestamp: t.Clock.Now(),
		Trigger:   domain.TriggerManual,
	}

	limit := t.HopTimeout*time.Duration(t.MaxHops) + overallSlack
	tctx, cancel := context.WithTimeout(ctx, limit)
	defer cancel()

	name, args := t.command(target)
	start := t.Clock.Now()
	out, err := t.Runner.Run(tctx, name, args...)
	if err != nil {
		res.Error = "failed to execute " + name + ": " + err.Error()
		t.Logger.Error("trace_launch_failed", zap.String("target", target), zap.Error(err))
		return res
	}

	res.Hops = ParseReport(string(out.Stdout))
	res.ReachedTarget = reached(res.Hops, target)
	if cerr := tctx.Err(); cerr != nil {
		if errors.Is(cerr, context.DeadlineExceeded) {
			res.Error = name + " timed out after " + limit.String()
		} else {
			res.Error = name + " cancelled"
		}
	}

	t.Logger.Info("trace_done",
		zap.String("target", target),
		zap.Int("hops", len(res.Hops)),
		zap.Bool("reached", res.ReachedTarget),
		zap.Duration("took", t.Clock.Since(start)),
	)
	return res
}

func (t *Tracer) command(target string) (string, []string) {
	if t.goos == "windows" {
		return "tracert", []string{
			"-d",
			"-h", strconv.Itoa(t.MaxHops),
			"-w", strconv.FormatInt(t.HopTimeout.Milliseconds(), 10),
			target,
		}
	}
	secs := int64(t.HopTimeout / time.Second)
	if secs < 1 {
		secs = 1
	}
	return "traceroute", []string{
		"-n",
		"-q", "1",
		"-w", strconv.FormatInt(secs, 10),
		"-m", strconv.Itoa(t.MaxHops),
		target,
	}
}
