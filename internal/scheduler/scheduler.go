package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hamed0406/netvigil/internal/domain"
	"github.com/hamed0406/netvigil/internal/probe"
)

// OutputBuffer is how many outcomes may queue up before a slow consumer
// stalls the loop.
const OutputBuffer = 100

var (
	ErrNoEndpoints = errors.New("scheduler: no endpoints configured")
	ErrBadInterval = errors.New("scheduler: interval must be positive")
)

// Scheduler probes every endpoint once per tick.
type Scheduler struct {
	Logger      *zap.Logger
	Prober      probe.Prober
	Endpoints   []domain.Endpoint
	Interval    time.Duration
	Timeout     time.Duration
	Concurrency int
	Clock       clock.Clock
}

func NewScheduler(
	logger *zap.Logger,
	prober probe.Prober,
	endpoints []domain.Endpoint,
	interval time.Duration,
	timeout time.Duration,
	concurrency int,
) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if concurrency < 0 {
		concurrency = 0
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Scheduler{
		Logger:      logger,
		Prober:      prober,
		Endpoints:   append([]domain.Endpoint(nil), endpoints...),
		Interval:    interval,
		Timeout:     timeout,
		Concurrency: concurrency,
		Clock:       clock.New(),
	}
}

// Start launches the tick loop and returns its output. The first tick fires
// one interval after Start. Cancelling ctx is how the consumer says it is
// gone: the loop stops and the channel is closed.
func (s *Scheduler) Start(ctx context.Context) (<-chan domain.ProbeOutcome, error) {
	if len(s.Endpoints) == 0 {
		return nil, ErrNoEndpoints
	}
	if s.Interval <= 0 {
		return nil, ErrBadInterval
	}

	out := make(chan domain.ProbeOutcome, OutputBuffer)
	t := s.Clock.Ticker(s.Interval)
	go s.loop(ctx, t, out)
	return out, nil
}

func (s *Scheduler) loop(ctx context.Context, t *clock.Ticker, out chan<- domain.ProbeOutcome) {
	defer close(out)
	defer t.Stop()

	s.Logger.Info("scheduler_started",
		zap.Int("endpoints", len(s.Endpoints)),
		zap.Duration("interval", s.Interval),
		zap.Duration("timeout", s.Timeout),
	)

	for {
		select {
		case <-ctx.Done():
			s.Logger.Info("scheduler_stopped")
			return
		case <-t.C:
			for _, o := range s.RunOnce(ctx) {
				select {
				case out <- o:
				case <-ctx.Done():
					s.Logger.Info("scheduler_stopped")
					return
				}
			}
		}
	}
}

// RunOnce probes every endpoint concurrently and returns the outcomes in
// endpoint order once the slowest probe is done.
func (s *Scheduler) RunOnce(ctx context.Context) []domain.ProbeOutcome {
	results := make([]domain.ProbeOutcome, len(s.Endpoints))

	var g errgroup.Group
	if s.Concurrency > 0 {
		g.SetLimit(s.Concurrency)
	}
	for i, ep := range s.Endpoints {
		g.Go(func() error {
			// The prober owns its own deadline; this one only guards
			// against a prober that ignores it.
			cctx, cancel := context.WithTimeout(ctx, s.Timeout+time.Second)
			defer cancel()

			o := s.Prober.Probe(cctx, ep)
			results[i] = o
			if o.Success {
				s.Logger.Debug("probe_ok",
					zap.String("address", ep.Address),
					zap.Float64p("latency_ms", o.LatencyMS),
				)
			} else {
				s.Logger.Debug("probe_failed",
					zap.String("address", ep.Address),
					zap.String("reason", o.FailureReason),
				)
			}
			return nil
		})
	}
	_ = g.Wait()
	return results
}
