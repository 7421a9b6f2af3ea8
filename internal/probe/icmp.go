package probe

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/macrat/go-parallel-pinger"
	"go.uber.org/zap"

	"github.com/hamed0406/netvigil/internal/domain"
)

var ErrPingerNotStarted = errors.New("icmp pinger not started")

// ICMPPinger sends echo requests from inside the process. One v4 and one v6
// socket are shared by every probe.
type ICMPPinger struct {
	Timeout    time.Duration
	Resolver   Lookup
	Clock      clock.Clock
	Logger     *zap.Logger
	Privileged *bool

	mu     sync.RWMutex
	v4, v6 *pinger.Pinger
}

func NewICMPPinger(timeout time.Duration, logger *zap.Logger) *ICMPPinger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ICMPPinger{
		Timeout: timeout,
		Clock:   clock.New(),
		Logger:  logger,
	}
}

// Start opens the sockets. They are closed when ctx is cancelled. When the
// default mode is refused the other mode is tried once for IPv4.
func (p *ICMPPinger) Start(ctx context.Context) error {
	v4 := pinger.NewIPv4()
	v6 := pinger.NewIPv6()
	if p.Privileged != nil {
		v4.SetPrivileged(*p.Privileged)
		v6.SetPrivileged(*p.Privileged)
	}

	if err := v4.Start(ctx); err != nil {
		if p.Privileged != nil {
			return err
		}
		v4.SetPrivileged(!pinger.DEFAULT_PRIVILEGED)
		if err := v4.Start(ctx); err != nil {
			return err
		}
	}
	if err := v6.Start(ctx); err != nil {
		// v6 is optional; many hosts have no v6 route at all.
		p.Logger.Info("icmp_v6_unavailable", zap.Error(err))
		v6 = nil
	}

	p.mu.Lock()
	p.v4, p.v6 = v4, v6
	p.mu.Unlock()
	return nil
}

func (p *ICMPPinger) Probe(ctx context.Context, ep domain.Endpoint) domain.ProbeOutcome {
	now := p.Clock.Now()

	pctx, cancel := context.WithTimeout(ctx, p.Timeout+grace)
	defer cancel()

	dns := CheckDNS(pctx, p.Resolver, ep.Address)
	if !dns.OK() {
		return domain.Failed(ep, now, ReasonDNSFailure)
	}
	ip := dns.firstIP()

	pg, err := p.socketFor(ip)
	if err != nil {
		return domain.Failed(ep, now, err.Error())
	}

	res, err := pg.Ping(pctx, &net.IPAddr{IP: ip}, 1, p.Timeout)
	if err != nil {
		if errors.Is(pctx.Err(), context.DeadlineExceeded) {
			return domain.Failed(ep, now, ReasonTimeout)
		}
		return domain.Failed(ep, now, err.Error())
	}
	if res.Recv == 0 {
		return domain.Failed(ep, now, ReasonTimeout)
	}
	ms := float64(res.AvgRTT.Microseconds()) / 1000
	return domain.Succeeded(ep, now, &ms)
}

func (p *ICMPPinger) socketFor(ip net.IP) (*pinger.Pinger, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if ip.To4() != nil {
		if p.v4 == nil {
			return nil, ErrPingerNotStarted
		}
		return p.v4, nil
	}
	if p.v6 == nil {
		return nil, ErrPingerNotStarted
	}
	return p.v6, nil
}
