// Package netinfo discovers facts about the local network.
package netinfo

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/jackpal/gateway"
)

const DefaultDiscoverTimeout = 3 * time.Second

var ErrNoGateway = errors.New("no default gateway")

// discover is swapped in tests.
var discover = gateway.DiscoverGateway

// DetectGateway returns the default gateway address. Route table reads can
// hang on some systems, so the lookup is bounded by timeout.
func DetectGateway(timeout time.Duration) (string, error) {
	if timeout <= 0 {
		timeout = DefaultDiscoverTimeout
	}
	type result struct {
		ip  net.IP
		err error
	}
	ch := make(chan result, 1)
	go func() {
		ip, err := discover()
		ch <- result{ip, err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			return "", fmt.Errorf("discover gateway: %w", r.err)
		}
		if r.ip == nil || r.ip.IsUnspecified() {
			return "", ErrNoGateway
		}
		return r.ip.String(), nil
	case <-time.After(timeout):
		return "", fmt.Errorf("discover gateway: timeout after %v", timeout)
	}
}

// Discoverer adapts DetectGateway to config.ResolveGateway.
func Discoverer(timeout time.Duration) func() (string, error) {
	return func() (string, error) { return DetectGateway(timeout) }
}
