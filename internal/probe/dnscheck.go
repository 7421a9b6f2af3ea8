package probe

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"
)

// DNS classes reported by CheckDNS.
const (
	DNSResolves     = "RESOLVES"
	DNSLiteral      = "IP_LITERAL"
	DNSNXDomain     = "NXDOMAIN"
	DNSNoAddress    = "NO_A_RECORD"
	DNSTemporary    = "SERVFAIL_or_TIMEOUT"
	DNSInvalidName  = "INVALID_NAME"
	defaultDNSLimit = 3 * time.Second
)

type DNSStatus struct {
	Host          string
	IPs           []net.IP
	Class         string
	ResolverError string
}

// OK reports whether the host yielded at least one address.
func (s DNSStatus) OK() bool { return s.Class == DNSResolves || s.Class == DNSLiteral }

// Lookup is the subset of *net.Resolver used here.
type Lookup interface {
	LookupIP(ctx context.Context, network, host string) ([]net.IP, error)
}

// CheckDNS resolves host and classifies the answer. IP literals skip the
// resolver entirely.
func CheckDNS(ctx context.Context, r Lookup, host string) DNSStatus {
	s := DNSStatus{Host: strings.TrimSpace(host)}
	if s.Host == "" || strings.Contains(s.Host, "://") || strings.ContainsAny(s.Host, " /") {
		s.Class = DNSInvalidName
		return s
	}
	if ip := net.ParseIP(s.Host); ip != nil {
		s.IPs = []net.IP{ip}
		s.Class = DNSLiteral
		return s
	}
	if r == nil {
		r = net.DefaultResolver
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultDNSLimit)
		defer cancel()
	}

	ips, err := r.LookupIP(ctx, "ip", s.Host)
	switch {
	case err == nil && len(ips) > 0:
		s.IPs = ips
		s.Class = DNSResolves
	case err == nil:
		s.Class = DNSNoAddress
	default:
		s.ResolverError = err.Error()
		var de *net.DNSError
		if errors.As(err, &de) && de.IsNotFound {
			s.Class = DNSNXDomain
		} else {
			s.Class = DNSTemporary
		}
	}
	return s
}

// firstIP prefers an IPv4 address when the host has both families.
func (s DNSStatus) firstIP() net.IP {
	for _, ip := range s.IPs {
		if ip.To4() != nil {
			return ip
		}
	}
	if len(s.IPs) > 0 {
		return s.IPs[0]
	}
	return nil
}
