package notifier

import (
	"context"
	"net"
	"net/netip"
	"net/url"
	"strings"

	"github.com/good-yellow-bee/logtrap/internal/errs"
)

// URLValidator rejects channel URLs whose resolved host falls in a
// private, loopback or link-local range, so a channel can never be used to
// probe the internal network.
type URLValidator struct {
	// lookup resolves a hostname to addresses; swappable for tests.
	lookup func(ctx context.Context, host string) ([]netip.Addr, error)
}

// NewURLValidator creates a validator using the default resolver.
func NewURLValidator() *URLValidator {
	return &URLValidator{
		lookup: func(ctx context.Context, host string) ([]netip.Addr, error) {
			return net.DefaultResolver.LookupNetIP(ctx, "ip", host)
		},
	}
}

// Validate checks the raw URL. The scheme must be http or https and every
// address the host resolves to must be publicly routable.
func (v *URLValidator) Validate(ctx context.Context, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return errs.Validation("invalid channel URL: %v", err)
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return errs.Validation("channel URL must use http or https, got %q", u.Scheme)
	}

	host := u.Hostname()
	if host == "" {
		return errs.Validation("channel URL has no host")
	}

	// IP literals are classified directly; hostnames are resolved and
	// every returned address must pass.
	if addr, err := netip.ParseAddr(host); err == nil {
		return checkAddr(addr, host)
	}

	addrs, err := v.lookup(ctx, host)
	if err != nil {
		return errs.Security("channel URL host %q did not resolve: %v", host, err)
	}
	if len(addrs) == 0 {
		return errs.Security("channel URL host %q resolved to no addresses", host)
	}
	for _, addr := range addrs {
		if err := checkAddr(addr, host); err != nil {
			return err
		}
	}
	return nil
}

// checkAddr rejects addresses in forbidden ranges.
func checkAddr(addr netip.Addr, host string) error {
	addr = addr.Unmap()
	switch {
	case addr.IsLoopback():
		return forbidden(host, addr, "loopback")
	case addr.IsPrivate():
		return forbidden(host, addr, "private")
	case addr.IsLinkLocalUnicast(), addr.IsLinkLocalMulticast():
		return forbidden(host, addr, "link-local")
	case addr.IsUnspecified():
		return forbidden(host, addr, "unspecified")
	}
	return nil
}

func forbidden(host string, addr netip.Addr, class string) error {
	return errs.Security("channel URL host %q resolves to %s address %s", host, class, addr)
}
