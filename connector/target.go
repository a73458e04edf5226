package connector

import (
	"net"
	"net/url"
	"strconv"
	"strings"
)

// Target is the host and port a connect call tunnels to.
type Target struct {
	Host string
	Port uint16
}

func (t Target) String() string {
	return net.JoinHostPort(t.Host, strconv.Itoa(int(t.Port)))
}

// ResolveTarget extracts the host and port from u. An explicit port is used
// as is; otherwise https gets 443 and every other scheme, including none,
// gets 80.
func ResolveTarget(u *url.URL) (Target, error) {
	if u == nil {
		return Target{}, ErrMissingHost.New("no target url")
	}
	host := u.Hostname()
	if host == "" {
		return Target{}, ErrMissingHost.New("target %q has no host", u.Redacted())
	}

	port := u.Port()
	if port == "" {
		if strings.EqualFold(u.Scheme, "https") {
			return Target{Host: host, Port: 443}, nil
		}
		return Target{Host: host, Port: 80}, nil
	}

	p, err := parsePort(port)
	if err != nil {
		return Target{}, err
	}
	return Target{Host: host, Port: p}, nil
}

// ParseTarget parses a "host:port" address as passed to DialContext.
func ParseTarget(address string) (Target, error) {
	host, port, err := net.SplitHostPort(address)
	if err != nil {
		return Target{}, ErrInvalidTarget.Wrap(err, "parse address")
	}
	if host == "" {
		return Target{}, ErrMissingHost.New("address %q has no host", address)
	}

	p, err := parsePort(port)
	if err != nil {
		return Target{}, err
	}
	return Target{Host: host, Port: p}, nil
}

func parsePort(port string) (uint16, error) {
	p, err := strconv.ParseUint(port, 10, 16)
	if err != nil {
		return 0, ErrInvalidTarget.Wrap(err, "invalid port %q", port)
	}
	return uint16(p), nil
}
