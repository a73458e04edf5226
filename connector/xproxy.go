package connector

import (
	"context"
	"net"
	"net/url"

	"golang.org/x/net/proxy"
)

// Registering socks4 and socks4a lets proxy.FromURL and
// proxy.FromEnvironment build Tunnels for those schemes.
func init() {
	proxy.RegisterDialerType("socks4", fromProxyURL)
	proxy.RegisterDialerType("socks4a", fromProxyURL)
}

func fromProxyURL(u *url.URL, forward proxy.Dialer) (proxy.Dialer, error) {
	p, err := ProxyFromURL(u)
	if err != nil {
		return nil, err
	}
	if forward == nil {
		forward = proxy.Direct
	}
	return NewTunnel(Config{}, p, forwardDialer{forward}), nil
}

// forwardDialer adapts a proxy.Dialer to Dialer.
type forwardDialer struct {
	proxy.Dialer
}

func (d forwardDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	if cd, ok := d.Dialer.(proxy.ContextDialer); ok {
		return cd.DialContext(ctx, network, address)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return d.Dialer.Dial(network, address)
}

func (d forwardDialer) Ready(ctx context.Context) error {
	if r, ok := d.Dialer.(Readier); ok {
		return r.Ready(ctx)
	}
	return ctx.Err()
}
