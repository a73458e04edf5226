package dialer

import (
	"context"
	"fmt"
	"net"
)

// DirectDialer reaches the proxy over plain TCP.
type DirectDialer struct {
	net.Dialer
}

// NewDirectDialer returns a DirectDialer honoring cfg.DialTimeout and
// cfg.KeepAlive.
func NewDirectDialer(cfg Config) *DirectDialer {
	d := &DirectDialer{}
	d.Timeout = cfg.DialTimeout
	d.KeepAliveConfig = cfg.KeepAlive
	return d
}

// DialContext dials address, annotating failures with the network and
// address.
func (d *DirectDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	conn, err := d.Dialer.DialContext(ctx, network, address)
	if err != nil {
		return nil, fmt.Errorf("dial %s %s: %w", network, address, err)
	}
	return conn, nil
}
