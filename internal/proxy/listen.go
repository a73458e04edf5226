package proxy

import (
	"context"
	"fmt"
	"net"
)

// ListenTCP opens a local gateway listener. Accepted conns get ka applied.
func ListenTCP(ctx context.Context, addr string, ka net.KeepAliveConfig) (net.Listener, error) {
	lc := net.ListenConfig{KeepAliveConfig: ka}
	if !ka.Enable {
		lc.KeepAlive = -1
	}

	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	return ln, nil
}
