package connector

import (
	"context"
	"fmt"
	"net"
	"net/netip"

	"github.com/die-net/sockstun/internal/socks4"
	"github.com/die-net/sockstun/internal/socks5"
)

// Handshaker negotiates a tunnel to target over conn, an open connection to
// proxy. It must not close conn; the caller does that on failure.
type Handshaker interface {
	Handshake(ctx context.Context, conn net.Conn, target Target, proxy Proxy) error
}

// Resolver resolves hostnames for SOCKS4 proxies, which only accept IPv4
// addresses. *net.Resolver satisfies it.
type Resolver interface {
	LookupNetIP(ctx context.Context, network, host string) ([]netip.Addr, error)
}

// SOCKSHandshaker speaks SOCKS4, SOCKS4a or SOCKS5 according to
// Proxy.Protocol.
type SOCKSHandshaker struct {
	// Resolver is used by SOCKS4; nil means net.DefaultResolver.
	Resolver Resolver
}

func (h SOCKSHandshaker) Handshake(ctx context.Context, conn net.Conn, target Target, p Proxy) error {
	switch p.Protocol {
	case SOCKS4, SOCKS4A:
		req := socks4.Request{
			Host:          target.Host,
			Port:          target.Port,
			UserID:        p.UserID,
			RemoteResolve: p.Protocol == SOCKS4A,
		}
		return socks4.ClientConnect(ctx, conn, req, h.Resolver)
	case SOCKS5:
		var auth socks5.Auth
		if p.Auth != nil {
			auth = socks5.Auth{Username: p.Auth.Username, Password: p.Auth.Password}
		}
		return socks5.ClientDial(conn, auth, target.String())
	default:
		return fmt.Errorf("unsupported proxy protocol %v", p.Protocol)
	}
}
