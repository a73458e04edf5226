package proxy

import (
	"net"
	"net/http"
	"time"

	"github.com/die-net/sockstun/connector"
	"github.com/die-net/sockstun/internal/socks5"
)

type Config struct {
	// Dialer carries CONNECT and SOCKS5 traffic, usually a *connector.Tunnel.
	Dialer connector.Dialer
	// Transport carries non-CONNECT HTTP requests, usually from
	// connector.NewTransport.
	Transport http.RoundTripper

	NegotiationTimeout time.Duration
	HTTPIdleTimeout    time.Duration
	KeepAlive          net.KeepAliveConfig

	// SOCKS5Auth, when it has a username, is required from SOCKS5 clients.
	SOCKS5Auth socks5.Auth

	Logger connector.Logger
}
