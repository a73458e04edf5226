package connector

import (
	"context"
	"crypto/tls"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/die-net/sockstun/internal/dialer"
)

// Dialer reaches the proxy. *net.Dialer, the internal/dialer hops, x/net/proxy
// dialers and *Tunnel all satisfy it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Readier is implemented by dialers and connectors that can report whether
// they are able to take a new connect. Ready blocks until they are, or ctx
// ends.
type Readier interface {
	Ready(ctx context.Context) error
}

// Connector is anything that produces connections to request targets.
type Connector interface {
	Readier
	Connect(ctx context.Context, target *url.URL) (*Conn, error)
}

// Config configures a Tunnel.
type Config struct {
	// Handshaker negotiates the tunnel. Nil means SOCKSHandshaker{}.
	Handshaker Handshaker
	// Logger defaults to discarding everything.
	Logger Logger
	// NegotiationTimeout bounds the handshake. Zero leaves it bounded only
	// by the context.
	NegotiationTimeout time.Duration
}

// Tunnel connects to targets through a SOCKS proxy. It holds no mutable
// state and is safe for concurrent use.
type Tunnel struct {
	proxy              Proxy
	inner              Dialer
	handshaker         Handshaker
	log                Logger
	negotiationTimeout time.Duration
}

var (
	_ Connector = (*Tunnel)(nil)
	_ Dialer    = (*Tunnel)(nil)
)

// NewTunnel returns a Tunnel through p that reaches p.Addr with inner. A nil
// inner dials directly.
func NewTunnel(cfg Config, p Proxy, inner Dialer) *Tunnel {
	if inner == nil {
		inner = dialer.NewDirectDialer(dialer.Config{})
	}
	t := &Tunnel{
		proxy:              p,
		inner:              inner,
		handshaker:         cfg.Handshaker,
		log:                cfg.Logger,
		negotiationTimeout: cfg.NegotiationTimeout,
	}
	if t.handshaker == nil {
		t.handshaker = SOCKSHandshaker{}
	}
	if t.log == nil {
		t.log = nopLogger{}
	}
	return t
}

// Proxy returns the proxy t tunnels through.
func (t *Tunnel) Proxy() Proxy { return t.proxy }

// Ready forwards to the inner dialer when it is a Readier.
func (t *Tunnel) Ready(ctx context.Context) error {
	if r, ok := t.inner.(Readier); ok {
		return r.Ready(ctx)
	}
	return ctx.Err()
}

// Connect tunnels to the host and port of target. Nothing is retried; on
// failure the proxy connection is closed.
func (t *Tunnel) Connect(ctx context.Context, target *url.URL) (*Conn, error) {
	dst, err := ResolveTarget(target)
	if err != nil {
		return nil, err
	}
	return t.connect(ctx, dst)
}

// DialContext tunnels to address, a "host:port" pair. Only TCP networks are
// supported.
func (t *Tunnel) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	if !strings.HasPrefix(network, "tcp") {
		return nil, ErrInvalidTarget.New("socks dial %s %s: unsupported network", network, address)
	}
	dst, err := ParseTarget(address)
	if err != nil {
		return nil, err
	}
	c, err := t.connect(ctx, dst)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Dial is DialContext with a background context.
func (t *Tunnel) Dial(network, address string) (net.Conn, error) {
	return t.DialContext(context.Background(), network, address)
}

// WithTLS layers TLS over t.
func (t *Tunnel) WithTLS(cfg *tls.Config, policy TLSPolicy) (*TLS, error) {
	return NewTLS(t, cfg, policy)
}

func (t *Tunnel) connect(ctx context.Context, dst Target) (*Conn, error) {
	raw, err := t.inner.DialContext(ctx, "tcp", t.proxy.Addr)
	if err != nil {
		if ctx.Err() != nil {
			return nil, t.canceled(ctx, dst)
		}
		err = ErrTransport.Wrap(err, "reach proxy %s", t.proxy)
		t.log.Errorf("%s: %v", dst, err)
		return nil, err
	}

	stop := context.AfterFunc(ctx, func() {
		_ = raw.Close()
	})
	if t.negotiationTimeout > 0 {
		_ = raw.SetDeadline(time.Now().Add(t.negotiationTimeout))
	}

	err = t.handshaker.Handshake(ctx, raw, dst, t.proxy)
	if !stop() {
		// ctx ended and raw is already closed.
		return nil, t.canceled(ctx, dst)
	}
	if err != nil {
		_ = raw.Close()
		err = ErrProtocol.Wrap(err, "handshake with %s", t.proxy)
		t.log.Errorf("%s: %v", dst, err)
		return nil, err
	}

	if t.negotiationTimeout > 0 {
		_ = raw.SetDeadline(time.Time{})
	}

	t.log.Debugf("%s: tunneled through %s", dst, t.proxy)
	return &Conn{Conn: raw, proxy: t.proxy, proxied: true}, nil
}

// canceled reports a connect abandoned by its caller. The context error is
// returned as is so callers can tell it from a proxy failure.
func (t *Tunnel) canceled(ctx context.Context, dst Target) error {
	t.log.Debugf("%s: connect through %s abandoned: %v", dst, t.proxy, ctx.Err())
	return ctx.Err()
}
