package connector

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// TLSPolicy decides which connects get a TLS session. The zero value is
// invalid.
type TLSPolicy int

const (
	// TLSAlways runs TLS on every connect, whatever the target's scheme.
	TLSAlways TLSPolicy = iota + 1
	// TLSForHTTPS runs TLS only for https targets.
	TLSForHTTPS
)

func (p TLSPolicy) String() string {
	switch p {
	case TLSAlways:
		return "always"
	case TLSForHTTPS:
		return "https"
	default:
		return fmt.Sprintf("TLSPolicy(%d)", int(p))
	}
}

// TLS runs a TLS client handshake over connections from an inner Connector.
type TLS struct {
	inner  Connector
	config *tls.Config
	policy TLSPolicy
}

var _ Connector = (*TLS)(nil)

// NewTLS wraps inner. A nil cfg means TLS 1.2 or later with system roots.
// ServerName defaults to the target host.
func NewTLS(inner Connector, cfg *tls.Config, policy TLSPolicy) (*TLS, error) {
	if inner == nil {
		return nil, errors.New("connector: nil inner connector")
	}
	switch policy {
	case TLSAlways, TLSForHTTPS:
	default:
		return nil, fmt.Errorf("connector: invalid tls policy %v", policy)
	}

	if cfg == nil {
		cfg = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return &TLS{inner: inner, config: cfg.Clone(), policy: policy}, nil
}

// Policy returns the TLS policy.
func (t *TLS) Policy() TLSPolicy { return t.policy }

// Ready forwards to the inner connector.
func (t *TLS) Ready(ctx context.Context) error {
	return t.inner.Ready(ctx)
}

// Connect connects through the inner connector, then runs the TLS handshake
// when the policy calls for it. A failed handshake closes the connection.
func (t *TLS) Connect(ctx context.Context, target *url.URL) (*Conn, error) {
	dst, err := ResolveTarget(target)
	if err != nil {
		return nil, err
	}

	c, err := t.inner.Connect(ctx, target)
	if err != nil {
		return nil, err
	}
	if t.policy == TLSForHTTPS && !strings.EqualFold(target.Scheme, "https") {
		return c, nil
	}

	cfg := t.config
	if cfg.ServerName == "" {
		cfg = cfg.Clone()
		cfg.ServerName = dst.Host
	}

	tc := tls.Client(c.Conn, cfg)
	if err := tc.HandshakeContext(ctx); err != nil {
		_ = c.Close()
		return nil, ErrTLS.Wrap(err, "tls handshake with %s", dst)
	}

	return &Conn{Conn: tc, proxy: c.proxy, proxied: c.proxied, secure: true}, nil
}
