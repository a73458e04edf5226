package connector

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"net/url"
	"time"
)

// TransportConfig configures NewTransport.
type TransportConfig struct {
	IdleTimeout time.Duration
	// NegotiationTimeout bounds TLS handshakes run by net/http itself.
	NegotiationTimeout time.Duration
	// TLSConfig is used by net/http when c is not a *TLS.
	TLSConfig *tls.Config
}

// NewTransport returns an http.Transport whose connections come from c. When
// c is a *TLS, https connections get their TLS session from c too.
func NewTransport(c Connector, cfg TransportConfig) *http.Transport {
	tlsConfig := cfg.TLSConfig
	if tlsConfig == nil {
		tlsConfig = &tls.Config{
			MinVersion:         tls.VersionTLS12,
			ClientSessionCache: tls.NewLRUClientSessionCache(0),
		}
	}

	t := &http.Transport{
		DialContext: func(ctx context.Context, _, addr string) (net.Conn, error) {
			conn, err := connectAddr(ctx, c, "http", addr)
			if err != nil {
				return nil, err
			}
			return conn, nil
		},
		ForceAttemptHTTP2:   true,
		MaxIdleConns:        2048,
		MaxIdleConnsPerHost: 1024,
		IdleConnTimeout:     cfg.IdleTimeout,
		TLSHandshakeTimeout: cfg.NegotiationTimeout,
		TLSClientConfig:     tlsConfig,
	}

	if _, ok := c.(*TLS); ok {
		// net/http inspects the returned conn for *tls.Conn.
		t.DialTLSContext = func(ctx context.Context, _, addr string) (net.Conn, error) {
			conn, err := connectAddr(ctx, c, "https", addr)
			if err != nil {
				return nil, err
			}
			return conn.NetConn(), nil
		}
	}

	return t
}

// NewClient returns an http.Client using NewTransport(c, cfg).
func NewClient(c Connector, cfg TransportConfig) *http.Client {
	return &http.Client{Transport: NewTransport(c, cfg)}
}

func connectAddr(ctx context.Context, c Connector, scheme, addr string) (*Conn, error) {
	if err := c.Ready(ctx); err != nil {
		return nil, err
	}
	return c.Connect(ctx, &url.URL{Scheme: scheme, Host: addr})
}
