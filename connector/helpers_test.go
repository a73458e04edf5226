package connector

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
)

// countingDialer counts calls and dials nothing.
type countingDialer struct {
	calls atomic.Int64
}

func (d *countingDialer) DialContext(context.Context, string, string) (net.Conn, error) {
	d.calls.Add(1)
	return nil, errors.New("unexpected dial")
}

// pipeDialer hands out one end of a net.Pipe and keeps the other.
type pipeDialer struct {
	peer chan net.Conn
}

func newPipeDialer() *pipeDialer {
	return &pipeDialer{peer: make(chan net.Conn, 1)}
}

func (d *pipeDialer) DialContext(context.Context, string, string) (net.Conn, error) {
	client, server := net.Pipe()
	d.peer <- server
	return client, nil
}

// blockingDialer blocks every dial until ctx ends.
type blockingDialer struct {
	entered chan struct{}
}

func (d *blockingDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	close(d.entered)
	<-ctx.Done()
	return nil, ctx.Err()
}

// readyDialer reports a fixed readiness.
type readyDialer struct {
	net.Dialer
	err error
}

func (d *readyDialer) Ready(context.Context) error { return d.err }

// handshakerFunc adapts a func to Handshaker.
type handshakerFunc func(ctx context.Context, conn net.Conn, target Target, p Proxy) error

func (f handshakerFunc) Handshake(ctx context.Context, conn net.Conn, target Target, p Proxy) error {
	return f(ctx, conn, target, p)
}

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()

	u, err := url.Parse(raw)
	if err != nil {
		t.Fatal(err)
	}
	return u
}

func socks5Proxy(addr string, auth *Auth) Proxy {
	return Proxy{Protocol: SOCKS5, Addr: addr, Auth: auth}
}

// deadAddr returns a loopback address nothing listens on.
func deadAddr(t *testing.T) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()
	return addr
}

// startTLSServer starts an httptest TLS server answering "hello" and returns
// it with a client config trusting its certificate.
func startTLSServer(t *testing.T) (*httptest.Server, *tls.Config) {
	t.Helper()

	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("hello"))
	}))
	t.Cleanup(srv.Close)

	roots := x509.NewCertPool()
	roots.AddCert(srv.Certificate())
	return srv, &tls.Config{RootCAs: roots, MinVersion: tls.VersionTLS12}
}
