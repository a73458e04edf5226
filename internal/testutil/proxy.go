package testutil

import (
	"bufio"
	"context"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/die-net/sockstun/internal/socks4"
	"github.com/die-net/sockstun/internal/socks5"
)

// FakeProxy is a loopback SOCKS proxy for tests. It counts the conns it has
// accepted and how many of those the client has since closed.
type FakeProxy struct {
	net.Listener

	accepted atomic.Int64
	closed   atomic.Int64
	wg       sync.WaitGroup

	mu    sync.Mutex
	conns map[net.Conn]struct{}
}

// Accepted reports how many client conns the proxy has accepted.
func (p *FakeProxy) Accepted() int64 { return p.accepted.Load() }

// Closed reports how many accepted conns have finished.
func (p *FakeProxy) Closed() int64 { return p.closed.Load() }

// Wait closes the listener and any conns still open, then waits for every
// handler to return.
func (p *FakeProxy) Wait() {
	_ = p.Listener.Close()
	p.mu.Lock()
	for c := range p.conns {
		_ = c.Close()
	}
	p.mu.Unlock()
	p.wg.Wait()
}

// StartStallingProxy accepts conns and reads whatever the client sends but
// never answers, leaving any handshake pending until the client gives up.
func StartStallingProxy(ctx context.Context, t *testing.T) *FakeProxy {
	t.Helper()

	return startProxy(ctx, t, func(net.Conn) {})
}

// StartSOCKS5Proxy serves SOCKS5 CONNECT on loopback. A non-empty
// auth.Username makes username/password mandatory. Destinations that cannot
// be dialed get a host-unreachable reply.
func StartSOCKS5Proxy(ctx context.Context, t *testing.T, auth socks5.Auth) *FakeProxy {
	t.Helper()

	return startProxy(ctx, t, func(c net.Conn) {
		if err := socks5.ServerNegotiate(c, auth); err != nil {
			return
		}
		req, err := socks5.ServerReadRequest(c)
		if err != nil {
			return
		}

		var d net.Dialer
		dst, err := d.DialContext(ctx, "tcp", req.Address())
		if err != nil {
			socks5.WriteReply(c, socks5.RepHostUnreachable, req.Atyp)
			return
		}
		if err := socks5.WriteSuccess(c, dst.LocalAddr()); err != nil {
			_ = dst.Close()
			return
		}
		_ = Pipe(ctx, c, dst)
	})
}

// StartSOCKS4Proxy serves SOCKS4 and SOCKS4a CONNECT on loopback. A
// non-empty userID must match the request's user-id field.
func StartSOCKS4Proxy(ctx context.Context, t *testing.T, userID string) *FakeProxy {
	t.Helper()

	return startProxy(ctx, t, func(c net.Conn) {
		br := bufio.NewReader(c)
		req, err := socks4.ServerReadRequest(br)
		if err != nil {
			_ = socks4.WriteReply(c, socks4.Rejected)
			return
		}
		if userID != "" && req.UserID != userID {
			_ = socks4.WriteReply(c, socks4.IdentdMismatched)
			return
		}

		var d net.Dialer
		dst, err := d.DialContext(ctx, "tcp", req.Address())
		if err != nil {
			_ = socks4.WriteReply(c, socks4.Rejected)
			return
		}
		if err := socks4.WriteReply(c, socks4.Granted); err != nil {
			_ = dst.Close()
			return
		}
		_ = Pipe(ctx, &bufferedConn{Conn: c, r: br}, dst)
	})
}

func startProxy(ctx context.Context, t *testing.T, handle func(net.Conn)) *FakeProxy {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	closeOnDone(ctx, t, ln)

	p := &FakeProxy{Listener: ln, conns: make(map[net.Conn]struct{})}
	p.wg.Go(func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			p.accepted.Add(1)
			p.mu.Lock()
			p.conns[c] = struct{}{}
			p.mu.Unlock()

			p.wg.Go(func() {
				defer p.closed.Add(1)
				defer func() {
					p.mu.Lock()
					delete(p.conns, c)
					p.mu.Unlock()
					_ = c.Close()
				}()
				handle(c)
				// Drain until the client hangs up so Closed tracks the
				// client's side of the conn.
				_, _ = io.Copy(io.Discard, c)
			})
		}
	})
	t.Cleanup(p.Wait)

	return p
}

type bufferedConn struct {
	net.Conn
	r *bufio.Reader
}

func (c *bufferedConn) Read(b []byte) (int, error) {
	return c.r.Read(b)
}
