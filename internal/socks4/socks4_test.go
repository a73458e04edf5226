package socks4

import (
	"bufio"
	"context"
	"errors"
	"net"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

type staticResolver map[string][]netip.Addr

func (r staticResolver) LookupNetIP(_ context.Context, _, host string) ([]netip.Addr, error) {
	if addrs, ok := r[host]; ok {
		return addrs, nil
	}
	return nil, &net.DNSError{Err: "no such host", Name: host, IsNotFound: true}
}

func TestClientConnect(t *testing.T) {
	t.Parallel()

	resolver := staticResolver{
		"proxied.example": {netip.MustParseAddr("2001:db8::1"), netip.MustParseAddr("192.0.2.7")},
	}

	tests := []struct {
		name        string
		req         Request
		wantAddress string
		wantUserID  string
	}{
		{
			name:        "ipv4 literal",
			req:         Request{Host: "127.0.0.1", Port: 80},
			wantAddress: "127.0.0.1:80",
		},
		{
			name:        "user id",
			req:         Request{Host: "10.1.2.3", Port: 443, UserID: "hyper"},
			wantAddress: "10.1.2.3:443",
			wantUserID:  "hyper",
		},
		{
			name:        "local resolve picks ipv4",
			req:         Request{Host: "proxied.example", Port: 8080},
			wantAddress: "192.0.2.7:8080",
		},
		{
			name:        "socks4a domain",
			req:         Request{Host: "google.com", Port: 80, RemoteResolve: true},
			wantAddress: "google.com:80",
		},
		{
			name:        "ipv4-mapped ipv6 literal",
			req:         Request{Host: "::ffff:127.0.0.1", Port: 25},
			wantAddress: "127.0.0.1:25",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			clientConn, serverConn := net.Pipe()
			defer clientConn.Close()
			defer serverConn.Close()

			var got *ServerRequest
			g := errgroup.Group{}
			g.Go(func() error {
				req, err := ServerReadRequest(bufio.NewReader(serverConn))
				if err != nil {
					return err
				}
				got = req
				return WriteReply(serverConn, Granted)
			})

			require.NoError(t, ClientConnect(context.Background(), clientConn, tt.req, resolver))
			require.NoError(t, g.Wait())
			require.Equal(t, tt.wantAddress, got.Address())
			require.Equal(t, tt.wantUserID, got.UserID)
		})
	}
}

func TestClientConnectRejected(t *testing.T) {
	t.Parallel()

	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	g := errgroup.Group{}
	g.Go(func() error {
		if _, err := ServerReadRequest(bufio.NewReader(serverConn)); err != nil {
			return err
		}
		return WriteReply(serverConn, Rejected)
	})

	err := ClientConnect(context.Background(), clientConn, Request{Host: "127.0.0.1", Port: 1}, nil)
	var replyErr *ReplyError
	require.True(t, errors.As(err, &replyErr), "got %v", err)
	require.Equal(t, byte(Rejected), replyErr.Code)
	require.NoError(t, g.Wait())
}

func TestClientConnectInvalidRequests(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		req  Request
	}{
		{name: "missing host", req: Request{Port: 80}},
		{name: "ipv6 literal", req: Request{Host: "::1", Port: 80}},
		{name: "unresolvable", req: Request{Host: "missing.example", Port: 80}},
		{name: "nul in user id", req: Request{Host: "127.0.0.1", Port: 80, UserID: "a\x00b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			// Nothing may be written before validation fails, so an unread
			// pipe end is enough.
			clientConn, serverConn := net.Pipe()
			defer clientConn.Close()
			defer serverConn.Close()

			require.Error(t, ClientConnect(context.Background(), clientConn, tt.req, staticResolver{}))
		})
	}
}

func TestReplyErrorText(t *testing.T) {
	t.Parallel()

	require.Contains(t, (&ReplyError{Code: IdentdMismatched}).Error(), "identd")
	require.Contains(t, (&ReplyError{Code: 0x01}).Error(), "0x01")
}
