package dialer

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/die-net/sockstun/internal/testutil"
)

func TestSSHDialerDialContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	echoLn1 := testutil.StartEchoTCPServer(ctx, t)
	echoLn2 := testutil.StartEchoTCPServer(ctx, t)

	var handshakes atomic.Int32
	sshLn := startSSHForwardServer(ctx, t, "user", "pass", &handshakes)

	d, err := NewSSHDialer(Config{DialTimeout: 2 * time.Second, NegotiationTimeout: 2 * time.Second}, sshLn.Addr().String(), "user", "pass")
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()

	c1, err := d.DialContext(ctx, "tcp", echoLn1.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertEcho(t, c1, c1, []byte("hello"))
	_ = c1.Close()

	c2, err := d.DialContext(ctx, "tcp", echoLn2.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer c2.Close()
	testutil.AssertEcho(t, c2, c2, []byte("hello2"))

	if got := handshakes.Load(); got != 1 {
		t.Fatalf("expected one shared ssh transport, got %d handshakes", got)
	}
}

func TestSSHDialerRejectedDestination(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var handshakes atomic.Int32
	sshLn := startSSHForwardServer(ctx, t, "user", "pass", &handshakes)

	d, err := NewSSHDialer(Config{DialTimeout: 2 * time.Second}, sshLn.Addr().String(), "user", "pass")
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()

	_, err = d.DialContext(ctx, "tcp", "127.0.0.1:1")
	var openErr *ssh.OpenChannelError
	if !errors.As(err, &openErr) {
		t.Fatalf("expected OpenChannelError, got %v", err)
	}
	if got := handshakes.Load(); got != 1 {
		t.Fatalf("refused channel must not redial the transport, got %d handshakes", got)
	}
}

func TestSSHDialerBadPassword(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var handshakes atomic.Int32
	sshLn := startSSHForwardServer(ctx, t, "user", "pass", &handshakes)

	d, err := NewSSHDialer(Config{DialTimeout: 2 * time.Second}, sshLn.Addr().String(), "user", "wrong")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := d.DialContext(ctx, "tcp", "127.0.0.1:1"); err == nil {
		t.Fatal("expected error")
	}
}

type directTCPIPPayload struct {
	Host       string
	Port       uint32
	OriginHost string
	OriginPort uint32
}

func startSSHForwardServer(ctx context.Context, t *testing.T, username, password string, handshakes *atomic.Int32) net.Listener {
	t.Helper()

	_, privateKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	signer, err := ssh.NewSignerFromKey(privateKey)
	if err != nil {
		t.Fatal(err)
	}

	cfg := &ssh.ServerConfig{
		PasswordCallback: func(meta ssh.ConnMetadata, pass []byte) (*ssh.Permissions, error) {
			if meta.User() != username || string(pass) != password {
				return nil, errors.New("invalid credentials")
			}
			return &ssh.Permissions{}, nil
		},
	}
	cfg.AddHostKey(signer)

	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			go serveSSHConn(ctx, c, cfg, handshakes)
		}
	}()

	return ln
}

func serveSSHConn(ctx context.Context, c net.Conn, cfg *ssh.ServerConfig, handshakes *atomic.Int32) {
	defer c.Close()

	_, chans, reqs, err := ssh.NewServerConn(c, cfg)
	if err != nil {
		return
	}
	handshakes.Add(1)
	go ssh.DiscardRequests(reqs)

	for newChan := range chans {
		if newChan.ChannelType() != "direct-tcpip" {
			_ = newChan.Reject(ssh.UnknownChannelType, "unsupported channel")
			continue
		}

		var p directTCPIPPayload
		if err := ssh.Unmarshal(newChan.ExtraData(), &p); err != nil {
			_ = newChan.Reject(ssh.Prohibited, "bad direct-tcpip payload")
			continue
		}

		var d net.Dialer
		dst, err := d.DialContext(ctx, "tcp", net.JoinHostPort(p.Host, fmt.Sprint(p.Port)))
		if err != nil {
			_ = newChan.Reject(ssh.ConnectionFailed, "dial failed")
			continue
		}

		ch, chReqs, err := newChan.Accept()
		if err != nil {
			_ = dst.Close()
			continue
		}
		go ssh.DiscardRequests(chReqs)

		go func() {
			defer ch.Close()
			defer dst.Close()
			go func() {
				_, _ = io.Copy(dst, ch)
				_ = dst.Close()
			}()
			_, _ = io.Copy(ch, dst)
		}()
	}
}
