package dialer

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/sync/singleflight"
)

// SSHDialer reaches addresses through an SSH server by opening one
// "direct-tcpip" channel per DialContext call.
//
// A single SSH transport is created lazily and shared by all calls. Each
// returned conn is its own channel and is never handed to a second caller.
// As with net.Dialer, ctx bounds only the dial.
type SSHDialer struct {
	sshAddr   string
	sshConfig *ssh.ClientConfig
	handshake time.Duration
	direct    Dialer

	mu     sync.Mutex
	client *ssh.Client
	sf     singleflight.Group
}

// NewSSHDialer constructs a dialer that tunnels through the SSH server at
// sshAddr. Keys from cfg.SSHKeyPath (a file, or SSHAgentKey) and password are
// both offered when set; at least one is required.
func NewSSHDialer(cfg Config, sshAddr, username, password string) (*SSHDialer, error) {
	if sshAddr == "" {
		return nil, errors.New("ssh dialer: missing ssh address")
	}
	if username == "" {
		return nil, errors.New("ssh dialer: missing username")
	}

	signers, err := sshSigners(cfg.SSHKeyPath)
	if err != nil {
		return nil, fmt.Errorf("ssh dialer: %w", err)
	}

	var auth []ssh.AuthMethod
	if len(signers) > 0 {
		auth = append(auth, ssh.PublicKeys(signers...))
	}
	if password != "" {
		auth = append(auth, ssh.Password(password))
	}
	if len(auth) == 0 {
		return nil, errors.New("ssh dialer: missing password or key")
	}

	hostKeyCallback, err := sshHostKeyCallback(cfg.SSHKnownHostsPath)
	if err != nil {
		return nil, fmt.Errorf("ssh dialer: %w", err)
	}

	return &SSHDialer{
		sshAddr: sshAddr,
		sshConfig: &ssh.ClientConfig{
			User:            username,
			Auth:            auth,
			HostKeyCallback: hostKeyCallback,
			Timeout:         cfg.DialTimeout,
		},
		handshake: cfg.NegotiationTimeout,
		direct:    NewDirectDialer(cfg),
	}, nil
}

// DialContext opens a channel to address over the shared SSH transport.
//
// If opening the channel fails for a reason other than the server refusing
// the destination, the transport is assumed dead: it is discarded, redialed
// once, and the channel is retried.
func (d *SSHDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	if !strings.HasPrefix(network, "tcp") {
		return nil, fmt.Errorf("ssh dial %s %s: unsupported network", network, address)
	}

	client, err := d.getClient(ctx)
	if err != nil {
		return nil, err
	}

	conn, err := client.DialContext(ctx, "tcp", address)
	if err != nil {
		var openErr *ssh.OpenChannelError
		if errors.As(err, &openErr) || ctx.Err() != nil {
			return nil, fmt.Errorf("ssh dial %s: %w", address, err)
		}

		d.invalidateClient(client)
		client, err2 := d.getClient(ctx)
		if err2 != nil {
			return nil, fmt.Errorf("ssh dial %s: %w", address, err)
		}
		conn, err = client.DialContext(ctx, "tcp", address)
		if err != nil {
			return nil, fmt.Errorf("ssh dial %s: %w", address, err)
		}
	}

	return conn, nil
}

// Close tears down the shared SSH transport, if any.
func (d *SSHDialer) Close() error {
	d.mu.Lock()
	client := d.client
	d.client = nil
	d.mu.Unlock()
	if client == nil {
		return nil
	}
	return client.Close()
}

// getClient returns the shared client, dialing it if needed. Concurrent
// callers share one dial attempt; a caller whose context ends stops waiting
// but the attempt continues for the others.
func (d *SSHDialer) getClient(ctx context.Context) (*ssh.Client, error) {
	d.mu.Lock()
	client := d.client
	d.mu.Unlock()
	if client != nil {
		return client, nil
	}

	ch := d.sf.DoChan("connect", func() (any, error) {
		d.mu.Lock()
		if d.client != nil {
			c := d.client
			d.mu.Unlock()
			return c, nil
		}
		d.mu.Unlock()

		c, err := d.dialSSH(context.Background())
		if err != nil {
			return nil, err
		}

		d.mu.Lock()
		d.client = c
		d.mu.Unlock()
		return c, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*ssh.Client), nil
	}
}

func (d *SSHDialer) dialSSH(ctx context.Context) (*ssh.Client, error) {
	conn, err := d.direct.DialContext(ctx, "tcp", d.sshAddr)
	if err != nil {
		return nil, fmt.Errorf("ssh transport dial: %w", err)
	}

	if d.handshake > 0 {
		_ = conn.SetDeadline(time.Now().Add(d.handshake))
	}

	cc, chans, reqs, err := ssh.NewClientConn(conn, d.sshAddr, d.sshConfig)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ssh handshake: %w", err)
	}

	if d.handshake > 0 {
		_ = conn.SetDeadline(time.Time{})
	}
	return ssh.NewClient(cc, chans, reqs), nil
}

// invalidateClient drops old if it is still the shared client.
func (d *SSHDialer) invalidateClient(old *ssh.Client) {
	d.mu.Lock()
	if d.client != old {
		d.mu.Unlock()
		return
	}
	d.client = nil
	d.mu.Unlock()
	_ = old.Close()
}
