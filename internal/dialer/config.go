package dialer

import (
	"net"
	"time"
)

// Config controls how inner connections to a proxy are established.
type Config struct {
	// DialTimeout bounds DNS lookup plus TCP connect. Zero means no timeout.
	DialTimeout time.Duration
	// NegotiationTimeout bounds the SSH handshake for ssh:// hops and the
	// CONNECT exchange for http(s):// hops.
	NegotiationTimeout time.Duration
	KeepAlive          net.KeepAliveConfig

	// SSHKeyPath is an OpenSSH private key file, or SSHAgentKey, offered for
	// ssh:// hops.
	SSHKeyPath string
	// SSHKnownHostsPath is checked strictly when set; empty disables host
	// key checking.
	SSHKnownHostsPath string
}
