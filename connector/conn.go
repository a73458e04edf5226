package connector

import "net"

// Conn is an established connection to a target. The caller owns it and
// must Close it.
type Conn struct {
	net.Conn

	proxy   Proxy
	proxied bool
	secure  bool
}

// Proxied reports whether the connection passes through a proxy.
func (c *Conn) Proxied() bool { return c.proxied }

// Secure reports whether a TLS session runs over the connection.
func (c *Conn) Secure() bool { return c.secure }

// Proxy returns the proxy the connection was tunneled through.
func (c *Conn) Proxy() Proxy { return c.proxy }

// NetConn returns the underlying connection, a *tls.Conn when Secure.
func (c *Conn) NetConn() net.Conn { return c.Conn }
