// Package socks4 implements the client side of the SOCKS4 and SOCKS4a CONNECT
// handshake over an already established connection, plus the few server-side
// helpers the test proxies need.
package socks4
