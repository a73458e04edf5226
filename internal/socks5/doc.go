// Package socks5 provides the SOCKS5 handshake used by sockstun.
//
// It wraps the low-level protocol types in github.com/txthinking/socks5 to keep
// negotiation, username/password sub-negotiation and CONNECT handling in one
// place. The client side runs over a connection the caller already holds; the
// server side exists for the fake proxies in tests.
package socks5
