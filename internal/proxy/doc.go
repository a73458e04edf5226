// Package proxy serves local HTTP and SOCKS5 proxies whose outbound
// connections go through a connector chain.
//
// It contains the HTTP forward proxy (CONNECT and non-CONNECT), the SOCKS5
// server, and shared connection plumbing such as keepalive listeners and
// bidirectional copy.
package proxy
