// Package connector routes outbound TCP connections through SOCKS4, SOCKS4a
// and SOCKS5 proxies.
//
// A Tunnel reaches its proxy through an inner Dialer (a *net.Dialer, an SSH
// or HTTP CONNECT hop, or another Tunnel for proxy chains), runs the SOCKS
// handshake through a Handshaker, and yields a *Conn to the target. Tunnels
// compose: TLS layers a TLS client session over any Connector, Limited caps
// concurrent connects, and NewTransport plugs a Connector into net/http.
//
// Connect and dial failures are errorx errors in the "connector" namespace,
// and KindOf classifies them without importing errorx. Two cases are left
// plain: a connect abandoned through its context returns the context's error
// as is, and NewTLS reports a bad argument with an ordinary error.
package connector
