// Package dialer provides the inner dialers sockstun uses to reach a proxy:
// direct TCP, an HTTP(S) CONNECT hop, and an SSH jump host.
//
// All of them satisfy the small DialContext interface, so any can be handed
// to a connector.Tunnel as its way of reaching the proxy.
package dialer
