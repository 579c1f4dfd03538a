// Package transport owns the mDNS multicast sockets: binding per
// selected interface, joining the RFC 6762 groups, sending DNS queries
// and delivering received response packets to the discovery engine.
//
// The Transport interface decouples the engine from the network; tests
// drive it with FakeTransport, which supports scripted and delayed
// response delivery.
package transport
