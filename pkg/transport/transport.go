package transport

import (
	"fmt"
	"net"

	"github.com/miekg/dns"
)

// Transport abstracts the mDNS network layer so the discovery engine
// can be driven by a fake in tests. Implementations deliver received
// DNS response packets on Packets and multicast queries on SendQuery.
type Transport interface {
	// SendQuery multicasts a DNS query on every bound interface.
	// Send failures are transient; callers log and continue.
	SendQuery(msg *dns.Msg) error

	// Packets returns the receive channel. It is closed when the
	// transport closes. Malformed packets are dropped before delivery.
	Packets() <-chan *dns.Msg

	// Close releases all sockets and closes the packet channel.
	// Safe to call more than once.
	Close() error
}

// InterfaceInfo is one (display name, bind address) candidate pair as
// supplied to presentation layers. The address is informational; the
// interface is selected by name.
type InterfaceInfo struct {
	// Name is the OS interface name (e.g. "eth0", "en0").
	Name string

	// Addr is the first usable unicast address, for display.
	Addr string
}

// String renders the pair the way selection UIs show it.
func (i InterfaceInfo) String() string {
	if i.Addr == "" {
		return i.Name
	}
	return fmt.Sprintf("%s (%s)", i.Name, i.Addr)
}

// BindError reports a failure to bind or join the multicast group on
// one interface. A scan continues on the remaining interfaces; only
// when every interface fails does opening the transport fail.
type BindError struct {
	// Interface is the name of the interface that failed.
	Interface string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *BindError) Error() string {
	return fmt.Sprintf("bind %s: %v", e.Interface, e.Err)
}

// Unwrap returns the underlying error.
func (e *BindError) Unwrap() error { return e.Err }

// Interfaces enumerates multicast-capable network interfaces as
// (name, address) pairs. Callers re-query only on explicit refresh;
// the result is not cached here.
func Interfaces() ([]InterfaceInfo, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("enumerate interfaces: %w", err)
	}

	var out []InterfaceInfo
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagMulticast == 0 {
			continue
		}
		info := InterfaceInfo{Name: iface.Name}
		if addrs, err := iface.Addrs(); err == nil {
			for _, addr := range addrs {
				if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() {
					info.Addr = ipnet.IP.String()
					break
				}
			}
		}
		out = append(out, info)
	}
	return out, nil
}
