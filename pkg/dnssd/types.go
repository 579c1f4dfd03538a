package dnssd

import (
	"errors"
	"net"
	"strconv"
	"time"
)

// Well-known DNS-SD names.
const (
	// MetaQueryService is the service enumeration meta-query name.
	// Answers to this query are PTR records naming service types.
	MetaQueryService = "_services._dns-sd._udp.local."

	// Domain is the mDNS domain, including the trailing root dot.
	Domain = "local."
)

// Protocol constants from RFC 6762.
const (
	// MDNSPort is the well-known mDNS UDP port.
	MDNSPort = 5353

	// DefaultResolveTimeout is the hard deadline for a single
	// resolution attempt.
	DefaultResolveTimeout = 3 * time.Second

	// DefaultRecordTTL is assumed for answers that carry no usable TTL.
	DefaultRecordTTL = 120 * time.Second
)

// Discovery errors.
var (
	ErrInvalidQuery    = errors.New("invalid service query")
	ErrResolveTimeout  = errors.New("resolve timeout")
	ErrNotFound        = errors.New("service instance not found")
	ErrSessionState    = errors.New("operation not valid in current session state")
	ErrNoInterfaces    = errors.New("no usable multicast interfaces")
	ErrTransportClosed = errors.New("transport closed")
)

// ResolveStatus describes how much of a service instance is known.
type ResolveStatus uint8

const (
	// StatusUnresolved - the instance is known by name only.
	StatusUnresolved ResolveStatus = iota

	// StatusResolved - host, port and at least one address are known.
	StatusResolved

	// StatusRemoved - the instance sent a goodbye or its records expired.
	StatusRemoved
)

// String returns the status name.
func (s ResolveStatus) String() string {
	switch s {
	case StatusUnresolved:
		return "UNRESOLVED"
	case StatusResolved:
		return "RESOLVED"
	case StatusRemoved:
		return "REMOVED"
	default:
		return "UNKNOWN"
	}
}

// InstanceKey uniquely identifies a service instance within a scan.
type InstanceKey struct {
	// Type is the normalized service type (e.g. "_http._tcp.local.").
	Type string

	// Name is the full instance name (e.g. "Printer._http._tcp.local.").
	Name string
}

// ServiceInstance is one advertised endpoint of a service type.
type ServiceInstance struct {
	// Key identifies the instance.
	Key InstanceKey

	// Status indicates resolution progress.
	Status ResolveStatus

	// Host is the SRV target hostname (e.g. "printer.local.").
	Host string

	// Port is the SRV port.
	Port uint16

	// Priority is the SRV priority.
	Priority uint16

	// Weight is the SRV weight.
	Weight uint16

	// Addresses contains resolved IP addresses in arrival order,
	// de-duplicated.
	Addresses []net.IP

	// TXT contains decoded TXT properties.
	TXT TXTProperties

	// LastUpdated is when the instance was last touched by an event.
	LastUpdated time.Time
}

// Endpoints renders the instance addresses as "addr:port" strings.
func (si *ServiceInstance) Endpoints() []string {
	port := strconv.FormatUint(uint64(si.Port), 10)
	eps := make([]string, 0, len(si.Addresses))
	for _, ip := range si.Addresses {
		eps = append(eps, net.JoinHostPort(ip.String(), port))
	}
	return eps
}

// Clone returns a deep copy so cached state never escapes by reference.
func (si *ServiceInstance) Clone() *ServiceInstance {
	cp := *si
	cp.Addresses = make([]net.IP, len(si.Addresses))
	for i, ip := range si.Addresses {
		cp.Addresses[i] = append(net.IP(nil), ip...)
	}
	cp.TXT = si.TXT.Clone()
	return &cp
}

// AddAddress appends ip if not already present. Reports whether the
// address set changed.
func (si *ServiceInstance) AddAddress(ip net.IP) bool {
	for _, have := range si.Addresses {
		if have.Equal(ip) {
			return false
		}
	}
	si.Addresses = append(si.Addresses, ip)
	return true
}
