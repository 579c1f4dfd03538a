package discovery

import (
	"net"

	"github.com/sdbrowse/sdbrowse-go/pkg/dnssd"
)

// EventKind identifies a single cache mutation produced by a browser.
type EventKind uint8

const (
	TypeAdded EventKind = iota
	TypeRemoved
	InstanceAdded
	InstanceUpdated
	InstanceRemoved
)

func (k EventKind) String() string {
	switch k {
	case TypeAdded:
		return "TypeAdded"
	case TypeRemoved:
		return "TypeRemoved"
	case InstanceAdded:
		return "InstanceAdded"
	case InstanceUpdated:
		return "InstanceUpdated"
	case InstanceRemoved:
		return "InstanceRemoved"
	default:
		return "Unknown"
	}
}

// SRVData carries the target fields of an SRV record.
type SRVData struct {
	Host     string
	Port     uint16
	Priority uint16
	Weight   uint16
}

// Event is one discovery observation. Type events carry only ServiceType;
// instance events carry Name and optionally record data to merge.
type Event struct {
	Kind        EventKind
	ServiceType string
	Name        string

	// Optional record payloads for InstanceAdded and InstanceUpdated.
	SRV  *SRVData
	TXT  dnssd.TXTProperties
	Addr net.IP
}

func (e Event) isInstanceEvent() bool {
	switch e.Kind {
	case InstanceAdded, InstanceUpdated, InstanceRemoved:
		return true
	}
	return false
}
