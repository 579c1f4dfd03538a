package discovery

import (
	"github.com/miekg/dns"

	"github.com/sdbrowse/sdbrowse-go/pkg/dnssd"
)

// typeBrowser tracks the answers to the DNS-SD meta-query and turns them
// into type events. It is driven by the session worker and needs no
// locking of its own.
type typeBrowser struct {
	known map[string]struct{}
}

func newTypeBrowser() *typeBrowser {
	return &typeBrowser{known: make(map[string]struct{})}
}

// query builds the PTR meta-query that enumerates service types.
func (b *typeBrowser) query() *dns.Msg {
	msg := new(dns.Msg)
	msg.SetQuestion(dnssd.MetaQueryService, dns.TypePTR)
	msg.RecursionDesired = false
	return msg
}

// handleRecord inspects one answer record. Meta-query PTR answers name a
// service type; a zero TTL withdraws it. Duplicate announcements are
// dropped so repeated multicast answers do not churn the cache.
func (b *typeBrowser) handleRecord(rr dns.RR) (Event, bool) {
	ptr, ok := rr.(*dns.PTR)
	if !ok || ptr.Hdr.Name != dnssd.MetaQueryService {
		return Event{}, false
	}

	serviceType := ptr.Ptr
	if !dnssd.ValidServiceType(serviceType) {
		return Event{}, false
	}

	if ptr.Hdr.Ttl == 0 {
		if _, seen := b.known[serviceType]; !seen {
			return Event{}, false
		}
		delete(b.known, serviceType)
		return Event{Kind: TypeRemoved, ServiceType: serviceType}, true
	}

	if _, seen := b.known[serviceType]; seen {
		return Event{}, false
	}
	b.known[serviceType] = struct{}{}
	return Event{Kind: TypeAdded, ServiceType: serviceType}, true
}

// forget clears the dedupe state for one type so a later announcement
// re-adds it.
func (b *typeBrowser) forget(serviceType string) {
	delete(b.known, serviceType)
}
