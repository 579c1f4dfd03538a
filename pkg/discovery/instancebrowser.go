package discovery

import (
	"net"
	"sort"
	"time"

	"github.com/miekg/dns"

	"github.com/sdbrowse/sdbrowse-go/pkg/dnssd"
)

// instanceEntry is the browser's liveness bookkeeping for one instance.
type instanceEntry struct {
	expires time.Time
	host    string
}

// instanceBrowser follows the instances of one service type. PTR answers
// add and withdraw instances; SRV, TXT, A and AAAA answers enrich known
// ones. Like typeBrowser it runs on the session worker only.
type instanceBrowser struct {
	serviceType string
	entries     map[string]*instanceEntry
}

func newInstanceBrowser(serviceType string) *instanceBrowser {
	return &instanceBrowser{
		serviceType: serviceType,
		entries:     make(map[string]*instanceEntry),
	}
}

// query builds the PTR query that enumerates instances of the type.
func (b *instanceBrowser) query() *dns.Msg {
	msg := new(dns.Msg)
	msg.SetQuestion(b.serviceType, dns.TypePTR)
	msg.RecursionDesired = false
	return msg
}

// handleRecord translates one answer record into events. A and AAAA
// answers fan out to every instance backed by the host, since several
// instances of a type regularly share one responder.
func (b *instanceBrowser) handleRecord(rr dns.RR, now time.Time) []Event {
	switch rec := rr.(type) {
	case *dns.PTR:
		return b.handlePTR(rec, now)
	case *dns.SRV:
		entry, ok := b.entries[rec.Hdr.Name]
		if !ok {
			return nil
		}
		entry.host = rec.Target
		return []Event{{
			Kind:        InstanceUpdated,
			ServiceType: b.serviceType,
			Name:        rec.Hdr.Name,
			SRV: &SRVData{
				Host:     rec.Target,
				Port:     rec.Port,
				Priority: rec.Priority,
				Weight:   rec.Weight,
			},
		}}
	case *dns.TXT:
		if _, ok := b.entries[rec.Hdr.Name]; !ok {
			return nil
		}
		return []Event{{
			Kind:        InstanceUpdated,
			ServiceType: b.serviceType,
			Name:        rec.Hdr.Name,
			TXT:         dnssd.ParseTXT(rec.Txt),
		}}
	case *dns.A:
		return b.addressEvents(rec.Hdr.Name, rec.A)
	case *dns.AAAA:
		return b.addressEvents(rec.Hdr.Name, rec.AAAA)
	}
	return nil
}

func (b *instanceBrowser) handlePTR(ptr *dns.PTR, now time.Time) []Event {
	if ptr.Hdr.Name != b.serviceType {
		return nil
	}
	name := ptr.Ptr

	// TTL zero is a goodbye announcement.
	if ptr.Hdr.Ttl == 0 {
		if _, ok := b.entries[name]; !ok {
			return nil
		}
		delete(b.entries, name)
		return []Event{{Kind: InstanceRemoved, ServiceType: b.serviceType, Name: name}}
	}

	expires := now.Add(time.Duration(ptr.Hdr.Ttl) * time.Second)
	entry, ok := b.entries[name]
	if ok {
		entry.expires = expires
		return nil
	}
	b.entries[name] = &instanceEntry{expires: expires}
	return []Event{{Kind: InstanceAdded, ServiceType: b.serviceType, Name: name}}
}

// addressEvents produces one update per instance whose SRV target is
// the given host, in name order.
func (b *instanceBrowser) addressEvents(host string, addr net.IP) []Event {
	var names []string
	for name, entry := range b.entries {
		if entry.host == host {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return nil
	}
	sort.Strings(names)

	events := make([]Event, 0, len(names))
	for _, name := range names {
		events = append(events, Event{
			Kind:        InstanceUpdated,
			ServiceType: b.serviceType,
			Name:        name,
			Addr:        addr,
		})
	}
	return events
}

// reapExpired removes instances whose PTR lease has lapsed without a
// refresh and returns the corresponding removal events.
func (b *instanceBrowser) reapExpired(now time.Time) []Event {
	var events []Event
	for name, entry := range b.entries {
		if now.After(entry.expires) {
			delete(b.entries, name)
			events = append(events, Event{
				Kind:        InstanceRemoved,
				ServiceType: b.serviceType,
				Name:        name,
			})
		}
	}
	return events
}
