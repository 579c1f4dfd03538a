package discovery

import (
	"net"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sdbrowse/sdbrowse-go/pkg/dnssd"
)

func ptrRecord(name, target string, ttl uint32) *dns.PTR {
	return &dns.PTR{
		Hdr: dns.RR_Header{Name: name, Rrtype: dns.TypePTR, Class: dns.ClassINET, Ttl: ttl},
		Ptr: target,
	}
}

func TestTypeBrowserEnumeration(t *testing.T) {
	b := newTypeBrowser()

	msg := b.query()
	require.Len(t, msg.Question, 1)
	assert.Equal(t, dnssd.MetaQueryService, msg.Question[0].Name)
	assert.Equal(t, dns.TypePTR, msg.Question[0].Qtype)

	ev, ok := b.handleRecord(ptrRecord(dnssd.MetaQueryService, "_http._tcp.local.", 4500))
	require.True(t, ok)
	assert.Equal(t, TypeAdded, ev.Kind)
	assert.Equal(t, "_http._tcp.local.", ev.ServiceType)

	// Repeated announcements are deduplicated.
	_, ok = b.handleRecord(ptrRecord(dnssd.MetaQueryService, "_http._tcp.local.", 4500))
	assert.False(t, ok)

	// Goodbye withdraws the type.
	ev, ok = b.handleRecord(ptrRecord(dnssd.MetaQueryService, "_http._tcp.local.", 0))
	require.True(t, ok)
	assert.Equal(t, TypeRemoved, ev.Kind)

	// A goodbye for an unknown type is ignored.
	_, ok = b.handleRecord(ptrRecord(dnssd.MetaQueryService, "_http._tcp.local.", 0))
	assert.False(t, ok)
}

func TestTypeBrowserIgnoresForeignRecords(t *testing.T) {
	b := newTypeBrowser()

	// PTR answers for other names are not type announcements.
	_, ok := b.handleRecord(ptrRecord("_http._tcp.local.", "web._http._tcp.local.", 120))
	assert.False(t, ok)

	// Malformed type names are dropped.
	_, ok = b.handleRecord(ptrRecord(dnssd.MetaQueryService, "nonsense.local.", 120))
	assert.False(t, ok)
}

func TestInstanceBrowserPTRLifecycle(t *testing.T) {
	b := newInstanceBrowser("_http._tcp.local.")
	now := time.Now()

	events := b.handleRecord(ptrRecord("_http._tcp.local.", "web._http._tcp.local.", 120), now)
	require.Len(t, events, 1)
	assert.Equal(t, InstanceAdded, events[0].Kind)
	assert.Equal(t, "web._http._tcp.local.", events[0].Name)

	// A refresh extends the lease without emitting an event.
	events = b.handleRecord(ptrRecord("_http._tcp.local.", "web._http._tcp.local.", 120), now.Add(time.Minute))
	assert.Empty(t, events)

	events = b.handleRecord(ptrRecord("_http._tcp.local.", "web._http._tcp.local.", 0), now)
	require.Len(t, events, 1)
	assert.Equal(t, InstanceRemoved, events[0].Kind)

	// After a goodbye the instance can come back.
	events = b.handleRecord(ptrRecord("_http._tcp.local.", "web._http._tcp.local.", 120), now)
	require.Len(t, events, 1)
	assert.Equal(t, InstanceAdded, events[0].Kind)
}

func TestInstanceBrowserRecordEnrichment(t *testing.T) {
	b := newInstanceBrowser("_http._tcp.local.")
	now := time.Now()
	b.handleRecord(ptrRecord("_http._tcp.local.", "web._http._tcp.local.", 120), now)

	srv := &dns.SRV{
		Hdr:    dns.RR_Header{Name: "web._http._tcp.local.", Rrtype: dns.TypeSRV, Class: dns.ClassINET, Ttl: 120},
		Target: "web.local.",
		Port:   8080,
	}
	events := b.handleRecord(srv, now)
	require.Len(t, events, 1)
	assert.Equal(t, InstanceUpdated, events[0].Kind)
	require.NotNil(t, events[0].SRV)
	assert.Equal(t, "web.local.", events[0].SRV.Host)
	assert.Equal(t, uint16(8080), events[0].SRV.Port)

	txt := &dns.TXT{
		Hdr: dns.RR_Header{Name: "web._http._tcp.local.", Rrtype: dns.TypeTXT, Class: dns.ClassINET, Ttl: 120},
		Txt: []string{"path=/admin"},
	}
	events = b.handleRecord(txt, now)
	require.Len(t, events, 1)
	assert.Equal(t, []byte("/admin"), []byte(events[0].TXT["path"]))

	// Address records are attributed through the SRV target.
	a := &dns.A{
		Hdr: dns.RR_Header{Name: "web.local.", Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: 120},
		A:   net.ParseIP("192.168.1.20").To4(),
	}
	events = b.handleRecord(a, now)
	require.Len(t, events, 1)
	assert.Equal(t, "web._http._tcp.local.", events[0].Name)
	assert.True(t, events[0].Addr.Equal(net.ParseIP("192.168.1.20")))

	// Records for unknown instances or hosts are dropped.
	unknown := &dns.A{
		Hdr: dns.RR_Header{Name: "other.local.", Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: 120},
		A:   net.ParseIP("192.168.1.21").To4(),
	}
	assert.Empty(t, b.handleRecord(unknown, now))
}

func TestInstanceBrowserSharedHostAddresses(t *testing.T) {
	b := newInstanceBrowser("_http._tcp.local.")
	now := time.Now()
	b.handleRecord(ptrRecord("_http._tcp.local.", "web._http._tcp.local.", 120), now)
	b.handleRecord(ptrRecord("_http._tcp.local.", "admin._http._tcp.local.", 120), now)

	// Both instances run on the same responder.
	for _, name := range []string{"web._http._tcp.local.", "admin._http._tcp.local."} {
		srv := &dns.SRV{
			Hdr:    dns.RR_Header{Name: name, Rrtype: dns.TypeSRV, Class: dns.ClassINET, Ttl: 120},
			Target: "shared.local.",
			Port:   8080,
		}
		b.handleRecord(srv, now)
	}

	a := &dns.A{
		Hdr: dns.RR_Header{Name: "shared.local.", Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: 120},
		A:   net.ParseIP("192.168.1.30").To4(),
	}
	events := b.handleRecord(a, now)
	require.Len(t, events, 2)
	assert.Equal(t, "admin._http._tcp.local.", events[0].Name)
	assert.Equal(t, "web._http._tcp.local.", events[1].Name)
	for _, ev := range events {
		assert.Equal(t, InstanceUpdated, ev.Kind)
		assert.True(t, ev.Addr.Equal(net.ParseIP("192.168.1.30")))
	}
}

func TestInstanceBrowserReapExpired(t *testing.T) {
	b := newInstanceBrowser("_http._tcp.local.")
	now := time.Now()
	b.handleRecord(ptrRecord("_http._tcp.local.", "short._http._tcp.local.", 1), now)
	b.handleRecord(ptrRecord("_http._tcp.local.", "long._http._tcp.local.", 3600), now)

	assert.Empty(t, b.reapExpired(now))

	events := b.reapExpired(now.Add(2 * time.Second))
	require.Len(t, events, 1)
	assert.Equal(t, InstanceRemoved, events[0].Kind)
	assert.Equal(t, "short._http._tcp.local.", events[0].Name)

	// Reaping is idempotent.
	assert.Empty(t, b.reapExpired(now.Add(2*time.Second)))
}
