package discovery_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sdbrowse/sdbrowse-go/pkg/discovery"
	"github.com/sdbrowse/sdbrowse-go/pkg/dnssd"
	"github.com/sdbrowse/sdbrowse-go/pkg/transport"
)

const (
	instanceName = "web._http._tcp.local."
	hostName     = "web.local."
)

// pumpRecords feeds received packets into the resolver the way the
// session worker does.
func pumpRecords(tr *transport.FakeTransport, r *discovery.Resolver) {
	go func() {
		for msg := range tr.Packets() {
			for _, rr := range msg.Answer {
				r.DeliverRecord(rr)
			}
			for _, rr := range msg.Extra {
				r.DeliverRecord(rr)
			}
		}
	}()
}

func srvRecord(name, target string, port uint16) *dns.SRV {
	return &dns.SRV{
		Hdr:    dns.RR_Header{Name: name, Rrtype: dns.TypeSRV, Class: dns.ClassINET, Ttl: 120},
		Target: target,
		Port:   port,
	}
}

func aRecord(name, ip string) *dns.A {
	return &dns.A{
		Hdr: dns.RR_Header{Name: name, Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: 120},
		A:   net.ParseIP(ip).To4(),
	}
}

func txtRecord(name string, values ...string) *dns.TXT {
	return &dns.TXT{
		Hdr: dns.RR_Header{Name: name, Rrtype: dns.TypeTXT, Class: dns.ClassINET, Ttl: 120},
		Txt: values,
	}
}

func TestResolveSinglePacket(t *testing.T) {
	tr := transport.NewFakeTransport()
	defer tr.Close()

	tr.OnQuery(func(query *dns.Msg) []*dns.Msg {
		if query.Question[0].Name != instanceName {
			return nil
		}
		reply := new(dns.Msg)
		reply.Response = true
		reply.Answer = []dns.RR{
			srvRecord(instanceName, hostName, 8080),
			txtRecord(instanceName, "path=/admin"),
		}
		reply.Extra = []dns.RR{aRecord(hostName, "192.168.1.30")}
		return []*dns.Msg{reply}
	})

	r := discovery.NewResolver(tr, clock.New(), 2*time.Second, "test", nil)
	pumpRecords(tr, r)

	si, err := r.Resolve(context.Background(), dnssd.InstanceKey{Type: "_http._tcp.local.", Name: instanceName}, 1)
	require.NoError(t, err)
	assert.Equal(t, dnssd.StatusResolved, si.Status)
	assert.Equal(t, hostName, si.Host)
	assert.Equal(t, uint16(8080), si.Port)
	assert.Equal(t, []string{"192.168.1.30:8080"}, si.Endpoints())
	assert.Equal(t, []byte("/admin"), []byte(si.TXT["path"]))
}

func TestResolveFollowUpAddressQuery(t *testing.T) {
	tr := transport.NewFakeTransport()
	defer tr.Close()

	tr.OnQuery(func(query *dns.Msg) []*dns.Msg {
		reply := new(dns.Msg)
		reply.Response = true
		switch query.Question[0].Name {
		case instanceName:
			reply.Answer = []dns.RR{srvRecord(instanceName, hostName, 443)}
		case hostName:
			reply.Answer = []dns.RR{aRecord(hostName, "10.1.2.3")}
		default:
			return nil
		}
		return []*dns.Msg{reply}
	})

	r := discovery.NewResolver(tr, clock.New(), 2*time.Second, "test", nil)
	pumpRecords(tr, r)

	si, err := r.Resolve(context.Background(), dnssd.InstanceKey{Type: "_https._tcp.local.", Name: instanceName}, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"10.1.2.3:443"}, si.Endpoints())

	// The follow-up address query went out on the wire.
	assert.NotEmpty(t, tr.QueriesFor(hostName))
}

func TestResolveTimeout(t *testing.T) {
	tr := transport.NewFakeTransport()
	defer tr.Close()

	r := discovery.NewResolver(tr, clock.New(), 50*time.Millisecond, "test", nil)

	start := time.Now()
	_, err := r.Resolve(context.Background(), dnssd.InstanceKey{Type: "_http._tcp.local.", Name: instanceName}, 1)
	require.ErrorIs(t, err, dnssd.ErrResolveTimeout)
	assert.Less(t, time.Since(start), time.Second)
}

func TestResolvePartialAnswerStillTimesOut(t *testing.T) {
	tr := transport.NewFakeTransport()
	defer tr.Close()

	// SRV only; the address never arrives.
	tr.OnQuery(func(query *dns.Msg) []*dns.Msg {
		if query.Question[0].Name != instanceName {
			return nil
		}
		reply := new(dns.Msg)
		reply.Response = true
		reply.Answer = []dns.RR{srvRecord(instanceName, hostName, 80)}
		return []*dns.Msg{reply}
	})

	r := discovery.NewResolver(tr, clock.New(), 100*time.Millisecond, "test", nil)
	pumpRecords(tr, r)

	_, err := r.Resolve(context.Background(), dnssd.InstanceKey{Type: "_http._tcp.local.", Name: instanceName}, 1)
	require.ErrorIs(t, err, dnssd.ErrResolveTimeout)
}

func TestResolveContextCancel(t *testing.T) {
	tr := transport.NewFakeTransport()
	defer tr.Close()

	ctx, cancel := context.WithCancel(context.Background())
	r := discovery.NewResolver(tr, clock.New(), 10*time.Second, "test", nil)

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := r.Resolve(ctx, dnssd.InstanceKey{Type: "_http._tcp.local.", Name: instanceName}, 1)
	require.ErrorIs(t, err, context.Canceled)
}
