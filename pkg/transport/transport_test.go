package transport

import (
	"testing"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
)

func TestInterfaceInfoString(t *testing.T) {
	assert.Equal(t, "eth0 (192.168.1.5)", InterfaceInfo{Name: "eth0", Addr: "192.168.1.5"}.String())
	assert.Equal(t, "eth0", InterfaceInfo{Name: "eth0"}.String())
}

func TestBindError(t *testing.T) {
	wrapped := assert.AnError
	err := &BindError{Interface: "eth1", Err: wrapped}

	assert.Contains(t, err.Error(), "eth1")
	assert.ErrorIs(t, err, wrapped)
}

func TestHasGoodbye(t *testing.T) {
	msg := new(dns.Msg)
	msg.Answer = append(msg.Answer, &dns.PTR{
		Hdr: dns.RR_Header{Name: "_http._tcp.local.", Rrtype: dns.TypePTR, Class: dns.ClassINET, Ttl: 120},
		Ptr: "a._http._tcp.local.",
	})
	assert.False(t, hasGoodbye(msg))

	msg.Answer = append(msg.Answer, &dns.PTR{
		Hdr: dns.RR_Header{Name: "_http._tcp.local.", Rrtype: dns.TypePTR, Class: dns.ClassINET, Ttl: 0},
		Ptr: "b._http._tcp.local.",
	})
	assert.True(t, hasGoodbye(msg))
}

func TestSelectInterfacesUnknownName(t *testing.T) {
	_, err := selectInterfaces([]string{"definitely-not-an-interface-0"})

	var bindErr *BindError
	assert.ErrorAs(t, err, &bindErr)
	assert.Equal(t, "definitely-not-an-interface-0", bindErr.Interface)
}
