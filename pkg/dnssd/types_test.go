package dnssd_test

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sdbrowse/sdbrowse-go/pkg/dnssd"
)

func TestServiceInstanceAddAddress(t *testing.T) {
	si := &dnssd.ServiceInstance{}

	assert.True(t, si.AddAddress(net.ParseIP("192.168.1.10")))
	assert.True(t, si.AddAddress(net.ParseIP("fe80::1")))
	assert.False(t, si.AddAddress(net.ParseIP("192.168.1.10")))
	assert.Len(t, si.Addresses, 2)
}

func TestServiceInstanceEndpoints(t *testing.T) {
	si := &dnssd.ServiceInstance{Port: 8080}
	si.AddAddress(net.ParseIP("10.0.0.5"))
	si.AddAddress(net.ParseIP("fe80::1"))

	assert.Equal(t, []string{"10.0.0.5:8080", "[fe80::1]:8080"}, si.Endpoints())
}

func TestServiceInstanceClone(t *testing.T) {
	si := &dnssd.ServiceInstance{
		Key:  dnssd.InstanceKey{Type: "_http._tcp.local.", Name: "web._http._tcp.local."},
		Port: 80,
		TXT:  dnssd.TXTProperties{"path": dnssd.TXTValue("/")},
	}
	si.AddAddress(net.ParseIP("10.0.0.1"))

	cp := si.Clone()
	cp.Addresses[0][0] = 99
	cp.TXT["path"][0] = 'x'

	assert.Equal(t, net.ParseIP("10.0.0.1"), si.Addresses[0])
	assert.Equal(t, dnssd.TXTValue("/"), si.TXT["path"])
	assert.Equal(t, si.Key, cp.Key)
}
