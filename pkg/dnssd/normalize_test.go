package dnssd_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sdbrowse/sdbrowse-go/pkg/dnssd"
)

func TestNormalizeServiceType(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"bare type", "_http._tcp", "_http._tcp.local."},
		{"already normalized", "_http._tcp.local.", "_http._tcp.local."},
		{"missing trailing dot", "_http._tcp.local", "_http._tcp.local."},
		{"trailing dot only", "_http._tcp.", "_http._tcp.local."},
		{"surrounding whitespace", "  _http._tcp.local  ", "_http._tcp.local."},
		{"whitespace bare type", "\t_ipp._tcp\n", "_ipp._tcp.local."},
		{"empty", "", ""},
		{"whitespace only", "   ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, dnssd.NormalizeServiceType(tt.input))
		})
	}
}

func TestShortenTypeName(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain type", "_http._tcp.local.", "_http._tcp.local."},
		{"subtyped answer", "_printer._sub._http._tcp.local.", "_http._tcp.local."},
		{"deeply prefixed", "a.b._airplay._tcp.local.", "_airplay._tcp.local."},
		{"no trailing dot", "x._http._tcp.local", "_http._tcp.local"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, dnssd.ShortenTypeName(tt.input))
		})
	}
}

func TestValidServiceType(t *testing.T) {
	assert.True(t, dnssd.ValidServiceType("_http._tcp.local."))
	assert.True(t, dnssd.ValidServiceType("_dante-ddm-c._tcp.local."))
	assert.True(t, dnssd.ValidServiceType(dnssd.MetaQueryService))
	assert.False(t, dnssd.ValidServiceType("http._tcp.local."))
	assert.False(t, dnssd.ValidServiceType("_http.tcp.local."))
	assert.False(t, dnssd.ValidServiceType("_http._tcp"))
	assert.False(t, dnssd.ValidServiceType(""))
	assert.False(t, dnssd.ValidServiceType("_._tcp.local."))
	assert.False(t, dnssd.ValidServiceType("..local."))
}
