// Package dnssd holds the DNS-SD data model shared by the transport
// and discovery layers: service types and instances, TXT properties,
// and helpers for canonicalizing user-entered service type names.
package dnssd
