// Package discovery implements live DNS-SD service discovery over mDNS.
//
// A Controller runs scan sessions: it enumerates service types via the
// DNS-SD meta-query, browses instances of every discovered type, and
// resolves each instance to host, port, addresses and TXT properties.
// Results accumulate in a per-session Cache; a coalesced change signal
// tells consumers when to re-read it.
//
// A rescan is a full teardown followed by a fresh session with a new
// generation id. Goroutines of an earlier generation cannot write into
// the new session's cache.
package discovery
