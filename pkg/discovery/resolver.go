package discovery

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/miekg/dns"

	"github.com/sdbrowse/sdbrowse-go/pkg/dnssd"
	"github.com/sdbrowse/sdbrowse-go/pkg/log"
	"github.com/sdbrowse/sdbrowse-go/pkg/transport"
)

// recordUpdate is one answer record routed to a pending resolve.
type recordUpdate struct {
	srv  *SRVData
	txt  dnssd.TXTProperties
	addr *dns.A
	aaaa *dns.AAAA
}

type pendingResolve struct {
	instance string
	host     string
	updates  chan recordUpdate
}

// Resolver turns a service instance name into host, port, addresses and
// TXT properties. Each Resolve call is bounded by a hard deadline; on
// expiry the partial result is discarded and the caller decides whether
// to retry.
//
// The session worker feeds answer records in through DeliverRecord.
type Resolver struct {
	transport transport.Transport
	clock     clock.Clock
	timeout   time.Duration
	logger    log.Logger
	sessionID string

	mu      sync.Mutex
	pending map[*pendingResolve]struct{}

	// addrs remembers every address record seen this session, so an
	// SRV answer can pick up addresses that arrived in the same packet
	// before the resolve processed the SRV.
	addrs map[string][]net.IP
}

// NewResolver creates a resolver sending queries over tr. A zero timeout
// falls back to the default resolve deadline.
func NewResolver(tr transport.Transport, clk clock.Clock, timeout time.Duration, sessionID string, logger log.Logger) *Resolver {
	if timeout <= 0 {
		timeout = dnssd.DefaultResolveTimeout
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Resolver{
		transport: tr,
		clock:     clk,
		timeout:   timeout,
		logger:    log.OrNoop(logger),
		sessionID: sessionID,
		pending:   make(map[*pendingResolve]struct{}),
		addrs:     make(map[string][]net.IP),
	}
}

// DeliverRecord routes one received answer record to any resolve in
// flight that is waiting for it. Records nobody waits for are dropped.
func (r *Resolver) DeliverRecord(rr dns.RR) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch rec := rr.(type) {
	case *dns.A:
		r.rememberAddrLocked(rec.Hdr.Name, rec.A)
	case *dns.AAAA:
		r.rememberAddrLocked(rec.Hdr.Name, rec.AAAA)
	}

	for p := range r.pending {
		upd, ok := matchRecord(p, rr)
		if !ok {
			continue
		}
		select {
		case p.updates <- upd:
		default:
		}
	}
}

func (r *Resolver) rememberAddrLocked(host string, ip net.IP) {
	for _, known := range r.addrs[host] {
		if known.Equal(ip) {
			return
		}
	}
	r.addrs[host] = append(r.addrs[host], ip)
}

// seenAddrs returns the addresses already observed for a host.
func (r *Resolver) seenAddrs(host string) []net.IP {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]net.IP(nil), r.addrs[host]...)
}

func matchRecord(p *pendingResolve, rr dns.RR) (recordUpdate, bool) {
	switch rec := rr.(type) {
	case *dns.SRV:
		if rec.Hdr.Name != p.instance {
			return recordUpdate{}, false
		}
		return recordUpdate{srv: &SRVData{
			Host:     rec.Target,
			Port:     rec.Port,
			Priority: rec.Priority,
			Weight:   rec.Weight,
		}}, true
	case *dns.TXT:
		if rec.Hdr.Name != p.instance {
			return recordUpdate{}, false
		}
		return recordUpdate{txt: dnssd.ParseTXT(rec.Txt)}, true
	case *dns.A:
		if p.host == "" || rec.Hdr.Name != p.host {
			return recordUpdate{}, false
		}
		return recordUpdate{addr: rec}, true
	case *dns.AAAA:
		if p.host == "" || rec.Hdr.Name != p.host {
			return recordUpdate{}, false
		}
		return recordUpdate{aaaa: rec}, true
	}
	return recordUpdate{}, false
}

// Resolve queries SRV, TXT and address records for one instance. It
// returns a resolved instance once an SRV target and at least one
// address are known, or dnssd.ErrResolveTimeout when the deadline
// expires first. attempt is carried into the query log.
func (r *Resolver) Resolve(ctx context.Context, key dnssd.InstanceKey, attempt int) (*dnssd.ServiceInstance, error) {
	p := &pendingResolve{
		instance: key.Name,
		updates:  make(chan recordUpdate, 16),
	}
	r.mu.Lock()
	r.pending[p] = struct{}{}
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		delete(r.pending, p)
		r.mu.Unlock()
	}()

	if err := r.sendQuery(key.Name, []uint16{dns.TypeSRV, dns.TypeTXT}, key.Type, key.Name, attempt); err != nil {
		return nil, err
	}

	si := &dnssd.ServiceInstance{Key: key, Status: dnssd.StatusUnresolved}

	timer := r.clock.Timer(r.timeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
			return nil, dnssd.ErrResolveTimeout
		case upd := <-p.updates:
			if err := r.applyUpdate(p, si, upd, attempt); err != nil {
				return nil, err
			}
			if si.Host != "" && len(si.Addresses) > 0 {
				si.Status = dnssd.StatusResolved
				si.LastUpdated = time.Now()
				return si, nil
			}
		}
	}
}

func (r *Resolver) applyUpdate(p *pendingResolve, si *dnssd.ServiceInstance, upd recordUpdate, attempt int) error {
	switch {
	case upd.srv != nil:
		si.Host = upd.srv.Host
		si.Port = upd.srv.Port
		si.Priority = upd.srv.Priority
		si.Weight = upd.srv.Weight

		r.mu.Lock()
		changed := p.host != upd.srv.Host
		p.host = upd.srv.Host
		r.mu.Unlock()

		if !changed {
			return nil
		}

		// Addresses may have arrived alongside the SRV before the
		// host was known; pick them up before asking the network.
		for _, ip := range r.seenAddrs(upd.srv.Host) {
			si.AddAddress(ip)
		}
		if len(si.Addresses) > 0 {
			return nil
		}
		return r.sendQuery(upd.srv.Host, []uint16{dns.TypeA, dns.TypeAAAA}, si.Key.Type, si.Key.Name, attempt)
	case upd.txt != nil:
		si.TXT = upd.txt
	case upd.addr != nil:
		si.AddAddress(upd.addr.A)
	case upd.aaaa != nil:
		si.AddAddress(upd.aaaa.AAAA)
	}
	return nil
}

func (r *Resolver) sendQuery(name string, types []uint16, serviceType, instance string, attempt int) error {
	msg := new(dns.Msg)
	msg.SetQuestion(name, types[0])
	for _, t := range types[1:] {
		msg.Question = append(msg.Question, dns.Question{
			Name:   name,
			Qtype:  t,
			Qclass: dns.ClassINET,
		})
	}
	msg.RecursionDesired = false

	for _, t := range types {
		r.logger.Log(log.Event{
			Timestamp:   time.Now(),
			SessionID:   r.sessionID,
			Direction:   log.DirectionOut,
			Category:    log.CategoryQuery,
			ServiceType: serviceType,
			Instance:    instance,
			Query: &log.QueryEvent{
				Name:       name,
				RecordType: t,
				Attempt:    attempt,
			},
		})
	}

	return r.transport.SendQuery(msg)
}
