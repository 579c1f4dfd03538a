package transport

import (
	"sync"
	"time"

	"github.com/miekg/dns"

	"github.com/sdbrowse/sdbrowse-go/pkg/dnssd"
)

// QueryHandler produces zero or more response packets for a sent query.
type QueryHandler func(query *dns.Msg) []*dns.Msg

// FakeTransport is an in-memory Transport for tests. Responses are
// either injected directly or scripted per query, optionally after a
// delivery delay - which makes it possible to exercise packets arriving
// after a session has been torn down.
type FakeTransport struct {
	mu       sync.Mutex
	queries  []*dns.Msg
	handlers []QueryHandler
	delay    time.Duration
	closed   bool

	packets chan *dns.Msg
	done    chan struct{}
	pending sync.WaitGroup
}

// NewFakeTransport creates an open fake transport.
func NewFakeTransport() *FakeTransport {
	return &FakeTransport{
		packets: make(chan *dns.Msg, packetBufferSize),
		done:    make(chan struct{}),
	}
}

// OnQuery registers a handler invoked for every sent query. Handlers
// run asynchronously; their responses are delivered after the
// configured delay.
func (f *FakeTransport) OnQuery(h QueryHandler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers = append(f.handlers, h)
}

// SetDelay delays every scripted response by d.
func (f *FakeTransport) SetDelay(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delay = d
}

// SendQuery records the query and schedules scripted responses.
func (f *FakeTransport) SendQuery(msg *dns.Msg) error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return dnssd.ErrTransportClosed
	}
	f.queries = append(f.queries, msg.Copy())
	handlers := append([]QueryHandler(nil), f.handlers...)
	delay := f.delay
	f.mu.Unlock()

	for _, h := range handlers {
		responses := h(msg)
		if len(responses) == 0 {
			continue
		}
		f.pending.Add(1)
		go func(responses []*dns.Msg) {
			defer f.pending.Done()
			if delay > 0 {
				select {
				case <-time.After(delay):
				case <-f.done:
					return
				}
			}
			for _, resp := range responses {
				f.Inject(resp)
			}
		}(responses)
	}
	return nil
}

// Inject delivers a packet as if received from the network. Packets
// injected after Close are dropped, as is anything beyond the receive
// buffer; mDNS is lossy and receivers must cope either way.
func (f *FakeTransport) Inject(msg *dns.Msg) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	select {
	case f.packets <- msg:
	default:
	}
}

// Packets returns the receive channel.
func (f *FakeTransport) Packets() <-chan *dns.Msg {
	return f.packets
}

// Close marks the transport closed and closes the packet channel once
// all pending scripted deliveries have unwound.
func (f *FakeTransport) Close() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	f.mu.Unlock()

	close(f.done)
	f.pending.Wait()
	close(f.packets)
	return nil
}

// Closed reports whether Close has been called.
func (f *FakeTransport) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// Queries returns a snapshot of all queries sent so far.
func (f *FakeTransport) Queries() []*dns.Msg {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*dns.Msg(nil), f.queries...)
}

// QueriesFor returns the sent queries whose first question matches name.
func (f *FakeTransport) QueriesFor(name string) []*dns.Msg {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*dns.Msg
	for _, q := range f.queries {
		if len(q.Question) > 0 && q.Question[0].Name == name {
			out = append(out, q)
		}
	}
	return out
}

// Compile-time interface satisfaction check.
var _ Transport = (*FakeTransport)(nil)
