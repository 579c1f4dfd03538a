package transport

import (
	"fmt"
	"net"
	"runtime"
	"sync"
	"time"

	"github.com/miekg/dns"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"

	"github.com/sdbrowse/sdbrowse-go/pkg/dnssd"
	"github.com/sdbrowse/sdbrowse-go/pkg/log"
)

// Multicast addressing constants from RFC 6762.
var (
	// mdnsGroupIPv4 is the IPv4 mDNS multicast group (224.0.0.251).
	mdnsGroupIPv4 = net.IPv4(224, 0, 0, 251)

	// mdnsGroupIPv6 is the IPv6 mDNS multicast group (ff02::fb).
	mdnsGroupIPv6 = net.ParseIP("ff02::fb")

	// mdnsWildcardAddrIPv4 is the IPv4 wildcard bind address. Binding
	// here receives all multicast traffic on port 5353.
	mdnsWildcardAddrIPv4 = &net.UDPAddr{
		IP:   net.ParseIP("224.0.0.0"),
		Port: 5353,
	}

	// mdnsWildcardAddrIPv6 is the IPv6 wildcard bind address.
	mdnsWildcardAddrIPv6 = &net.UDPAddr{
		IP:   net.ParseIP("ff02::"),
		Port: 5353,
	}

	// ipv4Addr is the IPv4 query destination.
	ipv4Addr = &net.UDPAddr{
		IP:   mdnsGroupIPv4,
		Port: 5353,
	}

	// ipv6Addr is the IPv6 query destination.
	ipv6Addr = &net.UDPAddr{
		IP:   mdnsGroupIPv6,
		Port: 5353,
	}
)

// packetBufferSize is the receive channel depth. Bursty announcement
// traffic is buffered so slow consumers do not drop packets at the
// socket level.
const packetBufferSize = 64

// MulticastConfig configures the multicast transport.
type MulticastConfig struct {
	// Interfaces lists interface names to bind. Empty means all
	// up, multicast-capable interfaces.
	Interfaces []string

	// SessionID tags log events with the owning scan session.
	SessionID string

	// Logger receives transport events. Nil disables logging.
	Logger log.Logger
}

// MulticastTransport is the production Transport: one IPv4 and one IPv6
// socket, joined to the mDNS groups on each selected interface.
type MulticastTransport struct {
	config MulticastConfig
	logger log.Logger

	ipv4conn *ipv4.PacketConn
	ipv6conn *ipv6.PacketConn
	ifaces   []net.Interface

	packets   chan *dns.Msg
	shutdown  chan struct{}
	closeOnce sync.Once
	readers   sync.WaitGroup
}

// OpenMulticast binds the mDNS sockets and joins the multicast groups.
// Per-interface join failures are reported as warnings through the
// logger; opening fails only when no interface could be joined at all.
func OpenMulticast(config MulticastConfig) (*MulticastTransport, error) {
	logger := log.OrNoop(config.Logger)

	ifaces, err := selectInterfaces(config.Interfaces)
	if err != nil {
		return nil, err
	}
	if len(ifaces) == 0 {
		return nil, fmt.Errorf("open multicast: no multicast-capable interfaces")
	}

	t := &MulticastTransport{
		config:   config,
		logger:   logger,
		ifaces:   ifaces,
		packets:  make(chan *dns.Msg, packetBufferSize),
		shutdown: make(chan struct{}),
	}

	v4, err4 := joinGroup4(ifaces)
	v6, err6 := joinGroup6(ifaces)
	if err4 != nil {
		t.logBindWarning("udp4", err4)
	}
	if err6 != nil {
		t.logBindWarning("udp6", err6)
	}
	if v4 == nil && v6 == nil {
		return nil, fmt.Errorf("open multicast: %w (udp4: %v, udp6: %v)", dnssd.ErrNoInterfaces, err4, err6)
	}
	t.ipv4conn = v4
	t.ipv6conn = v6

	if t.ipv4conn != nil {
		t.readers.Add(1)
		go t.recv4(t.ipv4conn)
	}
	if t.ipv6conn != nil {
		t.readers.Add(1)
		go t.recv6(t.ipv6conn)
	}

	return t, nil
}

// selectInterfaces resolves the configured names, or lists all up
// multicast-capable interfaces when none are named. Unknown names fail
// as bind errors for that interface.
func selectInterfaces(names []string) ([]net.Interface, error) {
	if len(names) == 0 {
		return listMulticastInterfaces(), nil
	}

	var out []net.Interface
	var firstErr error
	for _, name := range names {
		iface, err := net.InterfaceByName(name)
		if err != nil {
			if firstErr == nil {
				firstErr = &BindError{Interface: name, Err: err}
			}
			continue
		}
		out = append(out, *iface)
	}
	if len(out) == 0 && firstErr != nil {
		return nil, firstErr
	}
	return out, nil
}

// listMulticastInterfaces returns interfaces that are up and
// multicast-capable.
func listMulticastInterfaces() []net.Interface {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil
	}

	var out []net.Interface
	for _, ifi := range ifaces {
		if ifi.Flags&net.FlagUp == 0 {
			continue
		}
		if ifi.Flags&net.FlagMulticast > 0 {
			out = append(out, ifi)
		}
	}
	return out
}

// joinGroup4 binds the IPv4 wildcard socket and joins the group on each
// interface. Fails only when every join fails.
func joinGroup4(ifaces []net.Interface) (*ipv4.PacketConn, error) {
	udpConn, err := net.ListenUDP("udp4", mdnsWildcardAddrIPv4)
	if err != nil {
		return nil, err
	}

	pkConn := ipv4.NewPacketConn(udpConn)
	_ = pkConn.SetControlMessage(ipv4.FlagInterface, true)
	_ = pkConn.SetMulticastTTL(255)

	var failedJoins int
	for _, iface := range ifaces {
		if err := pkConn.JoinGroup(&iface, &net.UDPAddr{IP: mdnsGroupIPv4}); err != nil {
			failedJoins++
		}
	}
	if failedJoins == len(ifaces) {
		pkConn.Close()
		return nil, fmt.Errorf("udp4: failed to join any of %d interfaces", len(ifaces))
	}

	return pkConn, nil
}

// joinGroup6 binds the IPv6 wildcard socket and joins the group on each
// interface. Fails only when every join fails.
func joinGroup6(ifaces []net.Interface) (*ipv6.PacketConn, error) {
	udpConn, err := net.ListenUDP("udp6", mdnsWildcardAddrIPv6)
	if err != nil {
		return nil, err
	}

	pkConn := ipv6.NewPacketConn(udpConn)
	_ = pkConn.SetControlMessage(ipv6.FlagInterface, true)
	_ = pkConn.SetMulticastHopLimit(255)

	var failedJoins int
	for _, iface := range ifaces {
		if err := pkConn.JoinGroup(&iface, &net.UDPAddr{IP: mdnsGroupIPv6}); err != nil {
			failedJoins++
		}
	}
	if failedJoins == len(ifaces) {
		pkConn.Close()
		return nil, fmt.Errorf("udp6: failed to join any of %d interfaces", len(ifaces))
	}

	return pkConn, nil
}

// SendQuery packs and multicasts the query on every joined interface,
// over both address families.
func (t *MulticastTransport) SendQuery(msg *dns.Msg) error {
	select {
	case <-t.shutdown:
		return dnssd.ErrTransportClosed
	default:
	}

	buf, err := msg.Pack()
	if err != nil {
		return fmt.Errorf("pack query: %w", err)
	}

	var lastErr error
	if t.ipv4conn != nil {
		var wcm ipv4.ControlMessage
		for _, iface := range t.ifaces {
			switch runtime.GOOS {
			case "darwin", "ios", "linux":
				wcm.IfIndex = iface.Index
			default:
				_ = t.ipv4conn.SetMulticastInterface(&iface)
			}
			if _, err := t.ipv4conn.WriteTo(buf, &wcm, ipv4Addr); err != nil {
				lastErr = err
			}
		}
	}
	if t.ipv6conn != nil {
		var wcm ipv6.ControlMessage
		for _, iface := range t.ifaces {
			switch runtime.GOOS {
			case "darwin", "ios", "linux":
				wcm.IfIndex = iface.Index
			default:
				_ = t.ipv6conn.SetMulticastInterface(&iface)
			}
			if _, err := t.ipv6conn.WriteTo(buf, &wcm, ipv6Addr); err != nil {
				lastErr = err
			}
		}
	}
	if lastErr != nil {
		return fmt.Errorf("send query: %w", lastErr)
	}
	return nil
}

// Packets returns the receive channel.
func (t *MulticastTransport) Packets() <-chan *dns.Msg {
	return t.packets
}

// Close leaves the groups, closes both sockets and the packet channel.
// Every socket is released even when one close fails.
func (t *MulticastTransport) Close() error {
	var err4, err6 error
	t.closeOnce.Do(func() {
		close(t.shutdown)
		if t.ipv4conn != nil {
			err4 = t.ipv4conn.Close()
		}
		if t.ipv6conn != nil {
			err6 = t.ipv6conn.Close()
		}
		t.readers.Wait()
		close(t.packets)
	})
	if err4 != nil {
		return err4
	}
	return err6
}

// recv4 reads IPv4 packets until shutdown.
func (t *MulticastTransport) recv4(c *ipv4.PacketConn) {
	defer t.readers.Done()
	buf := make([]byte, 65536)
	for {
		select {
		case <-t.shutdown:
			return
		default:
		}
		n, _, from, err := c.ReadFrom(buf)
		if err != nil {
			select {
			case <-t.shutdown:
				return
			default:
				continue
			}
		}
		t.deliver(buf[:n], from)
	}
}

// recv6 reads IPv6 packets until shutdown.
func (t *MulticastTransport) recv6(c *ipv6.PacketConn) {
	defer t.readers.Done()
	buf := make([]byte, 65536)
	for {
		select {
		case <-t.shutdown:
			return
		default:
		}
		n, _, from, err := c.ReadFrom(buf)
		if err != nil {
			select {
			case <-t.shutdown:
				return
			default:
				continue
			}
		}
		t.deliver(buf[:n], from)
	}
}

// deliver unpacks a raw packet and forwards response messages.
// Malformed packets and plain queries from other hosts are dropped.
func (t *MulticastTransport) deliver(packet []byte, from net.Addr) {
	var msg dns.Msg
	if err := msg.Unpack(packet); err != nil {
		return
	}
	if !msg.Response {
		return
	}

	t.logger.Log(log.Event{
		Timestamp:  time.Now(),
		SessionID:  t.config.SessionID,
		Direction:  log.DirectionIn,
		Category:   log.CategoryAnswer,
		RemoteAddr: from.String(),
		Answer:     &log.AnswerEvent{Answers: len(msg.Answer), Goodbye: hasGoodbye(&msg)},
	})

	select {
	case t.packets <- &msg:
	case <-t.shutdown:
	}
}

// hasGoodbye reports whether any answer carries TTL=0.
func hasGoodbye(msg *dns.Msg) bool {
	for _, rr := range msg.Answer {
		if rr.Header().Ttl == 0 {
			return true
		}
	}
	return false
}

// logBindWarning records a per-family bind failure.
func (t *MulticastTransport) logBindWarning(family string, err error) {
	t.logger.Log(log.Event{
		Timestamp: time.Now(),
		SessionID: t.config.SessionID,
		Direction: log.DirectionIn,
		Category:  log.CategoryError,
		Error:     &log.ErrorEventData{Code: "bind", Message: err.Error(), Context: family},
	})
}

// Compile-time interface satisfaction check.
var _ Transport = (*MulticastTransport)(nil)
