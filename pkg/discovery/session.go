package discovery

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/miekg/dns"

	"github.com/sdbrowse/sdbrowse-go/pkg/dnssd"
	"github.com/sdbrowse/sdbrowse-go/pkg/log"
	"github.com/sdbrowse/sdbrowse-go/pkg/transport"
)

// SessionState is the lifecycle state of the scan controller.
type SessionState uint8

const (
	StateIdle SessionState = iota
	StateStarting
	StateRunning
	StateStopping
)

func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateStarting:
		return "Starting"
	case StateRunning:
		return "Running"
	case StateStopping:
		return "Stopping"
	default:
		return "Unknown"
	}
}

// Config configures a scan controller.
type Config struct {
	// Interfaces restricts scanning to the named interfaces. Empty
	// means all up, multicast-capable interfaces.
	Interfaces []string

	// ResolveTimeout is the hard deadline of a single resolve attempt.
	ResolveTimeout time.Duration

	// ResolveRetries is how many times a timed-out resolve is retried.
	ResolveRetries int

	// ResolveBackoffInitial and ResolveBackoffMax bound the exponential
	// delay between resolve attempts.
	ResolveBackoffInitial time.Duration
	ResolveBackoffMax     time.Duration

	// BrowseInterval is how often browse queries are re-sent.
	BrowseInterval time.Duration

	// Logger receives discovery events. Nil disables logging.
	Logger log.Logger

	// Clock drives timers. Nil uses the wall clock.
	Clock clock.Clock

	// OpenTransport opens the packet transport for a session. Nil uses
	// the multicast transport.
	OpenTransport func(transport.MulticastConfig) (transport.Transport, error)
}

// DefaultConfig returns the controller defaults.
func DefaultConfig() Config {
	return Config{
		ResolveTimeout:        dnssd.DefaultResolveTimeout,
		ResolveRetries:        2,
		ResolveBackoffInitial: 500 * time.Millisecond,
		ResolveBackoffMax:     2 * time.Second,
		BrowseInterval:        15 * time.Second,
	}
}

// session bundles the per-generation state of one scan. A rescan
// discards the whole bundle and builds a fresh one.
type session struct {
	generation uuid.UUID
	id         string
	ctx        context.Context
	cancel     context.CancelFunc
	cache      *Cache
	transport  transport.Transport
	resolver   *Resolver
	queries    chan string
	done       chan struct{}

	mu        sync.Mutex
	resolving map[dnssd.InstanceKey]struct{}
}

// Controller runs scan sessions over the multicast transport. It owns a
// single worker goroutine per session; all cache mutations flow through
// it or through resolve goroutines it fences by generation.
type Controller struct {
	config  Config
	clk     clock.Clock
	logger  log.Logger
	changes chan struct{}

	mu            sync.Mutex
	state         SessionState
	current       *session
	stopRequested bool
	onState       func(old, new SessionState)
}

// NewController creates an idle controller.
func NewController(config Config) *Controller {
	if config.ResolveTimeout <= 0 {
		config.ResolveTimeout = dnssd.DefaultResolveTimeout
	}
	if config.BrowseInterval <= 0 {
		config.BrowseInterval = 15 * time.Second
	}
	if config.ResolveBackoffInitial <= 0 {
		config.ResolveBackoffInitial = 500 * time.Millisecond
	}
	if config.ResolveBackoffMax <= 0 {
		config.ResolveBackoffMax = 2 * time.Second
	}
	if config.ResolveRetries < 0 {
		config.ResolveRetries = 0
	}
	clk := config.Clock
	if clk == nil {
		clk = clock.New()
	}
	return &Controller{
		config:  config,
		clk:     clk,
		logger:  log.OrNoop(config.Logger),
		changes: make(chan struct{}, 1),
	}
}

// State returns the current lifecycle state.
func (c *Controller) State() SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// OnStateChange registers a callback invoked after every state
// transition. It must be set before Start.
func (c *Controller) OnStateChange(fn func(old, new SessionState)) {
	c.mu.Lock()
	c.onState = fn
	c.mu.Unlock()
}

// Changes returns a coalesced signal channel that fires whenever the
// current cache changes. The channel is stable across rescans.
func (c *Controller) Changes() <-chan struct{} {
	return c.changes
}

// Cache returns the cache of the current session, or nil when idle.
func (c *Controller) Cache() *Cache {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return nil
	}
	return c.current.cache
}

// SessionID returns the id of the current session, or empty when idle.
func (c *Controller) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return ""
	}
	return c.current.id
}

// Start opens the transport and begins browsing. It is valid only from
// the idle state. A Stop issued while the transport is still opening
// wins: the session is discarded and the controller returns to idle.
func (c *Controller) Start() error {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return dnssd.ErrSessionState
	}
	notify := c.setStateLocked(StateStarting, "start")
	c.mu.Unlock()
	notify()

	s, err := c.openSession()

	c.mu.Lock()
	stopped := c.stopRequested
	c.stopRequested = false
	if err != nil {
		notify = c.setStateLocked(StateIdle, "start failed")
		c.mu.Unlock()
		notify()
		return err
	}
	if stopped {
		notify = c.setStateLocked(StateIdle, "stopped")
		c.mu.Unlock()
		c.discardSession(s)
		notify()
		return nil
	}
	c.current = s
	notify = c.setStateLocked(StateRunning, "started")
	c.mu.Unlock()
	notify()

	go c.run(s)
	return nil
}

// Stop tears the session down and empties the cache. Teardown errors
// are logged, never returned; the controller always ends up idle. Stop
// during Starting marks the pending session for discard and returns
// immediately; Start finishes the teardown.
func (c *Controller) Stop() error {
	c.mu.Lock()
	switch c.state {
	case StateStarting:
		c.stopRequested = true
		c.mu.Unlock()
		return nil
	case StateRunning:
	default:
		c.mu.Unlock()
		return dnssd.ErrSessionState
	}
	notify := c.setStateLocked(StateStopping, "stop")
	s := c.current
	c.mu.Unlock()
	notify()

	c.teardown(s)

	c.mu.Lock()
	c.current = nil
	notify = c.setStateLocked(StateIdle, "stopped")
	c.mu.Unlock()
	notify()
	return nil
}

// Rescan tears the running session down completely and starts a fresh
// one. The new session has a new generation and an empty cache; nothing
// from the old session leaks into it.
func (c *Controller) Rescan() error {
	c.mu.Lock()
	if c.state != StateRunning {
		c.mu.Unlock()
		return dnssd.ErrSessionState
	}
	notify := c.setStateLocked(StateStopping, "rescan")
	old := c.current
	c.mu.Unlock()
	notify()

	c.teardown(old)

	c.mu.Lock()
	c.current = nil
	notify = c.setStateLocked(StateStarting, "rescan")
	c.mu.Unlock()
	notify()

	s, err := c.openSession()

	c.mu.Lock()
	stopped := c.stopRequested
	c.stopRequested = false
	if err != nil {
		notify = c.setStateLocked(StateIdle, "rescan failed")
		c.mu.Unlock()
		notify()
		return err
	}
	if stopped {
		notify = c.setStateLocked(StateIdle, "stopped")
		c.mu.Unlock()
		c.discardSession(s)
		notify()
		return nil
	}
	c.current = s
	notify = c.setStateLocked(StateRunning, "rescanned")
	c.mu.Unlock()
	notify()

	go c.run(s)
	return nil
}

// ManualQuery normalizes the given service type and subscribes its
// instance browser, sending an immediate browse query. Querying the
// meta-service re-sends the type enumeration instead.
func (c *Controller) ManualQuery(text string) error {
	serviceType := dnssd.NormalizeServiceType(text)
	if serviceType == "" || !dnssd.ValidServiceType(serviceType) {
		return dnssd.ErrInvalidQuery
	}

	c.mu.Lock()
	if c.state != StateRunning {
		c.mu.Unlock()
		return dnssd.ErrSessionState
	}
	s := c.current
	c.mu.Unlock()

	select {
	case s.queries <- serviceType:
		return nil
	case <-s.ctx.Done():
		return dnssd.ErrSessionState
	}
}

// QueryPresets issues a manual query for every type in the list,
// stopping at the first error.
func (c *Controller) QueryPresets(types []string) error {
	for _, t := range types {
		if err := c.ManualQuery(t); err != nil {
			return err
		}
	}
	return nil
}

func (c *Controller) openSession() (*session, error) {
	generation := uuid.New()
	id := generation.String()

	tr, err := c.openTransport(transport.MulticastConfig{
		Interfaces: c.config.Interfaces,
		SessionID:  id,
		Logger:     c.logger,
	})
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &session{
		generation: generation,
		id:         id,
		ctx:        ctx,
		cancel:     cancel,
		cache:      NewCache(generation, c.changes),
		transport:  tr,
		resolver:   NewResolver(tr, c.clk, c.config.ResolveTimeout, id, c.logger),
		queries:    make(chan string, 8),
		done:       make(chan struct{}),
		resolving:  make(map[dnssd.InstanceKey]struct{}),
	}, nil
}

func (c *Controller) openTransport(config transport.MulticastConfig) (transport.Transport, error) {
	if c.config.OpenTransport != nil {
		return c.config.OpenTransport(config)
	}
	return transport.OpenMulticast(config)
}

// teardown cancels the worker and resolve goroutines, closes the
// transport and waits for the worker to drain. The cache is cleared
// last so consumers observe the empty state exactly once.
func (c *Controller) teardown(s *session) {
	s.cancel()
	if err := s.transport.Close(); err != nil {
		c.logError(s.id, "teardown", "closing transport", err)
	}
	<-s.done
	s.cache.Clear()
}

// discardSession releases a session whose worker never ran. There is
// nothing to join, only the transport to close.
func (c *Controller) discardSession(s *session) {
	s.cancel()
	if err := s.transport.Close(); err != nil {
		c.logError(s.id, "teardown", "closing transport", err)
	}
	s.cache.Clear()
}

// setStateLocked updates the state under c.mu and returns the
// notification step. The caller runs it after releasing the mutex so
// state callbacks may call back into the controller.
func (c *Controller) setStateLocked(next SessionState, reason string) func() {
	prev := c.state
	c.state = next
	fn := c.onState
	id := c.currentIDLocked()

	return func() {
		c.logger.Log(log.Event{
			Timestamp: time.Now(),
			SessionID: id,
			Direction: log.DirectionOut,
			Category:  log.CategoryState,
			StateChange: &log.StateChangeEvent{
				Entity:   log.StateEntitySession,
				OldState: prev.String(),
				NewState: next.String(),
				Reason:   reason,
			},
		})
		if fn != nil && prev != next {
			fn(prev, next)
		}
	}
}

func (c *Controller) currentIDLocked() string {
	if c.current == nil {
		return ""
	}
	return c.current.id
}

// run is the session worker. It owns the browsers and is the only
// goroutine that feeds browser events into the cache.
func (c *Controller) run(s *session) {
	defer close(s.done)

	types := newTypeBrowser()
	browsers := make(map[string]*instanceBrowser)

	browseTick := c.clk.Ticker(c.config.BrowseInterval)
	defer browseTick.Stop()
	reapTick := c.clk.Ticker(time.Second)
	defer reapTick.Stop()

	c.sendBrowseQueries(s, types, browsers)

	for {
		select {
		case msg, ok := <-s.transport.Packets():
			if !ok {
				return
			}
			c.handlePacket(s, types, browsers, msg)
		case <-browseTick.C:
			c.sendBrowseQueries(s, types, browsers)
		case <-reapTick.C:
			for _, b := range browsers {
				for _, ev := range b.reapExpired(c.clk.Now()) {
					c.applyEvent(s, ev)
				}
			}
		case serviceType := <-s.queries:
			c.subscribe(s, types, browsers, serviceType)
		case <-s.ctx.Done():
			return
		}
	}
}

func (c *Controller) handlePacket(s *session, types *typeBrowser, browsers map[string]*instanceBrowser, msg *dns.Msg) {
	now := c.clk.Now()
	records := make([]dns.RR, 0, len(msg.Answer)+len(msg.Extra))
	records = append(records, msg.Answer...)
	records = append(records, msg.Extra...)

	for _, rr := range records {
		if ev, ok := types.handleRecord(rr); ok {
			c.applyEvent(s, ev)
			if ev.Kind == TypeAdded {
				// Every enumerated type is browsed automatically.
				c.subscribe(s, types, browsers, ev.ServiceType)
			}
		}
		for _, b := range browsers {
			for _, ev := range b.handleRecord(rr, now) {
				c.applyEvent(s, ev)
			}
		}
		s.resolver.DeliverRecord(rr)
	}
}

// subscribe adds an instance browser for a type, records the type in
// the cache and sends its first browse query.
func (c *Controller) subscribe(s *session, types *typeBrowser, browsers map[string]*instanceBrowser, serviceType string) {
	if serviceType == dnssd.MetaQueryService {
		c.sendQuery(s, types.query(), dnssd.MetaQueryService)
		return
	}
	if _, ok := browsers[serviceType]; ok {
		c.sendQuery(s, browsers[serviceType].query(), serviceType)
		return
	}

	b := newInstanceBrowser(serviceType)
	browsers[serviceType] = b
	c.applyEvent(s, Event{Kind: TypeAdded, ServiceType: serviceType})
	c.sendQuery(s, b.query(), serviceType)
}

func (c *Controller) sendBrowseQueries(s *session, types *typeBrowser, browsers map[string]*instanceBrowser) {
	c.sendQuery(s, types.query(), dnssd.MetaQueryService)
	for serviceType, b := range browsers {
		c.sendQuery(s, b.query(), serviceType)
	}
}

func (c *Controller) sendQuery(s *session, msg *dns.Msg, serviceType string) {
	for _, q := range msg.Question {
		c.logger.Log(log.Event{
			Timestamp:   time.Now(),
			SessionID:   s.id,
			Direction:   log.DirectionOut,
			Category:    log.CategoryQuery,
			ServiceType: serviceType,
			Query: &log.QueryEvent{
				Name:       q.Name,
				RecordType: q.Qtype,
			},
		})
	}
	if err := s.transport.SendQuery(msg); err != nil {
		c.logError(s.id, "send", "browse query", err)
	}
}

// applyEvent feeds one browser event into the session cache, logs the
// lifecycle change and kicks off resolution for new instances.
func (c *Controller) applyEvent(s *session, ev Event) {
	if !s.cache.Apply(s.generation, ev) {
		return
	}

	entity := log.StateEntityType
	if ev.isInstanceEvent() {
		entity = log.StateEntityInstance
	}
	c.logger.Log(log.Event{
		Timestamp:   time.Now(),
		SessionID:   s.id,
		Direction:   log.DirectionIn,
		Category:    log.CategoryState,
		ServiceType: ev.ServiceType,
		Instance:    ev.Name,
		StateChange: &log.StateChangeEvent{
			Entity:   entity,
			NewState: ev.Kind.String(),
		},
	})

	if ev.Kind == InstanceAdded {
		c.startResolve(s, dnssd.InstanceKey{Type: ev.ServiceType, Name: ev.Name})
	}
}

// startResolve launches a resolve goroutine for a newly seen instance,
// retrying on timeout per the backoff policy. At most one resolve per
// key is in flight.
func (c *Controller) startResolve(s *session, key dnssd.InstanceKey) {
	s.mu.Lock()
	if _, inflight := s.resolving[key]; inflight {
		s.mu.Unlock()
		return
	}
	s.resolving[key] = struct{}{}
	s.mu.Unlock()

	go func() {
		defer func() {
			s.mu.Lock()
			delete(s.resolving, key)
			s.mu.Unlock()
		}()

		policy := backoff.NewExponentialBackOff()
		policy.InitialInterval = c.config.ResolveBackoffInitial
		policy.MaxInterval = c.config.ResolveBackoffMax
		policy.MaxElapsedTime = 0

		attempt := 0
		operation := func() error {
			attempt++
			si, err := s.resolver.Resolve(s.ctx, key, attempt)
			if err != nil {
				if s.ctx.Err() != nil {
					return backoff.Permanent(err)
				}
				c.logError(s.id, "resolve", key.Name, err)
				return err
			}
			s.cache.ApplyResolution(s.generation, si)
			return nil
		}

		retries := backoff.WithMaxRetries(policy, uint64(c.config.ResolveRetries))
		_ = backoff.Retry(operation, backoff.WithContext(retries, s.ctx))
	}()
}

func (c *Controller) logError(sessionID, code, detail string, err error) {
	c.logger.Log(log.Event{
		Timestamp: time.Now(),
		SessionID: sessionID,
		Direction: log.DirectionIn,
		Category:  log.CategoryError,
		Error: &log.ErrorEventData{
			Code:    code,
			Message: err.Error(),
			Context: detail,
		},
	})
}
