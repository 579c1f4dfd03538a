package discovery

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sdbrowse/sdbrowse-go/pkg/dnssd"
)

// Cache holds the discovered service types and instances of one scan
// session. A fresh Cache is created for every session; its generation id
// fences out writes from goroutines of earlier sessions.
//
// Reads return deep copies so callers can hold results across later
// mutations.
type Cache struct {
	mu         sync.RWMutex
	generation uuid.UUID
	types      map[string]map[string]*dnssd.ServiceInstance
	notify     chan<- struct{}
}

// NewCache creates an empty cache bound to the given session generation.
// notify receives a coalesced signal after every applied change; it may
// be nil.
func NewCache(generation uuid.UUID, notify chan<- struct{}) *Cache {
	return &Cache{
		generation: generation,
		types:      make(map[string]map[string]*dnssd.ServiceInstance),
		notify:     notify,
	}
}

// Generation returns the session generation this cache belongs to.
func (c *Cache) Generation() uuid.UUID {
	return c.generation
}

// Types returns the discovered service types in sorted order.
func (c *Cache) Types() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]string, 0, len(c.types))
	for t := range c.types {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Instances returns copies of all instances of a service type, sorted by
// instance name. The result is empty if the type is unknown.
func (c *Cache) Instances(serviceType string) []*dnssd.ServiceInstance {
	c.mu.RLock()
	defer c.mu.RUnlock()

	instances := c.types[serviceType]
	out := make([]*dnssd.ServiceInstance, 0, len(instances))
	for _, si := range instances {
		out = append(out, si.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key.Name < out[j].Key.Name })
	return out
}

// Instance returns a copy of one instance, or false if it is not present.
func (c *Cache) Instance(serviceType, name string) (*dnssd.ServiceInstance, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	si, ok := c.types[serviceType][name]
	if !ok {
		return nil, false
	}
	return si.Clone(), true
}

// Len returns the number of instances across all types.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	n := 0
	for _, instances := range c.types {
		n += len(instances)
	}
	return n
}

// Apply applies one browser event atomically. Events carrying a
// generation other than the cache's own are dropped. It reports whether
// the cache changed.
func (c *Cache) Apply(generation uuid.UUID, ev Event) bool {
	if generation != c.generation {
		return false
	}

	c.mu.Lock()
	changed := c.applyLocked(ev)
	c.mu.Unlock()

	if changed {
		c.signal()
	}
	return changed
}

func (c *Cache) applyLocked(ev Event) bool {
	switch ev.Kind {
	case TypeAdded:
		if _, ok := c.types[ev.ServiceType]; ok {
			return false
		}
		c.types[ev.ServiceType] = make(map[string]*dnssd.ServiceInstance)
		return true

	case TypeRemoved:
		// Removing a type drops all of its instances with it.
		if _, ok := c.types[ev.ServiceType]; !ok {
			return false
		}
		delete(c.types, ev.ServiceType)
		return true

	case InstanceAdded, InstanceUpdated:
		instances, ok := c.types[ev.ServiceType]
		if !ok {
			// An instance sighting implies its type exists.
			instances = make(map[string]*dnssd.ServiceInstance)
			c.types[ev.ServiceType] = instances
		}
		si, ok := instances[ev.Name]
		if !ok {
			si = &dnssd.ServiceInstance{
				Key: dnssd.InstanceKey{Type: ev.ServiceType, Name: ev.Name},
			}
			instances[ev.Name] = si
		}
		c.mergeLocked(si, ev)
		return true

	case InstanceRemoved:
		instances, ok := c.types[ev.ServiceType]
		if !ok {
			return false
		}
		if _, ok := instances[ev.Name]; !ok {
			return false
		}
		delete(instances, ev.Name)
		return true
	}
	return false
}

func (c *Cache) mergeLocked(si *dnssd.ServiceInstance, ev Event) {
	if ev.SRV != nil {
		si.Host = ev.SRV.Host
		si.Port = ev.SRV.Port
		si.Priority = ev.SRV.Priority
		si.Weight = ev.SRV.Weight
	}
	if ev.TXT != nil {
		si.TXT = ev.TXT.Clone()
	}
	if ev.Addr != nil {
		si.AddAddress(ev.Addr)
	}
	if si.Host != "" && len(si.Addresses) > 0 {
		si.Status = dnssd.StatusResolved
	}
	si.LastUpdated = time.Now()
}

// ApplyResolution stores the outcome of a successful resolve. The
// resolved instance is copied in; a stale generation or an instance that
// was removed while resolving leaves the cache untouched.
func (c *Cache) ApplyResolution(generation uuid.UUID, resolved *dnssd.ServiceInstance) bool {
	if generation != c.generation {
		return false
	}

	c.mu.Lock()
	instances, ok := c.types[resolved.Key.Type]
	if !ok {
		c.mu.Unlock()
		return false
	}
	if _, ok := instances[resolved.Key.Name]; !ok {
		c.mu.Unlock()
		return false
	}
	cp := resolved.Clone()
	cp.Status = dnssd.StatusResolved
	cp.LastUpdated = time.Now()
	instances[resolved.Key.Name] = cp
	c.mu.Unlock()

	c.signal()
	return true
}

// Clear drops every type and instance, signalling once if anything was
// removed.
func (c *Cache) Clear() {
	c.mu.Lock()
	changed := len(c.types) > 0
	c.types = make(map[string]map[string]*dnssd.ServiceInstance)
	c.mu.Unlock()

	if changed {
		c.signal()
	}
}

func (c *Cache) signal() {
	if c.notify == nil {
		return
	}
	select {
	case c.notify <- struct{}{}:
	default:
	}
}
