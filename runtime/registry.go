// Package runtime owns the live-connection state of the core: the
// presence registry, the gatekeeper admitting and retiring connections,
// and the notifier broadcasting presence changes.
package runtime

import (
	"hash/fnv"
	"sort"
	"sync"

	"realtime-core/contract"
	"realtime-core/domain"
)

const registryShards = 16

// Registry maps each identity to its single active connection.
// Synchronization is per shard, so admissions for independent
// identities proceed concurrently; operations on the same identity are
// serialized by the shard lock and appear atomic.
type Registry struct {
	shards [registryShards]registryShard
}

type registryShard struct {
	mu      sync.RWMutex
	entries map[string]registryEntry
}

type registryEntry struct {
	conn domain.Connection
	sink contract.EventSink
}

func NewRegistry() *Registry {
	r := &Registry{}
	for i := range r.shards {
		r.shards[i].entries = make(map[string]registryEntry)
	}
	return r
}

func (r *Registry) shard(identity string) *registryShard {
	h := fnv.New32a()
	h.Write([]byte(identity))
	return &r.shards[h.Sum32()%registryShards]
}

// Register binds conn to its identity, replacing any prior entry (last
// connection wins). The evicted connection id, if any, is returned so
// the caller can log the takeover; the evicted connection itself is not
// closed here, it simply stops receiving routed events.
func (r *Registry) Register(conn domain.Connection, sink contract.EventSink) (string, bool) {
	s := r.shard(conn.Identity)
	s.mu.Lock()
	defer s.mu.Unlock()

	prior, had := s.entries[conn.Identity]
	s.entries[conn.Identity] = registryEntry{conn: conn, sink: sink}
	if had {
		return prior.conn.ID, true
	}
	return "", false
}

// Unregister removes the entry for identity only when it still belongs
// to connectionID. A connection evicted by a newer admission therefore
// cannot tear down its successor. Reports whether an entry was removed.
func (r *Registry) Unregister(identity, connectionID string) bool {
	s := r.shard(identity)
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[identity]
	if !ok || entry.conn.ID != connectionID {
		return false
	}
	delete(s.entries, identity)
	return true
}

// Lookup returns the live route for identity. Absence is not an error.
func (r *Registry) Lookup(identity string) (contract.Route, bool) {
	s := r.shard(identity)
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[identity]
	if !ok {
		return contract.Route{}, false
	}
	return contract.Route{ConnectionID: entry.conn.ID, Sink: entry.sink}, true
}

// Snapshot returns every presence entry, sorted by identity for
// deterministic broadcasts.
func (r *Registry) Snapshot() []domain.PresenceEntry {
	var out []domain.PresenceEntry
	for i := range r.shards {
		s := &r.shards[i]
		s.mu.RLock()
		for _, entry := range s.entries {
			out = append(out, domain.PresenceEntry{
				Identity:     entry.conn.Identity,
				ConnectionID: entry.conn.ID,
				DisplayName:  entry.conn.DisplayName,
				Online:       true,
			})
		}
		s.mu.RUnlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Identity < out[j].Identity })
	return out
}

// Sinks returns the sinks of every live connection.
func (r *Registry) Sinks() []contract.EventSink {
	var out []contract.EventSink
	for i := range r.shards {
		s := &r.shards[i]
		s.mu.RLock()
		for _, entry := range s.entries {
			out = append(out, entry.sink)
		}
		s.mu.RUnlock()
	}
	return out
}
