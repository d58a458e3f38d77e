// Package peer tracks the nodes seen on the local network.
package peer

import (
	"sort"
	"sync"
	"time"
)

// Peer is one discovered node: the source address of its beacons and the
// time the most recent one arrived.
type Peer struct {
	Addr     string
	LastSeen time.Time
}

// Registry is the shared map of discovered peers. The discovery listener and
// the janitor write to it and the UI reads snapshots; a single mutex guards
// every operation and is never held across I/O.
type Registry struct {
	mu    sync.Mutex
	peers map[string]time.Time
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{peers: make(map[string]time.Time)}
}

// Record inserts addr or refreshes its last-seen time.
func (r *Registry) Record(addr string, now time.Time) {
	r.mu.Lock()
	r.peers[addr] = now
	r.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the registry sorted by address.
func (r *Registry) Snapshot() []Peer {
	r.mu.Lock()
	out := make([]Peer, 0, len(r.peers))
	for addr, seen := range r.peers {
		out = append(out, Peer{Addr: addr, LastSeen: seen})
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Addr < out[j].Addr })
	return out
}

// EvictStale removes every peer whose last beacon is at least timeout old
// and reports how many were dropped.
func (r *Registry) EvictStale(now time.Time, timeout time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	dropped := 0
	for addr, seen := range r.peers {
		if now.Sub(seen) >= timeout {
			delete(r.peers, addr)
			dropped++
		}
	}
	return dropped
}

// Len reports the current number of known peers.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.peers)
}
