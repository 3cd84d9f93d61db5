package rpc

import (
	"fmt"
	"sync"

	"github.com/triplexrpc/triplex/pkg/envelope"
)

// ConnectionRegistry tracks live connections so broadcasters can address
// them by id.
//
// Connections are bucketed by transport, each bucket behind its own lock,
// so fan-out on one transport does not contend with accepts on another.
// The registry holds non-owning references; the gateway that accepted a
// connection remains responsible for closing it.
type ConnectionRegistry struct {
	buckets map[Transport]*connBucket
}

type connBucket struct {
	mu    sync.RWMutex
	conns map[string]*Conn
}

// NewConnectionRegistry returns a registry with one bucket per supported
// transport.
func NewConnectionRegistry() *ConnectionRegistry {
	buckets := make(map[Transport]*connBucket, len(Transports))
	for _, t := range Transports {
		buckets[t] = &connBucket{conns: make(map[string]*Conn)}
	}
	return &ConnectionRegistry{buckets: buckets}
}

func (r *ConnectionRegistry) bucket(t Transport) *connBucket {
	return r.buckets[t]
}

// Register adds a connection under its transport and id. Called by
// gateways on accept.
func (r *ConnectionRegistry) Register(c *Conn) {
	b := r.bucket(c.Transport())
	if b == nil {
		return
	}
	b.mu.Lock()
	b.conns[c.ID()] = c
	b.mu.Unlock()
}

// Unregister removes a connection. Called by gateways on close; removing
// an unknown id is a no-op.
func (r *ConnectionRegistry) Unregister(t Transport, id string) {
	b := r.bucket(t)
	if b == nil {
		return
	}
	b.mu.Lock()
	delete(b.conns, id)
	b.mu.Unlock()
}

// Get returns the live connection registered under (transport, id).
func (r *ConnectionRegistry) Get(t Transport, id string) (*Conn, bool) {
	b := r.bucket(t)
	if b == nil {
		return nil, false
	}
	b.mu.RLock()
	c, ok := b.conns[id]
	b.mu.RUnlock()
	return c, ok
}

// TrySend delivers an envelope to the connection registered under
// (transport, id). It returns ErrConnectionNotFound when the id is
// unknown and never blocks waiting for a reconnect.
func (r *ConnectionRegistry) TrySend(t Transport, id string, e envelope.Envelope) error {
	c, ok := r.Get(t, id)
	if !ok {
		return fmt.Errorf("%w: %s/%s", ErrConnectionNotFound, t, id)
	}
	return c.Send(e)
}

// Count returns the number of live connections on a transport.
func (r *ConnectionRegistry) Count(t Transport) int {
	b := r.bucket(t)
	if b == nil {
		return 0
	}
	b.mu.RLock()
	n := len(b.conns)
	b.mu.RUnlock()
	return n
}

// Counts returns the number of live connections per transport.
func (r *ConnectionRegistry) Counts() map[Transport]int {
	counts := make(map[Transport]int, len(r.buckets))
	for t := range r.buckets {
		counts[t] = r.Count(t)
	}
	return counts
}

// Snapshot returns the live connections on a transport as a fresh slice.
// Fan-out iterates the snapshot, not the map, so sends cannot hold the
// bucket lock.
func (r *ConnectionRegistry) Snapshot(t Transport) []*Conn {
	b := r.bucket(t)
	if b == nil {
		return nil
	}
	b.mu.RLock()
	conns := make([]*Conn, 0, len(b.conns))
	for _, c := range b.conns {
		conns = append(conns, c)
	}
	b.mu.RUnlock()
	return conns
}
