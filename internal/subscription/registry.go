// Package subscription tracks which live connections want updates for which
// site, and fans completed checks out to them.
//
// A connection is an opaque handle: the registry only needs to send to it and
// compare it. Each connection follows at most one site at a time; subscribing
// again moves it.
package subscription

import (
	"errors"
	"sync"

	"github.com/hamed0406/sitewatch/internal/domain"
)

// ErrClosed is returned by Conn.Send when the connection can no longer take
// messages, either because it is gone or because it stopped draining.
var ErrClosed = errors.New("subscription: connection closed")

// Conn is a subscriber handle. Send must not block.
// Implementations must be comparable (pointer types are).
type Conn interface {
	Send(payload []byte) error
}

type Registry struct {
	mu     sync.RWMutex
	bySite map[domain.SiteID]map[Conn]struct{}
	byConn map[Conn]domain.SiteID
}

func NewRegistry() *Registry {
	return &Registry{
		bySite: make(map[domain.SiteID]map[Conn]struct{}),
		byConn: make(map[Conn]domain.SiteID),
	}
}

// Subscribe registers c under id, dropping any earlier subscription of c.
func (r *Registry) Subscribe(c Conn, id domain.SiteID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeLocked(c)
	set, ok := r.bySite[id]
	if !ok {
		set = make(map[Conn]struct{})
		r.bySite[id] = set
	}
	set[c] = struct{}{}
	r.byConn[c] = id
}

// Unsubscribe removes c from whatever site it follows. Unknown connections are a no-op.
func (r *Registry) Unsubscribe(c Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeLocked(c)
}

func (r *Registry) removeLocked(c Conn) {
	id, ok := r.byConn[c]
	if !ok {
		return
	}
	delete(r.byConn, c)
	set := r.bySite[id]
	delete(set, c)
	if len(set) == 0 {
		delete(r.bySite, id)
	}
}

// SubscribersOf returns a copy of the connections following id.
func (r *Registry) SubscribersOf(id domain.SiteID) []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := r.bySite[id]
	out := make([]Conn, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	return out
}

// Has reports whether anyone follows id.
func (r *Registry) Has(id domain.SiteID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.bySite[id]) > 0
}

// SiteOf reports which site c follows.
func (r *Registry) SiteOf(c Conn) (domain.SiteID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byConn[c]
	return id, ok
}

// Sites returns the number of sites with at least one subscriber.
func (r *Registry) Sites() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.bySite)
}

// Len returns the number of subscribed connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byConn)
}
