// Package presence tracks which users hold a live gateway connection.
package presence

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/campuschat/internal/event"
	"github.com/campuschat/internal/logger"
)

// Conn is the part of a gateway connection the registry needs. Send must not block; it
// reports false when the connection cannot take the event.
type Conn interface {
	Send(ev event.Outgoing) bool
	Close()
}

// StatusStore persists the online flag and last-seen time of a user.
type StatusStore interface {
	SetOnline(ctx context.Context, userID string, online bool) error
}

// Registry maps a user to at most one connection; the latest join wins.
//
// Join and Leave are serialized by lifecycle so that durable status writes and broadcasts
// happen in the same order as the map changes. Lookups only take mu and are never held up
// by store I/O.
type Registry struct {
	lifecycle sync.Mutex

	mu    sync.RWMutex
	conns map[string]Conn

	status  StatusStore
	timeout time.Duration
}

// NewRegistry returns an empty registry. status may be nil; timeout bounds each status
// write and defaults to 5s.
func NewRegistry(status StatusStore, timeout time.Duration) *Registry {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Registry{
		conns:   make(map[string]Conn),
		status:  status,
		timeout: timeout,
	}
}

// Join maps userID to conn. A different connection previously mapped to userID is closed
// and replaced without an offline/online flap. Joining again with the same connection is a
// no-op.
func (r *Registry) Join(ctx context.Context, userID string, conn Conn) {
	r.lifecycle.Lock()
	defer r.lifecycle.Unlock()

	r.mu.Lock()
	prev, had := r.conns[userID]
	if had && prev == conn {
		r.mu.Unlock()
		return
	}
	r.conns[userID] = conn
	others := r.othersLocked(userID)
	r.mu.Unlock()

	if had {
		logger.Infof("presence: user=%s replaced its connection", userID)
		go prev.Close()
		return
	}

	r.setStatus(ctx, userID, true)
	r.broadcast(others, event.NewStatus(userID, true))
	logger.Infof("presence: user=%s joined (online=%d)", userID, r.Len())
}

// Leave removes whichever user is mapped to conn. It reports false when conn was not
// mapped, for example after a replacement or a duplicate disconnect.
func (r *Registry) Leave(ctx context.Context, conn Conn) bool {
	r.lifecycle.Lock()
	defer r.lifecycle.Unlock()

	r.mu.Lock()
	userID, found := "", false
	for uid, c := range r.conns {
		if c == conn {
			userID, found = uid, true
			break
		}
	}
	if !found {
		r.mu.Unlock()
		return false
	}
	delete(r.conns, userID)
	others := r.othersLocked(userID)
	r.mu.Unlock()

	r.setStatus(ctx, userID, false)
	r.broadcast(others, event.NewStatus(userID, false))
	logger.Infof("presence: user=%s left (online=%d)", userID, r.Len())
	return true
}

// RouteTo returns the live connection of userID, if any.
func (r *Registry) RouteTo(userID string) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[userID]
	return c, ok
}

func (r *Registry) Online(userID string) bool {
	_, ok := r.RouteTo(userID)
	return ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Users returns the connected user ids in sorted order.
func (r *Registry) Users() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.conns))
	for uid := range r.conns {
		ids = append(ids, uid)
	}
	r.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// Close empties the registry at shutdown and marks every remaining user offline. No
// broadcasts are sent.
func (r *Registry) Close(ctx context.Context) {
	r.lifecycle.Lock()
	defer r.lifecycle.Unlock()

	r.mu.Lock()
	ids := make([]string, 0, len(r.conns))
	for uid := range r.conns {
		ids = append(ids, uid)
	}
	r.conns = make(map[string]Conn)
	r.mu.Unlock()

	for _, uid := range ids {
		r.setStatus(ctx, uid, false)
	}
}

func (r *Registry) othersLocked(userID string) []Conn {
	out := make([]Conn, 0, len(r.conns))
	for uid, c := range r.conns {
		if uid != userID {
			out = append(out, c)
		}
	}
	return out
}

func (r *Registry) setStatus(ctx context.Context, userID string, online bool) {
	if r.status == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()
	if err := r.status.SetOnline(ctx, userID, online); err != nil {
		logger.Errorf("presence: set online=%v user=%s: %v", online, userID, err)
	}
}

// broadcast delivers ev to conns. A connection that refuses the event is dead or too slow;
// it is closed and its own disconnect path removes it.
func (r *Registry) broadcast(conns []Conn, ev event.Outgoing) {
	for _, c := range conns {
		if !c.Send(ev) {
			logger.Warnf("presence: dropping unresponsive connection during %s broadcast", ev.Type)
			go c.Close()
		}
	}
}
