package ws

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/campuschat/internal/chat"
	"github.com/campuschat/internal/event"
	"github.com/campuschat/internal/logger"
	"github.com/campuschat/internal/presence"
)

// Conn is a gateway connection as seen by the hub. *Client implements it; tests use fakes.
type Conn interface {
	presence.Conn
	UserID() string
	SetUserID(id string)
}

// Options tunes every connection the hub accepts.
type Options struct {
	MaxConns       int
	SendBuffer     int
	WriteWait      time.Duration
	PongWait       time.Duration
	MaxMessageSize int64
}

func (o Options) withDefaults() Options {
	if o.MaxConns <= 0 {
		o.MaxConns = 10000
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = 256
	}
	if o.WriteWait <= 0 {
		o.WriteWait = 10 * time.Second
	}
	if o.PongWait <= 0 {
		o.PongWait = 60 * time.Second
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = 64 * 1024
	}
	return o
}

// pingPeriod must stay below PongWait.
func (o Options) pingPeriod() time.Duration {
	return o.PongWait * 9 / 10
}

type Hub struct {
	mu       sync.Mutex
	clients  map[*Client]struct{}
	opts     Options
	svc      *chat.Service
	presence *presence.Registry
	handlers map[event.Type]handlerFunc

	register   chan *Client
	unregister chan *Client
	done       chan struct{}
}

func NewHub(svc *chat.Service, reg *presence.Registry, opts Options) *Hub {
	h := &Hub{
		clients:    make(map[*Client]struct{}),
		opts:       opts.withDefaults(),
		svc:        svc,
		presence:   reg,
		register:   make(chan *Client, 64),
		unregister: make(chan *Client, 64),
		done:       make(chan struct{}),
	}
	h.handlers = h.routes()
	return h
}

func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			// done is closed first so pumps exiting during shutdown never block on unregister.
			close(h.done)
			h.shutdown(ctx)
			return
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(ctx, client)
		}
	}
}

func (h *Hub) shutdown(ctx context.Context) {
	// Collect all clients under the lock, do NOT perform I/O under mutex.
	h.mu.Lock()
	all := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		all = append(all, c)
	}
	h.clients = make(map[*Client]struct{})
	h.mu.Unlock()

	for _, c := range all {
		c.Close()
	}
	for _, c := range all {
		c.Wait()
	}
	h.presence.Close(ctx)
}

func (h *Hub) addClient(c *Client) {
	// A client can drop before its register is handled; its unregister already ran.
	if c.closed() {
		return
	}
	h.mu.Lock()
	if len(h.clients) >= h.opts.MaxConns {
		h.mu.Unlock()
		logger.Errorf("ws connection limit reached (%d), rejecting connection", h.opts.MaxConns)
		c.Close()
		return
	}
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) removeClient(ctx context.Context, c *Client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()

	c.Close()
	h.Disconnect(ctx, c)
}

// Disconnect releases whatever user c is joined as. A connection that was replaced by a
// newer join, or never joined, changes nothing.
func (h *Hub) Disconnect(ctx context.Context, c Conn) {
	if h.presence.Leave(ctx, c) {
		logger.Debugf("ws disconnect user=%s", c.UserID())
	}
}

// Len returns the number of open connections, joined or not.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// HandleMessage dispatches one incoming frame and applies the resulting deliveries.
func (h *Hub) HandleMessage(ctx context.Context, c Conn, msg event.Incoming) {
	t := event.Canonical(msg.Type)
	fn, ok := h.handlers[t]
	if !ok {
		h.deliver(c, self(event.NewError("unknown event type")))
		return
	}
	defer logger.DeferLogDuration("ws."+string(t), time.Now())()
	h.deliver(c, fn(ctx, c, msg))
}

// deliver hands each event to its target. A routed connection whose buffer is full is
// closed: its user sees the failure as a disconnect, the sender is not told.
func (h *Hub) deliver(c Conn, ds []delivery) {
	for _, d := range ds {
		if d.to == "" {
			if !c.Send(d.ev) {
				logger.Warnf("ws send buffer full, closing slow client user=%s", c.UserID())
				go c.Close()
			}
			continue
		}
		target, ok := h.presence.RouteTo(d.to)
		if !ok {
			continue
		}
		if !target.Send(d.ev) {
			err := fmt.Errorf("deliver %s to user=%s: %w", d.ev.Type, d.to, chat.ErrTransientNetwork)
			logger.Warnf("ws %v, closing connection", err)
			go target.Close()
		}
	}
}

func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.done:
		c.Close()
	}
}

func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}
