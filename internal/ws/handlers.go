package ws

import (
	"context"
	"strings"

	"github.com/campuschat/internal/chat"
	"github.com/campuschat/internal/event"
)

// delivery is one outgoing event. An empty to targets the connection that sent the frame.
type delivery struct {
	to string
	ev event.Outgoing
}

func self(ev event.Outgoing) []delivery {
	return []delivery{{ev: ev}}
}

type handlerFunc func(ctx context.Context, c Conn, msg event.Incoming) []delivery

func (h *Hub) routes() map[event.Type]handlerFunc {
	return map[event.Type]handlerFunc{
		event.Join:        h.handleJoin,
		event.Send:        h.handleSend,
		event.MarkRead:    h.handleMarkRead,
		event.TypingStart: h.handleTyping(true),
		event.TypingStop:  h.handleTyping(false),
	}
}

const (
	errJoinRequired     = "Join required"
	errIdentityMismatch = "Identity does not match the joined user"
)

// joined returns the user bound to c. claimed, when set, must name that same user.
func joined(c Conn, claimed string) (string, string) {
	me := c.UserID()
	if me == "" {
		return "", errJoinRequired
	}
	if claimed = strings.TrimSpace(claimed); claimed != "" && claimed != me {
		return "", errIdentityMismatch
	}
	return me, ""
}

func (h *Hub) handleJoin(ctx context.Context, c Conn, msg event.Incoming) []delivery {
	userID := strings.TrimSpace(msg.UserID)
	if userID == "" {
		return self(event.NewError("userId is required"))
	}
	switch cur := c.UserID(); {
	case cur == userID:
		return nil
	case cur != "":
		return self(event.NewError("Connection already joined as another user"))
	}

	u, err := h.svc.LookupUser(ctx, userID)
	if err != nil {
		return self(event.NewError(chat.PublicMessage(err, "Failed to join")))
	}
	c.SetUserID(u.ID)
	h.presence.Join(ctx, u.ID, c)
	return nil
}

// handleSend persists the message, then notifies the receiver before acknowledging the
// sender.
func (h *Hub) handleSend(ctx context.Context, c Conn, msg event.Incoming) []delivery {
	me, bad := joined(c, msg.SenderID)
	if bad != "" {
		return self(event.NewMessageError(bad))
	}
	m, err := h.svc.Send(ctx, me, msg.ReceiverID, msg.Message)
	if err != nil {
		return self(event.NewMessageError(chat.PublicMessage(err, "Failed to send message")))
	}
	return []delivery{
		{to: m.ReceiverID, ev: event.NewReceived(m)},
		{ev: event.NewSent(m)},
	}
}

func (h *Hub) handleMarkRead(ctx context.Context, c Conn, msg event.Incoming) []delivery {
	me, bad := joined(c, msg.UserID)
	if bad != "" {
		return self(event.NewError(bad))
	}
	other := strings.TrimSpace(msg.OtherUserID)
	if err := h.svc.MarkRead(ctx, me, other); err != nil {
		return self(event.NewError(chat.PublicMessage(err, "Failed to mark messages as read")))
	}
	return []delivery{{to: other, ev: event.NewRead(me, other)}}
}

// Typing is ephemeral: nothing is stored and an offline receiver simply misses it.
func (h *Hub) handleTyping(typing bool) handlerFunc {
	return func(_ context.Context, c Conn, msg event.Incoming) []delivery {
		me, bad := joined(c, msg.SenderID)
		if bad != "" {
			return self(event.NewError(bad))
		}
		to := strings.TrimSpace(msg.ReceiverID)
		if to == "" || to == me {
			return nil
		}
		return []delivery{{to: to, ev: event.NewTyping(me, typing)}}
	}
}
