// Package event defines the frames exchanged over the chat websocket.
package event

import "github.com/campuschat/internal/model"

type Type string

// Client to server.
const (
	Join        Type = "user_join"
	Send        Type = "send_message"
	MarkRead    Type = "mark_messages_read"
	TypingStart Type = "typing_start"
	TypingStop  Type = "typing_stop"
)

// Server to client.
const (
	ReceiveMessage   Type = "receive_message"
	MessageSent      Type = "message_sent"
	MessageError     Type = "message_error"
	UserStatusUpdate Type = "user_status_update"
	UserTyping       Type = "user_typing"
	MessagesRead     Type = "messages_read"
	Error            Type = "error"
)

// aliases lets clients use the short names as well.
var aliases = map[Type]Type{
	"join":        Join,
	"send":        Send,
	"markRead":    MarkRead,
	"typingStart": TypingStart,
	"typingStop":  TypingStop,
}

// Canonical maps a short alias onto its canonical type; other values pass through.
func Canonical(t Type) Type {
	if c, ok := aliases[t]; ok {
		return c
	}
	return t
}

// Incoming is what a client sends. Only the fields of its Type are meaningful.
type Incoming struct {
	Type        Type   `json:"type"`
	UserID      string `json:"userId,omitempty"`
	OtherUserID string `json:"otherUserId,omitempty"`
	SenderID    string `json:"senderId,omitempty"`
	ReceiverID  string `json:"receiverId,omitempty"`
	Message     string `json:"message,omitempty"`
}

// Outgoing is what the server sends to a client.
type Outgoing struct {
	Type    Type `json:"type"`
	Payload any  `json:"payload"`
}

type ErrorPayload struct {
	Error string `json:"error"`
}

type StatusPayload struct {
	UserID   string `json:"userId"`
	IsOnline bool   `json:"isOnline"`
}

type TypingPayload struct {
	UserID   string `json:"userId"`
	IsTyping bool   `json:"isTyping"`
}

// ReadPayload tells OtherUserID that UserID has read their messages.
type ReadPayload struct {
	UserID      string `json:"userId"`
	OtherUserID string `json:"otherUserId"`
}

func NewError(msg string) Outgoing {
	return Outgoing{Type: Error, Payload: ErrorPayload{Error: msg}}
}

func NewMessageError(msg string) Outgoing {
	return Outgoing{Type: MessageError, Payload: ErrorPayload{Error: msg}}
}

func NewStatus(userID string, online bool) Outgoing {
	return Outgoing{Type: UserStatusUpdate, Payload: StatusPayload{UserID: userID, IsOnline: online}}
}

func NewTyping(userID string, typing bool) Outgoing {
	return Outgoing{Type: UserTyping, Payload: TypingPayload{UserID: userID, IsTyping: typing}}
}

func NewReceived(m *model.Message) Outgoing {
	return Outgoing{Type: ReceiveMessage, Payload: m}
}

func NewSent(m *model.Message) Outgoing {
	return Outgoing{Type: MessageSent, Payload: m}
}

func NewRead(userID, otherUserID string) Outgoing {
	return Outgoing{Type: MessagesRead, Payload: ReadPayload{UserID: userID, OtherUserID: otherUserID}}
}
