package model

import "time"

// Message is immutable once stored except for Read, which only a read-receipt sweep flips.
type Message struct {
	ID         string    `json:"_id"`
	Seq        int64     `json:"-"`
	SenderID   string    `json:"senderId"`
	ReceiverID string    `json:"receiverId"`
	Body       string    `json:"message"`
	Read       bool      `json:"read"`
	CreatedAt  time.Time `json:"timestamp"`
	Sender     *UserRef  `json:"sender,omitempty"`
	Receiver   *UserRef  `json:"receiver,omitempty"`
}
