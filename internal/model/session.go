package model

import "time"

// PairKey identifies one conversation. The student always sits in the student slot no
// matter who sent the message.
type PairKey struct {
	StudentID string
	TeacherID string
}

// Has reports whether userID is one side of the pair.
func (k PairKey) Has(userID string) bool {
	return k.StudentID == userID || k.TeacherID == userID
}

// Counterpart returns the other side of the pair for userID.
func (k PairKey) Counterpart(userID string) string {
	if k.StudentID == userID {
		return k.TeacherID
	}
	return k.StudentID
}

// ChatSession is the per-pair summary derived from the message log.
//
// UnreadCount is a single counter for the pair: every send increments it and a read sweep
// by either party resets it to zero.
type ChatSession struct {
	ID              string    `json:"_id"`
	StudentID       string    `json:"studentId"`
	TeacherID       string    `json:"teacherId"`
	LastMessage     string    `json:"lastMessage"`
	LastMessageTime time.Time `json:"lastMessageTime"`
	LastMessageSeq  int64     `json:"-"`
	UnreadCount     int       `json:"unreadCount"`
	MessageCount    int       `json:"messageCount"`
	IsActive        bool      `json:"isActive"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
	Student         *UserRef  `json:"student,omitempty"`
	Teacher         *UserRef  `json:"teacher,omitempty"`
}

func (s *ChatSession) Key() PairKey {
	return PairKey{StudentID: s.StudentID, TeacherID: s.TeacherID}
}
