package model

import "time"

// Contact is an opposite-role user annotated with the caller's conversation summary.
// LastMessage and LastMessageTime are null until the pair has exchanged a message.
type Contact struct {
	ID              string     `json:"_id"`
	FirstName       string     `json:"firstName"`
	LastName        string     `json:"lastName"`
	Email           string     `json:"email"`
	Role            Role       `json:"type"`
	StudentID       string     `json:"studentId,omitempty"`
	TeacherID       string     `json:"teacherId,omitempty"`
	Department      string     `json:"department,omitempty"`
	IsOnline        bool       `json:"isOnline"`
	LastSeenAt      time.Time  `json:"lastSeen"`
	UnreadCount     int        `json:"unreadCount"`
	LastMessage     *string    `json:"lastMessage"`
	LastMessageTime *time.Time `json:"lastMessageTime"`
}

// NewContact builds the directory part of a contact; session fields start zeroed.
func NewContact(u *User) Contact {
	return Contact{
		ID:         u.ID,
		FirstName:  u.FirstName,
		LastName:   u.LastName,
		Email:      u.Email,
		Role:       u.Role,
		StudentID:  u.StudentID,
		TeacherID:  u.TeacherID,
		Department: u.Department,
		IsOnline:   u.IsOnline,
		LastSeenAt: u.LastSeenAt,
	}
}

// WithSession copies the summary fields of s into the contact.
func (c Contact) WithSession(s *ChatSession) Contact {
	if s == nil {
		return c
	}
	last := s.LastMessage
	at := s.LastMessageTime
	c.UnreadCount = s.UnreadCount
	c.LastMessage = &last
	c.LastMessageTime = &at
	return c
}
