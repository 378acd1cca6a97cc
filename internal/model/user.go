package model

import "time"

type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
)

// Valid reports whether r is one of the two campus roles.
func (r Role) Valid() bool {
	return r == RoleStudent || r == RoleTeacher
}

// Opposite returns the role a user of role r talks to. Unknown roles map to "".
func (r Role) Opposite() Role {
	switch r {
	case RoleStudent:
		return RoleTeacher
	case RoleTeacher:
		return RoleStudent
	}
	return ""
}

// User is a directory entry. The directory itself is owned elsewhere; the chat core only
// reads identities and roles and flips the presence columns.
type User struct {
	ID           string    `json:"_id" yaml:"id"`
	FirstName    string    `json:"firstName" yaml:"first_name"`
	LastName     string    `json:"lastName" yaml:"last_name"`
	Email        string    `json:"email" yaml:"email"`
	Role         Role      `json:"type" yaml:"role"`
	StudentID    string    `json:"studentId,omitempty" yaml:"student_id"`
	TeacherID    string    `json:"teacherId,omitempty" yaml:"teacher_id"`
	Department   string    `json:"department,omitempty" yaml:"department"`
	IsOnline     bool      `json:"isOnline" yaml:"-"`
	LastSeenAt   time.Time `json:"lastSeen" yaml:"-"`
	RegisteredAt time.Time `json:"registrationDate" yaml:"-"`
}

// UserRef is the display subset attached to messages and sessions so that clients do not
// have to join against the directory.
type UserRef struct {
	ID         string `json:"_id"`
	FirstName  string `json:"firstName"`
	LastName   string `json:"lastName"`
	Role       Role   `json:"type"`
	StudentID  string `json:"studentId,omitempty"`
	TeacherID  string `json:"teacherId,omitempty"`
	Department string `json:"department,omitempty"`
	Email      string `json:"email,omitempty"`
}

func (u *User) Ref() *UserRef {
	return &UserRef{
		ID:         u.ID,
		FirstName:  u.FirstName,
		LastName:   u.LastName,
		Role:       u.Role,
		StudentID:  u.StudentID,
		TeacherID:  u.TeacherID,
		Department: u.Department,
		Email:      u.Email,
	}
}
