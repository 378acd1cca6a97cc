package chat

import (
	"errors"
	"testing"

	"github.com/campuschat/internal/model"
)

func TestPairKeyFor_IndependentOfDirection(t *testing.T) {
	a, err := PairKeyFor(model.RoleStudent, "s1", model.RoleTeacher, "t1")
	if err != nil {
		t.Fatalf("student->teacher: %v", err)
	}
	b, err := PairKeyFor(model.RoleTeacher, "t1", model.RoleStudent, "s1")
	if err != nil {
		t.Fatalf("teacher->student: %v", err)
	}
	want := model.PairKey{StudentID: "s1", TeacherID: "t1"}
	if a != want || b != want {
		t.Errorf("got %+v and %+v, want %+v", a, b, want)
	}
}

func TestPairKeyFor_RejectsSameRoleAndUnknownRole(t *testing.T) {
	cases := []struct {
		name   string
		sr, rr model.Role
	}{
		{"two students", model.RoleStudent, model.RoleStudent},
		{"two teachers", model.RoleTeacher, model.RoleTeacher},
		{"unknown sender role", "admin", model.RoleTeacher},
		{"empty receiver role", model.RoleStudent, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := PairKeyFor(tc.sr, "a", tc.rr, "b")
			if !errors.Is(err, ErrValidation) {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}
}

func TestPublicMessage_HidesStorageDetail(t *testing.T) {
	err := storageError("op", "Failed to send message", errors.New("pq: connection refused"))
	if got := PublicMessage(err, "fallback"); got != "fallback" {
		t.Errorf("storage error leaked %q", got)
	}
	if got := PublicMessage(notFoundError("op", "User not found"), "fallback"); got != "User not found" {
		t.Errorf("got %q, want User not found", got)
	}
	if got := PublicMessage(errors.New("boom"), "fallback"); got != "fallback" {
		t.Errorf("plain error: got %q", got)
	}
	if !errors.Is(err, ErrStorage) {
		t.Error("storage error should match ErrStorage")
	}
}
