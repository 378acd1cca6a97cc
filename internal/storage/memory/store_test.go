package memory

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/campuschat/internal/model"
	"github.com/campuschat/internal/storage"
)

var pair = model.PairKey{StudentID: "s1", TeacherID: "t1"}

func seeded(t *testing.T) *Store {
	t.Helper()
	s := NewStore()
	for _, u := range []model.User{
		{ID: "s1", FirstName: "Ana", Role: model.RoleStudent},
		{ID: "t1", FirstName: "Cara", Role: model.RoleTeacher},
	} {
		if err := s.UpsertUser(context.Background(), &u); err != nil {
			t.Fatal(err)
		}
	}
	return s
}

func TestAppend_DuplicateIDIsConflict(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()
	m := &model.Message{ID: "m1", SenderID: "s1", ReceiverID: "t1", Body: "a"}
	if _, err := s.Append(ctx, m, pair); err != nil {
		t.Fatal(err)
	}
	dup := &model.Message{ID: "m1", SenderID: "s1", ReceiverID: "t1", Body: "b"}
	if _, err := s.Append(ctx, dup, pair); !errors.Is(err, storage.ErrConflict) {
		t.Errorf("expected conflict, got %v", err)
	}
	if sess, _ := s.Session(pair); sess.MessageCount != 1 {
		t.Errorf("conflicting append changed the session: %+v", sess)
	}
}

func TestAppend_TimestampsNeverGoBack(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()
	now := time.Now().UTC()
	first := &model.Message{ID: "m1", SenderID: "s1", ReceiverID: "t1", Body: "first", CreatedAt: now}
	late := &model.Message{ID: "m2", SenderID: "t1", ReceiverID: "s1", Body: "second", CreatedAt: now.Add(-time.Minute)}
	if _, err := s.Append(ctx, first, pair); err != nil {
		t.Fatal(err)
	}
	sess, err := s.Append(ctx, late, pair)
	if err != nil {
		t.Fatal(err)
	}
	if late.CreatedAt.Before(first.CreatedAt) {
		t.Errorf("timestamp went backwards: %v < %v", late.CreatedAt, first.CreatedAt)
	}
	if sess.LastMessage != "second" || late.Seq <= first.Seq {
		t.Errorf("last message %q seq %d/%d", sess.LastMessage, first.Seq, late.Seq)
	}
}

func TestAppend_ConcurrentCounters(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m := &model.Message{ID: strings.Repeat("x", i+1), SenderID: "s1", ReceiverID: "t1", Body: "hi"}
			if _, err := s.Append(ctx, m, pair); err != nil {
				t.Error(err)
			}
		}(i)
	}
	wg.Wait()
	sess, _ := s.Session(pair)
	if sess.MessageCount != 100 || sess.UnreadCount != 100 || s.MessageCount() != 100 {
		t.Errorf("session %+v messages %d", sess, s.MessageCount())
	}
}

func TestUpsertUser_KeepsPresence(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()
	if err := s.SetOnline(ctx, "s1", true); err != nil {
		t.Fatal(err)
	}
	if err := s.UpsertUser(ctx, &model.User{ID: "s1", FirstName: "Anna", Role: model.RoleStudent}); err != nil {
		t.Fatal(err)
	}
	u, _ := s.GetByID(ctx, "s1")
	if !u.IsOnline || u.FirstName != "Anna" {
		t.Errorf("user %+v", u)
	}
	if err := s.ResetPresence(ctx); err != nil {
		t.Fatal(err)
	}
	if u, _ := s.GetByID(ctx, "s1"); u.IsOnline {
		t.Error("presence not reset")
	}
	if err := s.SetOnline(ctx, "ghost", true); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("SetOnline unknown: %v", err)
	}
}

func TestListForUser_SkipsOtherPairs(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()
	if err := s.UpsertUser(ctx, &model.User{ID: "t2", Role: model.RoleTeacher}); err != nil {
		t.Fatal(err)
	}
	if err := s.UpsertUser(ctx, &model.User{ID: "s2", Role: model.RoleStudent}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Append(ctx, &model.Message{ID: "a", SenderID: "s1", ReceiverID: "t1", Body: "x"}, pair); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Append(ctx, &model.Message{ID: "b", SenderID: "s2", ReceiverID: "t2", Body: "y"},
		model.PairKey{StudentID: "s2", TeacherID: "t2"}); err != nil {
		t.Fatal(err)
	}
	got, _ := s.ListForUser(ctx, "t1")
	if len(got) != 1 || got[0].StudentID != "s1" || got[0].Student == nil {
		t.Errorf("sessions %+v", got)
	}
}

func TestHistoryCache_DirtyWindowBlocksStaleSet(t *testing.T) {
	c := NewHistoryCache(time.Minute)
	ctx := context.Background()
	stale := []model.Message{{ID: "old"}}

	if err := c.Set(ctx, "a", "b", stale); err != nil {
		t.Fatal(err)
	}
	if got, ok, _ := c.Get(ctx, "b", "a"); !ok || len(got) != 1 {
		t.Fatalf("reverse key lookup failed: ok=%v %v", ok, got)
	}

	if err := c.Invalidate(ctx, "a", "b"); err != nil {
		t.Fatal(err)
	}
	if err := c.Set(ctx, "a", "b", stale); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := c.Get(ctx, "a", "b"); ok {
		t.Error("set inside the dirty window repopulated the cache")
	}
}
