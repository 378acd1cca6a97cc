package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/campuschat/internal/model"
	"github.com/campuschat/internal/storage"
	"github.com/campuschat/internal/storage/memory"
)

func newTestService(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	ctx := context.Background()
	users := []model.User{
		{ID: "s1", FirstName: "Ana", LastName: "Lopez", Role: model.RoleStudent, StudentID: "ST-1"},
		{ID: "s2", FirstName: "Ben", LastName: "Kim", Role: model.RoleStudent, StudentID: "ST-2"},
		{ID: "t1", FirstName: "Cara", LastName: "Diaz", Role: model.RoleTeacher, TeacherID: "TE-1", Department: "Math"},
		{ID: "t2", FirstName: "Dan", LastName: "Abel", Role: model.RoleTeacher, TeacherID: "TE-2", Department: "Art"},
	}
	for i := range users {
		if err := store.UpsertUser(ctx, &users[i]); err != nil {
			t.Fatalf("seed %s: %v", users[i].ID, err)
		}
	}
	svc := NewService(store, store, store, memory.NewHistoryCache(time.Minute), time.Second)
	return svc, store
}

func TestSend_PersistsAndUpdatesSession(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	m, err := svc.Send(ctx, "s1", "t1", "  hello  ")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if m.Body != "hello" {
		t.Errorf("body not trimmed: %q", m.Body)
	}
	if m.ID == "" || m.CreatedAt.IsZero() {
		t.Errorf("id/timestamp not assigned: %+v", m)
	}
	if m.Sender == nil || m.Sender.FirstName != "Ana" || m.Receiver == nil || m.Receiver.Department != "Math" {
		t.Errorf("display refs missing: sender=%+v receiver=%+v", m.Sender, m.Receiver)
	}

	sess, ok := store.Session(model.PairKey{StudentID: "s1", TeacherID: "t1"})
	if !ok {
		t.Fatal("session not created")
	}
	if sess.MessageCount != 1 || sess.UnreadCount != 1 || sess.LastMessage != "hello" || !sess.IsActive {
		t.Errorf("unexpected session %+v", sess)
	}
}

func TestSend_TeacherToStudentSharesSession(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	if _, err := svc.Send(ctx, "s1", "t1", "question"); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Send(ctx, "t1", "s1", "answer"); err != nil {
		t.Fatal(err)
	}
	sess, _ := store.Session(model.PairKey{StudentID: "s1", TeacherID: "t1"})
	if sess.MessageCount != 2 || sess.LastMessage != "answer" {
		t.Errorf("expected one shared session with 2 messages, got %+v", sess)
	}
	sessions, err := svc.Sessions(ctx, "t1")
	if err != nil {
		t.Fatal(err)
	}
	if len(sessions) != 1 {
		t.Errorf("expected exactly one session for t1, got %d", len(sessions))
	}
}

func TestSend_Rejections(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	cases := []struct {
		name           string
		from, to, body string
		kind           error
	}{
		{"empty body", "s1", "t1", "", ErrValidation},
		{"whitespace body", "s1", "t1", " \t\n ", ErrValidation},
		{"missing receiver", "s1", "", "hi", ErrValidation},
		{"unknown receiver", "s1", "nobody", "hi", ErrNotFound},
		{"unknown sender", "ghost", "t1", "hi", ErrNotFound},
		{"same role", "s1", "s2", "hi", ErrValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Send(ctx, tc.from, tc.to, tc.body)
			if !errors.Is(err, tc.kind) {
				t.Errorf("expected %v, got %v", tc.kind, err)
			}
		})
	}
	if n := store.MessageCount(); n != 0 {
		t.Errorf("rejected sends stored %d messages", n)
	}
	_, err := svc.Send(ctx, "s1", "t1", "")
	if got := PublicMessage(err, "fallback"); got != "Message cannot be empty" {
		t.Errorf("empty message text = %q", got)
	}
}

func TestSend_ConcurrentSendsCountExactly(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	const n = 50

	var wg sync.WaitGroup
	errs := make(chan error, 2*n)
	for i := 0; i < n; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_, err := svc.Send(ctx, "s1", "t1", fmt.Sprintf("from student %d", i))
			errs <- err
		}(i)
		go func(i int) {
			defer wg.Done()
			_, err := svc.Send(ctx, "t1", "s1", fmt.Sprintf("from teacher %d", i))
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent send: %v", err)
		}
	}

	sess, _ := store.Session(model.PairKey{StudentID: "s1", TeacherID: "t1"})
	if sess.MessageCount != 2*n || sess.UnreadCount != 2*n {
		t.Errorf("counts after %d sends: message=%d unread=%d", 2*n, sess.MessageCount, sess.UnreadCount)
	}

	msgs, err := svc.Messages(ctx, "s1", "t1")
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2*n {
		t.Fatalf("history has %d messages, want %d", len(msgs), 2*n)
	}
	for i := 1; i < len(msgs); i++ {
		if msgs[i].CreatedAt.Before(msgs[i-1].CreatedAt) {
			t.Fatalf("history out of order at %d", i)
		}
	}
	if last := msgs[len(msgs)-1]; last.Body != sess.LastMessage {
		t.Errorf("last message %q does not match session %q", last.Body, sess.LastMessage)
	}
}

func TestMarkRead_IdempotentAndDirectional(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := svc.Send(ctx, "s1", "t1", "ping"); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := svc.Send(ctx, "t1", "s1", "pong"); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 2; i++ {
		if err := svc.MarkRead(ctx, "t1", "s1"); err != nil {
			t.Fatalf("MarkRead #%d: %v", i, err)
		}
	}

	sess, _ := store.Session(model.PairKey{StudentID: "s1", TeacherID: "t1"})
	if sess.UnreadCount != 0 {
		t.Errorf("unread = %d after mark read", sess.UnreadCount)
	}
	msgs, _ := svc.Messages(ctx, "s1", "t1")
	for _, m := range msgs {
		if m.SenderID == "s1" && !m.Read {
			t.Errorf("message %s to the reader still unread", m.ID)
		}
		if m.SenderID == "t1" && m.Read {
			t.Errorf("message %s from the reader was marked read", m.ID)
		}
	}
}

func TestMarkRead_NoSessionIsHarmless(t *testing.T) {
	svc, _ := newTestService(t)
	if err := svc.MarkRead(context.Background(), "s2", "t2"); err != nil {
		t.Errorf("expected nil for a pair without messages, got %v", err)
	}
	if err := svc.MarkRead(context.Background(), "s2", "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestMessages_CacheSeesNewWrites(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	if _, err := svc.Send(ctx, "s1", "t1", "one"); err != nil {
		t.Fatal(err)
	}
	first, err := svc.Messages(ctx, "t1", "s1")
	if err != nil || len(first) != 1 {
		t.Fatalf("first read: %v len=%d", err, len(first))
	}
	if _, err := svc.Send(ctx, "t1", "s1", "two"); err != nil {
		t.Fatal(err)
	}
	second, err := svc.Messages(ctx, "s1", "t1")
	if err != nil {
		t.Fatal(err)
	}
	if len(second) != 2 || second[1].Body != "two" {
		t.Errorf("stale history after send: %+v", second)
	}
}

func TestContacts_OppositeRoleWithSessionSummary(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	if _, err := svc.Send(ctx, "t1", "s1", "see me after class"); err != nil {
		t.Fatal(err)
	}

	contacts, err := svc.Contacts(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if len(contacts) != 2 {
		t.Fatalf("student should see 2 teachers, got %d", len(contacts))
	}
	byID := map[string]model.Contact{}
	for _, c := range contacts {
		if c.Role != model.RoleTeacher {
			t.Errorf("contact %s has role %s", c.ID, c.Role)
		}
		byID[c.ID] = c
	}
	t1 := byID["t1"]
	if t1.UnreadCount != 1 || t1.LastMessage == nil || *t1.LastMessage != "see me after class" {
		t.Errorf("t1 summary wrong: %+v", t1)
	}
	t2 := byID["t2"]
	if t2.UnreadCount != 0 || t2.LastMessage != nil {
		t.Errorf("t2 should have no summary: %+v", t2)
	}

	if _, err := svc.Contacts(ctx, "nobody"); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown user: %v", err)
	}
}

func TestSessions_MostRecentFirst(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	if _, err := svc.Send(ctx, "s1", "t1", "older"); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Send(ctx, "s1", "t2", "newer"); err != nil {
		t.Fatal(err)
	}
	sessions, err := svc.Sessions(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if len(sessions) != 2 {
		t.Fatalf("got %d sessions", len(sessions))
	}
	if sessions[0].TeacherID != "t2" || sessions[1].TeacherID != "t1" {
		t.Errorf("order = %s, %s", sessions[0].TeacherID, sessions[1].TeacherID)
	}
	if sessions[0].Teacher == nil || sessions[0].Student == nil {
		t.Error("session refs not populated")
	}
}

func TestUsers_FilterByRole(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	all, err := svc.Users(ctx, "")
	if err != nil || len(all) != 4 {
		t.Fatalf("all users: %v len=%d", err, len(all))
	}
	teachers, err := svc.Users(ctx, model.RoleTeacher)
	if err != nil || len(teachers) != 2 {
		t.Fatalf("teachers: %v len=%d", err, len(teachers))
	}
	if _, err := svc.Users(ctx, "admin"); !errors.Is(err, ErrValidation) {
		t.Errorf("bad role filter: %v", err)
	}
}

type failingLog struct{ MessageLog }

func (failingLog) Append(context.Context, *model.Message, model.PairKey) (*model.ChatSession, error) {
	return nil, errors.New("connection reset by peer")
}

func TestSend_StorageFailureIsReportedWithoutDetail(t *testing.T) {
	_, store := newTestService(t)
	svc := NewService(store, failingLog{store}, store, nil, time.Second)
	_, err := svc.Send(context.Background(), "s1", "t1", "hi")
	if !errors.Is(err, ErrStorage) {
		t.Fatalf("expected storage error, got %v", err)
	}
	if msg := PublicMessage(err, "x"); strings.Contains(msg, "reset") {
		t.Errorf("driver detail leaked: %q", msg)
	}
}

type conflictingLog struct{ MessageLog }

func (conflictingLog) Append(context.Context, *model.Message, model.PairKey) (*model.ChatSession, error) {
	return nil, errors.Join(storage.ErrConflict, errors.New("duplicate key value"))
}

func TestSend_ConflictKeepsItsKind(t *testing.T) {
	_, store := newTestService(t)
	svc := NewService(store, conflictingLog{store}, store, nil, time.Second)
	_, err := svc.Send(context.Background(), "s1", "t1", "hi")
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if msg := PublicMessage(err, "x"); msg != msgSendFailed {
		t.Errorf("public message = %q", msg)
	}
}
