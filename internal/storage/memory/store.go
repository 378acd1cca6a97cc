package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/campuschat/internal/model"
	"github.com/campuschat/internal/storage"
)

// Store keeps users, messages and chat sessions in process memory. One mutex covers all
// three so that message append and session upsert are a single atomic step, the same
// guarantee the Postgres repositories get from a transaction.
type Store struct {
	mu       sync.RWMutex
	users    map[string]*model.User
	messages []model.Message
	ids      map[string]struct{}
	sessions map[model.PairKey]*model.ChatSession
	seq      int64
	lastAt   time.Time
	now      func() time.Time
}

func NewStore() *Store {
	return &Store{
		users:    make(map[string]*model.User),
		ids:      make(map[string]struct{}),
		sessions: make(map[model.PairKey]*model.ChatSession),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) Ping(ctx context.Context) error { return nil }

func (s *Store) Close() error { return nil }

// UpsertUser inserts or replaces a directory entry, keeping its presence columns.
func (s *Store) UpsertUser(ctx context.Context, u *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *u
	if prev, ok := s.users[u.ID]; ok {
		cp.IsOnline = prev.IsOnline
		cp.LastSeenAt = prev.LastSeenAt
		if cp.RegisteredAt.IsZero() {
			cp.RegisteredAt = prev.RegisteredAt
		}
	}
	if cp.RegisteredAt.IsZero() {
		cp.RegisteredAt = s.now()
	}
	s.users[u.ID] = &cp
	return nil
}

func (s *Store) GetByID(ctx context.Context, id string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *Store) ListByRole(ctx context.Context, role model.Role) ([]model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.User, 0, len(s.users))
	for _, u := range s.users {
		if u.Role == role {
			out = append(out, *u)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LastName != out[j].LastName {
			return out[i].LastName < out[j].LastName
		}
		if out[i].FirstName != out[j].FirstName {
			return out[i].FirstName < out[j].FirstName
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) ListAll(ctx context.Context) ([]model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].RegisteredAt.Equal(out[j].RegisteredAt) {
			return out[i].RegisteredAt.After(out[j].RegisteredAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) SetOnline(ctx context.Context, userID string, online bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return storage.ErrNotFound
	}
	u.IsOnline = online
	u.LastSeenAt = s.now()
	return nil
}

// ResetPresence marks everybody offline; called once at start.
func (s *Store) ResetPresence(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		u.IsOnline = false
	}
	return nil
}

// Append stores m, assigning Seq and clamping CreatedAt so that timestamps never go
// backwards, then creates or bumps the session for key.
func (s *Store) Append(ctx context.Context, m *model.Message, key model.PairKey) (*model.ChatSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, dup := s.ids[m.ID]; dup {
		return nil, storage.ErrConflict
	}
	s.seq++
	m.Seq = s.seq
	if m.CreatedAt.IsZero() {
		m.CreatedAt = s.now()
	}
	if m.CreatedAt.Before(s.lastAt) {
		m.CreatedAt = s.lastAt
	}
	s.lastAt = m.CreatedAt
	m.Read = false

	stored := *m
	stored.Sender, stored.Receiver = nil, nil
	s.messages = append(s.messages, stored)
	s.ids[m.ID] = struct{}{}

	sess, ok := s.sessions[key]
	if !ok {
		sess = &model.ChatSession{
			ID:        uuid.New().String(),
			StudentID: key.StudentID,
			TeacherID: key.TeacherID,
			IsActive:  true,
			CreatedAt: m.CreatedAt,
		}
		s.sessions[key] = sess
	}
	sess.MessageCount++
	sess.UnreadCount++
	if m.Seq > sess.LastMessageSeq {
		sess.LastMessage = m.Body
		sess.LastMessageTime = m.CreatedAt
		sess.LastMessageSeq = m.Seq
	}
	sess.UpdatedAt = m.CreatedAt

	cp := *sess
	return &cp, nil
}

func (s *Store) MarkRead(ctx context.Context, readerID, otherID string, key model.PairKey) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.messages {
		m := &s.messages[i]
		if m.SenderID == otherID && m.ReceiverID == readerID && !m.Read {
			m.Read = true
		}
	}
	if sess, ok := s.sessions[key]; ok {
		sess.UnreadCount = 0
		sess.UpdatedAt = s.now()
	}
	return nil
}

func (s *Store) ListBetween(ctx context.Context, a, b string) ([]model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Message, 0, 32)
	for _, m := range s.messages {
		if (m.SenderID == a && m.ReceiverID == b) || (m.SenderID == b && m.ReceiverID == a) {
			m.Sender = s.refLocked(m.SenderID)
			m.Receiver = s.refLocked(m.ReceiverID)
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *Store) ListForUser(ctx context.Context, userID string) ([]model.ChatSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.ChatSession, 0, 8)
	for key, sess := range s.sessions {
		if !sess.IsActive || !key.Has(userID) {
			continue
		}
		cp := *sess
		cp.Student = s.refLocked(key.StudentID)
		cp.Teacher = s.refLocked(key.TeacherID)
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastMessageTime.Equal(out[j].LastMessageTime) {
			return out[i].LastMessageTime.After(out[j].LastMessageTime)
		}
		return out[i].LastMessageSeq > out[j].LastMessageSeq
	})
	return out, nil
}

// Session returns the summary for key. Used by tests and the dev console.
func (s *Store) Session(key model.PairKey) (model.ChatSession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[key]
	if !ok {
		return model.ChatSession{}, false
	}
	return *sess, true
}

// MessageCount returns the number of stored messages.
func (s *Store) MessageCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

func (s *Store) refLocked(id string) *model.UserRef {
	u, ok := s.users[id]
	if !ok {
		return nil
	}
	return u.Ref()
}
