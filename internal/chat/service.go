package chat

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/campuschat/internal/logger"
	"github.com/campuschat/internal/model"
	"github.com/campuschat/internal/storage"
)

// UserDirectory is the read side of the external user directory.
type UserDirectory interface {
	GetByID(ctx context.Context, id string) (*model.User, error)
	ListByRole(ctx context.Context, role model.Role) ([]model.User, error)
	ListAll(ctx context.Context) ([]model.User, error)
}

// MessageLog is the durable message store. Append and MarkRead update the pair's
// ChatSession in the same atomic step as the messages they write.
type MessageLog interface {
	Append(ctx context.Context, m *model.Message, key model.PairKey) (*model.ChatSession, error)
	MarkRead(ctx context.Context, readerID, otherID string, key model.PairKey) error
	ListBetween(ctx context.Context, a, b string) ([]model.Message, error)
}

// SessionDirectory lists the per-pair summaries.
type SessionDirectory interface {
	ListForUser(ctx context.Context, userID string) ([]model.ChatSession, error)
}

const (
	msgUserNotFound   = "User not found"
	msgEmptyMessage   = "Message cannot be empty"
	msgMissingUserIDs = "userId and otherUserId are required"
	msgSendFailed     = "Failed to send message"
	msgReadFailed     = "Failed to mark messages as read"
)

// Service holds the messaging rules shared by the websocket gateway and the query API.
type Service struct {
	users    UserDirectory
	messages MessageLog
	sessions SessionDirectory
	cache    storage.HistoryCache
	timeout  time.Duration
}

// NewService builds a Service. cache may be nil. timeout bounds each store round trip;
// zero means 5s.
func NewService(users UserDirectory, messages MessageLog, sessions SessionDirectory, cache storage.HistoryCache, timeout time.Duration) *Service {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Service{users: users, messages: messages, sessions: sessions, cache: cache, timeout: timeout}
}

// LookupUser resolves id in the directory.
func (s *Service) LookupUser(ctx context.Context, id string) (*model.User, error) {
	const op = "chat.LookupUser"
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, validationError(op, "userId is required")
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	u, err := s.users.GetByID(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, notFoundError(op, msgUserNotFound)
	}
	if err != nil {
		return nil, storageError(op, "Failed to load user", err)
	}
	return u, nil
}

// Users lists the directory, newest registration first. A non-empty role filters it.
func (s *Service) Users(ctx context.Context, role model.Role) ([]model.User, error) {
	const op = "chat.Users"
	if role != "" && !role.Valid() {
		return nil, validationError(op, "type must be student or teacher")
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	var (
		users []model.User
		err   error
	)
	if role == "" {
		users, err = s.users.ListAll(ctx)
	} else {
		users, err = s.users.ListByRole(ctx, role)
	}
	if err != nil {
		return nil, storageError(op, "Server error while fetching users", err)
	}
	return users, nil
}

func (s *Service) lookupPair(ctx context.Context, op, a, b string) (*model.User, *model.User, error) {
	if strings.TrimSpace(a) == "" || strings.TrimSpace(b) == "" {
		return nil, nil, validationError(op, msgMissingUserIDs)
	}
	ua, err := s.LookupUser(ctx, a)
	if err != nil {
		return nil, nil, err
	}
	ub, err := s.LookupUser(ctx, b)
	if err != nil {
		return nil, nil, err
	}
	return ua, ub, nil
}

// Send validates and persists one message, updating the pair's session in the same step.
// The returned message carries sender and receiver display fields.
func (s *Service) Send(ctx context.Context, senderID, receiverID, body string) (*model.Message, error) {
	const op = "chat.Send"
	defer logger.DeferLogDuration(op, time.Now())()

	body = strings.TrimSpace(body)
	if body == "" {
		return nil, validationError(op, msgEmptyMessage)
	}
	if strings.TrimSpace(senderID) == "" || strings.TrimSpace(receiverID) == "" {
		return nil, validationError(op, "senderId and receiverId are required")
	}
	sender, receiver, err := s.lookupPair(ctx, op, senderID, receiverID)
	if err != nil {
		return nil, err
	}
	key, err := pairKeyOf(sender, receiver)
	if err != nil {
		return nil, err
	}

	m := &model.Message{
		ID:         uuid.New().String(),
		SenderID:   sender.ID,
		ReceiverID: receiver.ID,
		Body:       body,
		CreatedAt:  time.Now().UTC(),
	}

	storeCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if _, err := s.messages.Append(storeCtx, m, key); err != nil {
		logger.Errorf("chat send sender=%s receiver=%s: %v", sender.ID, receiver.ID, err)
		return nil, storageError(op, msgSendFailed, err)
	}
	m.Sender = sender.Ref()
	m.Receiver = receiver.Ref()

	s.invalidate(ctx, sender.ID, receiver.ID)
	return m, nil
}

// MarkRead flags every unread message from otherID to userID as read and zeroes the pair's
// unread counter. Calling it again is harmless.
func (s *Service) MarkRead(ctx context.Context, userID, otherID string) error {
	const op = "chat.MarkRead"
	defer logger.DeferLogDuration(op, time.Now())()

	reader, other, err := s.lookupPair(ctx, op, userID, otherID)
	if err != nil {
		return err
	}
	key, err := pairKeyOf(reader, other)
	if err != nil {
		return err
	}

	storeCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.messages.MarkRead(storeCtx, reader.ID, other.ID, key); err != nil {
		logger.Errorf("chat mark read user=%s other=%s: %v", reader.ID, other.ID, err)
		return storageError(op, msgReadFailed, err)
	}
	s.invalidate(ctx, reader.ID, other.ID)
	return nil
}

// Contacts returns every user of the opposite role, each annotated with the caller's
// session summary for that pair.
func (s *Service) Contacts(ctx context.Context, userID string) ([]model.Contact, error) {
	const op = "chat.Contacts"
	defer logger.DeferLogDuration(op, time.Now())()

	user, err := s.LookupUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	storeCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	people, err := s.users.ListByRole(storeCtx, user.Role.Opposite())
	if err != nil {
		return nil, storageError(op, "Server error while fetching contacts", err)
	}
	sessions, err := s.sessions.ListForUser(storeCtx, user.ID)
	if err != nil {
		return nil, storageError(op, "Server error while fetching contacts", err)
	}

	byCounterpart := make(map[string]*model.ChatSession, len(sessions))
	for i := range sessions {
		byCounterpart[sessions[i].Key().Counterpart(user.ID)] = &sessions[i]
	}

	contacts := make([]model.Contact, 0, len(people))
	for i := range people {
		c := model.NewContact(&people[i])
		contacts = append(contacts, c.WithSession(byCounterpart[people[i].ID]))
	}
	return contacts, nil
}

// Messages returns the full history between userID and otherID, oldest first.
func (s *Service) Messages(ctx context.Context, userID, otherID string) ([]model.Message, error) {
	const op = "chat.Messages"
	defer logger.DeferLogDuration(op, time.Now())()

	user, other, err := s.lookupPair(ctx, op, userID, otherID)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		cached, ok, err := s.cache.Get(ctx, user.ID, other.ID)
		if err != nil {
			logger.Warnf("history cache get %s/%s: %v", user.ID, other.ID, err)
		} else if ok {
			return cached, nil
		}
	}

	storeCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	msgs, err := s.messages.ListBetween(storeCtx, user.ID, other.ID)
	if err != nil {
		return nil, storageError(op, "Server error while fetching messages", err)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, user.ID, other.ID, msgs); err != nil {
			logger.Warnf("history cache set %s/%s: %v", user.ID, other.ID, err)
		}
	}
	return msgs, nil
}

// Sessions returns the caller's active conversations, most recent first.
func (s *Service) Sessions(ctx context.Context, userID string) ([]model.ChatSession, error) {
	const op = "chat.Sessions"
	defer logger.DeferLogDuration(op, time.Now())()

	user, err := s.LookupUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	storeCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	sessions, err := s.sessions.ListForUser(storeCtx, user.ID)
	if err != nil {
		return nil, storageError(op, "Server error while fetching chat sessions", err)
	}
	return sessions, nil
}

func (s *Service) invalidate(ctx context.Context, a, b string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, a, b); err != nil {
		logger.Warnf("history cache invalidate %s/%s: %v", a, b, err)
	}
}
