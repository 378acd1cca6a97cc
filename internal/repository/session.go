package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/campuschat/internal/logger"
	"github.com/campuschat/internal/model"
)

const sessionCols = `id, student_id, teacher_id, last_message, last_message_time, last_message_seq,
    unread_count, message_count, is_active, created_at, updated_at`

func sessionDest(s *model.ChatSession) []any {
	return []any{&s.ID, &s.StudentID, &s.TeacherID, &s.LastMessage, &s.LastMessageTime, &s.LastMessageSeq,
		&s.UnreadCount, &s.MessageCount, &s.IsActive, &s.CreatedAt, &s.UpdatedAt}
}

func scanSession(row scanner, s *model.ChatSession) error {
	return row.Scan(sessionDest(s)...)
}

// SessionRepository serves the per-pair summaries. Writes happen in MessageRepository.
type SessionRepository struct {
	pool *pgxpool.Pool
}

func NewSessionRepository(pool *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

// ListForUser returns the user's active sessions with both participants populated, most
// recent conversation first.
func (r *SessionRepository) ListForUser(ctx context.Context, userID string) ([]model.ChatSession, error) {
	defer logger.DeferLogDuration("sessionRepo.ListForUser", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT cs.id, cs.student_id, cs.teacher_id, cs.last_message, cs.last_message_time, cs.last_message_seq,
		        cs.unread_count, cs.message_count, cs.is_active, cs.created_at, cs.updated_at,
		        `+refCols("su")+`,
		        `+refCols("tu")+`
		 FROM chat_sessions cs
		 JOIN users su ON su.id = cs.student_id
		 JOIN users tu ON tu.id = cs.teacher_id
		 WHERE (cs.student_id = $1 OR cs.teacher_id = $1) AND cs.is_active
		 ORDER BY cs.last_message_time DESC, cs.last_message_seq DESC`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("sessionRepo.ListForUser query: %w", err)
	}
	defer rows.Close()

	sessions := make([]model.ChatSession, 0, 16)
	for rows.Next() {
		var s model.ChatSession
		student, teacher := &model.UserRef{}, &model.UserRef{}
		dest := sessionDest(&s)
		dest = append(dest, refDest(student)...)
		dest = append(dest, refDest(teacher)...)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("sessionRepo.ListForUser scan: %w", err)
		}
		s.Student, s.Teacher = student, teacher
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sessionRepo.ListForUser rows: %w", err)
	}
	return sessions, nil
}

// GetByPair returns the session for key or ErrNotFound.
func (r *SessionRepository) GetByPair(ctx context.Context, key model.PairKey) (*model.ChatSession, error) {
	defer logger.DeferLogDuration("sessionRepo.GetByPair", time.Now())()
	s := &model.ChatSession{}
	row := r.pool.QueryRow(ctx,
		`SELECT `+sessionCols+` FROM chat_sessions WHERE student_id = $1 AND teacher_id = $2`,
		key.StudentID, key.TeacherID)
	if err := scanSession(row, s); err != nil {
		if err := classify(err); err == ErrNotFound {
			return nil, err
		}
		return nil, fmt.Errorf("sessionRepo.GetByPair: %w", err)
	}
	return s, nil
}
