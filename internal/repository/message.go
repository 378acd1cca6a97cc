package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/campuschat/internal/logger"
	"github.com/campuschat/internal/model"
)

// MessageRepository is the durable message log. Writes that touch a pair's ChatSession run
// in the same transaction as the message rows they change.
type MessageRepository struct {
	pool *pgxpool.Pool
}

func NewMessageRepository(pool *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{pool: pool}
}

// lockSessionSQL creates the pair's session if needed and takes its row lock, so appends on
// one pair run one after another until commit. It returns the latest stored message time.
const lockSessionSQL = `
INSERT INTO chat_sessions AS cs (id, student_id, teacher_id, last_message_time, created_at, updated_at)
VALUES ($1, $2, $3, '-infinity', $4, $4)
ON CONFLICT (student_id, teacher_id) DO UPDATE SET is_active = cs.is_active
RETURNING cs.last_message_time`

const bumpSessionSQL = `
UPDATE chat_sessions SET
    unread_count      = unread_count + 1,
    message_count     = message_count + 1,
    last_message      = $3,
    last_message_time = $4,
    last_message_seq  = $5,
    is_active         = true,
    updated_at        = $4
WHERE student_id = $1 AND teacher_id = $2
RETURNING ` + sessionCols

// Append inserts m and bumps the session for key. m.Seq is taken from the stored row and
// m.CreatedAt is clamped so that it never precedes the pair's previous message. A primary
// key collision is retried once with a fresh id.
func (r *MessageRepository) Append(ctx context.Context, m *model.Message, key model.PairKey) (*model.ChatSession, error) {
	defer logger.DeferLogDuration("msgRepo.Append", time.Now())()
	sess, err := r.append(ctx, m, key)
	if errors.Is(err, ErrConflict) {
		logger.Warnf("msgRepo.Append: id collision on %s, retrying", m.ID)
		m.ID = uuid.New().String()
		sess, err = r.append(ctx, m, key)
	}
	if err != nil {
		return nil, fmt.Errorf("msgRepo.Append: %w", err)
	}
	return sess, nil
}

func (r *MessageRepository) append(ctx context.Context, m *model.Message, key model.PairKey) (*model.ChatSession, error) {
	stamp := m.CreatedAt
	if stamp.IsZero() {
		stamp = time.Now().UTC()
	}
	// Postgres keeps microseconds.
	stamp = stamp.Truncate(time.Microsecond)

	sess := &model.ChatSession{}
	var createdAt time.Time
	var seq int64
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var prev pgtype.Timestamptz
		if err := tx.QueryRow(ctx, lockSessionSQL,
			uuid.New().String(), key.StudentID, key.TeacherID, stamp,
		).Scan(&prev); err != nil {
			return fmt.Errorf("lock session: %w", classify(err))
		}
		at := stamp
		if prev.Valid && prev.InfinityModifier == pgtype.Finite && at.Before(prev.Time) {
			at = prev.Time
		}

		if err := tx.QueryRow(ctx,
			`INSERT INTO messages (id, sender_id, receiver_id, body, is_read, created_at)
			 VALUES ($1, $2, $3, $4, false, $5)
			 RETURNING seq, created_at`,
			m.ID, m.SenderID, m.ReceiverID, m.Body, at,
		).Scan(&seq, &createdAt); err != nil {
			return classify(err)
		}

		row := tx.QueryRow(ctx, bumpSessionSQL, key.StudentID, key.TeacherID, m.Body, createdAt, seq)
		if err := scanSession(row, sess); err != nil {
			return fmt.Errorf("bump session: %w", classify(err))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	// m is only touched once the transaction committed, so a retry starts from the caller's values.
	m.Seq, m.CreatedAt, m.Read = seq, createdAt, false
	return sess, nil
}

// MarkRead sets read on every unread message from otherID to readerID and zeroes the
// session's unread counter, in one transaction.
func (r *MessageRepository) MarkRead(ctx context.Context, readerID, otherID string, key model.PairKey) error {
	defer logger.DeferLogDuration("msgRepo.MarkRead", time.Now())()
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`UPDATE messages SET is_read = true
			 WHERE sender_id = $1 AND receiver_id = $2 AND NOT is_read`,
			otherID, readerID,
		); err != nil {
			return err
		}
		_, err := tx.Exec(ctx,
			`UPDATE chat_sessions SET unread_count = 0, updated_at = $3
			 WHERE student_id = $1 AND teacher_id = $2`,
			key.StudentID, key.TeacherID, time.Now().UTC(),
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("msgRepo.MarkRead: %w", err)
	}
	return nil
}

// ListBetween returns the pair's history oldest first; ties on created_at fall back to
// insertion order.
func (r *MessageRepository) ListBetween(ctx context.Context, a, b string) ([]model.Message, error) {
	defer logger.DeferLogDuration("msgRepo.ListBetween", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT m.id, m.seq, m.sender_id, m.receiver_id, m.body, m.is_read, m.created_at,
		        `+refCols("s")+`,
		        `+refCols("r")+`
		 FROM messages m
		 JOIN users s ON s.id = m.sender_id
		 JOIN users r ON r.id = m.receiver_id
		 WHERE (m.sender_id = $1 AND m.receiver_id = $2)
		    OR (m.sender_id = $2 AND m.receiver_id = $1)
		 ORDER BY m.created_at ASC, m.seq ASC`, a, b,
	)
	if err != nil {
		return nil, fmt.Errorf("msgRepo.ListBetween query: %w", err)
	}
	defer rows.Close()

	msgs := make([]model.Message, 0, 64)
	for rows.Next() {
		var m model.Message
		sender, receiver := &model.UserRef{}, &model.UserRef{}
		dest := []any{&m.ID, &m.Seq, &m.SenderID, &m.ReceiverID, &m.Body, &m.Read, &m.CreatedAt}
		dest = append(dest, refDest(sender)...)
		dest = append(dest, refDest(receiver)...)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("msgRepo.ListBetween scan: %w", err)
		}
		m.Sender, m.Receiver = sender, receiver
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("msgRepo.ListBetween rows: %w", err)
	}
	return msgs, nil
}
