package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/campuschat/internal/logger"
	"github.com/campuschat/internal/model"
)

// userCols is the column list scanned by scanUser.
const userCols = `id, first_name, last_name, email, role, student_id, teacher_id, department, is_online, last_seen_at, registered_at`

// refCols returns the UserRef columns of the users table aliased as alias.
func refCols(alias string) string {
	return alias + ".id, " + alias + ".first_name, " + alias + ".last_name, " + alias + ".role, " +
		alias + ".student_id, " + alias + ".teacher_id, " + alias + ".department, " + alias + ".email"
}

// UserRepository reads the user directory and owns its presence columns.
type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

func scanUser(s scanner, u *model.User) error {
	return s.Scan(&u.ID, &u.FirstName, &u.LastName, &u.Email, &u.Role, &u.StudentID, &u.TeacherID,
		&u.Department, &u.IsOnline, &u.LastSeenAt, &u.RegisteredAt)
}

// refDest returns scan targets for a UserRef in refCols order.
func refDest(r *model.UserRef) []any {
	return []any{&r.ID, &r.FirstName, &r.LastName, &r.Role, &r.StudentID, &r.TeacherID, &r.Department, &r.Email}
}

func (r *UserRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*model.User, error) {
	defer logger.DeferLogDuration("userRepo.GetByID", time.Now())()
	u := &model.User{}
	row := r.pool.QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE id = $1`, id)
	if err := scanUser(row, u); err != nil {
		if err := classify(err); err == ErrNotFound {
			return nil, err
		}
		return nil, fmt.Errorf("userRepo.GetByID: %w", err)
	}
	return u, nil
}

func (r *UserRepository) ListByRole(ctx context.Context, role model.Role) ([]model.User, error) {
	defer logger.DeferLogDuration("userRepo.ListByRole", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT `+userCols+` FROM users WHERE role = $1 ORDER BY last_name, first_name, id`, role)
	if err != nil {
		return nil, fmt.Errorf("userRepo.ListByRole query: %w", err)
	}
	defer rows.Close()

	users := make([]model.User, 0, 32)
	for rows.Next() {
		var u model.User
		if err := scanUser(rows, &u); err != nil {
			return nil, fmt.Errorf("userRepo.ListByRole scan: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("userRepo.ListByRole rows: %w", err)
	}
	return users, nil
}

// ListAll returns the whole directory, most recently registered first.
func (r *UserRepository) ListAll(ctx context.Context) ([]model.User, error) {
	defer logger.DeferLogDuration("userRepo.ListAll", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT `+userCols+` FROM users ORDER BY registered_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("userRepo.ListAll query: %w", err)
	}
	defer rows.Close()

	users := make([]model.User, 0, 32)
	for rows.Next() {
		var u model.User
		if err := scanUser(rows, &u); err != nil {
			return nil, fmt.Errorf("userRepo.ListAll scan: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("userRepo.ListAll rows: %w", err)
	}
	return users, nil
}

// SetOnline flips the presence flag and stamps last_seen_at.
func (r *UserRepository) SetOnline(ctx context.Context, userID string, online bool) error {
	defer logger.DeferLogDuration("userRepo.SetOnline", time.Now())()
	tag, err := r.pool.Exec(ctx,
		`UPDATE users SET is_online = $1, last_seen_at = $2 WHERE id = $3`,
		online, time.Now().UTC(), userID,
	)
	if err != nil {
		return fmt.Errorf("userRepo.SetOnline: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ResetPresence marks every user offline. Presence lives in process memory only, so after
// a restart nobody is connected.
func (r *UserRepository) ResetPresence(ctx context.Context) error {
	defer logger.DeferLogDuration("userRepo.ResetPresence", time.Now())()
	if _, err := r.pool.Exec(ctx, `UPDATE users SET is_online = false WHERE is_online`); err != nil {
		return fmt.Errorf("userRepo.ResetPresence: %w", err)
	}
	return nil
}

// UpsertUser inserts a directory entry or refreshes its profile columns. Presence columns
// are left alone on update.
func (r *UserRepository) UpsertUser(ctx context.Context, u *model.User) error {
	defer logger.DeferLogDuration("userRepo.UpsertUser", time.Now())()
	registered := u.RegisteredAt
	if registered.IsZero() {
		registered = time.Now().UTC()
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO users (id, first_name, last_name, email, role, student_id, teacher_id, department, registered_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (id) DO UPDATE SET
		     first_name = EXCLUDED.first_name,
		     last_name  = EXCLUDED.last_name,
		     email      = EXCLUDED.email,
		     role       = EXCLUDED.role,
		     student_id = EXCLUDED.student_id,
		     teacher_id = EXCLUDED.teacher_id,
		     department = EXCLUDED.department`,
		u.ID, u.FirstName, u.LastName, u.Email, u.Role, u.StudentID, u.TeacherID, u.Department, registered,
	)
	if err != nil {
		return fmt.Errorf("userRepo.UpsertUser: %w", err)
	}
	return nil
}
