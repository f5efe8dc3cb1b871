// Package postgres persists accounts in the users table and second-factor
// challenges in two_factor_challenges.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"civicdesk/internal/auth"
	"civicdesk/internal/platform/postgres"
	id "civicdesk/pkg/domain"
	"civicdesk/pkg/platform/sentinel"
	txcontext "civicdesk/pkg/platform/tx"
)

type UserStore struct {
	db *sql.DB
}

func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db}
}

const userColumns = `id, username, email, display_name, password_hash, role, two_factor,
	failed_attempts, locked_until, last_login_at, created_at, updated_at`

func (s *UserStore) Create(ctx context.Context, u *auth.User) error {
	_, err := txcontext.Exec(ctx, s.db).ExecContext(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		uuid.UUID(u.ID), u.Username, u.Email, u.DisplayName, u.PasswordHash, u.Role, u.TwoFactor,
		u.FailedAttempts, u.LockedUntil, u.LastLoginAt, u.CreatedAt, u.UpdatedAt,
	)
	if postgres.IsUniqueViolation(err) {
		return sentinel.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *UserStore) FindByID(ctx context.Context, userID id.UserID) (*auth.User, error) {
	return s.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, uuid.UUID(userID))
}

func (s *UserStore) FindByUsername(ctx context.Context, username string) (*auth.User, error) {
	return s.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE lower(username) = lower($1)`, username)
}

func (s *UserStore) findOne(ctx context.Context, query string, arg any) (*auth.User, error) {
	var (
		u      auth.User
		userID uuid.UUID
	)
	err := txcontext.Exec(ctx, s.db).QueryRowContext(ctx, query, arg).Scan(
		&userID, &u.Username, &u.Email, &u.DisplayName, &u.PasswordHash, &u.Role, &u.TwoFactor,
		&u.FailedAttempts, &u.LockedUntil, &u.LastLoginAt, &u.CreatedAt, &u.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	u.ID = id.UserID(userID)
	return &u, nil
}

func (s *UserStore) Update(ctx context.Context, u *auth.User) error {
	res, err := txcontext.Exec(ctx, s.db).ExecContext(ctx, `
		UPDATE users SET email = $2, display_name = $3, password_hash = $4, role = $5, two_factor = $6,
			failed_attempts = $7, locked_until = $8, last_login_at = $9, updated_at = $10
		WHERE id = $1`,
		uuid.UUID(u.ID), u.Email, u.DisplayName, u.PasswordHash, u.Role, u.TwoFactor,
		u.FailedAttempts, u.LockedUntil, u.LastLoginAt, u.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

type ChallengeStore struct {
	db *sql.DB
}

func NewChallengeStore(db *sql.DB) *ChallengeStore {
	return &ChallengeStore{db: db}
}

func (s *ChallengeStore) Create(ctx context.Context, c *auth.Challenge) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO two_factor_challenges (id, user_id, code_hash, expires_at, used, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		uuid.UUID(c.ID), uuid.UUID(c.UserID), c.CodeHash, c.ExpiresAt, c.Used, c.CreatedAt,
	)
	if postgres.IsUniqueViolation(err) {
		return sentinel.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert challenge: %w", err)
	}
	return nil
}

func (s *ChallengeStore) Get(ctx context.Context, challengeID id.SessionID) (*auth.Challenge, error) {
	var (
		c           auth.Challenge
		cid, userID uuid.UUID
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, code_hash, expires_at, used, created_at
		FROM two_factor_challenges WHERE id = $1`, uuid.UUID(challengeID),
	).Scan(&cid, &userID, &c.CodeHash, &c.ExpiresAt, &c.Used, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get challenge: %w", err)
	}
	c.ID = id.SessionID(cid)
	c.UserID = id.UserID(userID)
	return &c, nil
}

// MarkUsed flips used only when it is still false so two concurrent
// verifications cannot both succeed.
func (s *ChallengeStore) MarkUsed(ctx context.Context, challengeID id.SessionID) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE two_factor_challenges SET used = TRUE WHERE id = $1 AND NOT used`, uuid.UUID(challengeID))
	if err != nil {
		return fmt.Errorf("mark challenge used: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}
	var exists bool
	if err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM two_factor_challenges WHERE id = $1)`, uuid.UUID(challengeID),
	).Scan(&exists); err != nil {
		return fmt.Errorf("check challenge: %w", err)
	}
	if !exists {
		return sentinel.ErrNotFound
	}
	return sentinel.ErrAlreadyUsed
}
