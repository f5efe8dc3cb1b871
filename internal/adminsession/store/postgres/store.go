package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"civicdesk/internal/adminsession"
	id "civicdesk/pkg/domain"
	txcontext "civicdesk/pkg/platform/tx"
)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

const columns = `id, user_id, username, ip_address, user_agent, created_at, last_seen`

// Touch relies on the (user_id, ip_address) unique key so concurrent
// heartbeats converge on one row.
func (s *Store) Touch(ctx context.Context, beat adminsession.Beat) (*adminsession.Session, error) {
	row := txcontext.Exec(ctx, s.db).QueryRowContext(ctx, `
		INSERT INTO admin_sessions (`+columns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (user_id, ip_address) DO UPDATE SET
			username = EXCLUDED.username,
			user_agent = EXCLUDED.user_agent,
			last_seen = EXCLUDED.last_seen
		RETURNING `+columns,
		uuid.UUID(id.NewSessionID()), uuid.UUID(beat.UserID), beat.Username, beat.IPAddress, beat.UserAgent, beat.At,
	)
	sess, err := scan(row)
	if err != nil {
		return nil, fmt.Errorf("touch admin session: %w", err)
	}
	return sess, nil
}

func (s *Store) List(ctx context.Context, limit, offset int) ([]*adminsession.Session, int, error) {
	exec := txcontext.Exec(ctx, s.db)
	var total int
	if err := exec.QueryRowContext(ctx, `SELECT COUNT(*) FROM admin_sessions`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count admin sessions: %w", err)
	}
	rows, err := exec.QueryContext(ctx, `SELECT `+columns+` FROM admin_sessions ORDER BY last_seen DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list admin sessions: %w", err)
	}
	defer rows.Close()
	out := []*adminsession.Session{}
	for rows.Next() {
		sess, err := scan(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, sess)
	}
	return out, total, rows.Err()
}

func (s *Store) Count(ctx context.Context, seenSince time.Time) (adminsession.Counts, error) {
	var c adminsession.Counts
	err := txcontext.Exec(ctx, s.db).QueryRowContext(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE last_seen >= $1) FROM admin_sessions`, seenSince,
	).Scan(&c.Total, &c.Active)
	if err != nil {
		return c, fmt.Errorf("count admin sessions: %w", err)
	}
	return c, nil
}

func (s *Store) DeleteOlderThan(ctx context.Context, cutoff time.Time, dryRun bool) (int, error) {
	exec := txcontext.Exec(ctx, s.db)
	if dryRun {
		var n int
		if err := exec.QueryRowContext(ctx, `SELECT COUNT(*) FROM admin_sessions WHERE last_seen < $1`, cutoff).Scan(&n); err != nil {
			return 0, fmt.Errorf("count stale admin sessions: %w", err)
		}
		return n, nil
	}
	res, err := exec.ExecContext(ctx, `DELETE FROM admin_sessions WHERE last_seen < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete stale admin sessions: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(row scanner) (*adminsession.Session, error) {
	var (
		sess           adminsession.Session
		sessID, userID uuid.UUID
	)
	if err := row.Scan(&sessID, &userID, &sess.Username, &sess.IPAddress, &sess.UserAgent, &sess.CreatedAt, &sess.LastSeen); err != nil {
		return nil, fmt.Errorf("scan admin session: %w", err)
	}
	sess.ID = id.SessionID(sessID)
	sess.UserID = id.UserID(userID)
	return &sess, nil
}
