package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"civicdesk/internal/audit"
	id "civicdesk/pkg/domain"
	txcontext "civicdesk/pkg/platform/tx"
)

// Store persists entries in the activity_log table.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

const entryColumns = `id, timestamp, actor_id, actor_name, action, target_type, target_id,
	details, ip_address, user_agent, request_id, is_sensitive`

func (s *Store) Append(ctx context.Context, e audit.Entry) error {
	var actorID *uuid.UUID
	if e.ActorID != nil {
		u := uuid.UUID(*e.ActorID)
		actorID = &u
	}
	_, err := txcontext.Exec(ctx, s.db).ExecContext(ctx, `
		INSERT INTO activity_log (`+entryColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		uuid.UUID(e.ID), e.Timestamp, actorID, e.ActorName, string(e.Action),
		e.TargetType, e.TargetID, e.Details, e.IPAddress, e.UserAgent, e.RequestID, e.IsSensitive,
	)
	if err != nil {
		return fmt.Errorf("insert activity log entry: %w", err)
	}
	return nil
}

func (s *Store) List(ctx context.Context, filter audit.Filter) ([]audit.Entry, error) {
	where, args := buildWhere(filter)
	query := `SELECT ` + entryColumns + ` FROM activity_log` + where + ` ORDER BY timestamp DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query activity log: %w", err)
	}
	defer rows.Close()

	var entries []audit.Entry
	for rows.Next() {
		var (
			e       audit.Entry
			entryID uuid.UUID
			actorID uuid.NullUUID
			action  string
		)
		if err := rows.Scan(&entryID, &e.Timestamp, &actorID, &e.ActorName, &action, &e.TargetType,
			&e.TargetID, &e.Details, &e.IPAddress, &e.UserAgent, &e.RequestID, &e.IsSensitive); err != nil {
			return nil, fmt.Errorf("scan activity log entry: %w", err)
		}
		e.ID = id.EntryID(entryID)
		e.Action = audit.Action(action)
		if actorID.Valid {
			uid := id.UserID(actorID.UUID)
			e.ActorID = &uid
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *Store) Count(ctx context.Context, filter audit.Filter) (int, error) {
	where, args := buildWhere(filter)
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM activity_log`+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count activity log: %w", err)
	}
	return n, nil
}

func (s *Store) Clear(ctx context.Context) (int, error) {
	res, err := txcontext.Exec(ctx, s.db).ExecContext(ctx, `DELETE FROM activity_log`)
	if err != nil {
		return 0, fmt.Errorf("clear activity log: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// DeleteOlderThan removes entries strictly before cutoff.
func (s *Store) DeleteOlderThan(ctx context.Context, cutoff time.Time, dryRun bool) (int, error) {
	if dryRun {
		var n int
		err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM activity_log WHERE timestamp < $1`, cutoff).Scan(&n)
		if err != nil {
			return 0, fmt.Errorf("count expired activity log: %w", err)
		}
		return n, nil
	}
	res, err := txcontext.Exec(ctx, s.db).ExecContext(ctx, `DELETE FROM activity_log WHERE timestamp < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete expired activity log: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func buildWhere(f audit.Filter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.ActorID != nil {
		add("actor_id = $%d", uuid.UUID(*f.ActorID))
	}
	if f.Action != "" {
		add("action = $%d", string(f.Action))
	}
	if f.TargetType != "" {
		add("target_type = $%d", f.TargetType)
	}
	if f.TargetID != "" {
		add("target_id = $%d", f.TargetID)
	}
	if !f.From.IsZero() {
		add("timestamp >= $%d", f.From)
	}
	if !f.To.IsZero() {
		add("timestamp < $%d", f.To)
	}
	if f.Sensitive != nil {
		add("is_sensitive = $%d", *f.Sensitive)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}
