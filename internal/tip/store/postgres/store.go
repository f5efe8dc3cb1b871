package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"civicdesk/internal/platform/postgres"
	"civicdesk/internal/tip"
	id "civicdesk/pkg/domain"
	"civicdesk/pkg/platform/sentinel"
	txcontext "civicdesk/pkg/platform/tx"
)

// Store persists tips in the tips table.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

const columns = `id, declaration_id, tipster_phone, description, is_read, is_useful, admin_notes,
	ip_address, created_at, reviewed_at, reviewed_by`

func (s *Store) Create(ctx context.Context, t *tip.Tip) error {
	_, err := txcontext.Exec(ctx, s.db).ExecContext(ctx, `
		INSERT INTO tips (`+columns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		uuid.UUID(t.ID), uuid.UUID(t.DeclarationID), t.TipsterPhone, t.Description, t.IsRead, t.IsUseful,
		t.AdminNotes, t.IPAddress, t.CreatedAt, t.ReviewedAt, reviewerArg(t.ReviewedBy),
	)
	if postgres.IsUniqueViolation(err) {
		return sentinel.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert tip: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, tipID id.TipID) (*tip.Tip, error) {
	t, err := scan(txcontext.Exec(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+columns+` FROM tips WHERE id = $1`, uuid.UUID(tipID)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	return t, err
}

func where(filter tip.ListFilter) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	if filter.DeclarationID != nil {
		args = append(args, uuid.UUID(*filter.DeclarationID))
		clauses = append(clauses, fmt.Sprintf("declaration_id = $%d", len(args)))
	}
	if filter.UnreadOnly {
		clauses = append(clauses, "NOT is_read")
	}
	if len(clauses) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func (s *Store) List(ctx context.Context, filter tip.ListFilter) ([]*tip.Tip, int, error) {
	cond, args := where(filter)

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tips`+cond, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count tips: %w", err)
	}

	query := `SELECT ` + columns + ` FROM tips` + cond + ` ORDER BY created_at DESC, id`
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
		return nil, 0, fmt.Errorf("query tips: %w", err)
	}
	defer rows.Close()

	out := []*tip.Tip{}
	for rows.Next() {
		t, err := scan(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, t)
	}
	return out, total, rows.Err()
}

func (s *Store) Count(ctx context.Context, declarationID *id.DeclarationID) (tip.Counts, error) {
	cond, args := where(tip.ListFilter{DeclarationID: declarationID})
	var c tip.Counts
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COUNT(*) FILTER (WHERE NOT is_read) FROM tips`+cond, args...,
	).Scan(&c.Total, &c.Unread)
	if err != nil {
		return c, fmt.Errorf("count tips: %w", err)
	}
	return c, nil
}

func (s *Store) Update(ctx context.Context, t *tip.Tip) error {
	res, err := txcontext.Exec(ctx, s.db).ExecContext(ctx, `
		UPDATE tips SET is_read = $2, is_useful = $3, admin_notes = $4, reviewed_at = $5, reviewed_by = $6
		WHERE id = $1`,
		uuid.UUID(t.ID), t.IsRead, t.IsUseful, t.AdminNotes, t.ReviewedAt, reviewerArg(t.ReviewedBy),
	)
	if err != nil {
		return fmt.Errorf("update tip: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, tipID id.TipID) error {
	res, err := txcontext.Exec(ctx, s.db).ExecContext(ctx, `DELETE FROM tips WHERE id = $1`, uuid.UUID(tipID))
	if err != nil {
		return fmt.Errorf("delete tip: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(row scanner) (*tip.Tip, error) {
	var (
		t             tip.Tip
		tipID, declID uuid.UUID
		isUseful      sql.NullBool
		reviewedAt    sql.NullTime
		reviewedBy    uuid.NullUUID
	)
	err := row.Scan(&tipID, &declID, &t.TipsterPhone, &t.Description, &t.IsRead, &isUseful, &t.AdminNotes,
		&t.IPAddress, &t.CreatedAt, &reviewedAt, &reviewedBy)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan tip: %w", err)
	}
	t.ID = id.TipID(tipID)
	t.DeclarationID = id.DeclarationID(declID)
	if isUseful.Valid {
		v := isUseful.Bool
		t.IsUseful = &v
	}
	if reviewedAt.Valid {
		v := reviewedAt.Time
		t.ReviewedAt = &v
	}
	if reviewedBy.Valid {
		v := id.UserID(reviewedBy.UUID)
		t.ReviewedBy = &v
	}
	return &t, nil
}

func reviewerArg(u *id.UserID) any {
	if u == nil {
		return nil
	}
	return uuid.UUID(*u)
}
