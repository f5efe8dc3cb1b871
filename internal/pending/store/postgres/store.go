package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"civicdesk/internal/pending"
	"civicdesk/internal/platform/postgres"
	id "civicdesk/pkg/domain"
	"civicdesk/pkg/platform/sentinel"
	txcontext "civicdesk/pkg/platform/tx"
)

// Store persists items in the pending_items table.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

const columns = `id, client_id, payload, tracking_code, processed, processed_at, processed_by,
	error, created_at, updated_at`

func (s *Store) Create(ctx context.Context, item *pending.Item) error {
	_, err := txcontext.Exec(ctx, s.db).ExecContext(ctx, `
		INSERT INTO pending_items (`+columns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		uuid.UUID(item.ID), item.ClientID, []byte(item.Payload), item.TrackingCode, item.Processed,
		item.ProcessedAt, userArg(item.ProcessedBy), item.Error, item.CreatedAt, item.UpdatedAt,
	)
	if postgres.IsUniqueViolation(err) {
		return sentinel.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert pending item: %w", err)
	}
	return nil
}

// Get locks the row when called inside a transaction so concurrent
// processing of the same item serializes.
func (s *Store) Get(ctx context.Context, itemID id.PendingID) (*pending.Item, error) {
	query := `SELECT ` + columns + ` FROM pending_items WHERE id = $1`
	if _, inTx := txcontext.From(ctx); inTx {
		query += ` FOR UPDATE`
	}
	item, err := scan(txcontext.Exec(ctx, s.db).QueryRowContext(ctx, query, uuid.UUID(itemID)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	return item, err
}

func (s *Store) List(ctx context.Context, filter pending.ListFilter) ([]*pending.Item, int, error) {
	where := ""
	var args []any
	if filter.Processed != nil {
		where = ` WHERE processed = $1`
		args = append(args, *filter.Processed)
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pending_items`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count pending items: %w", err)
	}

	query := `SELECT ` + columns + ` FROM pending_items` + where + ` ORDER BY created_at DESC, id`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}
	items, err := s.query(ctx, query, args...)
	return items, total, err
}

func (s *Store) ListAll(ctx context.Context) ([]*pending.Item, error) {
	return s.query(ctx, `SELECT `+columns+` FROM pending_items ORDER BY created_at DESC, id`)
}

func (s *Store) Update(ctx context.Context, item *pending.Item) error {
	res, err := txcontext.Exec(ctx, s.db).ExecContext(ctx, `
		UPDATE pending_items SET payload = $2, tracking_code = $3, processed = $4, processed_at = $5,
			processed_by = $6, error = $7, updated_at = $8
		WHERE id = $1`,
		uuid.UUID(item.ID), []byte(item.Payload), item.TrackingCode, item.Processed, item.ProcessedAt,
		userArg(item.ProcessedBy), item.Error, item.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update pending item: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *Store) Count(ctx context.Context) (pending.Counts, error) {
	var c pending.Counts
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FILTER (WHERE processed), COUNT(*) FILTER (WHERE NOT processed)
		FROM pending_items`).Scan(&c.Processed, &c.Unprocessed)
	if err != nil {
		return c, fmt.Errorf("count pending items: %w", err)
	}
	return c, nil
}

func (s *Store) DeleteUnprocessedOlderThan(ctx context.Context, cutoff time.Time, dryRun bool) (int, error) {
	exec := txcontext.Exec(ctx, s.db)
	if dryRun {
		var n int
		err := exec.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM pending_items WHERE NOT processed AND created_at < $1`, cutoff).Scan(&n)
		if err != nil {
			return 0, fmt.Errorf("count stale pending items: %w", err)
		}
		return n, nil
	}
	res, err := exec.ExecContext(ctx, `DELETE FROM pending_items WHERE NOT processed AND created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete stale pending items: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (s *Store) query(ctx context.Context, query string, args ...any) ([]*pending.Item, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query pending items: %w", err)
	}
	defer rows.Close()

	out := []*pending.Item{}
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(row scanner) (*pending.Item, error) {
	var (
		item         pending.Item
		itemID       uuid.UUID
		clientID     sql.NullString
		payload      []byte
		trackingCode sql.NullString
		processedAt  sql.NullTime
		processedBy  uuid.NullUUID
	)
	err := row.Scan(&itemID, &clientID, &payload, &trackingCode, &item.Processed, &processedAt,
		&processedBy, &item.Error, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan pending item: %w", err)
	}
	item.ID = id.PendingID(itemID)
	item.Payload = payload
	if clientID.Valid {
		item.ClientID = &clientID.String
	}
	if trackingCode.Valid {
		item.TrackingCode = &trackingCode.String
	}
	if processedAt.Valid {
		t := processedAt.Time
		item.ProcessedAt = &t
	}
	if processedBy.Valid {
		u := id.UserID(processedBy.UUID)
		item.ProcessedBy = &u
	}
	return &item, nil
}

func userArg(u *id.UserID) any {
	if u == nil {
		return nil
	}
	return uuid.UUID(*u)
}
