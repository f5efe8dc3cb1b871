package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"civicdesk/internal/declaration"
	pgplatform "civicdesk/internal/platform/postgres"
	id "civicdesk/pkg/domain"
	"civicdesk/pkg/platform/sentinel"
	txcontext "civicdesk/pkg/platform/tx"
)

// Store persists declarations in the declarations table. Uniqueness of id
// and tracking code is enforced by the schema.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

const columns = `id, tracking_code, declarant_name, phone, email, type, category, description,
	incident_date, location, reward, status, priority, status_history, admin_notes, validated_by,
	ip_address, user_agent, browser_info, device_type, device_model, created_at, updated_at`

func (s *Store) Create(ctx context.Context, d *declaration.Declaration) error {
	history, err := json.Marshal(d.StatusHistory)
	if err != nil {
		return fmt.Errorf("marshal status history: %w", err)
	}
	_, err = txcontext.Exec(ctx, s.db).ExecContext(ctx, `
		INSERT INTO declarations (`+columns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23)`,
		uuid.UUID(d.ID), d.TrackingCode, d.DeclarantName, d.Phone, d.Email, d.Type, d.Category, d.Description,
		d.IncidentDate, d.Location, d.Reward, string(d.Status), priorityArg(d.Priority), history, d.AdminNotes,
		userArg(d.ValidatedBy), d.IPAddress, d.UserAgent, d.BrowserInfo, d.DeviceType, d.DeviceModel, d.CreatedAt, d.UpdatedAt,
	)
	if pgplatform.IsUniqueViolation(err) {
		return sentinel.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert declaration: %w", err)
	}
	return nil
}

func (s *Store) GetByID(ctx context.Context, declarationID id.DeclarationID) (*declaration.Declaration, error) {
	row := txcontext.Exec(ctx, s.db).QueryRowContext(ctx, `SELECT `+columns+` FROM declarations WHERE id = $1`, uuid.UUID(declarationID))
	return scanOne(row)
}

func (s *Store) GetByTrackingCode(ctx context.Context, code string) (*declaration.Declaration, error) {
	row := txcontext.Exec(ctx, s.db).QueryRowContext(ctx, `SELECT `+columns+` FROM declarations WHERE tracking_code = $1`, code)
	return scanOne(row)
}

func (s *Store) ExistsTrackingCode(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := txcontext.Exec(ctx, s.db).QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM declarations WHERE tracking_code = $1)`, code).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check tracking code: %w", err)
	}
	return exists, nil
}

func (s *Store) ExistsID(ctx context.Context, declarationID id.DeclarationID) (bool, error) {
	var exists bool
	err := txcontext.Exec(ctx, s.db).QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM declarations WHERE id = $1)`, uuid.UUID(declarationID)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check declaration id: %w", err)
	}
	return exists, nil
}

func (s *Store) List(ctx context.Context, filter declaration.ListFilter) ([]*declaration.Declaration, int, error) {
	where, args := buildWhere(filter)

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM declarations`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count declarations: %w", err)
	}

	query := `SELECT ` + columns + ` FROM declarations` + where + ` ORDER BY created_at DESC, tracking_code`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}
	out, err := s.query(ctx, query, args...)
	return out, total, err
}

func (s *Store) ListAll(ctx context.Context) ([]*declaration.Declaration, error) {
	return s.query(ctx, `SELECT `+columns+` FROM declarations ORDER BY created_at DESC, tracking_code`)
}

func (s *Store) Update(ctx context.Context, d *declaration.Declaration) error {
	history, err := json.Marshal(d.StatusHistory)
	if err != nil {
		return fmt.Errorf("marshal status history: %w", err)
	}
	res, err := txcontext.Exec(ctx, s.db).ExecContext(ctx, `
		UPDATE declarations SET
			declarant_name = $2, phone = $3, email = $4, type = $5, category = $6, description = $7,
			incident_date = $8, location = $9, reward = $10, status = $11, priority = $12,
			status_history = $13, admin_notes = $14, validated_by = $15, updated_at = $16
		WHERE id = $1`,
		uuid.UUID(d.ID), d.DeclarantName, d.Phone, d.Email, d.Type, d.Category, d.Description,
		d.IncidentDate, d.Location, d.Reward, string(d.Status), priorityArg(d.Priority),
		history, d.AdminNotes, userArg(d.ValidatedBy), d.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update declaration: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, declarationID id.DeclarationID) error {
	res, err := txcontext.Exec(ctx, s.db).ExecContext(ctx, `DELETE FROM declarations WHERE id = $1`, uuid.UUID(declarationID))
	if err != nil {
		return fmt.Errorf("delete declaration: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *Store) CountByStatus(ctx context.Context) (map[declaration.Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM declarations GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count declarations by status: %w", err)
	}
	defer rows.Close()
	counts := make(map[declaration.Status]int)
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		counts[declaration.Status(status)] = n
	}
	return counts, rows.Err()
}

func (s *Store) query(ctx context.Context, query string, args ...any) ([]*declaration.Declaration, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query declarations: %w", err)
	}
	defer rows.Close()

	out := []*declaration.Declaration{}
	for rows.Next() {
		d, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOne(row *sql.Row) (*declaration.Declaration, error) {
	d, err := scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	return d, err
}

func scan(row scanner) (*declaration.Declaration, error) {
	var (
		d           declaration.Declaration
		declID      uuid.UUID
		email       sql.NullString
		reward      sql.NullString
		status      string
		priority    sql.NullString
		history     []byte
		validatedBy uuid.NullUUID
	)
	err := row.Scan(&declID, &d.TrackingCode, &d.DeclarantName, &d.Phone, &email, &d.Type, &d.Category,
		&d.Description, &d.IncidentDate, &d.Location, &reward, &status, &priority, &history, &d.AdminNotes,
		&validatedBy, &d.IPAddress, &d.UserAgent, &d.BrowserInfo, &d.DeviceType, &d.DeviceModel,
		&d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan declaration: %w", err)
	}
	d.ID = id.DeclarationID(declID)
	d.Status = declaration.Status(status)
	if email.Valid {
		d.Email = &email.String
	}
	if reward.Valid {
		d.Reward = &reward.String
	}
	if priority.Valid {
		p := declaration.Priority(priority.String)
		d.Priority = &p
	}
	if validatedBy.Valid {
		u := id.UserID(validatedBy.UUID)
		d.ValidatedBy = &u
	}
	if err := json.Unmarshal(history, &d.StatusHistory); err != nil {
		return nil, fmt.Errorf("decode status history: %w", err)
	}
	return &d, nil
}

func buildWhere(f declaration.ListFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, strings.ReplaceAll(cond, "?", fmt.Sprintf("$%d", len(args))))
	}
	if f.Status != "" {
		add("status = ?", string(f.Status))
	}
	if f.Type != "" {
		add("LOWER(type) = LOWER(?)", f.Type)
	}
	if f.Category != "" {
		add("LOWER(category) = LOWER(?)", f.Category)
	}
	if f.Search != "" {
		add("(tracking_code ILIKE ? OR declarant_name ILIKE ? OR description ILIKE ? OR location ILIKE ?)",
			"%"+escapeLike(f.Search)+"%")
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func priorityArg(p *declaration.Priority) any {
	if p == nil {
		return nil
	}
	return string(*p)
}

func userArg(u *id.UserID) any {
	if u == nil {
		return nil
	}
	return uuid.UUID(*u)
}
