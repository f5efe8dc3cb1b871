package tip

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"civicdesk/internal/audit"
	"civicdesk/internal/declaration"
	id "civicdesk/pkg/domain"
	dErrors "civicdesk/pkg/domain-errors"
	"civicdesk/pkg/platform/sentinel"
	txcontext "civicdesk/pkg/platform/tx"
	"civicdesk/pkg/requestcontext"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100

	minDescriptionLen = 10
	maxDescriptionLen = 2000
	maxNotesLen       = 1000
)

// Declarations resolves the declaration a tip refers to.
type Declarations interface {
	Get(ctx context.Context, declarationID id.DeclarationID) (*declaration.Declaration, error)
}

type AuditRecorder interface {
	Record(ctx context.Context, ev audit.Event)
}

type nopAuditor struct{}

func (nopAuditor) Record(context.Context, audit.Event) {}

type Service struct {
	store        Store
	declarations Declarations
	locks        *txcontext.KeyLock
	auditor      AuditRecorder
	logger       *slog.Logger
	now          func() time.Time
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditor(a AuditRecorder) Option {
	return func(s *Service) {
		s.auditor = a
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func NewService(store Store, declarations Declarations, opts ...Option) *Service {
	s := &Service{
		store:        store,
		declarations: declarations,
		locks:        txcontext.NewKeyLock(),
		auditor:      nopAuditor{},
		logger:       slog.Default(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SubmitRequest is a public lead.
type SubmitRequest struct {
	DeclarationID string `json:"declaration_id"`
	TipsterPhone  string `json:"tipster_phone"`
	Description   string `json:"description"`
}

func (r *SubmitRequest) Normalize() {
	r.DeclarationID = strings.TrimSpace(r.DeclarationID)
	r.TipsterPhone = strings.ReplaceAll(strings.TrimSpace(r.TipsterPhone), " ", "")
	r.Description = strings.TrimSpace(r.Description)
}

func (r *SubmitRequest) Validate() error {
	fields := map[string]string{}
	if _, err := id.ParseDeclarationID(r.DeclarationID); err != nil {
		fields["declaration_id"] = "invalid"
	}
	if r.TipsterPhone != "" && !declaration.ValidPhone(r.TipsterPhone) {
		fields["tipster_phone"] = "must be formatted +228XXXXXXXX"
	}
	switch n := utf8.RuneCountInString(r.Description); {
	case n < minDescriptionLen:
		fields["description"] = "must be at least 10 characters"
	case n > maxDescriptionLen:
		fields["description"] = "must be at most 2000 characters"
	}
	if len(fields) > 0 {
		return dErrors.NewValidation("invalid tip", fields)
	}
	return nil
}

// Submit stores a lead. Only validated declarations accept tips.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*Receipt, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	declarationID, _ := id.ParseDeclarationID(req.DeclarationID)

	d, err := s.declarations.Get(ctx, declarationID)
	if err != nil {
		return nil, err
	}
	if d.Status != declaration.StatusValidated {
		return nil, dErrors.New(dErrors.CodeBadRequest, "tips are not accepted for this declaration")
	}

	t := &Tip{
		ID:            id.NewTipID(),
		DeclarationID: declarationID,
		TipsterPhone:  req.TipsterPhone,
		Description:   req.Description,
		IPAddress:     requestcontext.ClientIP(ctx),
		CreatedAt:     s.now().UTC(),
	}
	if err := s.store.Create(ctx, t); err != nil {
		return nil, translate(err)
	}
	s.auditor.Record(ctx, audit.Event{
		Action:     audit.ActionCreate,
		TargetType: audit.TargetTip,
		TargetID:   t.ID.String(),
		Details:    map[string]string{"declaration_id": d.ID.String(), "tracking_code": d.TrackingCode},
	})
	return &Receipt{
		ID:            t.ID,
		DeclarationID: t.DeclarationID,
		CreatedAt:     t.CreatedAt,
		Message:       "tip received",
	}, nil
}

// List returns a page of tips, the matching total and the unread count.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]*Tip, int, int, error) {
	if filter.Limit <= 0 {
		filter.Limit = DefaultPageSize
	}
	filter.Limit = min(filter.Limit, MaxPageSize)
	filter.Offset = max(filter.Offset, 0)

	tips, total, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, 0, 0, translate(err)
	}
	counts, err := s.store.Count(ctx, filter.DeclarationID)
	if err != nil {
		return nil, 0, 0, translate(err)
	}
	return tips, total, counts.Unread, nil
}

func (s *Service) Get(ctx context.Context, tipID id.TipID) (*Tip, error) {
	t, err := s.store.Get(ctx, tipID)
	if err != nil {
		return nil, translate(err)
	}
	return t, nil
}

// Count is the inbox summary across all declarations.
func (s *Service) Count(ctx context.Context) (Counts, error) {
	c, err := s.store.Count(ctx, nil)
	if err != nil {
		return Counts{}, translate(err)
	}
	return c, nil
}

// ReviewRequest is a staff edit. Nil fields are left alone.
type ReviewRequest struct {
	IsRead     *bool   `json:"is_read"`
	IsUseful   *bool   `json:"is_useful"`
	AdminNotes *string `json:"admin_notes"`
}

func (r *ReviewRequest) Normalize() {
	if r.AdminNotes != nil {
		notes := strings.TrimSpace(*r.AdminNotes)
		r.AdminNotes = &notes
	}
}

func (r *ReviewRequest) Validate() error {
	if r.AdminNotes != nil && utf8.RuneCountInString(*r.AdminNotes) > maxNotesLen {
		return dErrors.NewValidation("invalid review", map[string]string{"admin_notes": "must be at most 1000 characters"})
	}
	return nil
}

// Review applies a staff edit. Rating usefulness stamps the reviewer.
func (s *Service) Review(ctx context.Context, tipID id.TipID, req ReviewRequest) (*Tip, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var (
		updated *Tip
		changes map[string]audit.Change
	)
	err := s.locks.WithKey(ctx, tipID.String(), func(ctx context.Context) error {
		before, err := s.store.Get(ctx, tipID)
		if err != nil {
			return err
		}
		after := before.Clone()
		if req.IsRead != nil {
			after.IsRead = *req.IsRead
		}
		if req.AdminNotes != nil {
			after.AdminNotes = *req.AdminNotes
		}
		if req.IsUseful != nil {
			useful := *req.IsUseful
			after.IsUseful = &useful
		}

		changes, err = audit.Diff(before.reviewView(), after.reviewView())
		if err != nil {
			return err
		}
		if len(changes) == 0 {
			updated = before
			return nil
		}
		if _, rated := changes["is_useful"]; rated {
			now := s.now().UTC()
			after.ReviewedAt = &now
			if actor := requestcontext.Actor(ctx); !actor.IsAnonymous() {
				reviewer := actor.ID
				after.ReviewedBy = &reviewer
			}
		}
		if err := s.store.Update(ctx, after); err != nil {
			return err
		}
		updated = after
		return nil
	})
	if err != nil {
		return nil, translate(err)
	}

	s.auditor.Record(ctx, audit.Event{
		Action:     audit.ActionUpdate,
		TargetType: audit.TargetTip,
		TargetID:   tipID.String(),
		Details:    changes,
	})
	return updated, nil
}

// Delete removes a tip; the audit entry keeps what it pointed at.
func (s *Service) Delete(ctx context.Context, tipID id.TipID) error {
	var deleted *Tip
	err := s.locks.WithKey(ctx, tipID.String(), func(ctx context.Context) error {
		t, err := s.store.Get(ctx, tipID)
		if err != nil {
			return err
		}
		if err := s.store.Delete(ctx, tipID); err != nil {
			return err
		}
		deleted = t
		return nil
	})
	if err != nil {
		return translate(err)
	}
	s.auditor.Record(ctx, audit.Event{
		Action:     audit.ActionDelete,
		TargetType: audit.TargetTip,
		TargetID:   tipID.String(),
		Details: map[string]any{
			"declaration_id": deleted.DeclarationID.String(),
			"tipster_phone":  deleted.TipsterPhone,
			"is_useful":      deleted.IsUseful,
		},
		Sensitive: true,
	})
	return nil
}

func translate(err error) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "tip not found")
	}
	var de *dErrors.Error
	if errors.As(err, &de) {
		return err
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "tip storage failure")
}
