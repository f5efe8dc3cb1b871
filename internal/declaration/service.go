package declaration

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"civicdesk/internal/audit"
	"civicdesk/internal/platform/metrics"
	id "civicdesk/pkg/domain"
	dErrors "civicdesk/pkg/domain-errors"
	"civicdesk/pkg/platform/sentinel"
	txcontext "civicdesk/pkg/platform/tx"
	"civicdesk/pkg/requestcontext"
)

// Source names the path a declaration was created through.
type Source string

const (
	SourceDirect  Source = "direct"
	SourceSync    Source = "sync"
	SourcePending Source = "pending"
	SourceRestore Source = "restore"
)

// keyedByClientCode reports whether a client tracking code is the
// idempotency key for the path. Replayed sync and pending items must never
// commit under a different code.
func (src Source) keyedByClientCode() bool {
	return src == SourceSync || src == SourcePending
}

// ErrCodeTaken is returned on keyed paths when the client's tracking code
// is already committed.
var ErrCodeTaken = dErrors.New(dErrors.CodeConflict, "Declaration already exists")

const (
	DefaultPageSize = 50
	MaxPageSize     = 200
	maxNotesLen     = 2000
	maxCommentLen   = 500
)

// AuditRecorder is the activity log write path.
type AuditRecorder interface {
	Record(ctx context.Context, ev audit.Event)
}

type nopAuditor struct{}

func (nopAuditor) Record(context.Context, audit.Event) {}

// Service owns declaration creation and staff edits.
type Service struct {
	store    Store
	locks    *txcontext.KeyLock
	auditor  AuditRecorder
	metrics  *metrics.Metrics
	logger   *slog.Logger
	now      func() time.Time
	codeFunc func() string
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

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithCodeGenerator replaces the tracking code generator.
func WithCodeGenerator(gen func() string) Option {
	return func(s *Service) {
		s.codeFunc = gen
	}
}

func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store:    store,
		locks:    txcontext.NewKeyLock(),
		auditor:  nopAuditor{},
		logger:   slog.Default(),
		now:      time.Now,
		codeFunc: GenerateTrackingCode,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create validates in and commits a new declaration. The caller's IP, user
// agent and device come from ctx.
func (s *Service) Create(ctx context.Context, in Input, source Source) (*Declaration, error) {
	in.Normalize()
	draft, err := in.Draft()
	if err != nil {
		return nil, err
	}
	return s.Commit(ctx, draft, source)
}

// Commit persists a validated draft. On the direct path a client id or
// tracking code is kept when usable and unused at commit time; otherwise one
// is generated. On sync and pending paths a client code must be well formed
// and unused, or Commit fails with a validation error or ErrCodeTaken.
func (s *Service) Commit(ctx context.Context, draft Draft, source Source) (*Declaration, error) {
	keyed := source.keyedByClientCode() && draft.TrackingCode != ""
	if keyed && !WellFormedTrackingCode(draft.TrackingCode) {
		return nil, dErrors.NewValidation("invalid declaration", map[string]string{
			"tracking_code": "must be 4 to 32 letters, digits or dashes",
		})
	}
	now := s.now().UTC()
	actor := requestcontext.Actor(ctx)
	device := requestcontext.Device(ctx)

	d := &Declaration{
		DeclarantName: draft.DeclarantName,
		Phone:         draft.Phone,
		Email:         draft.Email,
		Type:          draft.Type,
		Category:      draft.Category,
		Description:   draft.Description,
		IncidentDate:  draft.IncidentDate,
		Location:      draft.Location,
		Reward:        draft.Reward,
		Status:        StatusPending,
		StatusHistory: []StatusChange{{Status: StatusPending, Timestamp: now, Actor: actorLabel(actor)}},
		IPAddress:     requestcontext.ClientIP(ctx),
		UserAgent:     requestcontext.UserAgent(ctx),
		BrowserInfo:   device.Browser,
		DeviceType:    device.Type,
		DeviceModel:   device.Model,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	declarationID, err := s.pickID(ctx, draft.ID)
	if err != nil {
		return nil, err
	}
	d.ID = declarationID

	if err := s.commitWithCode(ctx, d, draft.TrackingCode, keyed); err != nil {
		return nil, err
	}

	switch source {
	case SourceDirect:
		s.metrics.IncDeclarationsCreated()
	case SourceSync:
		s.metrics.IncDeclarationsSynced()
	}
	s.auditor.Record(ctx, audit.Event{
		Action:     audit.ActionCreate,
		TargetType: audit.TargetDeclaration,
		TargetID:   d.ID.String(),
		Details: map[string]string{
			"tracking_code": d.TrackingCode,
			"source":        string(source),
		},
		Sensitive: true,
	})
	s.logger.InfoContext(ctx, "declaration created",
		"request_id", requestcontext.RequestID(ctx),
		"tracking_code", d.TrackingCode,
		"source", string(source),
	)
	return d, nil
}

func (s *Service) pickID(ctx context.Context, requested string) (id.DeclarationID, error) {
	if requested != "" {
		if parsed, err := uuid.Parse(requested); err == nil && parsed != uuid.Nil {
			exists, err := s.store.ExistsID(ctx, id.DeclarationID(parsed))
			if err != nil {
				return id.DeclarationID{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check declaration id")
			}
			if !exists {
				return id.DeclarationID(parsed), nil
			}
		}
	}
	return id.NewDeclarationID(), nil
}

// commitWithCode serializes commits per tracking code so two submissions
// racing for the same code cannot both win. A keyed commit tries only the
// requested code.
func (s *Service) commitWithCode(ctx context.Context, d *Declaration, requested string, keyed bool) error {
	useRequested := requested != "" && WellFormedTrackingCode(requested)
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code := s.codeFunc()
		if attempt == 0 && useRequested {
			code = requested
		}

		var created bool
		err := s.locks.WithKey(ctx, code, func(ctx context.Context) error {
			exists, err := s.store.ExistsTrackingCode(ctx, code)
			if err != nil {
				return err
			}
			if exists {
				return nil
			}
			d.TrackingCode = code
			err = s.store.Create(ctx, d)
			if errors.Is(err, sentinel.ErrConflict) {
				return nil
			}
			if err != nil {
				return err
			}
			created = true
			return nil
		})
		if err != nil {
			if dErrors.HasCode(err, dErrors.CodeTimeout) {
				return err
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to store declaration")
		}
		if created {
			return nil
		}
		if keyed {
			d.TrackingCode = ""
			return ErrCodeTaken
		}
	}
	return dErrors.New(dErrors.CodeConflict, "could not allocate a unique tracking code")
}

// ExistsTrackingCode reports whether a declaration already uses code.
func (s *Service) ExistsTrackingCode(ctx context.Context, code string) (bool, error) {
	exists, err := s.store.ExistsTrackingCode(ctx, NormalizeTrackingCode(code))
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check tracking code")
	}
	return exists, nil
}

// Get returns a declaration by id.
func (s *Service) Get(ctx context.Context, declarationID id.DeclarationID) (*Declaration, error) {
	d, err := s.store.GetByID(ctx, declarationID)
	if err != nil {
		return nil, translate(err, "declaration not found")
	}
	return d, nil
}

// GetByTrackingCode returns a declaration by its tracking code.
func (s *Service) GetByTrackingCode(ctx context.Context, code string) (*Declaration, error) {
	d, err := s.store.GetByTrackingCode(ctx, NormalizeTrackingCode(code))
	if err != nil {
		return nil, translate(err, "declaration not found")
	}
	return d, nil
}

// GetByIDOrCode accepts either a UUID or a tracking code.
func (s *Service) GetByIDOrCode(ctx context.Context, ref string) (*Declaration, error) {
	ref = strings.TrimSpace(ref)
	if parsed, err := uuid.Parse(ref); err == nil {
		d, err := s.store.GetByID(ctx, id.DeclarationID(parsed))
		if err == nil {
			return d, nil
		}
		if !errors.Is(err, sentinel.ErrNotFound) {
			return nil, translate(err, "declaration not found")
		}
	}
	return s.GetByTrackingCode(ctx, ref)
}

// List returns a page of declarations for staff.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]*Declaration, int, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, 0, dErrors.NewValidation("invalid filter", map[string]string{"status": "unknown status"})
	}
	if filter.Limit <= 0 {
		filter.Limit = DefaultPageSize
	}
	if filter.Limit > MaxPageSize {
		filter.Limit = MaxPageSize
	}
	items, total, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list declarations")
	}
	return items, total, nil
}

// CountByStatus returns per-status totals.
func (s *Service) CountByStatus(ctx context.Context) (map[Status]int, error) {
	counts, err := s.store.CountByStatus(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to count declarations")
	}
	return counts, nil
}

// Count returns the total number of declarations.
func (s *Service) Count(ctx context.Context) (int, error) {
	counts, err := s.CountByStatus(ctx)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, n := range counts {
		total += n
	}
	return total, nil
}

// Update is a partial staff edit. Nil fields are left alone; an empty
// Priority clears it.
type Update struct {
	Status        *Status `json:"status"`
	StatusComment string  `json:"status_comment"`
	Priority      *string `json:"priority"`
	AdminNotes    *string `json:"admin_notes"`
	Type          *string `json:"type"`
	Category      *string `json:"category"`
	Description   *string `json:"description"`
	Location      *string `json:"location"`
	Reward        *string `json:"reward"`
}

func (u *Update) Normalize() {
	u.StatusComment = strings.TrimSpace(u.StatusComment)
	for _, p := range []*string{u.Priority, u.AdminNotes, u.Type, u.Category, u.Description, u.Location, u.Reward} {
		if p != nil {
			*p = strings.TrimSpace(*p)
		}
	}
}

func (u *Update) Validate() error {
	fields := map[string]string{}
	if u.Status != nil && !u.Status.Valid() {
		fields["status"] = "unknown status"
	}
	if u.Priority != nil && *u.Priority != "" && !Priority(*u.Priority).Valid() {
		fields["priority"] = "unknown priority"
	}
	if u.AdminNotes != nil && utf8.RuneCountInString(*u.AdminNotes) > maxNotesLen {
		fields["admin_notes"] = "is too long"
	}
	if utf8.RuneCountInString(u.StatusComment) > maxCommentLen {
		fields["status_comment"] = "is too long"
	}
	if u.Type != nil {
		requireText(fields, "type", *u.Type, maxTypeLen)
	}
	if u.Category != nil {
		requireText(fields, "category", *u.Category, maxCategoryLen)
	}
	if u.Location != nil {
		requireText(fields, "location", *u.Location, maxLocationLen)
	}
	if u.Description != nil {
		if n := utf8.RuneCountInString(*u.Description); n < minDescriptionLen || n > maxDescriptionLen {
			fields["description"] = "must be between 10 and 5000 characters"
		}
	}
	if u.Reward != nil && utf8.RuneCountInString(*u.Reward) > maxRewardLen {
		fields["reward"] = "is too long"
	}
	if len(fields) > 0 {
		return dErrors.NewValidation("invalid update", fields)
	}
	return nil
}

// Update applies a staff edit and audits the field-level diff.
func (s *Service) Update(ctx context.Context, declarationID id.DeclarationID, u Update) (*Declaration, error) {
	u.Normalize()
	if err := u.Validate(); err != nil {
		return nil, err
	}

	var updated *Declaration
	var changes map[string]audit.Change
	err := s.locks.WithKey(ctx, declarationID.String(), func(ctx context.Context) error {
		before, err := s.store.GetByID(ctx, declarationID)
		if err != nil {
			return err
		}
		after := before.Clone()
		s.apply(ctx, after, u)

		changes, err = audit.Diff(before.auditView(), after.auditView())
		if err != nil {
			return err
		}
		if len(changes) == 0 {
			updated = before
			return nil
		}
		after.UpdatedAt = s.now().UTC()
		if err := s.store.Update(ctx, after); err != nil {
			return err
		}
		updated = after
		return nil
	})
	if err != nil {
		return nil, translate(err, "declaration not found")
	}

	// Every accepted edit is logged, an empty diff as {}.
	s.auditor.Record(ctx, audit.Event{
		Action:     audit.ActionUpdate,
		TargetType: audit.TargetDeclaration,
		TargetID:   declarationID.String(),
		Details:    changes,
	})
	return updated, nil
}

func (s *Service) apply(ctx context.Context, d *Declaration, u Update) {
	actor := requestcontext.Actor(ctx)
	if u.Status != nil && *u.Status != d.Status {
		d.Status = *u.Status
		d.StatusHistory = append(d.StatusHistory, StatusChange{
			Status:    *u.Status,
			Timestamp: s.now().UTC(),
			Actor:     actorLabel(actor),
			Comment:   u.StatusComment,
		})
		if *u.Status == StatusValidated && !actor.IsAnonymous() {
			validator := actor.ID
			d.ValidatedBy = &validator
		}
	}
	if u.Priority != nil {
		if *u.Priority == "" {
			d.Priority = nil
		} else {
			p := Priority(*u.Priority)
			d.Priority = &p
		}
	}
	if u.AdminNotes != nil {
		d.AdminNotes = *u.AdminNotes
	}
	if u.Type != nil {
		d.Type = *u.Type
	}
	if u.Category != nil {
		d.Category = *u.Category
	}
	if u.Description != nil {
		d.Description = *u.Description
	}
	if u.Location != nil {
		d.Location = *u.Location
	}
	if u.Reward != nil {
		if *u.Reward == "" {
			d.Reward = nil
		} else {
			r := *u.Reward
			d.Reward = &r
		}
	}
}

// Delete removes a declaration. The audit entry keeps its identifying fields.
func (s *Service) Delete(ctx context.Context, declarationID id.DeclarationID) error {
	var deleted *Declaration
	err := s.locks.WithKey(ctx, declarationID.String(), func(ctx context.Context) error {
		d, err := s.store.GetByID(ctx, declarationID)
		if err != nil {
			return err
		}
		if err := s.store.Delete(ctx, declarationID); err != nil {
			return err
		}
		deleted = d
		return nil
	})
	if err != nil {
		return translate(err, "declaration not found")
	}

	s.auditor.Record(ctx, audit.Event{
		Action:     audit.ActionDelete,
		TargetType: audit.TargetDeclaration,
		TargetID:   declarationID.String(),
		Details: map[string]string{
			"tracking_code":  deleted.TrackingCode,
			"declarant_name": deleted.DeclarantName,
			"type":           deleted.Type,
			"category":       deleted.Category,
		},
		Sensitive: true,
	})
	return nil
}

// Import stores a declaration exactly as exported. It never overwrites:
// an existing id or tracking code yields a conflict.
func (s *Service) Import(ctx context.Context, d *Declaration) error {
	if d.ID.IsNil() || d.TrackingCode == "" {
		return dErrors.New(dErrors.CodeValidation, "declaration id and tracking code are required")
	}
	if !d.Status.Valid() {
		return dErrors.NewValidation("invalid declaration", map[string]string{"status": "unknown status"})
	}
	if len(d.StatusHistory) == 0 {
		d.StatusHistory = []StatusChange{{Status: d.Status, Timestamp: d.CreatedAt, Actor: audit.AnonymousActor}}
	}
	return s.locks.WithKey(ctx, d.TrackingCode, func(ctx context.Context) error {
		exists, err := s.store.ExistsID(ctx, d.ID)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to check declaration id")
		}
		if exists {
			return dErrors.New(dErrors.CodeConflict, "declaration already exists")
		}
		err = s.store.Create(ctx, d)
		if errors.Is(err, sentinel.ErrConflict) {
			return dErrors.New(dErrors.CodeConflict, "declaration already exists")
		}
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to import declaration")
		}
		return nil
	})
}

// ListAll returns every declaration, newest first.
func (s *Service) ListAll(ctx context.Context) ([]*Declaration, error) {
	all, err := s.store.ListAll(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list declarations")
	}
	return all, nil
}

func actorLabel(actor requestcontext.ActorInfo) string {
	if actor.IsAnonymous() {
		return audit.AnonymousActor
	}
	return actor.Name
}

func translate(err error, notFound string) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, notFound)
	case dErrors.HasCode(err, dErrors.CodeTimeout):
		return err
	default:
		var de *dErrors.Error
		if errors.As(err, &de) {
			return err
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "declaration storage failure")
	}
}
