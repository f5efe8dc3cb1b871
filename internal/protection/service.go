package protection

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"civicdesk/internal/audit"
	dErrors "civicdesk/pkg/domain-errors"
	"civicdesk/pkg/requestcontext"
)

// AuditRecorder records policy edits.
type AuditRecorder interface {
	Record(ctx context.Context, ev audit.Event)
}

type nopAuditor struct{}

func (nopAuditor) Record(context.Context, audit.Event) {}

// Service reads and edits the singleton policy.
type Service struct {
	store   Store
	auditor AuditRecorder
	logger  *slog.Logger
	now     func() time.Time
	mu      sync.Mutex
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

func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store:   store,
		auditor: nopAuditor{},
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the current policy, creating the defaults on first use.
func (s *Service) Get(ctx context.Context) (*Policy, error) {
	p, err := s.store.Get(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load protection settings")
	}
	return p, nil
}

// Update applies u and records the field-level diff. Edits are serialized
// so two admins cannot interleave a read-modify-write.
func (s *Service) Update(ctx context.Context, u Update) (*Policy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	before, err := s.Get(ctx)
	if err != nil {
		return nil, err
	}
	after := before.Clone()
	u.Apply(after)
	if err := after.Validate(); err != nil {
		return nil, err
	}

	changes, err := audit.Diff(settingsView(before), settingsView(after))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to diff protection settings")
	}
	if len(changes) == 0 {
		return before, nil
	}

	after.UpdatedAt = s.now().UTC()
	if err := s.store.Save(ctx, after); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save protection settings")
	}
	s.auditor.Record(ctx, audit.Event{
		Action:     audit.ActionUpdate,
		TargetType: audit.TargetProtection,
		TargetID:   "1",
		Details:    changes,
	})
	s.logger.InfoContext(ctx, "protection settings updated",
		"request_id", requestcontext.RequestID(ctx),
		"fields", audit.ChangedFields(changes),
	)
	return after, nil
}

// settingsView drops UpdatedAt so it never shows up in a diff.
func settingsView(p *Policy) Policy {
	v := *p
	v.UpdatedAt = time.Time{}
	return v
}
