package adminsession

import (
	"context"
	"log/slog"
	"time"

	"civicdesk/internal/audit"
	dErrors "civicdesk/pkg/domain-errors"
	"civicdesk/pkg/requestcontext"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 200
)

type AuditRecorder interface {
	Record(ctx context.Context, ev audit.Event)
}

type nopAuditor struct{}

func (nopAuditor) Record(context.Context, audit.Event) {}

type Service struct {
	store   Store
	auditor AuditRecorder
	logger  *slog.Logger
	now     func() time.Time
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

// Heartbeat records that the authenticated actor is present from the
// request's IP. Only the first beat from a new IP is audited.
func (s *Service) Heartbeat(ctx context.Context) (*Session, error) {
	actor := requestcontext.Actor(ctx)
	if actor.IsAnonymous() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	sess, err := s.store.Touch(ctx, Beat{
		UserID:    actor.ID,
		Username:  actor.Name,
		IPAddress: requestcontext.ClientIP(ctx),
		UserAgent: requestcontext.UserAgent(ctx),
		At:        s.now().UTC(),
	})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record heartbeat")
	}
	if sess.CreatedAt.Equal(sess.LastSeen) {
		s.auditor.Record(ctx, audit.Event{
			Action:     audit.ActionCreate,
			TargetType: audit.TargetAdminSession,
			TargetID:   sess.ID.String(),
		})
		s.logger.InfoContext(ctx, "admin session opened",
			"request_id", requestcontext.RequestID(ctx),
			"user_id", actor.ID.String(),
		)
	}
	return sess, nil
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]*Session, int, error) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	items, total, err := s.store.List(ctx, limit, offset)
	if err != nil {
		return nil, 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list admin sessions")
	}
	return items, total, nil
}

// Counts reports all sessions and those seen within ActiveWindow.
func (s *Service) Counts(ctx context.Context) (Counts, error) {
	c, err := s.store.Count(ctx, s.now().UTC().Add(-ActiveWindow))
	if err != nil {
		return c, dErrors.Wrap(err, dErrors.CodeInternal, "failed to count admin sessions")
	}
	return c, nil
}

// DeleteOlderThan is the retention hook.
func (s *Service) DeleteOlderThan(ctx context.Context, cutoff time.Time, dryRun bool) (int, error) {
	return s.store.DeleteOlderThan(ctx, cutoff, dryRun)
}
