// Package retention purges stale unprocessed pending items, old activity
// log entries and idle admin sessions according to the protection policy.
package retention

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/singleflight"

	"civicdesk/internal/audit"
	"civicdesk/internal/platform/tracing"
	"civicdesk/internal/protection"
	dErrors "civicdesk/pkg/domain-errors"
	"civicdesk/pkg/requestcontext"
)

// Purger deletes records strictly older than cutoff, or only counts them
// when dryRun is set.
type Purger interface {
	Purge(ctx context.Context, cutoff time.Time, dryRun bool) (int, error)
}

// PurgeFunc adapts a store method to Purger.
type PurgeFunc func(ctx context.Context, cutoff time.Time, dryRun bool) (int, error)

func (f PurgeFunc) Purge(ctx context.Context, cutoff time.Time, dryRun bool) (int, error) {
	return f(ctx, cutoff, dryRun)
}

type PolicySource interface {
	Get(ctx context.Context) (*protection.Policy, error)
}

type AuditRecorder interface {
	Record(ctx context.Context, ev audit.Event)
}

type nopAuditor struct{}

func (nopAuditor) Record(context.Context, audit.Event) {}

// Targets are the three purgeable collections.
type Targets struct {
	Pending       Purger
	ActivityLog   Purger
	AdminSessions Purger
}

// Report describes one sweep. Cutoffs are computed once per run.
type Report struct {
	DryRun               bool      `json:"dry_run"`
	StartedAt            time.Time `json:"started_at"`
	PendingCutoff        time.Time `json:"pending_cutoff"`
	ActivityLogCutoff    time.Time `json:"activity_log_cutoff"`
	AdminSessionCutoff   time.Time `json:"admin_session_cutoff"`
	PendingDeleted       int       `json:"pending_deleted"`
	ActivityLogDeleted   int       `json:"activity_log_deleted"`
	AdminSessionsDeleted int       `json:"admin_sessions_deleted"`
}

type Sweeper struct {
	policies PolicySource
	targets  Targets
	auditor  AuditRecorder
	logger   *slog.Logger
	now      func() time.Time
	group    singleflight.Group
	// running serialises sweeps of either mode.
	running sync.Mutex
}

type Option func(*Sweeper)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Sweeper) {
		s.logger = logger
	}
}

func WithAuditor(a AuditRecorder) Option {
	return func(s *Sweeper) {
		s.auditor = a
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Sweeper) {
		s.now = now
	}
}

func New(policies PolicySource, targets Targets, opts ...Option) *Sweeper {
	s := &Sweeper{
		policies: policies,
		targets:  targets,
		auditor:  nopAuditor{},
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run sweeps once. Concurrent calls with the same dryRun share one run; a
// dry run and a real sweep never overlap; the later one waits.
func (s *Sweeper) Run(ctx context.Context, dryRun bool) (Report, error) {
	v, err, _ := s.group.Do(strconv.FormatBool(dryRun), func() (any, error) {
		s.running.Lock()
		defer s.running.Unlock()
		return s.run(ctx, dryRun)
	})
	if err != nil {
		return Report{}, err
	}
	return v.(Report), nil
}

func (s *Sweeper) run(ctx context.Context, dryRun bool) (rep Report, err error) {
	ctx, end := tracing.StartSpan(ctx, "retention.sweep", attribute.Bool("sweep.dry_run", dryRun))
	defer func() { end(err) }()

	policy, err := s.policies.Get(ctx)
	if err != nil {
		return rep, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load retention policy")
	}

	now := s.now().UTC()
	rep = Report{
		DryRun:             dryRun,
		StartedAt:          now,
		PendingCutoff:      cutoff(now, policy.PendingRetentionDays),
		ActivityLogCutoff:  cutoff(now, policy.ActivityLogRetentionDays),
		AdminSessionCutoff: cutoff(now, policy.AdminSessionRetentionDays),
	}

	if rep.PendingDeleted, err = s.targets.Pending.Purge(ctx, rep.PendingCutoff, dryRun); err != nil {
		return rep, dErrors.Wrap(err, dErrors.CodeInternal, "failed to sweep pending declarations")
	}
	if rep.ActivityLogDeleted, err = s.targets.ActivityLog.Purge(ctx, rep.ActivityLogCutoff, dryRun); err != nil {
		return rep, dErrors.Wrap(err, dErrors.CodeInternal, "failed to sweep activity log")
	}
	if rep.AdminSessionsDeleted, err = s.targets.AdminSessions.Purge(ctx, rep.AdminSessionCutoff, dryRun); err != nil {
		return rep, dErrors.Wrap(err, dErrors.CodeInternal, "failed to sweep admin sessions")
	}

	s.logger.InfoContext(ctx, "retention sweep finished",
		"request_id", requestcontext.RequestID(ctx),
		"dry_run", dryRun,
		"pending_deleted", rep.PendingDeleted,
		"activity_log_deleted", rep.ActivityLogDeleted,
		"admin_sessions_deleted", rep.AdminSessionsDeleted,
	)
	if !dryRun {
		s.auditor.Record(ctx, audit.Event{
			Action:     audit.ActionSweep,
			TargetType: audit.TargetRetentionTask,
			Details:    rep,
		})
	}
	return rep, nil
}

func cutoff(now time.Time, days int) time.Time {
	return now.AddDate(0, 0, -days)
}
