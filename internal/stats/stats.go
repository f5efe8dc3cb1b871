// Package stats assembles the admin metrics view: in-process counters plus
// counts read from storage.
package stats

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"civicdesk/internal/adminsession"
	"civicdesk/internal/declaration"
	"civicdesk/internal/pending"
	"civicdesk/internal/platform/metrics"
	"civicdesk/internal/tip"
	dErrors "civicdesk/pkg/domain-errors"
)

type Declarations interface {
	Count(ctx context.Context) (int, error)
	CountByStatus(ctx context.Context) (map[declaration.Status]int, error)
}

type PendingItems interface {
	Count(ctx context.Context) (pending.Counts, error)
}

type Tips interface {
	Count(ctx context.Context) (tip.Counts, error)
}

type ActivityLog interface {
	Count(ctx context.Context) (int, error)
}

type AdminSessions interface {
	Counts(ctx context.Context) (adminsession.Counts, error)
}

// Storage is what the database holds right now.
type Storage struct {
	TotalDeclarations    int                        `json:"total_declarations"`
	DeclarationsByStatus map[declaration.Status]int `json:"declarations_by_status"`
	PendingProcessed     int                        `json:"pending_processed"`
	PendingUnprocessed   int                        `json:"pending_unprocessed"`
	TotalTips            int                        `json:"total_tips"`
	UnreadTips           int                        `json:"unread_tips"`
	TotalActivityLogs    int                        `json:"total_activity_logs"`
	TotalAdminSessions   int                        `json:"total_admin_sessions"`
	ActiveAdminSessions  int                        `json:"active_admin_sessions"`
}

// Report is the body of GET /admin/metrics.
type Report struct {
	Counters metrics.Snapshot `json:"counters"`
	Storage  Storage          `json:"storage"`
}

// Sources groups the readers the report draws on.
type Sources struct {
	Declarations  Declarations
	Pending       PendingItems
	Tips          Tips
	ActivityLog   ActivityLog
	AdminSessions AdminSessions
}

type Service struct {
	src     Sources
	metrics *metrics.Metrics
}

func New(src Sources, m *metrics.Metrics) *Service {
	return &Service{src: src, metrics: m}
}

// Report reads every storage count concurrently. The first failure cancels
// the rest.
func (s *Service) Report(ctx context.Context) (*Report, error) {
	var st Storage
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		n, err := s.src.Declarations.Count(gctx)
		st.TotalDeclarations = n
		return err
	})
	g.Go(func() error {
		by, err := s.src.Declarations.CountByStatus(gctx)
		st.DeclarationsByStatus = by
		return err
	})
	g.Go(func() error {
		c, err := s.src.Pending.Count(gctx)
		st.PendingProcessed, st.PendingUnprocessed = c.Processed, c.Unprocessed
		return err
	})
	g.Go(func() error {
		c, err := s.src.Tips.Count(gctx)
		st.TotalTips, st.UnreadTips = c.Total, c.Unread
		return err
	})
	g.Go(func() error {
		n, err := s.src.ActivityLog.Count(gctx)
		st.TotalActivityLogs = n
		return err
	})
	g.Go(func() error {
		c, err := s.src.AdminSessions.Counts(gctx)
		st.TotalAdminSessions, st.ActiveAdminSessions = c.Total, c.Active
		return err
	})
	if err := g.Wait(); err != nil {
		var de *dErrors.Error
		if errors.As(err, &de) {
			return nil, err
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read storage counts")
	}
	if st.DeclarationsByStatus == nil {
		st.DeclarationsByStatus = map[declaration.Status]int{}
	}
	return &Report{Counters: s.metrics.Snapshot(), Storage: st}, nil
}
