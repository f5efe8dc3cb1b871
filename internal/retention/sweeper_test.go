package retention_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"civicdesk/internal/adminsession"
	adminsessionmemory "civicdesk/internal/adminsession/store/memory"
	"civicdesk/internal/audit"
	auditmemory "civicdesk/internal/audit/store/memory"
	"civicdesk/internal/pending"
	pendingmemory "civicdesk/internal/pending/store/memory"
	"civicdesk/internal/protection"
	protectionmemory "civicdesk/internal/protection/store/memory"
	"civicdesk/internal/retention"
	id "civicdesk/pkg/domain"
	dErrors "civicdesk/pkg/domain-errors"
)

type SweeperSuite struct {
	suite.Suite
	ctx      context.Context
	now      time.Time
	pending  *pendingmemory.Store
	logs     *auditmemory.Store
	sessions *adminsessionmemory.Store
	policies *protectionmemory.Store
	sweeper  *retention.Sweeper
}

func TestSweeperSuite(t *testing.T) {
	suite.Run(t, new(SweeperSuite))
}

func (s *SweeperSuite) SetupTest() {
	s.ctx = context.Background()
	s.now = time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	s.pending = pendingmemory.New()
	s.logs = auditmemory.New()
	s.sessions = adminsessionmemory.New()
	s.policies = protectionmemory.New()
	s.sweeper = retention.New(s.policies, retention.Targets{
		Pending:       retention.PurgeFunc(s.pending.DeleteUnprocessedOlderThan),
		ActivityLog:   retention.PurgeFunc(s.logs.DeleteOlderThan),
		AdminSessions: retention.PurgeFunc(s.sessions.DeleteOlderThan),
	},
		retention.WithAuditor(audit.NewRecorder(s.logs, audit.WithClock(func() time.Time { return s.now }))),
		retention.WithClock(func() time.Time { return s.now }),
		retention.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
}

func (s *SweeperSuite) seedPending(created time.Time) id.PendingID {
	item := &pending.Item{ID: id.NewPendingID(), Payload: json.RawMessage(`{}`), CreatedAt: created, UpdatedAt: created}
	s.Require().NoError(s.pending.Create(s.ctx, item))
	return item.ID
}

func (s *SweeperSuite) TestCutoffBoundaryAndDryRun() {
	pendingCutoff := s.now.AddDate(0, 0, -protection.DefaultPendingRetentionDays)
	atCutoff := s.seedPending(pendingCutoff)
	older := s.seedPending(pendingCutoff.Add(-time.Nanosecond))

	s.Require().NoError(s.logs.Append(s.ctx, audit.Entry{
		ID: id.NewEntryID(), Action: audit.ActionCreate, ActorName: "anonymous",
		Timestamp: s.now.AddDate(0, 0, -protection.DefaultActivityLogRetentionDays-1),
	}))
	_, err := s.sessions.Touch(s.ctx, adminsession.Beat{UserID: id.NewUserID(), At: s.now.AddDate(0, 0, -protection.DefaultSessionRetentionDays-1)})
	s.Require().NoError(err)

	dry, err := s.sweeper.Run(s.ctx, true)
	s.Require().NoError(err)
	s.True(dry.DryRun)
	s.Equal(1, dry.PendingDeleted)
	s.Equal(1, dry.ActivityLogDeleted)
	s.Equal(1, dry.AdminSessionsDeleted)
	s.Equal(pendingCutoff, dry.PendingCutoff)
	_, err = s.pending.Get(s.ctx, older)
	s.Require().NoError(err, "dry run never deletes")

	rep, err := s.sweeper.Run(s.ctx, false)
	s.Require().NoError(err)
	s.Equal(1, rep.PendingDeleted)

	_, err = s.pending.Get(s.ctx, older)
	s.Error(err)
	_, err = s.pending.Get(s.ctx, atCutoff)
	s.NoError(err, "an item exactly at the cutoff is kept")

	entries, err := s.logs.List(s.ctx, audit.Filter{})
	s.Require().NoError(err)
	s.Require().Len(entries, 1, "only the sweep entry remains")
	s.Equal(audit.ActionSweep, entries[0].Action)
}

func (s *SweeperSuite) TestPolicyWindowsApply() {
	days := 1
	_, err := protection.NewService(s.policies).Update(s.ctx, protection.Update{PendingRetentionDays: &days})
	s.Require().NoError(err)
	s.seedPending(s.now.Add(-36 * time.Hour))

	rep, err := s.sweeper.Run(s.ctx, true)
	s.Require().NoError(err)
	s.Equal(s.now.AddDate(0, 0, -1), rep.PendingCutoff)
	s.Equal(1, rep.PendingDeleted)
}

func (s *SweeperSuite) TestFailureIsReported() {
	sweeper := retention.New(s.policies, retention.Targets{
		Pending: retention.PurgeFunc(func(context.Context, time.Time, bool) (int, error) {
			return 0, errors.New("connection refused")
		}),
		ActivityLog:   retention.PurgeFunc(s.logs.DeleteOlderThan),
		AdminSessions: retention.PurgeFunc(s.sessions.DeleteOlderThan),
	})
	_, err := sweeper.Run(s.ctx, false)
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
}

func (s *SweeperSuite) TestConcurrentRunsShareOneSweep() {
	var calls atomic.Int32
	release := make(chan struct{})
	slow := retention.PurgeFunc(func(context.Context, time.Time, bool) (int, error) {
		calls.Add(1)
		<-release
		return 0, nil
	})
	sweeper := retention.New(s.policies, retention.Targets{
		Pending:       slow,
		ActivityLog:   retention.PurgeFunc(s.logs.DeleteOlderThan),
		AdminSessions: retention.PurgeFunc(s.sessions.DeleteOlderThan),
	})

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := sweeper.Run(s.ctx, true)
			s.NoError(err)
		}()
	}
	s.Eventually(func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	s.Equal(int32(1), calls.Load())
}

func (s *SweeperSuite) TestDryRunAndRealSweepNeverOverlap() {
	var calls, active, peak atomic.Int32
	release := make(chan struct{})
	tracked := retention.PurgeFunc(func(_ context.Context, _ time.Time, dryRun bool) (int, error) {
		calls.Add(1)
		n := active.Add(1)
		defer active.Add(-1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		if dryRun {
			<-release
		}
		return 0, nil
	})
	sweeper := retention.New(s.policies, retention.Targets{
		Pending:       tracked,
		ActivityLog:   retention.PurgeFunc(s.logs.DeleteOlderThan),
		AdminSessions: retention.PurgeFunc(s.sessions.DeleteOlderThan),
	})

	var wg sync.WaitGroup
	var real retention.Report
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, err := sweeper.Run(s.ctx, true)
		s.NoError(err)
	}()
	s.Eventually(func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	go func() {
		defer wg.Done()
		var err error
		real, err = sweeper.Run(s.ctx, false)
		s.NoError(err)
	}()

	time.Sleep(20 * time.Millisecond)
	s.Equal(int32(1), calls.Load(), "the real sweep waits for the dry run")
	close(release)
	wg.Wait()

	s.Equal(int32(2), calls.Load())
	s.Equal(int32(1), peak.Load())
	s.False(real.DryRun)
}

func (s *SweeperSuite) TestScheduleStopsWithContext() {
	ctx, cancel := context.WithCancel(s.ctx)
	done := make(chan struct{})
	go func() {
		s.sweeper.Schedule(ctx, 10*time.Millisecond)
		close(done)
	}()
	time.Sleep(35 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		s.Fail("scheduler did not stop")
	}
}
