package audit_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"civicdesk/internal/audit"
	auditmemory "civicdesk/internal/audit/store/memory"
	id "civicdesk/pkg/domain"
	dErrors "civicdesk/pkg/domain-errors"
	"civicdesk/pkg/requestcontext"
)

type ServiceSuite struct {
	suite.Suite
	ctx     context.Context
	clock   time.Time
	store   *auditmemory.Store
	service *audit.Service
	rec     *audit.Recorder
	admin   id.UserID
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.clock = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.store = auditmemory.New()
	s.rec = audit.NewRecorder(s.store, audit.WithClock(func() time.Time {
		s.clock = s.clock.Add(time.Minute)
		return s.clock
	}))
	s.service = audit.NewService(s.store, s.rec, nil)
	s.admin = id.NewUserID()
	s.ctx = requestcontext.WithActor(context.Background(), requestcontext.ActorInfo{ID: s.admin, Name: "admin", Role: "admin"})
}

func (s *ServiceSuite) seed() {
	s.rec.Record(context.Background(), audit.Event{Action: audit.ActionCreate, TargetType: audit.TargetDeclaration, TargetID: "d1"})
	s.rec.Record(s.ctx, audit.Event{Action: audit.ActionUpdate, TargetType: audit.TargetDeclaration, TargetID: "d1"})
	s.rec.Record(s.ctx, audit.Event{Action: audit.ActionDelete, TargetType: audit.TargetTip, TargetID: "t1"})
}

func (s *ServiceSuite) TestListNewestFirstWithFilters() {
	s.seed()

	s.Run("no filter", func() {
		page, err := s.service.List(context.Background(), audit.Filter{})
		s.Require().NoError(err)
		s.Equal(3, page.Total)
		s.Equal(audit.DefaultPageSize, page.Limit)
		s.Equal(audit.ActionDelete, page.Entries[0].Action)
		s.Equal(audit.ActionCreate, page.Entries[2].Action)
	})

	s.Run("by actor", func() {
		page, err := s.service.List(context.Background(), audit.Filter{ActorID: &s.admin})
		s.Require().NoError(err)
		s.Equal(2, page.Total)
	})

	s.Run("by target", func() {
		page, err := s.service.List(context.Background(), audit.Filter{TargetType: audit.TargetDeclaration, TargetID: "d1"})
		s.Require().NoError(err)
		s.Equal(2, page.Total)
	})

	s.Run("by time range", func() {
		from := time.Date(2026, 1, 1, 0, 2, 0, 0, time.UTC)
		page, err := s.service.List(context.Background(), audit.Filter{From: from})
		s.Require().NoError(err)
		s.Equal(2, page.Total)
	})

	s.Run("paging", func() {
		page, err := s.service.List(context.Background(), audit.Filter{Limit: 1, Offset: 1})
		s.Require().NoError(err)
		s.Equal(3, page.Total)
		s.Require().Len(page.Entries, 1)
		s.Equal(audit.ActionUpdate, page.Entries[0].Action)
	})

	s.Run("limit capped", func() {
		page, err := s.service.List(context.Background(), audit.Filter{Limit: 10_000})
		s.Require().NoError(err)
		s.Equal(audit.MaxPageSize, page.Limit)
	})
}

func (s *ServiceSuite) TestListRejectsBadFilters() {
	_, err := s.service.List(context.Background(), audit.Filter{Action: "PATCH"})
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	t := time.Now()
	_, err = s.service.List(context.Background(), audit.Filter{From: t, To: t})
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *ServiceSuite) TestClearLeavesOnlyTheClearEntry() {
	s.seed()

	deleted, err := s.service.Clear(s.ctx)
	s.Require().NoError(err)
	s.Equal(3, deleted)

	page, err := s.service.List(context.Background(), audit.Filter{})
	s.Require().NoError(err)
	s.Require().Equal(1, page.Total)
	s.Equal(audit.ActionDelete, page.Entries[0].Action)
	s.Equal(audit.TargetActivityLog, page.Entries[0].TargetType)
	s.JSONEq(`{"deleted":3}`, page.Entries[0].Details)
}
