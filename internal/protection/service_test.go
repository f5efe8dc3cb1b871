package protection_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"civicdesk/internal/audit"
	auditmemory "civicdesk/internal/audit/store/memory"
	"civicdesk/internal/protection"
	protmemory "civicdesk/internal/protection/store/memory"
	dErrors "civicdesk/pkg/domain-errors"
)

type ServiceSuite struct {
	suite.Suite
	logs    *auditmemory.Store
	service *protection.Service
	now     time.Time
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.now = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	s.logs = auditmemory.New()
	s.service = protection.NewService(protmemory.New(),
		protection.WithAuditor(audit.NewRecorder(s.logs)),
		protection.WithClock(func() time.Time { return s.now }),
	)
}

func (s *ServiceSuite) updates() []audit.Entry {
	entries, err := s.logs.List(context.Background(), audit.Filter{TargetType: audit.TargetProtection})
	s.Require().NoError(err)
	return entries
}

func (s *ServiceSuite) TestGetCreatesDefaults() {
	p, err := s.service.Get(context.Background())
	s.Require().NoError(err)
	s.True(p.EnableCaptchaDeclarations)
	s.Equal("5/m", p.RateLimitDeclarations)
	s.NotNil(p.IPBlacklist)
}

func (s *ServiceSuite) TestUpdateAuditsDiff() {
	rate := "10/h"
	off := false
	list := protection.IPList{"10.0.0.7"}

	p, err := s.service.Update(context.Background(), protection.Update{
		RateLimitDeclarations:     &rate,
		EnableCaptchaDeclarations: &off,
		IPBlacklist:               &list,
	})
	s.Require().NoError(err)
	s.Equal("10/h", p.RateLimitDeclarations)
	s.Equal(s.now, p.UpdatedAt)

	entries := s.updates()
	s.Require().Len(entries, 1)
	s.Equal(audit.ActionUpdate, entries[0].Action)
	var diff map[string]audit.Change
	s.Require().NoError(json.Unmarshal([]byte(entries[0].Details), &diff))
	s.Len(diff, 3)
	s.Equal("5/m", diff["rate_limit_declarations"].Old)
	s.Equal("10/h", diff["rate_limit_declarations"].New)
	s.Contains(diff, "ip_blacklist")

	s.Run("persisted", func() {
		again, err := s.service.Get(context.Background())
		s.Require().NoError(err)
		s.False(again.EnableCaptchaDeclarations)
		s.True(again.Blacklisted("10.0.0.7"))
	})

	s.Run("no-op update is not audited", func() {
		_, err := s.service.Update(context.Background(), protection.Update{RateLimitDeclarations: &rate})
		s.Require().NoError(err)
		s.Len(s.updates(), 1)
	})
}

func (s *ServiceSuite) TestInvalidUpdateChangesNothing() {
	bad := "often"
	_, err := s.service.Update(context.Background(), protection.Update{RateLimitDeclarations: &bad})
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	p, err := s.service.Get(context.Background())
	s.Require().NoError(err)
	s.Equal("5/m", p.RateLimitDeclarations)
	s.Empty(s.updates())
}
