//go:build integration

package postgres_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/suite"

	"civicdesk/internal/protection"
	protpg "civicdesk/internal/protection/store/postgres"
	"civicdesk/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *protpg.Store
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.store = protpg.New(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "protection_policy"))
}

func (s *PostgresStoreSuite) TestConcurrentFirstGetSeedsOnce() {
	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.store.Get(context.Background())
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		s.NoError(err)
	}

	var rows int
	s.Require().NoError(s.postgres.DB.QueryRow(`SELECT count(*) FROM protection_policy`).Scan(&rows))
	s.Equal(1, rows)
}

func (s *PostgresStoreSuite) TestSaveRoundTripsBlacklist() {
	ctx := context.Background()
	p, err := s.store.Get(ctx)
	s.Require().NoError(err)
	s.Empty(p.IPBlacklist)

	p.IPBlacklist = protection.IPList{"10.0.0.1", "2001:db8::1"}
	p.EnableCaptchaClues = true
	p.ActivityLogRetentionDays = 30
	s.Require().NoError(s.store.Save(ctx, p))

	got, err := s.store.Get(ctx)
	s.Require().NoError(err)
	s.Equal(protection.IPList{"10.0.0.1", "2001:db8::1"}, got.IPBlacklist)
	s.True(got.EnableCaptchaClues)
	s.Equal(30, got.ActivityLogRetentionDays)
}
