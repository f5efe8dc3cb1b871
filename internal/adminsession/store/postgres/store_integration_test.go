//go:build integration

package postgres_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"civicdesk/internal/adminsession"
	sessionpg "civicdesk/internal/adminsession/store/postgres"
	id "civicdesk/pkg/domain"
	"civicdesk/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *sessionpg.Store
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.store = sessionpg.New(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "admin_sessions"))
}

func (s *PostgresStoreSuite) TestConcurrentTouchesConverge() {
	ctx := context.Background()
	user := id.NewUserID()
	start := time.Now().UTC().Truncate(time.Microsecond)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.store.Touch(ctx, adminsession.Beat{
				UserID: user, Username: "admin", IPAddress: "10.0.0.1", At: start.Add(time.Duration(i) * time.Second),
			})
			s.NoError(err)
		}(i)
	}
	wg.Wait()

	items, total, err := s.store.List(ctx, 10, 0)
	s.Require().NoError(err)
	s.Equal(1, total)
	s.Require().Len(items, 1)
	s.Equal(user, items[0].UserID)
}

func (s *PostgresStoreSuite) TestCountAndDelete() {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)
	_, err := s.store.Touch(ctx, adminsession.Beat{UserID: id.NewUserID(), IPAddress: "10.0.0.1", At: now.Add(-3 * time.Hour)})
	s.Require().NoError(err)
	_, err = s.store.Touch(ctx, adminsession.Beat{UserID: id.NewUserID(), IPAddress: "10.0.0.2", At: now})
	s.Require().NoError(err)

	counts, err := s.store.Count(ctx, now.Add(-time.Hour))
	s.Require().NoError(err)
	s.Equal(adminsession.Counts{Total: 2, Active: 1}, counts)

	n, err := s.store.DeleteOlderThan(ctx, now.Add(-time.Hour), true)
	s.Require().NoError(err)
	s.Equal(1, n)
	n, err = s.store.DeleteOlderThan(ctx, now.Add(-time.Hour), false)
	s.Require().NoError(err)
	s.Equal(1, n)

	counts, err = s.store.Count(ctx, now.Add(-time.Hour))
	s.Require().NoError(err)
	s.Equal(1, counts.Total)
}
