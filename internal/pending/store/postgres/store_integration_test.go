//go:build integration

package postgres_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"civicdesk/internal/pending"
	pendingpg "civicdesk/internal/pending/store/postgres"
	id "civicdesk/pkg/domain"
	"civicdesk/pkg/platform/sentinel"
	txcontext "civicdesk/pkg/platform/tx"
	"civicdesk/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *pendingpg.Store
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.store = pendingpg.New(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "pending_items"))
}

func fixture(created time.Time) *pending.Item {
	client := "device-1"
	return &pending.Item{
		ID:        id.NewPendingID(),
		ClientID:  &client,
		Payload:   json.RawMessage(`{"phone":"12"}`),
		Error:     `{"phone":"invalid format"}`,
		CreatedAt: created.UTC().Truncate(time.Microsecond),
		UpdatedAt: created.UTC().Truncate(time.Microsecond),
	}
}

func (s *PostgresStoreSuite) TestRoundTripAndUpdate() {
	ctx := context.Background()
	item := fixture(time.Now())
	s.Require().NoError(s.store.Create(ctx, item))
	s.ErrorIs(s.store.Create(ctx, item), sentinel.ErrConflict)

	got, err := s.store.Get(ctx, item.ID)
	s.Require().NoError(err)
	s.Equal("device-1", *got.ClientID)
	s.JSONEq(`{"phone":"12"}`, string(got.Payload))
	s.Equal(item.Error, got.Error)
	s.Nil(got.ProcessedBy)

	now := time.Now().UTC().Truncate(time.Microsecond)
	by := id.NewUserID()
	code := "ABCD-EFGH-JKMN"
	got.Processed = true
	got.ProcessedAt = &now
	got.ProcessedBy = &by
	got.TrackingCode = &code
	got.Error = ""
	s.Require().NoError(s.store.Update(ctx, got))

	again, err := s.store.Get(ctx, item.ID)
	s.Require().NoError(err)
	s.True(again.Processed)
	s.Equal(by, *again.ProcessedBy)
	s.True(now.Equal(*again.ProcessedAt))
	s.Equal(code, *again.TrackingCode)

	_, err = s.store.Get(ctx, id.NewPendingID())
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestGetInsideTransaction() {
	ctx := context.Background()
	item := fixture(time.Now())
	s.Require().NoError(s.store.Create(ctx, item))

	err := txcontext.NewRunner(s.postgres.DB).RunInTx(ctx, func(ctx context.Context) error {
		got, err := s.store.Get(ctx, item.ID)
		if err != nil {
			return err
		}
		got.Error = "retry later"
		return s.store.Update(ctx, got)
	})
	s.Require().NoError(err)

	got, err := s.store.Get(ctx, item.ID)
	s.Require().NoError(err)
	s.Equal("retry later", got.Error)
}

func (s *PostgresStoreSuite) TestListCountAndSweep() {
	ctx := context.Background()
	cutoff := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	atCutoff := fixture(cutoff)
	older := fixture(cutoff.Add(-time.Hour))
	done := fixture(cutoff.Add(-2 * time.Hour))
	done.Processed = true
	for _, it := range []*pending.Item{atCutoff, older, done} {
		s.Require().NoError(s.store.Create(ctx, it))
	}

	open := false
	items, total, err := s.store.List(ctx, pending.ListFilter{Processed: &open, Limit: 1})
	s.Require().NoError(err)
	s.Equal(2, total)
	s.Require().Len(items, 1)
	s.Equal(atCutoff.ID, items[0].ID)

	counts, err := s.store.Count(ctx)
	s.Require().NoError(err)
	s.Equal(pending.Counts{Processed: 1, Unprocessed: 2}, counts)

	n, err := s.store.DeleteUnprocessedOlderThan(ctx, cutoff, true)
	s.Require().NoError(err)
	s.Equal(1, n)

	n, err = s.store.DeleteUnprocessedOlderThan(ctx, cutoff, false)
	s.Require().NoError(err)
	s.Equal(1, n)

	all, err := s.store.ListAll(ctx)
	s.Require().NoError(err)
	s.Len(all, 2)
}
