package memory

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"civicdesk/internal/pending"
	id "civicdesk/pkg/domain"
	"civicdesk/pkg/platform/sentinel"
)

func item(created time.Time, processed bool) *pending.Item {
	return &pending.Item{
		ID:        id.NewPendingID(),
		Payload:   json.RawMessage(`{"phone":"123"}`),
		Processed: processed,
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func TestCreateGetUpdate(t *testing.T) {
	ctx := context.Background()
	s := New()
	it := item(time.Now(), false)
	require.NoError(t, s.Create(ctx, it))
	require.ErrorIs(t, s.Create(ctx, it), sentinel.ErrConflict)

	got, err := s.Get(ctx, it.ID)
	require.NoError(t, err)
	got.Error = "changed"
	again, _ := s.Get(ctx, it.ID)
	assert.Empty(t, again.Error, "Get returns a copy")

	require.NoError(t, s.Update(ctx, got))
	again, _ = s.Get(ctx, it.ID)
	assert.Equal(t, "changed", again.Error)

	_, err = s.Get(ctx, id.NewPendingID())
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
	assert.ErrorIs(t, s.Update(ctx, item(time.Now(), false)), sentinel.ErrNotFound)
}

func TestListAndCount(t *testing.T) {
	ctx := context.Background()
	s := New()
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Create(ctx, item(base.Add(time.Duration(i)*time.Hour), i%2 == 0)))
	}

	all, total, err := s.List(ctx, pending.ListFilter{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, all, 2)
	assert.True(t, all[0].CreatedAt.After(all[1].CreatedAt))

	processed := false
	open, total, err := s.List(ctx, pending.ListFilter{Processed: &processed})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, open, 2)

	past, total, err := s.List(ctx, pending.ListFilter{Offset: 10})
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	assert.Empty(t, past)

	counts, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, pending.Counts{Processed: 3, Unprocessed: 2}, counts)
}

func TestDeleteUnprocessedOlderThan(t *testing.T) {
	ctx := context.Background()
	s := New()
	cutoff := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	atCutoff := item(cutoff, false)
	older := item(cutoff.Add(-time.Second), false)
	olderProcessed := item(cutoff.Add(-time.Hour), true)
	for _, it := range []*pending.Item{atCutoff, older, olderProcessed} {
		require.NoError(t, s.Create(ctx, it))
	}

	n, err := s.DeleteUnprocessedOlderThan(ctx, cutoff, true)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	_, err = s.Get(ctx, older.ID)
	require.NoError(t, err, "dry run keeps everything")

	n, err = s.DeleteUnprocessedOlderThan(ctx, cutoff, false)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	_, err = s.Get(ctx, older.ID)
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
	_, err = s.Get(ctx, atCutoff.ID)
	assert.NoError(t, err)
	_, err = s.Get(ctx, olderProcessed.ID)
	assert.NoError(t, err)
}
