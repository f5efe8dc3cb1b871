package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"civicdesk/internal/declaration"
	id "civicdesk/pkg/domain"
	"civicdesk/pkg/platform/sentinel"
)

type StoreSuite struct {
	suite.Suite
	store *Store
	ctx   context.Context
}

func TestStoreSuite(t *testing.T) {
	suite.Run(t, new(StoreSuite))
}

func (s *StoreSuite) SetupTest() {
	s.store = New()
	s.ctx = context.Background()
}

func record(code string, created time.Time) *declaration.Declaration {
	return &declaration.Declaration{
		ID:            id.NewDeclarationID(),
		TrackingCode:  code,
		DeclarantName: "Afi",
		Type:          "loss",
		Category:      "passport",
		Description:   "Passport lost near " + code,
		Location:      "Lomé",
		Status:        declaration.StatusPending,
		CreatedAt:     created,
		UpdatedAt:     created,
	}
}

func (s *StoreSuite) TestCreateRejectsDuplicates() {
	d := record("AAAA-AAAA-AAAA", time.Now())
	s.Require().NoError(s.store.Create(s.ctx, d))

	s.Run("same tracking code", func() {
		other := record("AAAA-AAAA-AAAA", time.Now())
		s.ErrorIs(s.store.Create(s.ctx, other), sentinel.ErrConflict)
	})

	s.Run("same id", func() {
		other := record("BBBB-BBBB-BBBB", time.Now())
		other.ID = d.ID
		s.ErrorIs(s.store.Create(s.ctx, other), sentinel.ErrConflict)
	})
}

func (s *StoreSuite) TestReturnsCopies() {
	d := record("AAAA-AAAA-AAAA", time.Now())
	s.Require().NoError(s.store.Create(s.ctx, d))
	d.DeclarantName = "mutated"

	got, err := s.store.GetByID(s.ctx, d.ID)
	s.Require().NoError(err)
	s.Equal("Afi", got.DeclarantName)
	got.DeclarantName = "mutated again"

	again, err := s.store.GetByTrackingCode(s.ctx, "AAAA-AAAA-AAAA")
	s.Require().NoError(err)
	s.Equal("Afi", again.DeclarantName)
}

func (s *StoreSuite) TestListFilterAndPaging() {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, code := range []string{"AAAA-0001", "AAAA-0002", "AAAA-0003"} {
		s.Require().NoError(s.store.Create(s.ctx, record(code, base.Add(time.Duration(i)*time.Hour))))
	}

	items, total, err := s.store.List(s.ctx, declaration.ListFilter{Limit: 2})
	s.Require().NoError(err)
	s.Equal(3, total)
	s.Require().Len(items, 2)
	s.Equal("AAAA-0003", items[0].TrackingCode)

	items, total, err = s.store.List(s.ctx, declaration.ListFilter{Search: "0002", Limit: 10})
	s.Require().NoError(err)
	s.Equal(1, total)
	s.Equal("AAAA-0002", items[0].TrackingCode)

	items, _, err = s.store.List(s.ctx, declaration.ListFilter{Limit: 10, Offset: 5})
	s.Require().NoError(err)
	s.Empty(items)
}

func (s *StoreSuite) TestUpdateDeleteCount() {
	d := record("AAAA-AAAA-AAAA", time.Now())
	s.Require().NoError(s.store.Create(s.ctx, d))

	d.Status = declaration.StatusResolved
	s.Require().NoError(s.store.Update(s.ctx, d))
	counts, err := s.store.CountByStatus(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, counts[declaration.StatusResolved])

	s.Require().NoError(s.store.Delete(s.ctx, d.ID))
	s.ErrorIs(s.store.Delete(s.ctx, d.ID), sentinel.ErrNotFound)
	s.ErrorIs(s.store.Update(s.ctx, d), sentinel.ErrNotFound)
	exists, err := s.store.ExistsTrackingCode(s.ctx, "AAAA-AAAA-AAAA")
	s.Require().NoError(err)
	s.False(exists)
}
