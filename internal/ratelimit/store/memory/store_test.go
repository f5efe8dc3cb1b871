package memory

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

const (
	testLimit  = 5
	testWindow = time.Minute
)

type StoreSuite struct {
	suite.Suite
	ctx   context.Context
	now   time.Time
	store *Store
}

func TestStoreSuite(t *testing.T) {
	suite.Run(t, new(StoreSuite))
}

func (s *StoreSuite) SetupTest() {
	s.ctx = context.Background()
	s.now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.store = New(WithClock(func() time.Time { return s.now }))
}

func (s *StoreSuite) TestIncrementAndCheck() {
	s.Run("hits up to the limit are allowed", func() {
		for i := range testLimit {
			ok, err := s.store.IncrementAndCheck(s.ctx, "k:limit", testWindow, testLimit)
			s.Require().NoError(err)
			s.True(ok, "hit %d", i+1)
		}
	})

	s.Run("hit over the limit is denied and not recorded", func() {
		for range testLimit {
			_, _ = s.store.IncrementAndCheck(s.ctx, "k:over", testWindow, testLimit)
		}
		ok, err := s.store.IncrementAndCheck(s.ctx, "k:over", testWindow, testLimit)
		s.Require().NoError(err)
		s.False(ok)
		s.Equal(testLimit, s.store.Count("k:over"))
	})

	s.Run("keys are independent", func() {
		for range testLimit {
			_, _ = s.store.IncrementAndCheck(s.ctx, "k:a", testWindow, testLimit)
		}
		ok, err := s.store.IncrementAndCheck(s.ctx, "k:b", testWindow, testLimit)
		s.Require().NoError(err)
		s.True(ok)
	})

	s.Run("zero limit denies", func() {
		ok, err := s.store.IncrementAndCheck(s.ctx, "k:zero", testWindow, 0)
		s.Require().NoError(err)
		s.False(ok)
	})
}

func (s *StoreSuite) TestWindowSlides() {
	for range testLimit {
		_, _ = s.store.IncrementAndCheck(s.ctx, "k:slide", testWindow, testLimit)
	}
	s.now = s.now.Add(testWindow - time.Second)
	ok, _ := s.store.IncrementAndCheck(s.ctx, "k:slide", testWindow, testLimit)
	s.False(ok, "still inside the window")

	s.now = s.now.Add(time.Second)
	ok, _ = s.store.IncrementAndCheck(s.ctx, "k:slide", testWindow, testLimit)
	s.True(ok, "oldest hits fell out of the window")
}

func (s *StoreSuite) TestReset() {
	for range testLimit {
		_, _ = s.store.IncrementAndCheck(s.ctx, "k:reset", testWindow, testLimit)
	}
	s.store.Reset("k:reset")
	s.Equal(0, s.store.Count("k:reset"))
}

func (s *StoreSuite) TestConcurrentHitsNeverExceedLimit() {
	const goroutines = 50
	var wg sync.WaitGroup
	var allowed atomic.Int32
	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := s.store.IncrementAndCheck(s.ctx, "k:race", testWindow, testLimit); ok {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()
	s.Equal(int32(testLimit), allowed.Load())
}
