package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
)

func TestSnapshotReflectsIncrements(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.IncDeclarationsCreated()
	m.IncDeclarationsSynced()
	m.IncDeclarationsSynced()
	m.IncPendingCreated()
	m.IncSyncErrors()
	m.IncRateLimitHits()
	m.IncRateLimitHits()
	m.IncRateLimitHits()

	snap := m.Snapshot()
	assert.Equal(t, int64(1), snap.DeclarationsCreated)
	assert.Equal(t, int64(2), snap.DeclarationsSynced)
	assert.Equal(t, int64(1), snap.PendingDeclarationsCreated)
	assert.Equal(t, int64(0), snap.PendingDeclarationsProcessed)
	assert.Equal(t, int64(1), snap.SyncErrors)
	assert.Equal(t, int64(3), snap.RateLimitHits)
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.IncDeclarationsCreated()
		m.IncRecaptchaFailures()
	})
	assert.Equal(t, Snapshot{}, m.Snapshot())
}
