package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Metrics holds the process-wide intake counters.
type Metrics struct {
	DeclarationsCreated          prometheus.Counter
	DeclarationsSynced           prometheus.Counter
	PendingDeclarationsCreated   prometheus.Counter
	PendingDeclarationsProcessed prometheus.Counter
	SyncErrors                   prometheus.Counter
	RecaptchaFailures            prometheus.Counter
	RateLimitHits                prometheus.Counter
	AuditWriteFailures           prometheus.Counter
}

// Snapshot is the JSON view served by the admin metrics endpoint.
type Snapshot struct {
	DeclarationsCreated          int64 `json:"declarations_created"`
	DeclarationsSynced           int64 `json:"declarations_synced"`
	PendingDeclarationsCreated   int64 `json:"pending_declarations_created"`
	PendingDeclarationsProcessed int64 `json:"pending_declarations_processed"`
	SyncErrors                   int64 `json:"sync_errors"`
	RecaptchaFailures            int64 `json:"recaptcha_failures"`
	RateLimitHits                int64 `json:"rate_limit_hits"`
}

// New registers every counter on reg. Pass prometheus.NewRegistry() in tests
// so repeated construction does not collide on the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	counter := func(name, help string) prometheus.Counter {
		return f.NewCounter(prometheus.CounterOpts{
			Namespace: "civicdesk",
			Name:      name,
			Help:      help,
		})
	}
	return &Metrics{
		DeclarationsCreated:          counter("declarations_created_total", "Declarations created through the direct path"),
		DeclarationsSynced:           counter("declarations_synced_total", "Declarations created by batch sync"),
		PendingDeclarationsCreated:   counter("pending_declarations_created_total", "Pending items created"),
		PendingDeclarationsProcessed: counter("pending_declarations_processed_total", "Pending items promoted to declarations"),
		SyncErrors:                   counter("sync_errors_total", "Unexpected per-item failures during sync"),
		RecaptchaFailures:            counter("recaptcha_failures_total", "CAPTCHA verifications that failed or could not complete"),
		RateLimitHits:                counter("rate_limit_hits_total", "Requests rejected by the rate limiter"),
		AuditWriteFailures:           counter("audit_write_failures_total", "Activity log writes that failed"),
	}
}

func (m *Metrics) IncDeclarationsCreated() {
	if m != nil {
		m.DeclarationsCreated.Inc()
	}
}

func (m *Metrics) IncDeclarationsSynced() {
	if m != nil {
		m.DeclarationsSynced.Inc()
	}
}

func (m *Metrics) IncPendingCreated() {
	if m != nil {
		m.PendingDeclarationsCreated.Inc()
	}
}

func (m *Metrics) IncPendingProcessed() {
	if m != nil {
		m.PendingDeclarationsProcessed.Inc()
	}
}

func (m *Metrics) IncSyncErrors() {
	if m != nil {
		m.SyncErrors.Inc()
	}
}

func (m *Metrics) IncRecaptchaFailures() {
	if m != nil {
		m.RecaptchaFailures.Inc()
	}
}

func (m *Metrics) IncRateLimitHits() {
	if m != nil {
		m.RateLimitHits.Inc()
	}
}

func (m *Metrics) IncAuditWriteFailures() {
	if m != nil {
		m.AuditWriteFailures.Inc()
	}
}

// Snapshot reads the current counter values.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	return Snapshot{
		DeclarationsCreated:          read(m.DeclarationsCreated),
		DeclarationsSynced:           read(m.DeclarationsSynced),
		PendingDeclarationsCreated:   read(m.PendingDeclarationsCreated),
		PendingDeclarationsProcessed: read(m.PendingDeclarationsProcessed),
		SyncErrors:                   read(m.SyncErrors),
		RecaptchaFailures:            read(m.RecaptchaFailures),
		RateLimitHits:                read(m.RateLimitHits),
	}
}

func read(c prometheus.Counter) int64 {
	var out dto.Metric
	if err := c.Write(&out); err != nil {
		return 0
	}
	return int64(out.GetCounter().GetValue())
}
