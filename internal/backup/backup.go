// Package backup exports the intake data as one JSON document and imports
// declarations from such a document without overwriting anything.
package backup

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"civicdesk/internal/audit"
	"civicdesk/internal/declaration"
	"civicdesk/internal/pending"
	"civicdesk/internal/protection"
	dErrors "civicdesk/pkg/domain-errors"
	"civicdesk/pkg/requestcontext"
)

// FormatVersion is bumped when the document layout changes.
const FormatVersion = 1

type Declarations interface {
	ListAll(ctx context.Context) ([]*declaration.Declaration, error)
	Import(ctx context.Context, d *declaration.Declaration) error
}

type PendingItems interface {
	ListAll(ctx context.Context) ([]*pending.Item, error)
}

type Policies interface {
	Get(ctx context.Context) (*protection.Policy, error)
}

type AuditRecorder interface {
	Record(ctx context.Context, ev audit.Event)
}

type nopAuditor struct{}

func (nopAuditor) Record(context.Context, audit.Event) {}

// Document is the backup file.
type Document struct {
	Version      int                        `json:"version"`
	ExportedAt   time.Time                  `json:"exported_at"`
	Declarations []*declaration.Declaration `json:"declarations"`
	PendingItems []*pending.Item            `json:"pending_declarations"`
	Policy       *protection.Policy         `json:"protection_settings"`
}

// Failure is one declaration that could not be imported.
type Failure struct {
	TrackingCode string `json:"tracking_code"`
	Error        string `json:"error"`
}

// RestoreReport counts what a restore did.
type RestoreReport struct {
	Imported int       `json:"imported"`
	Skipped  int       `json:"skipped"`
	Failed   []Failure `json:"failed"`
}

type Service struct {
	declarations Declarations
	pending      PendingItems
	policies     Policies
	auditor      AuditRecorder
	logger       *slog.Logger
	now          func() time.Time
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditor(a AuditRecorder) Option {
	return func(s *Service) {
		s.auditor = a
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func New(declarations Declarations, pendingItems PendingItems, policies Policies, opts ...Option) *Service {
	s := &Service{
		declarations: declarations,
		pending:      pendingItems,
		policies:     policies,
		auditor:      nopAuditor{},
		logger:       slog.Default(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Export reads the three sources concurrently.
func (s *Service) Export(ctx context.Context) (*Document, error) {
	doc := &Document{Version: FormatVersion, ExportedAt: s.now().UTC()}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		doc.Declarations, err = s.declarations.ListAll(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		doc.PendingItems, err = s.pending.ListAll(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		doc.Policy, err = s.policies.Get(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to export data")
	}

	s.auditor.Record(ctx, audit.Event{
		Action:     audit.ActionBackup,
		TargetType: audit.TargetBackup,
		TargetID:   "system",
		Details: map[string]int{
			"declarations_count":         len(doc.Declarations),
			"pending_declarations_count": len(doc.PendingItems),
		},
		Sensitive: true,
	})
	return doc, nil
}

// Restore imports every declaration whose id and tracking code are both
// unused. Existing records are skipped, never overwritten. Pending items
// and protection settings in the document are ignored.
func (s *Service) Restore(ctx context.Context, doc *Document) (*RestoreReport, error) {
	if doc == nil || doc.Declarations == nil {
		return nil, dErrors.NewValidation("declarations list required", map[string]string{"declarations": "required"})
	}
	if doc.Version > FormatVersion {
		return nil, dErrors.Newf(dErrors.CodeBadRequest, "unsupported backup version %d", doc.Version)
	}

	report := &RestoreReport{Failed: []Failure{}}
	for _, d := range doc.Declarations {
		if d == nil {
			continue
		}
		err := s.declarations.Import(ctx, d)
		switch {
		case err == nil:
			report.Imported++
		case dErrors.HasCode(err, dErrors.CodeConflict):
			report.Skipped++
		case dErrors.HasCode(err, dErrors.CodeValidation):
			report.Failed = append(report.Failed, Failure{TrackingCode: d.TrackingCode, Error: err.Error()})
		default:
			s.logger.ErrorContext(ctx, "restore aborted",
				"request_id", requestcontext.RequestID(ctx),
				"tracking_code", d.TrackingCode,
				"error", err,
			)
			return nil, err
		}
	}

	s.auditor.Record(ctx, audit.Event{
		Action:     audit.ActionRestore,
		TargetType: audit.TargetBackup,
		TargetID:   "system",
		Details: map[string]int{
			"imported": report.Imported,
			"skipped":  report.Skipped,
			"failed":   len(report.Failed),
		},
		Sensitive: true,
	})
	return report, nil
}
