// Package reconcile classifies a batch of offline-captured declarations.
// Each item is created, parked as a pending item, or reported as an error;
// a failure on one item never affects the others.
package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"

	"civicdesk/internal/audit"
	"civicdesk/internal/declaration"
	"civicdesk/internal/pending"
	"civicdesk/internal/platform/metrics"
	"civicdesk/internal/platform/tracing"
	id "civicdesk/pkg/domain"
	dErrors "civicdesk/pkg/domain-errors"
	"civicdesk/pkg/requestcontext"
)

// ErrAlreadyExists is the message reported for a tracking code that is
// already committed.
const ErrAlreadyExists = "Declaration already exists"

type Declarations interface {
	ExistsTrackingCode(ctx context.Context, code string) (bool, error)
	Commit(ctx context.Context, draft declaration.Draft, source declaration.Source) (*declaration.Declaration, error)
}

type PendingQueue interface {
	Quarantine(ctx context.Context, item pending.NewItem) (*pending.Item, error)
}

type AuditRecorder interface {
	Record(ctx context.Context, ev audit.Event)
}

type nopAuditor struct{}

func (nopAuditor) Record(context.Context, audit.Event) {}

// ItemError describes an item that was neither created nor parked.
type ItemError struct {
	TrackingCode *string `json:"tracking_code"`
	Error        string  `json:"error"`
}

// Result is the per-batch summary returned to the client.
type Result struct {
	CreatedCount int            `json:"created_count"`
	PendingCount int            `json:"pending_count"`
	ErrorsCount  int            `json:"errors_count"`
	Created      []string       `json:"created"`
	PendingIDs   []id.PendingID `json:"pending_ids"`
	Errors       []ItemError    `json:"errors"`
}

type Reconciler struct {
	declarations Declarations
	pending      PendingQueue
	auditor      AuditRecorder
	metrics      *metrics.Metrics
	logger       *slog.Logger
}

type Option func(*Reconciler)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Reconciler) {
		r.logger = logger
	}
}

func WithAuditor(a AuditRecorder) Option {
	return func(r *Reconciler) {
		r.auditor = a
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Reconciler) {
		r.metrics = m
	}
}

func New(declarations Declarations, queue PendingQueue, opts ...Option) *Reconciler {
	r := &Reconciler{
		declarations: declarations,
		pending:      queue,
		auditor:      nopAuditor{},
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Sync processes items in submission order. It only fails when the batch
// itself is empty; per-item failures are reported in the Result.
func (r *Reconciler) Sync(ctx context.Context, items []json.RawMessage) (*Result, error) {
	if len(items) == 0 {
		return nil, dErrors.NewValidation("declarations list required", map[string]string{"declarations": "must be a non-empty list"})
	}

	ctx, end := tracing.StartSpan(ctx, "reconcile.batch", attribute.Int("batch.size", len(items)))
	defer end(nil)

	res := &Result{Created: []string{}, PendingIDs: []id.PendingID{}, Errors: []ItemError{}}
	for _, raw := range items {
		r.one(ctx, raw, res)
	}
	res.CreatedCount = len(res.Created)
	res.PendingCount = len(res.PendingIDs)
	res.ErrorsCount = len(res.Errors)

	tracing.Annotate(ctx,
		attribute.Int("batch.created", res.CreatedCount),
		attribute.Int("batch.pending", res.PendingCount),
		attribute.Int("batch.errors", res.ErrorsCount),
	)
	r.auditor.Record(ctx, audit.Event{
		Action:     audit.ActionSync,
		TargetType: audit.TargetSyncBatch,
		TargetID:   id.NewEntryID().String(),
		Details: map[string]int{
			"items":         len(items),
			"created_count": res.CreatedCount,
			"pending_count": res.PendingCount,
			"errors_count":  res.ErrorsCount,
		},
	})
	r.logger.InfoContext(ctx, "sync batch reconciled",
		"request_id", requestcontext.RequestID(ctx),
		"items", len(items),
		"created", res.CreatedCount,
		"pending", res.PendingCount,
		"errors", res.ErrorsCount,
	)
	return res, nil
}

func (r *Reconciler) one(ctx context.Context, raw json.RawMessage, res *Result) {
	refs := pending.ExtractRefs(raw)

	var (
		created *declaration.Declaration
		invalid error
	)
	err := func() error {
		if refs.TrackingCode != nil {
			exists, err := r.declarations.ExistsTrackingCode(ctx, *refs.TrackingCode)
			if err != nil {
				return err
			}
			if exists {
				return errDuplicate
			}
		}
		in, err := declaration.DecodePayload(raw)
		if err != nil {
			invalid = err
			return nil
		}
		in.Normalize()
		draft, err := in.Draft()
		if err != nil {
			invalid = err
			return nil
		}
		// Commit re-checks the code under the declaration lock, so a code
		// taken since the lookup above still resolves to a duplicate.
		created, err = r.declarations.Commit(ctx, draft, declaration.SourceSync)
		switch {
		case errors.Is(err, declaration.ErrCodeTaken):
			return errDuplicate
		case dErrors.HasCode(err, dErrors.CodeValidation):
			invalid = err
			return nil
		}
		return err
	}()

	switch {
	case err == errDuplicate:
		res.Errors = append(res.Errors, ItemError{TrackingCode: refs.TrackingCode, Error: ErrAlreadyExists})
	case err != nil:
		r.metrics.IncSyncErrors()
		r.logger.ErrorContext(ctx, "sync item failed",
			"request_id", requestcontext.RequestID(ctx),
			"tracking_code", refs.TrackingCode,
			"error", err,
		)
		r.park(ctx, raw, refs, err.Error(), res)
	case invalid != nil:
		r.park(ctx, raw, refs, pending.FailureText(invalid), res)
	default:
		res.Created = append(res.Created, created.TrackingCode)
	}
}

// park quarantines the raw item. If even that fails the item is reported
// as an error so the client keeps it queued.
func (r *Reconciler) park(ctx context.Context, raw json.RawMessage, refs pending.Refs, reason string, res *Result) {
	item, err := r.pending.Quarantine(ctx, pending.NewItem{
		Payload:      raw,
		ClientID:     refs.ClientID,
		TrackingCode: refs.TrackingCode,
		Error:        reason,
	})
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to park sync item",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		res.Errors = append(res.Errors, ItemError{TrackingCode: refs.TrackingCode, Error: reason})
		return
	}
	res.PendingIDs = append(res.PendingIDs, item.ID)
}

var errDuplicate = dErrors.New(dErrors.CodeConflict, ErrAlreadyExists)
