package pending

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"civicdesk/internal/audit"
	"civicdesk/internal/declaration"
	"civicdesk/internal/platform/metrics"
	"civicdesk/internal/platform/tracing"
	id "civicdesk/pkg/domain"
	dErrors "civicdesk/pkg/domain-errors"
	"civicdesk/pkg/platform/sentinel"
	txcontext "civicdesk/pkg/platform/tx"
	"civicdesk/pkg/requestcontext"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 200
)

// Declarations is the commit path a processed item is promoted through.
type Declarations interface {
	ExistsTrackingCode(ctx context.Context, code string) (bool, error)
	Commit(ctx context.Context, draft declaration.Draft, source declaration.Source) (*declaration.Declaration, error)
}

// TxRunner scopes the promotion of one item.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type AuditRecorder interface {
	Record(ctx context.Context, ev audit.Event)
}

type nopAuditor struct{}

func (nopAuditor) Record(context.Context, audit.Event) {}

type Service struct {
	store        Store
	declarations Declarations
	tx           TxRunner
	locks        *txcontext.KeyLock
	auditor      AuditRecorder
	metrics      *metrics.Metrics
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

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithTx runs each promotion in a transaction. Without it promotions run
// inline, which suits the in-memory stores.
func WithTx(tx TxRunner) Option {
	return func(s *Service) {
		s.tx = tx
	}
}

func NewService(store Store, declarations Declarations, opts ...Option) *Service {
	s := &Service{
		store:        store,
		declarations: declarations,
		tx:           txcontext.Nop{},
		locks:        txcontext.NewKeyLock(),
		auditor:      nopAuditor{},
		logger:       slog.Default(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewItem is a submission to quarantine.
type NewItem struct {
	Payload      json.RawMessage
	ClientID     *string
	TrackingCode *string
	Error        string
}

// Quarantine stores a submission that could not be committed.
func (s *Service) Quarantine(ctx context.Context, n NewItem) (*Item, error) {
	now := s.now().UTC()
	item := &Item{
		ID:           id.NewPendingID(),
		ClientID:     n.ClientID,
		Payload:      n.Payload,
		TrackingCode: n.TrackingCode,
		Error:        n.Error,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.Create(ctx, item); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store pending declaration")
	}
	s.metrics.IncPendingCreated()
	s.auditor.Record(ctx, audit.Event{
		Action:     audit.ActionCreate,
		TargetType: audit.TargetPending,
		TargetID:   item.ID.String(),
		Details:    map[string]any{"tracking_code": item.TrackingCode, "has_error": item.Error != ""},
		Sensitive:  true,
	})
	return item, nil
}

// SubmitRequest is a client pushing one queued payload for staff review.
type SubmitRequest struct {
	ClientID *string         `json:"client_id"`
	Payload  json.RawMessage `json:"payload"`
}

func (r *SubmitRequest) Normalize() {
	r.Payload = bytes.TrimSpace(r.Payload)
}

func (r *SubmitRequest) Validate() error {
	if len(r.Payload) == 0 || r.Payload[0] != '{' {
		return dErrors.NewValidation("invalid pending declaration", map[string]string{"payload": "must be a JSON object"})
	}
	if r.ClientID != nil && len(*r.ClientID) > 64 {
		return dErrors.NewValidation("invalid pending declaration", map[string]string{"client_id": "is too long"})
	}
	return nil
}

// Submit quarantines a payload pushed by a client. The tracking code and,
// when absent, the client id are read from the payload.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*Item, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	refs := ExtractRefs(req.Payload)
	clientID := req.ClientID
	if clientID == nil {
		clientID = refs.ClientID
	}
	return s.Quarantine(ctx, NewItem{Payload: req.Payload, ClientID: clientID, TrackingCode: refs.TrackingCode})
}

func (s *Service) Get(ctx context.Context, itemID id.PendingID) (*Item, error) {
	item, err := s.store.Get(ctx, itemID)
	if err != nil {
		return nil, translate(err)
	}
	return item, nil
}

func (s *Service) List(ctx context.Context, filter ListFilter) ([]*Item, int, error) {
	if filter.Limit <= 0 {
		filter.Limit = DefaultPageSize
	}
	if filter.Limit > MaxPageSize {
		filter.Limit = MaxPageSize
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	items, total, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list pending declarations")
	}
	return items, total, nil
}

func (s *Service) ListAll(ctx context.Context) ([]*Item, error) {
	items, err := s.store.ListAll(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list pending declarations")
	}
	return items, nil
}

func (s *Service) Count(ctx context.Context) (Counts, error) {
	c, err := s.store.Count(ctx)
	if err != nil {
		return c, dErrors.Wrap(err, dErrors.CodeInternal, "failed to count pending declarations")
	}
	return c, nil
}

// DeleteUnprocessedOlderThan is the retention hook.
func (s *Service) DeleteUnprocessedOlderThan(ctx context.Context, cutoff time.Time, dryRun bool) (int, error) {
	return s.store.DeleteUnprocessedOlderThan(ctx, cutoff, dryRun)
}

// Process promotes an item to a declaration. A processed item fails with
// already_processed. A taken tracking code fails with conflict and a
// payload that does not validate fails with validation_error; in both cases
// the reason is stored on the item and it stays unprocessed.
func (s *Service) Process(ctx context.Context, itemID id.PendingID) (created *declaration.Declaration, err error) {
	ctx, end := tracing.StartSpan(ctx, "pending.process", attribute.String("pending.id", itemID.String()))
	defer func() { end(err) }()

	err = s.locks.WithKey(ctx, itemID.String(), func(ctx context.Context) error {
		var failure error
		txErr := s.tx.RunInTx(ctx, func(ctx context.Context) error {
			item, err := s.store.Get(ctx, itemID)
			if err != nil {
				return err
			}
			if item.Processed {
				return dErrors.New(dErrors.CodeAlreadyProcessed, "pending declaration already processed")
			}

			created, failure, err = s.promote(ctx, item)
			if err != nil {
				return err
			}
			if failure != nil {
				item.Error = FailureText(failure)
			}
			item.UpdatedAt = s.now().UTC()
			return s.store.Update(ctx, item)
		})
		if txErr != nil {
			created = nil
			return txErr
		}
		return failure
	})
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeValidation) || dErrors.HasCode(err, dErrors.CodeConflict) {
			s.logger.WarnContext(ctx, "pending declaration not promoted",
				"request_id", requestcontext.RequestID(ctx),
				"pending_id", itemID.String(),
				"error", err,
			)
		}
		return nil, translate(err)
	}

	s.metrics.IncPendingProcessed()
	s.auditor.Record(ctx, audit.Event{
		Action:     audit.ActionProcess,
		TargetType: audit.TargetPending,
		TargetID:   itemID.String(),
		Details: map[string]string{
			"declaration_id": created.ID.String(),
			"tracking_code":  created.TrackingCode,
		},
		Sensitive: true,
	})
	return created, nil
}

// promote returns the created declaration, or a business failure to record
// on the item, or an unexpected error that aborts the attempt. A payload
// without a code gets one from Commit; the stored payload is never rewritten.
func (s *Service) promote(ctx context.Context, item *Item) (*declaration.Declaration, error, error) {
	in, err := declaration.DecodePayload(item.Payload)
	if err != nil {
		return nil, err, nil
	}
	in.Normalize()
	if in.ID == "" {
		in.ID = uuid.NewString()
	}
	if in.TrackingCode != "" {
		exists, err := s.declarations.ExistsTrackingCode(ctx, in.TrackingCode)
		if err != nil {
			return nil, nil, err
		}
		if exists {
			return nil, dErrors.Newf(dErrors.CodeConflict, "declaration with tracking code %s already exists", in.TrackingCode), nil
		}
	}

	draft, err := in.Draft()
	if err != nil {
		return nil, err, nil
	}
	d, err := s.declarations.Commit(ctx, draft, declaration.SourcePending)
	switch {
	case errors.Is(err, declaration.ErrCodeTaken):
		return nil, dErrors.Newf(dErrors.CodeConflict, "declaration with tracking code %s already exists", in.TrackingCode), nil
	case dErrors.HasCode(err, dErrors.CodeValidation):
		return nil, err, nil
	case err != nil:
		return nil, nil, err
	}

	now := s.now().UTC()
	item.Processed = true
	item.ProcessedAt = &now
	if actor := requestcontext.Actor(ctx); !actor.IsAnonymous() {
		processor := actor.ID
		item.ProcessedBy = &processor
	}
	item.Error = ""
	item.TrackingCode = &d.TrackingCode
	return d, nil, nil
}

// FailureText renders validation failures as their field map so staff see
// every problem at once.
func FailureText(err error) string {
	if fields := dErrors.FieldsOf(err); len(fields) > 0 {
		if b, jerr := json.Marshal(fields); jerr == nil {
			return string(b)
		}
	}
	var de *dErrors.Error
	if errors.As(err, &de) {
		return de.Message
	}
	return err.Error()
}

func translate(err error) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "pending declaration not found")
	}
	var de *dErrors.Error
	if errors.As(err, &de) {
		return err
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "pending declaration storage failure")
}
