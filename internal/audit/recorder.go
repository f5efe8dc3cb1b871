package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"
	"unicode/utf8"

	"civicdesk/internal/platform/metrics"
	id "civicdesk/pkg/domain"
	txcontext "civicdesk/pkg/platform/tx"
	"civicdesk/pkg/requestcontext"
)

// Store persists entries. There is no update; deletion is bulk only.
type Store interface {
	Append(ctx context.Context, entry Entry) error
	List(ctx context.Context, filter Filter) ([]Entry, error)
	Count(ctx context.Context, filter Filter) (int, error)
	Clear(ctx context.Context) (int, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time, dryRun bool) (int, error)
}

// Publisher receives every stored entry for off-process delivery. It must
// not block.
type Publisher interface {
	Publish(ctx context.Context, entry Entry)
}

// Event is what callers hand to Record. The actor, client IP, user agent
// and request id come from the context unless overridden.
type Event struct {
	Action     Action
	TargetType string
	TargetID   string
	// Details is stored as-is when it is a string and as JSON otherwise.
	Details   any
	Sensitive bool
	// ActorName names an unauthenticated actor, such as the username of a
	// failed login. Ignored when the context carries an actor.
	ActorName string
}

// Recorder writes activity log entries. Record never fails from the
// caller's point of view: write errors are logged and counted.
type Recorder struct {
	store     Store
	logger    *slog.Logger
	metrics   *metrics.Metrics
	publisher Publisher
	now       func() time.Time
}

type Option func(*Recorder)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Recorder) {
		r.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Recorder) {
		r.metrics = m
	}
}

// WithPublisher forwards stored entries, typically to the Kafka stream.
func WithPublisher(p Publisher) Option {
	return func(r *Recorder) {
		r.publisher = p
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Recorder) {
		r.now = now
	}
}

func NewRecorder(store Store, opts ...Option) *Recorder {
	r := &Recorder{
		store:  store,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record builds an entry from ev and the request context and appends it.
func (r *Recorder) Record(ctx context.Context, ev Event) {
	if r == nil || r.store == nil {
		return
	}
	entry := r.build(ctx, ev)

	// The entry outlives a cancelled request and an enclosing transaction.
	writeCtx := txcontext.Detach(context.WithoutCancel(ctx))
	if err := r.store.Append(writeCtx, entry); err != nil {
		r.metrics.IncAuditWriteFailures()
		r.logger.ErrorContext(ctx, "failed to write activity log entry",
			"request_id", entry.RequestID,
			"action", string(entry.Action),
			"target_type", entry.TargetType,
			"target_id", entry.TargetID,
			"error", err,
		)
		return
	}
	if r.publisher != nil {
		r.publisher.Publish(writeCtx, entry)
	}
}

func (r *Recorder) build(ctx context.Context, ev Event) Entry {
	actor := requestcontext.Actor(ctx)
	entry := Entry{
		ID:          id.NewEntryID(),
		Timestamp:   r.now().UTC(),
		Action:      ev.Action,
		TargetType:  ev.TargetType,
		TargetID:    ev.TargetID,
		Details:     truncate(encodeDetails(ev.Details), MaxDetailsLen),
		IPAddress:   requestcontext.ClientIP(ctx),
		UserAgent:   truncate(requestcontext.UserAgent(ctx), MaxUserAgentLen),
		RequestID:   requestcontext.RequestID(ctx),
		IsSensitive: ev.Sensitive,
	}
	switch {
	case !actor.IsAnonymous():
		actorID := actor.ID
		entry.ActorID = &actorID
		entry.ActorName = actor.Name
	case actor.Name != "":
		// A named process such as the admin CLI, with no account behind it.
		entry.ActorName = actor.Name
	case ev.ActorName != "":
		entry.ActorName = ev.ActorName
	default:
		entry.ActorName = AnonymousActor
	}
	return entry
}

func encodeDetails(details any) string {
	switch d := details.(type) {
	case nil:
		return ""
	case string:
		return d
	case []byte:
		return string(d)
	}
	raw, err := json.Marshal(details)
	if err != nil {
		return ""
	}
	return string(raw)
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
