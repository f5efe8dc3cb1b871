package audit

import (
	"context"
	"log/slog"

	dErrors "civicdesk/pkg/domain-errors"
)

const (
	DefaultPageSize = 100
	MaxPageSize     = 500
)

// Page is one slice of a filtered listing.
type Page struct {
	Entries []Entry `json:"results"`
	Total   int     `json:"count"`
	Limit   int     `json:"limit"`
	Offset  int     `json:"offset"`
}

// Service is the read and administrative surface of the activity log.
type Service struct {
	store    Store
	recorder *Recorder
	logger   *slog.Logger
}

func NewService(store Store, recorder *Recorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, recorder: recorder, logger: logger}
}

// List returns entries newest first.
func (s *Service) List(ctx context.Context, filter Filter) (*Page, error) {
	if filter.Action != "" && !filter.Action.Valid() {
		return nil, dErrors.NewValidation("invalid filter", map[string]string{"action": "unknown action"})
	}
	if !filter.From.IsZero() && !filter.To.IsZero() && !filter.From.Before(filter.To) {
		return nil, dErrors.NewValidation("invalid filter", map[string]string{"from": "must be before to"})
	}
	if filter.Limit <= 0 {
		filter.Limit = DefaultPageSize
	}
	if filter.Limit > MaxPageSize {
		filter.Limit = MaxPageSize
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	entries, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list activity log")
	}
	total, err := s.store.Count(ctx, filter)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to count activity log")
	}
	if entries == nil {
		entries = []Entry{}
	}
	return &Page{Entries: entries, Total: total, Limit: filter.Limit, Offset: filter.Offset}, nil
}

// Clear deletes every entry, then records who did it so the trail restarts
// with the clear itself.
func (s *Service) Clear(ctx context.Context) (int, error) {
	deleted, err := s.store.Clear(ctx)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to clear activity log")
	}
	s.recorder.Record(ctx, Event{
		Action:     ActionDelete,
		TargetType: TargetActivityLog,
		TargetID:   "all",
		Details:    map[string]int{"deleted": deleted},
		Sensitive:  true,
	})
	return deleted, nil
}

// Count returns the number of entries in the log.
func (s *Service) Count(ctx context.Context) (int, error) {
	total, err := s.store.Count(ctx, Filter{})
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to count activity log")
	}
	return total, nil
}
