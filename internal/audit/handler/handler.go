package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"civicdesk/internal/audit"
	id "civicdesk/pkg/domain"
	"civicdesk/pkg/platform/httputil"
	"civicdesk/pkg/requestcontext"
)

// Service is the activity log surface the handler needs.
type Service interface {
	List(ctx context.Context, filter audit.Filter) (*audit.Page, error)
	Clear(ctx context.Context) (int, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the staff routes. Callers wrap r with authentication.
func (h *Handler) Register(r chi.Router) {
	r.Get("/activity-logs", h.HandleList)
}

// RegisterAdmin mounts the admin-only routes.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Post("/activity-logs/clear", h.HandleClear)
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	filter, err := parseFilter(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	page, err := h.service.List(ctx, filter)
	if err != nil {
		h.logger.WarnContext(ctx, "failed to list activity log",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, page)
}

func (h *Handler) HandleClear(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	deleted, err := h.service.Clear(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to clear activity log",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	h.logger.InfoContext(ctx, "activity log cleared",
		"request_id", requestID,
		"deleted", deleted,
	)
	httputil.WriteJSON(w, http.StatusOK, map[string]int{"deleted": deleted})
}

func parseFilter(r *http.Request) (audit.Filter, error) {
	q := r.URL.Query()
	filter := audit.Filter{
		Action:     audit.Action(strings.ToUpper(strings.TrimSpace(q.Get("action")))),
		TargetType: strings.TrimSpace(q.Get("target_type")),
		TargetID:   strings.TrimSpace(q.Get("target_id")),
	}
	if raw := strings.TrimSpace(q.Get("actor_id")); raw != "" {
		actorID, err := id.ParseUserID(raw)
		if err != nil {
			return filter, err
		}
		filter.ActorID = &actorID
	}

	var err error
	if filter.From, err = httputil.QueryTime(r, "from"); err != nil {
		return filter, err
	}
	if filter.To, err = httputil.QueryTime(r, "to"); err != nil {
		return filter, err
	}
	if filter.Sensitive, err = httputil.QueryBool(r, "is_sensitive"); err != nil {
		return filter, err
	}
	if filter.Limit, err = httputil.QueryInt(r, "limit", audit.DefaultPageSize); err != nil {
		return filter, err
	}
	if filter.Offset, err = httputil.QueryInt(r, "offset", 0); err != nil {
		return filter, err
	}
	return filter, nil
}
