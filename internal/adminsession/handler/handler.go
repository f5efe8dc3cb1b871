package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"civicdesk/internal/adminsession"
	"civicdesk/pkg/platform/httputil"
	"civicdesk/pkg/requestcontext"
)

type Service interface {
	Heartbeat(ctx context.Context) (*adminsession.Session, error)
	List(ctx context.Context, limit, offset int) ([]*adminsession.Session, int, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the heartbeat for any staff member.
func (h *Handler) Register(r chi.Router) {
	r.Post("/admin/heartbeat", h.HandleHeartbeat)
}

// RegisterAdmin mounts the session listing. Callers restrict r to admins.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Get("/admin/sessions", h.HandleList)
}

type listResponse struct {
	Results []*adminsession.Session `json:"results"`
	Count   int                     `json:"count"`
}

func (h *Handler) HandleHeartbeat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess, err := h.service.Heartbeat(ctx)
	if err != nil {
		h.logger.WarnContext(ctx, "heartbeat failed",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, sess)
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	limit, err := httputil.QueryInt(r, "limit", adminsession.DefaultPageSize)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	offset, err := httputil.QueryInt(r, "offset", 0)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	items, total, err := h.service.List(r.Context(), limit, offset)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, listResponse{Results: items, Count: total})
}
