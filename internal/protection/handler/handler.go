package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"civicdesk/internal/protection"
	"civicdesk/pkg/platform/httputil"
	"civicdesk/pkg/requestcontext"
)

type Service interface {
	Get(ctx context.Context) (*protection.Policy, error)
	Update(ctx context.Context, u protection.Update) (*protection.Policy, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// RegisterAdmin mounts the settings routes. Callers restrict r to admins.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Get("/admin/protection", h.HandleGet)
	r.Put("/admin/protection", h.HandleUpdate)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.Get(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, p)
}

func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, err := httputil.DecodeAndPrepare[protection.Update](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	p, err := h.service.Update(ctx, *req)
	if err != nil {
		h.logger.WarnContext(ctx, "protection update rejected",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, p)
}
