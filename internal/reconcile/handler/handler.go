package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"civicdesk/internal/reconcile"
	"civicdesk/pkg/platform/httputil"
	"civicdesk/pkg/requestcontext"
)

type Reconciler interface {
	Sync(ctx context.Context, items []json.RawMessage) (*reconcile.Result, error)
}

type Handler struct {
	reconciler Reconciler
	logger     *slog.Logger
}

func New(reconciler Reconciler, logger *slog.Logger) *Handler {
	return &Handler{reconciler: reconciler, logger: logger}
}

// Register mounts the staff sync route. Callers wrap r with authentication.
func (h *Handler) Register(r chi.Router) {
	r.Post("/sync", h.HandleSync)
}

type syncRequest struct {
	Declarations []json.RawMessage `json:"declarations"`
}

func (h *Handler) HandleSync(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req syncRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}

	res, err := h.reconciler.Sync(ctx, req.Declarations)
	if err != nil {
		h.logger.WarnContext(ctx, "sync rejected",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}
