package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"civicdesk/internal/retention"
	"civicdesk/pkg/platform/httputil"
	"civicdesk/pkg/requestcontext"
)

type Sweeper interface {
	Run(ctx context.Context, dryRun bool) (retention.Report, error)
}

type Handler struct {
	sweeper Sweeper
	logger  *slog.Logger
}

func New(sweeper Sweeper, logger *slog.Logger) *Handler {
	return &Handler{sweeper: sweeper, logger: logger}
}

// RegisterAdmin mounts the manual sweep trigger. Callers restrict r to admins.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Post("/admin/retention/sweep", h.HandleSweep)
}

// HandleSweep runs a sweep now. ?dry_run=true only counts.
func (h *Handler) HandleSweep(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	dryRun, err := httputil.QueryBool(r, "dry_run")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	rep, err := h.sweeper.Run(ctx, dryRun != nil && *dryRun)
	if err != nil {
		h.logger.ErrorContext(ctx, "manual retention sweep failed",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, rep)
}
