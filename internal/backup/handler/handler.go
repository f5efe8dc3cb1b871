package handler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"civicdesk/internal/backup"
	"civicdesk/pkg/platform/httputil"
	"civicdesk/pkg/requestcontext"
)

type Service interface {
	Export(ctx context.Context) (*backup.Document, error)
	Restore(ctx context.Context, doc *backup.Document) (*backup.RestoreReport, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Get("/admin/backup", h.HandleBackup)
	r.Post("/admin/restore", h.HandleRestore)
}

type restoreResponse struct {
	Message string `json:"message"`
	*backup.RestoreReport
}

func (h *Handler) HandleBackup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	doc, err := h.service.Export(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "backup failed",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	name := fmt.Sprintf("civicdesk-backup-%s.json", doc.ExportedAt.Format("20060102-150405"))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	httputil.WriteJSON(w, http.StatusOK, doc)
}

func (h *Handler) HandleRestore(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var doc backup.Document
	if err := httputil.DecodeJSON(r, &doc); err != nil {
		httputil.WriteError(w, err)
		return
	}
	report, err := h.service.Restore(ctx, &doc)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.logger.InfoContext(ctx, "restore completed",
		"request_id", requestcontext.RequestID(ctx),
		"imported", report.Imported,
		"skipped", report.Skipped,
		"failed", len(report.Failed),
	)
	httputil.WriteJSON(w, http.StatusOK, restoreResponse{Message: "restored", RestoreReport: report})
}
