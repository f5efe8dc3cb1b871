package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"civicdesk/internal/declaration"
	"civicdesk/internal/pending"
	id "civicdesk/pkg/domain"
	"civicdesk/pkg/platform/httputil"
	"civicdesk/pkg/requestcontext"
)

type Service interface {
	Submit(ctx context.Context, req pending.SubmitRequest) (*pending.Item, error)
	Get(ctx context.Context, itemID id.PendingID) (*pending.Item, error)
	List(ctx context.Context, filter pending.ListFilter) ([]*pending.Item, int, error)
	Process(ctx context.Context, itemID id.PendingID) (*declaration.Declaration, error)
}

// Gate runs the protection checks for a public write.
type Gate interface {
	Check(ctx context.Context, class string, captchaToken string) error
}

// Offline submissions share the declaration protection class.
const GateClass = "declarations"

type Handler struct {
	service Service
	gate    Gate
	logger  *slog.Logger
}

func New(service Service, gate Gate, logger *slog.Logger) *Handler {
	return &Handler{service: service, gate: gate, logger: logger}
}

func (h *Handler) RegisterPublic(r chi.Router) {
	r.Post("/pending-declarations", h.HandleSubmit)
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/pending-declarations", h.HandleList)
	r.Get("/pending-declarations/{id}", h.HandleGet)
	r.Post("/pending-declarations/{id}/process", h.HandleProcess)
}

type submitRequest struct {
	pending.SubmitRequest
	CaptchaToken string `json:"captcha_token,omitempty"`
}

type submitResponse struct {
	ID           id.PendingID `json:"id"`
	TrackingCode *string      `json:"tracking_code,omitempty"`
	Status       string       `json:"status"`
}

type listResponse struct {
	Results []*pending.Item `json:"results"`
	Count   int             `json:"count"`
}

type processResponse struct {
	Message     string                   `json:"message"`
	Declaration *declaration.Declaration `json:"declaration"`
}

func (h *Handler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	var req submitRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	token := req.CaptchaToken
	if token == "" {
		token = r.Header.Get("X-Captcha-Token")
	}
	if err := h.gate.Check(ctx, GateClass, token); err != nil {
		h.logger.WarnContext(ctx, "pending submission rejected by protection policy",
			"request_id", requestID,
			"ip", requestcontext.ClientIP(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	item, err := h.service.Submit(ctx, req.SubmitRequest)
	if err != nil {
		h.logger.WarnContext(ctx, "pending submission failed",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, submitResponse{
		ID:           item.ID,
		TrackingCode: item.TrackingCode,
		Status:       "queued",
	})
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	var (
		filter pending.ListFilter
		err    error
	)
	if filter.Processed, err = httputil.QueryBool(r, "processed"); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if filter.Limit, err = httputil.QueryInt(r, "limit", pending.DefaultPageSize); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if filter.Offset, err = httputil.QueryInt(r, "offset", 0); err != nil {
		httputil.WriteError(w, err)
		return
	}

	items, total, err := h.service.List(r.Context(), filter)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, listResponse{Results: items, Count: total})
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	itemID, err := id.ParsePendingID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	item, err := h.service.Get(r.Context(), itemID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, item)
}

func (h *Handler) HandleProcess(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	itemID, err := id.ParsePendingID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	d, err := h.service.Process(ctx, itemID)
	if err != nil {
		h.logger.WarnContext(ctx, "pending declaration not processed",
			"request_id", requestcontext.RequestID(ctx),
			"pending_id", itemID.String(),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	h.logger.InfoContext(ctx, "pending declaration processed",
		"request_id", requestcontext.RequestID(ctx),
		"pending_id", itemID.String(),
		"tracking_code", d.TrackingCode,
	)
	httputil.WriteJSON(w, http.StatusOK, processResponse{Message: "pending declaration processed", Declaration: d})
}
