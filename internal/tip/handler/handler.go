package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"civicdesk/internal/tip"
	id "civicdesk/pkg/domain"
	"civicdesk/pkg/platform/httputil"
	"civicdesk/pkg/requestcontext"
)

type Service interface {
	Submit(ctx context.Context, req tip.SubmitRequest) (*tip.Receipt, error)
	List(ctx context.Context, filter tip.ListFilter) ([]*tip.Tip, int, int, error)
	Get(ctx context.Context, tipID id.TipID) (*tip.Tip, error)
	Review(ctx context.Context, tipID id.TipID, req tip.ReviewRequest) (*tip.Tip, error)
	Delete(ctx context.Context, tipID id.TipID) error
}

type Gate interface {
	Check(ctx context.Context, class string, captchaToken string) error
}

// GateClass is the protection class for public tips.
const GateClass = "clues"

type Handler struct {
	service Service
	gate    Gate
	logger  *slog.Logger
}

func New(service Service, gate Gate, logger *slog.Logger) *Handler {
	return &Handler{service: service, gate: gate, logger: logger}
}

func (h *Handler) RegisterPublic(r chi.Router) {
	r.Post("/tips", h.HandleSubmit)
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/tips", h.HandleList)
	r.Get("/tips/{id}", h.HandleGet)
	r.Patch("/tips/{id}", h.HandleReview)
	r.Delete("/tips/{id}", h.HandleDelete)
}

type submitRequest struct {
	tip.SubmitRequest
	CaptchaToken string `json:"captcha_token,omitempty"`
}

type listResponse struct {
	Items       []*tip.Tip `json:"items"`
	Total       int        `json:"total"`
	UnreadCount int        `json:"unread_count"`
}

func (h *Handler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req submitRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	captcha := req.CaptchaToken
	if captcha == "" {
		captcha = r.Header.Get("X-Captcha-Token")
	}
	if err := h.gate.Check(ctx, GateClass, captcha); err != nil {
		h.logger.WarnContext(ctx, "tip rejected by protection policy",
			"request_id", requestcontext.RequestID(ctx),
			"ip", requestcontext.ClientIP(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	receipt, err := h.service.Submit(ctx, req.SubmitRequest)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, receipt)
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	var (
		filter tip.ListFilter
		err    error
	)
	if raw := r.URL.Query().Get("declaration_id"); raw != "" {
		declarationID, err := id.ParseDeclarationID(raw)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		filter.DeclarationID = &declarationID
	}
	unread, err := httputil.QueryBool(r, "unread_only")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	filter.UnreadOnly = unread != nil && *unread
	if filter.Limit, err = httputil.QueryInt(r, "limit", tip.DefaultPageSize); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if filter.Offset, err = httputil.QueryInt(r, "offset", 0); err != nil {
		httputil.WriteError(w, err)
		return
	}

	tips, total, unreadCount, err := h.service.List(r.Context(), filter)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, listResponse{Items: tips, Total: total, UnreadCount: unreadCount})
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	tipID, err := id.ParseTipID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	t, err := h.service.Get(r.Context(), tipID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, t)
}

func (h *Handler) HandleReview(w http.ResponseWriter, r *http.Request) {
	tipID, err := id.ParseTipID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var req tip.ReviewRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	t, err := h.service.Review(r.Context(), tipID, req)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, t)
}

func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tipID, err := id.ParseTipID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.service.Delete(ctx, tipID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.logger.InfoContext(ctx, "tip deleted",
		"request_id", requestcontext.RequestID(ctx),
		"tip_id", tipID.String(),
	)
	w.WriteHeader(http.StatusNoContent)
}
