package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"civicdesk/internal/declaration"
	id "civicdesk/pkg/domain"
	"civicdesk/pkg/platform/httputil"
	"civicdesk/pkg/requestcontext"
)

// Service is the declaration surface the handler needs.
type Service interface {
	Create(ctx context.Context, in declaration.Input, source declaration.Source) (*declaration.Declaration, error)
	GetByIDOrCode(ctx context.Context, ref string) (*declaration.Declaration, error)
	GetByTrackingCode(ctx context.Context, code string) (*declaration.Declaration, error)
	List(ctx context.Context, filter declaration.ListFilter) ([]*declaration.Declaration, int, error)
	Update(ctx context.Context, declarationID id.DeclarationID, u declaration.Update) (*declaration.Declaration, error)
	Delete(ctx context.Context, declarationID id.DeclarationID) error
}

// Gate runs the protection checks for a public write.
type Gate interface {
	Check(ctx context.Context, class string, captchaToken string) error
}

// GateClass is the protection class for declaration submissions.
const GateClass = "declarations"

type Handler struct {
	service Service
	gate    Gate
	logger  *slog.Logger
}

func New(service Service, gate Gate, logger *slog.Logger) *Handler {
	return &Handler{service: service, gate: gate, logger: logger}
}

// RegisterPublic mounts routes open to anonymous callers.
func (h *Handler) RegisterPublic(r chi.Router) {
	r.Post("/declarations", h.HandleCreate)
	r.Get("/declarations/{ref}", h.HandleGet)
	r.Get("/track/{code}", h.HandleTrack)
}

// Register mounts staff routes. Callers wrap r with authentication.
func (h *Handler) Register(r chi.Router) {
	r.Get("/declarations", h.HandleList)
	r.Put("/declarations/{id}", h.HandleUpdate)
	r.Delete("/declarations/{id}", h.HandleDelete)
}

type createRequest struct {
	declaration.Input
	CaptchaToken string `json:"captcha_token,omitempty"`
	Recaptcha    string `json:"recaptcha,omitempty"`
}

func (c createRequest) token() string {
	if c.CaptchaToken != "" {
		return c.CaptchaToken
	}
	return c.Recaptcha
}

type listResponse struct {
	Results []*declaration.Declaration `json:"results"`
	Count   int                        `json:"count"`
}

// CaptchaToken reads the token from the body or the X-Captcha-Token header.
func CaptchaToken(r *http.Request, fromBody string) string {
	if t := strings.TrimSpace(fromBody); t != "" {
		return t
	}
	return strings.TrimSpace(r.Header.Get("X-Captcha-Token"))
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	var req createRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}

	if err := h.gate.Check(ctx, GateClass, CaptchaToken(r, req.token())); err != nil {
		h.logger.WarnContext(ctx, "declaration rejected by protection policy",
			"request_id", requestID,
			"ip", requestcontext.ClientIP(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	d, err := h.service.Create(ctx, req.Input, declaration.SourceDirect)
	if err != nil {
		h.logger.WarnContext(ctx, "declaration create failed",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, d)
}

// HandleGet serves the full record to staff and the public view otherwise.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	d, err := h.service.GetByIDOrCode(ctx, chi.URLParam(r, "ref"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if requestcontext.Actor(ctx).IsAnonymous() {
		httputil.WriteJSON(w, http.StatusOK, d.Public())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, d)
}

func (h *Handler) HandleTrack(w http.ResponseWriter, r *http.Request) {
	d, err := h.service.GetByTrackingCode(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, d.Tracking())
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := declaration.ListFilter{
		Status:   declaration.Status(strings.TrimSpace(q.Get("status"))),
		Type:     strings.TrimSpace(q.Get("type")),
		Category: strings.TrimSpace(q.Get("category")),
		Search:   strings.TrimSpace(q.Get("q")),
	}
	var err error
	if filter.Limit, err = httputil.QueryInt(r, "limit", declaration.DefaultPageSize); err != nil {
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

func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	declarationID, err := id.ParseDeclarationID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, err := httputil.DecodeAndPrepare[declaration.Update](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	d, err := h.service.Update(ctx, declarationID, *req)
	if err != nil {
		h.logger.WarnContext(ctx, "declaration update failed",
			"request_id", requestcontext.RequestID(ctx),
			"declaration_id", declarationID.String(),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, d)
}

func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	declarationID, err := id.ParseDeclarationID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.service.Delete(ctx, declarationID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.logger.InfoContext(ctx, "declaration deleted",
		"request_id", requestcontext.RequestID(ctx),
		"declaration_id", declarationID.String(),
	)
	w.WriteHeader(http.StatusNoContent)
}
