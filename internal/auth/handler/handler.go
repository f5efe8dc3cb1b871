package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"civicdesk/internal/auth"
	"civicdesk/internal/auth/token"
	id "civicdesk/pkg/domain"
	"civicdesk/pkg/platform/httputil"
	"civicdesk/pkg/requestcontext"
)

type Service interface {
	Login(ctx context.Context, req auth.LoginRequest) (*auth.LoginResult, error)
	Verify2FA(ctx context.Context, req auth.Verify2FARequest) (*token.Pair, error)
	Refresh(ctx context.Context, refreshToken string) (*token.Pair, error)
	Logout(ctx context.Context, accessToken, refreshToken string) error
	Me(ctx context.Context) (*auth.User, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// RegisterPublic mounts the routes reachable without a token.
func (h *Handler) RegisterPublic(r chi.Router) {
	r.Post("/auth/login", h.HandleLogin)
	r.Post("/auth/verify-2fa", h.HandleVerify2FA)
	r.Post("/auth/refresh", h.HandleRefresh)
}

// Register mounts the routes that need an authenticated actor.
func (h *Handler) Register(r chi.Router) {
	r.Get("/auth/me", h.HandleMe)
	r.Post("/auth/logout", h.HandleLogout)
}

type challengeResponse struct {
	TwoFactorRequired bool         `json:"two_factor_required"`
	ChallengeID       id.SessionID `json:"challenge_id"`
	ExpiresIn         int          `json:"expires_in"`
	Message           string       `json:"message"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req auth.LoginRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}

	res, err := h.service.Login(ctx, req)
	if err != nil {
		h.logger.WarnContext(ctx, "login failed",
			"request_id", requestcontext.RequestID(ctx),
			"ip", requestcontext.ClientIP(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	if res.TwoFactorRequired {
		httputil.WriteJSON(w, http.StatusAccepted, challengeResponse{
			TwoFactorRequired: true,
			ChallengeID:       res.ChallengeID,
			ExpiresIn:         res.ExpiresIn,
			Message:           "two-factor code required",
		})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res.Tokens)
}

func (h *Handler) HandleVerify2FA(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req auth.Verify2FARequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	pair, err := h.service.Verify2FA(ctx, req)
	if err != nil {
		h.logger.WarnContext(ctx, "two-factor verification failed",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, pair)
}

func (h *Handler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	pair, err := h.service.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, pair)
}

func (h *Handler) HandleMe(w http.ResponseWriter, r *http.Request) {
	user, err := h.service.Me(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, user)
}

// HandleLogout accepts an optional body carrying the refresh token.
func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	accessToken, _ := httputil.BearerToken(r)
	var req refreshRequest
	if r.ContentLength > 0 {
		if err := httputil.DecodeJSON(r, &req); err != nil {
			httputil.WriteError(w, err)
			return
		}
	}
	if err := h.service.Logout(ctx, accessToken, req.RefreshToken); err != nil {
		h.logger.ErrorContext(ctx, "logout failed",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}
