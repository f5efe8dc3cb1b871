// Package auth resolves bearer access tokens into the request actor.
package auth

import (
	"context"
	"log/slog"
	"net/http"

	id "civicdesk/pkg/domain"
	"civicdesk/pkg/platform/httputil"
	"civicdesk/pkg/requestcontext"
)

type JWTValidator interface {
	ValidateAccessToken(tokenString string) (*JWTClaims, error)
}

// TokenRevocationChecker reports whether a token id was revoked by logout.
type TokenRevocationChecker interface {
	IsTokenRevoked(ctx context.Context, jti string) (bool, error)
}

// JWTClaims is the subset of access token claims the middleware reads.
type JWTClaims struct {
	UserID    string
	Username  string
	Role      string
	SessionID string
	JTI       string
}

// rejection says why a token did not yield an actor.
type rejection struct {
	status int
	code   string
	desc   string
	log    string
	err    error
}

var (
	errMissing = &rejection{status: http.StatusUnauthorized, code: "unauthorized", desc: "Missing or invalid Authorization header", log: "missing token"}
	errInvalid = &rejection{status: http.StatusUnauthorized, code: "unauthorized", desc: "Invalid or expired token", log: "invalid token"}
	errRevoked = &rejection{status: http.StatusUnauthorized, code: "unauthorized", desc: "Token has been revoked", log: "token revoked"}
)

type authenticator struct {
	validator   JWTValidator
	revocations TokenRevocationChecker
}

func (a authenticator) resolve(r *http.Request) (requestcontext.ActorInfo, *rejection) {
	token, ok := httputil.BearerToken(r)
	if !ok {
		return requestcontext.ActorInfo{}, errMissing
	}
	claims, err := a.validator.ValidateAccessToken(token)
	if err != nil {
		rej := *errInvalid
		rej.err = err
		return requestcontext.ActorInfo{}, &rej
	}
	if a.revocations != nil {
		if claims.JTI == "" {
			return requestcontext.ActorInfo{}, errInvalid
		}
		revoked, err := a.revocations.IsTokenRevoked(r.Context(), claims.JTI)
		if err != nil {
			return requestcontext.ActorInfo{}, &rejection{
				status: http.StatusInternalServerError, code: "internal_error",
				desc: "Failed to validate token", log: "revocation lookup failed", err: err,
			}
		}
		if revoked {
			return requestcontext.ActorInfo{}, errRevoked
		}
	}
	uid, err := id.ParseUserID(claims.UserID)
	if err != nil {
		return requestcontext.ActorInfo{}, errInvalid
	}
	return requestcontext.ActorInfo{
		ID:        uid,
		Name:      claims.Username,
		Role:      claims.Role,
		SessionID: claims.SessionID,
	}, nil
}

// RequireAuth answers 401 unless the request carries a valid, unrevoked
// access token. A nil revocation checker skips the revocation lookup.
func RequireAuth(validator JWTValidator, revocations TokenRevocationChecker, logger *slog.Logger) func(http.Handler) http.Handler {
	a := authenticator{validator: validator, revocations: revocations}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, rej := a.resolve(r)
			if rej != nil {
				level := slog.LevelWarn
				if rej.status >= http.StatusInternalServerError {
					level = slog.LevelError
				}
				logger.Log(r.Context(), level, "request rejected: "+rej.log,
					"error", rej.err,
					"request_id", requestcontext.RequestID(r.Context()),
				)
				httputil.WriteJSON(w, rej.status, httputil.ErrorResponse{Error: rej.code, Description: rej.desc})
				return
			}
			next.ServeHTTP(w, r.WithContext(requestcontext.WithActor(r.Context(), actor)))
		})
	}
}

// OptionalAuth names the caller when a usable token is present and otherwise
// serves the request anonymously.
func OptionalAuth(validator JWTValidator, revocations TokenRevocationChecker) func(http.Handler) http.Handler {
	a := authenticator{validator: validator, revocations: revocations}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if actor, rej := a.resolve(r); rej == nil {
				r = r.WithContext(requestcontext.WithActor(r.Context(), actor))
			}
			next.ServeHTTP(w, r)
		})
	}
}
