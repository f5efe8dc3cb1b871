package admin

import (
	"log/slog"
	"net/http"
	"slices"

	"civicdesk/pkg/platform/httputil"
	"civicdesk/pkg/requestcontext"
)

// RequireRole lets the request through only when the authenticated actor has
// one of roles. It must run after auth.RequireAuth.
func RequireRole(logger *slog.Logger, roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			actor := requestcontext.Actor(ctx)
			if actor.IsAnonymous() {
				httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{
					Error:       "unauthorized",
					Description: "authentication required",
				})
				return
			}
			if !slices.Contains(roles, actor.Role) {
				logger.WarnContext(ctx, "role check failed",
					"user_id", actor.ID.String(),
					"role", actor.Role,
					"request_id", requestcontext.RequestID(ctx),
				)
				httputil.WriteJSON(w, http.StatusForbidden, httputil.ErrorResponse{
					Error:       "forbidden",
					Description: "insufficient role",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
