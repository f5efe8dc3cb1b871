package handler

import (
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"civicdesk/internal/auth"
	authmemory "civicdesk/internal/auth/store/memory"
	"civicdesk/internal/auth/store/revocation"
	"civicdesk/internal/auth/token"
	id "civicdesk/pkg/domain"
	authmw "civicdesk/pkg/platform/middleware/auth"
	"civicdesk/pkg/testutil"
)

func newRouter(t *testing.T) (chi.Router, *auth.Service) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tokens := token.NewService("test-key", "civicdesk", 15*time.Minute, time.Hour)
	trl := revocation.NewInMemoryTRL()
	svc := auth.NewService(authmemory.NewUserStore(), authmemory.NewChallengeStore(), tokens, trl,
		auth.WithLogger(logger))
	h := New(svc, logger)

	r := chi.NewRouter()
	h.RegisterPublic(r)
	r.Group(func(r chi.Router) {
		r.Use(authmw.RequireAuth(tokens, trl, logger))
		h.Register(r)
	})
	return r, svc
}

func bearer(req *http.Request, access string) *http.Request {
	req.Header.Set("Authorization", "Bearer "+access)
	return req
}

func TestLoginMeLogout(t *testing.T) {
	router, svc := newRouter(t)
	_, err := svc.CreateUser(t.Context(), auth.NewUser{Username: "agent1", Password: "s3cret-pass", Role: id.RoleAgent})
	require.NoError(t, err)

	testutil.Given(t, "an agent logs in", func(t *testing.T) {
		rr := testutil.DoRequest(router, testutil.NewJSONRequest(t, http.MethodPost, "/auth/login",
			map[string]string{"username": "agent1", "password": "s3cret-pass"}))
		testutil.AssertStatusOK(t, rr)
		pair := testutil.UnmarshalResponse[token.Pair](t, rr)
		assert.Equal(t, "bearer", pair.TokenType)
		assert.Equal(t, 900, pair.ExpiresIn)

		testutil.When(t, "they ask who they are", func(t *testing.T) {
			rr := testutil.DoRequest(router, bearer(testutil.NewRequest(t, http.MethodGet, "/auth/me"), pair.AccessToken))
			testutil.AssertStatusOK(t, rr)
			testutil.AssertJSONContains(t, rr, "username", "agent1")
			assert.NotContains(t, rr.Body.String(), "password")
		})

		testutil.When(t, "they log out", func(t *testing.T) {
			req := bearer(testutil.NewJSONRequest(t, http.MethodPost, "/auth/logout",
				map[string]string{"refresh_token": pair.RefreshToken}), pair.AccessToken)
			testutil.AssertStatusOK(t, testutil.DoRequest(router, req))

			testutil.Then(t, "the access token stops working", func(t *testing.T) {
				rr := testutil.DoRequest(router, bearer(testutil.NewRequest(t, http.MethodGet, "/auth/me"), pair.AccessToken))
				testutil.AssertStatusAndError(t, rr, http.StatusUnauthorized, "unauthorized")
			})

			testutil.Then(t, "the refresh token stops working", func(t *testing.T) {
				rr := testutil.DoRequest(router, testutil.NewJSONRequest(t, http.MethodPost, "/auth/refresh",
					map[string]string{"refresh_token": pair.RefreshToken}))
				testutil.AssertStatus(t, rr, http.StatusUnauthorized)
			})
		})
	})
}

func TestLoginFailures(t *testing.T) {
	router, svc := newRouter(t)
	_, err := svc.CreateUser(t.Context(), auth.NewUser{Username: "agent1", Password: "s3cret-pass", Role: id.RoleAgent})
	require.NoError(t, err)

	t.Run("missing fields", func(t *testing.T) {
		rr := testutil.DoRequest(router, testutil.NewJSONRequest(t, http.MethodPost, "/auth/login", map[string]string{}))
		testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, "validation_error")
	})

	t.Run("wrong password", func(t *testing.T) {
		rr := testutil.DoRequest(router, testutil.NewJSONRequest(t, http.MethodPost, "/auth/login",
			map[string]string{"username": "agent1", "password": "nope-nope"}))
		testutil.AssertStatusAndError(t, rr, http.StatusUnauthorized, "unauthorized")
		testutil.AssertJSONContains(t, rr, "error_description", "invalid credentials")
	})

	t.Run("me without token", func(t *testing.T) {
		rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/auth/me"))
		testutil.AssertStatus(t, rr, http.StatusUnauthorized)
	})
}

func TestTwoFactorChallenge(t *testing.T) {
	router, svc := newRouter(t)
	_, err := svc.CreateUser(t.Context(), auth.NewUser{
		Username: "admin1", Password: "s3cret-pass", Role: id.RoleAdmin, TwoFactor: true,
	})
	require.NoError(t, err)

	rr := testutil.DoRequest(router, testutil.NewJSONRequest(t, http.MethodPost, "/auth/login",
		map[string]string{"username": "admin1", "password": "s3cret-pass"}))
	testutil.AssertStatus(t, rr, http.StatusAccepted)
	testutil.AssertJSONContains(t, rr, "two_factor_required", true)
	testutil.AssertJSONHasKey(t, rr, "challenge_id")

	rr = testutil.DoRequest(router, testutil.NewJSONRequest(t, http.MethodPost, "/auth/verify-2fa",
		map[string]string{"challenge_id": "not-a-uuid", "code": "12"}))
	testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, "validation_error")
}
