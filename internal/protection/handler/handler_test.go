package handler

import (
	"io"
	"log/slog"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"

	"civicdesk/internal/protection"
	protmemory "civicdesk/internal/protection/store/memory"
	"civicdesk/pkg/testutil"
)

func TestProtectionSettings(t *testing.T) {
	h := New(protection.NewService(protmemory.New()), slog.New(slog.NewTextHandler(io.Discard, nil)))
	r := chi.NewRouter()
	h.RegisterAdmin(r)

	testutil.Given(t, "the default policy", func(t *testing.T) {
		testutil.When(t, "an admin reads it", func(t *testing.T) {
			rr := testutil.DoRequest(r, testutil.NewRequest(t, http.MethodGet, "/admin/protection"))

			testutil.Then(t, "the defaults are returned", func(t *testing.T) {
				testutil.AssertStatusOK(t, rr)
				testutil.AssertJSONContains(t, rr, "rate_limit_declarations", "5/m")
				testutil.AssertJSONContains(t, rr, "enable_captcha_clues", false)
			})
		})

		testutil.When(t, "the blacklist is sent as text", func(t *testing.T) {
			rr := testutil.DoRequest(r, testutil.NewJSONRequest(t, http.MethodPut, "/admin/protection",
				map[string]any{"ip_blacklist": "10.0.0.1\n10.0.0.2"}))

			testutil.Then(t, "it is stored as a list", func(t *testing.T) {
				testutil.AssertStatusOK(t, rr)
				resp := testutil.UnmarshalResponse[protection.Policy](t, rr)
				assert.Equal(t, protection.IPList{"10.0.0.1", "10.0.0.2"}, resp.IPBlacklist)
			})
		})

		testutil.When(t, "the rate is malformed", func(t *testing.T) {
			rr := testutil.DoRequest(r, testutil.NewJSONRequest(t, http.MethodPut, "/admin/protection",
				map[string]any{"rate_limit_declarations": "fast"}))

			testutil.Then(t, "a validation error is returned", func(t *testing.T) {
				testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, "validation_error")
			})
		})
	})
}
