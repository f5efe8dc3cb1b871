package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"civicdesk/internal/declaration"
	declmemory "civicdesk/internal/declaration/store/memory"
	id "civicdesk/pkg/domain"
	dErrors "civicdesk/pkg/domain-errors"
	"civicdesk/pkg/testutil"
)

type fakeGate struct {
	err       error
	lastClass string
	lastToken string
}

func (g *fakeGate) Check(_ context.Context, class, token string) error {
	g.lastClass = class
	g.lastToken = token
	return g.err
}

func body() map[string]any {
	return map[string]any{
		"declarant_name": "Afi Mensah",
		"phone":          "+22890123456",
		"type":           "loss",
		"category":       "identity card",
		"description":    "Lost my identity card near the central market.",
		"incident_date":  "2026-04-02",
		"location":       "Lomé",
	}
}

func newRouter(t *testing.T, gate *fakeGate) (chi.Router, *declaration.Service) {
	t.Helper()
	svc := declaration.NewService(declmemory.New())
	h := New(svc, gate, slog.New(slog.NewTextHandler(io.Discard, nil)))
	r := chi.NewRouter()
	h.RegisterPublic(r)
	h.Register(r)
	return r, svc
}

func TestCreateDeclaration(t *testing.T) {
	gate := &fakeGate{}
	router, _ := newRouter(t, gate)

	testutil.Given(t, "a public submission", func(t *testing.T) {
		testutil.When(t, "protection checks pass", func(t *testing.T) {
			payload := body()
			payload["captcha_token"] = "tok-1"
			rr := testutil.DoRequest(router, testutil.NewJSONRequest(t, http.MethodPost, "/declarations", payload))

			testutil.Then(t, "the declaration is created", func(t *testing.T) {
				testutil.AssertStatus(t, rr, http.StatusCreated)
				d := testutil.UnmarshalResponse[declaration.Declaration](t, rr)
				assert.Equal(t, declaration.StatusPending, d.Status)
				assert.NotEmpty(t, d.TrackingCode)
				assert.Equal(t, GateClass, gate.lastClass)
				assert.Equal(t, "tok-1", gate.lastToken)
			})
		})

		testutil.When(t, "the token arrives as a header", func(t *testing.T) {
			req := testutil.NewJSONRequest(t, http.MethodPost, "/declarations", body())
			req.Header.Set("X-Captcha-Token", "tok-header")
			testutil.DoRequest(router, req)

			testutil.Then(t, "the gate sees it", func(t *testing.T) {
				assert.Equal(t, "tok-header", gate.lastToken)
			})
		})

		testutil.When(t, "fields are invalid", func(t *testing.T) {
			payload := body()
			payload["phone"] = "90123456"
			payload["description"] = "short"
			rr := testutil.DoRequest(router, testutil.NewJSONRequest(t, http.MethodPost, "/declarations", payload))

			testutil.Then(t, "every failing field is reported", func(t *testing.T) {
				testutil.AssertStatus(t, rr, http.StatusBadRequest)
				resp := testutil.UnmarshalErrorResponse(t, rr)
				assert.Equal(t, "validation_error", resp["error"])
				fields, ok := resp["fields"].(map[string]any)
				require.True(t, ok)
				assert.Contains(t, fields, "phone")
				assert.Contains(t, fields, "description")
			})
		})
	})

	rejections := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"blacklisted ip", dErrors.New(dErrors.CodeForbidden, "access denied"), http.StatusForbidden, "forbidden"},
		{"rate limited", dErrors.New(dErrors.CodeRateLimited, "too many requests"), http.StatusTooManyRequests, "rate_limited"},
		{"captcha failed", dErrors.New(dErrors.CodeCaptchaFailed, "captcha verification failed"), http.StatusBadRequest, "captcha_failed"},
	}
	for _, tc := range rejections {
		t.Run(tc.name, func(t *testing.T) {
			router, svc := newRouter(t, &fakeGate{err: tc.err})
			rr := testutil.DoRequest(router, testutil.NewJSONRequest(t, http.MethodPost, "/declarations", body()))
			testutil.AssertStatusAndError(t, rr, tc.status, tc.code)

			_, total, err := svc.List(context.Background(), declaration.ListFilter{})
			require.NoError(t, err)
			assert.Zero(t, total)
		})
	}
}

func TestReadViews(t *testing.T) {
	router, svc := newRouter(t, &fakeGate{})
	in := declaration.Input{
		DeclarantName: "Afi Mensah",
		Phone:         "+22890123456",
		Type:          "loss",
		Category:      "passport",
		Description:   "Passport lost at the bus station.",
		IncidentDate:  "2026-04-01",
		Location:      "Kara",
	}
	d, err := svc.Create(context.Background(), in, declaration.SourceDirect)
	require.NoError(t, err)

	t.Run("anonymous callers get the public view", func(t *testing.T) {
		rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/declarations/"+d.TrackingCode))
		testutil.AssertStatusOK(t, rr)
		resp := testutil.UnmarshalResponse[map[string]any](t, rr)
		assert.NotContains(t, *resp, "ip_address")
		assert.NotContains(t, *resp, "admin_notes")
		assert.Equal(t, d.TrackingCode, (*resp)["tracking_code"])
	})

	t.Run("staff get the full record", func(t *testing.T) {
		req := testutil.WithActor(testutil.NewRequest(t, http.MethodGet, "/declarations/"+d.ID.String()), id.NewUserID().String(), "agent1", id.RoleAgent)
		rr := testutil.DoRequest(router, req)
		testutil.AssertStatusOK(t, rr)
		testutil.AssertJSONContains(t, rr, "ip_address", "")
	})

	t.Run("tracking masks the phone", func(t *testing.T) {
		rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/track/"+d.TrackingCode))
		testutil.AssertStatusOK(t, rr)
		testutil.AssertJSONContains(t, rr, "phone", "+2289****56")
	})

	t.Run("unknown code is not found", func(t *testing.T) {
		rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/track/NOPE-NOPE-NOPE"))
		testutil.AssertStatusAndError(t, rr, http.StatusNotFound, "not_found")
	})
}

func TestStaffRoutes(t *testing.T) {
	router, svc := newRouter(t, &fakeGate{})
	d, err := svc.Create(context.Background(), declaration.Input{
		DeclarantName: "Kossi",
		Phone:         "+22891111111",
		Type:          "theft",
		Category:      "phone",
		Description:   "Phone stolen in a taxi near the port.",
		IncidentDate:  "2026-04-01",
		Location:      "Lomé port",
	}, declaration.SourceDirect)
	require.NoError(t, err)
	staff := id.NewUserID().String()

	t.Run("list filters by status", func(t *testing.T) {
		req := testutil.WithActor(testutil.NewRequest(t, http.MethodGet, "/declarations?status=pending&q=taxi"), staff, "agent1", id.RoleAgent)
		rr := testutil.DoRequest(router, req)
		testutil.AssertStatusOK(t, rr)
		testutil.AssertJSONContains(t, rr, "count", float64(1))
	})

	t.Run("update changes status", func(t *testing.T) {
		req := testutil.WithActor(testutil.NewJSONRequest(t, http.MethodPut, "/declarations/"+d.ID.String(),
			map[string]any{"status": "in_progress", "priority": "urgent"}), staff, "agent1", id.RoleAgent)
		rr := testutil.DoRequest(router, req)
		testutil.AssertStatusOK(t, rr)
		testutil.AssertJSONContains(t, rr, "status", "in_progress")
	})

	t.Run("update rejects unknown priority", func(t *testing.T) {
		req := testutil.WithActor(testutil.NewJSONRequest(t, http.MethodPut, "/declarations/"+d.ID.String(),
			map[string]any{"priority": "critical"}), staff, "agent1", id.RoleAgent)
		rr := testutil.DoRequest(router, req)
		testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, "validation_error")
	})

	t.Run("delete then missing", func(t *testing.T) {
		req := testutil.WithActor(testutil.NewRequest(t, http.MethodDelete, "/declarations/"+d.ID.String()), staff, "agent1", id.RoleAgent)
		rr := testutil.DoRequest(router, req)
		testutil.AssertStatus(t, rr, http.StatusNoContent)

		rr = testutil.DoRequest(router, testutil.NewRequest(t, http.MethodDelete, "/declarations/"+d.ID.String()))
		testutil.AssertStatus(t, rr, http.StatusNotFound)
	})

	t.Run("malformed id", func(t *testing.T) {
		rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodDelete, "/declarations/abc"))
		testutil.AssertStatus(t, rr, http.StatusBadRequest)
	})
}
