package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"

	"civicdesk/internal/declaration"
	declmemory "civicdesk/internal/declaration/store/memory"
	"civicdesk/internal/pending"
	pendingmemory "civicdesk/internal/pending/store/memory"
	"civicdesk/internal/reconcile"
	"civicdesk/pkg/testutil"
)

func newRouter(t *testing.T) (chi.Router, *declaration.Service) {
	t.Helper()
	decls := declaration.NewService(declmemory.New())
	queue := pending.NewService(pendingmemory.New(), decls)
	h := New(reconcile.New(decls, queue), slog.New(slog.NewTextHandler(io.Discard, nil)))
	r := chi.NewRouter()
	h.Register(r)
	return r, decls
}

func TestSync(t *testing.T) {
	router, decls := newRouter(t)

	t.Run("empty list is rejected", func(t *testing.T) {
		rr := testutil.DoRequest(router, testutil.NewJSONRequest(t, http.MethodPost, "/sync", map[string]any{"declarations": []any{}}))
		testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, "validation_error")
	})

	t.Run("missing list is rejected", func(t *testing.T) {
		rr := testutil.DoRequest(router, testutil.NewJSONRequest(t, http.MethodPost, "/sync", map[string]any{}))
		testutil.AssertStatus(t, rr, http.StatusBadRequest)
	})

	t.Run("batch summary", func(t *testing.T) {
		rr := testutil.DoRequest(router, testutil.NewJSONRequest(t, http.MethodPost, "/sync", map[string]any{
			"declarations": []any{
				map[string]any{
					"declarant_name": "Esi Amegah",
					"phone":          "+22890001111",
					"type":           "loss",
					"category":       "keys",
					"description":    "Set of three keys on a red ring lost at the market.",
					"incident_date":  "2026-03-20",
					"location":       "Aného",
				},
				map[string]any{"phone": "bad"},
			},
		}))
		testutil.AssertStatusOK(t, rr)
		res := testutil.UnmarshalResponse[reconcile.Result](t, rr)
		assert.Equal(t, 1, res.CreatedCount)
		assert.Equal(t, 1, res.PendingCount)
		assert.Zero(t, res.ErrorsCount)

		n, err := decls.Count(context.Background())
		assert.NoError(t, err)
		assert.Equal(t, 1, n)
	})
}
