package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"civicdesk/internal/backup"
	"civicdesk/internal/declaration"
	declmemory "civicdesk/internal/declaration/store/memory"
	"civicdesk/internal/pending"
	pendingmemory "civicdesk/internal/pending/store/memory"
	"civicdesk/internal/protection"
	protectionmemory "civicdesk/internal/protection/store/memory"
	"civicdesk/pkg/testutil"
)

func newRouter(t *testing.T, seed int) chi.Router {
	t.Helper()
	declarations := declaration.NewService(declmemory.New())
	for i := 0; i < seed; i++ {
		_, err := declarations.Create(context.Background(), declaration.Input{
			DeclarantName: "Esi Lawson",
			Phone:         "+22893334455",
			Type:          "found",
			Category:      "wallet",
			Description:   "Brown wallet found outside the pharmacy.",
			IncidentDate:  "2026-07-01",
			Location:      "Tsévié",
		}, declaration.SourceDirect)
		require.NoError(t, err)
	}
	svc := backup.New(declarations,
		pending.NewService(pendingmemory.New(), declarations),
		protection.NewService(protectionmemory.New()),
	)
	r := chi.NewRouter()
	New(svc, slog.New(slog.NewTextHandler(io.Discard, nil))).RegisterAdmin(r)
	return r
}

func TestBackupAndRestore(t *testing.T) {
	source := newRouter(t, 2)
	target := newRouter(t, 0)

	testutil.Given(t, "an admin downloads a backup", func(t *testing.T) {
		rr := testutil.DoRequest(source, testutil.NewRequest(t, http.MethodGet, "/admin/backup"))
		testutil.AssertStatusOK(t, rr)
		assert.True(t, strings.HasPrefix(rr.Header().Get("Content-Disposition"), "attachment; filename="))
		body := rr.Body.String()

		testutil.When(t, "the file is restored elsewhere", func(t *testing.T) {
			rr := testutil.DoRequest(target, testutil.NewRequestWithBody(t, http.MethodPost, "/admin/restore", body))

			testutil.Then(t, "every declaration is imported", func(t *testing.T) {
				testutil.AssertStatusOK(t, rr)
				testutil.AssertJSONContains(t, rr, "imported", float64(2))
				testutil.AssertJSONContains(t, rr, "skipped", float64(0))
			})
		})
	})
}

func TestRestoreRequiresDeclarations(t *testing.T) {
	router := newRouter(t, 0)
	rr := testutil.DoRequest(router, testutil.NewJSONRequest(t, http.MethodPost, "/admin/restore", map[string]any{"version": 1}))
	testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, "validation_error")
}
