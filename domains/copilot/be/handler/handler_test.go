package handler_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	copilothandler "github.com/cw-konishi/copilot-metric-saver/domains/copilot/be/handler"
	copilotrepo "github.com/cw-konishi/copilot-metric-saver/domains/copilot/be/repo"
	copilotservice "github.com/cw-konishi/copilot-metric-saver/domains/copilot/be/service"
	tenantshandler "github.com/cw-konishi/copilot-metric-saver/domains/tenants/be/handler"
	tenantsrepo "github.com/cw-konishi/copilot-metric-saver/domains/tenants/be/repo"
	tenantsservice "github.com/cw-konishi/copilot-metric-saver/domains/tenants/be/service"
	"github.com/cw-konishi/copilot-metric-saver/platform/go/githubapi"
)

// fakeGitHub serves the three Copilot endpoints for tokens it knows about.
func fakeGitHub(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer ghp_good" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"message":"Bad credentials"}`))
			return
		}
		switch {
		case strings.HasSuffix(r.URL.Path, "/copilot/usage"):
			_ = json.NewEncoder(w).Encode([]githubapi.UsageDay{
				{Day: "2024-06-01", TotalSuggestionsCount: 100, TotalActiveUsers: 5},
				{Day: "2024-06-02", TotalSuggestionsCount: 140, TotalActiveUsers: 6},
			})
		case strings.HasSuffix(r.URL.Path, "/copilot/billing/seats"):
			var seat githubapi.Seat
			seat.Assignee.Login = "alice"
			seat.Assignee.ID = 1
			_ = json.NewEncoder(w).Encode(map[string]any{"total_seats": 1, "seats": []githubapi.Seat{seat}})
		case strings.HasSuffix(r.URL.Path, "/copilot/metrics"):
			_, _ = w.Write([]byte(`[{"date":"2024-06-01","total_active_users":5,"total_engaged_users":3}]`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

// newAPI wires registry, data services and both handlers onto one router the
// way the server entrypoint does.
func newAPI(t *testing.T, githubURL string, saveOnRead bool) http.Handler {
	t.Helper()

	client := githubapi.NewClient(githubapi.Config{BaseURL: githubURL})
	registry := tenantsservice.NewRegistry(tenantsrepo.NewMemoryRepository(), client)
	factory := copilotservice.NewFactory(copilotrepo.NewMemoryStore(), client)

	r := chi.NewRouter()
	tenantshandler.New(registry, zap.NewNop()).Routes(r)
	copilothandler.New(registry, factory, copilothandler.Config{SaveTenantsOnRead: saveOnRead}, zap.NewNop()).Routes(r)
	return r
}

func doJSON(t *testing.T, h http.Handler, method, path, token string, body any) (*httptest.ResponseRecorder, []byte) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec, rec.Body.Bytes()
}

func TestUsageEndpointRefreshesAndServes(t *testing.T) {
	t.Parallel()

	github := fakeGitHub(t)
	defer github.Close()
	api := newAPI(t, github.URL, true)

	rec, body := doJSON(t, api, http.MethodGet, "/organization/acme/copilot/usage", "ghp_good", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var days []copilotservice.UsageDay
	require.NoError(t, json.Unmarshal(body, &days))
	require.Len(t, days, 2)
	require.Equal(t, "2024-06-02", days[0].Day, "most recent day first")

	// The read-through registered the tenant for future sync runs.
	rec, body = doJSON(t, api, http.MethodGet, "/tenants", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var views []map[string]any
	require.NoError(t, json.Unmarshal(body, &views))
	require.Len(t, views, 1)
	require.Equal(t, "acme", views[0]["scopeName"])
	require.NotContains(t, string(body), "ghp_good", "tokens must never appear in responses")
}

func TestUsageEndpointRejectsBadToken(t *testing.T) {
	t.Parallel()

	github := fakeGitHub(t)
	defer github.Close()
	api := newAPI(t, github.URL, true)

	rec, _ := doJSON(t, api, http.MethodGet, "/organization/acme/copilot/usage", "ghp_stolen", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body := doJSON(t, api, http.MethodGet, "/tenants", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, "[]", string(body), "a rejected caller must not be registered")
}

func TestUsageEndpointRequiresToken(t *testing.T) {
	t.Parallel()

	github := fakeGitHub(t)
	defer github.Close()
	api := newAPI(t, github.URL, true)

	rec, _ := doJSON(t, api, http.MethodGet, "/organization/acme/copilot/usage", "", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUnknownScopeTypeIsRejected(t *testing.T) {
	t.Parallel()

	github := fakeGitHub(t)
	defer github.Close()
	api := newAPI(t, github.URL, true)

	rec, _ := doJSON(t, api, http.MethodGet, "/repository/acme/copilot/usage", "ghp_good", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSeatsEndpoint(t *testing.T) {
	t.Parallel()

	github := fakeGitHub(t)
	defer github.Close()
	api := newAPI(t, github.URL, false)

	rec, body := doJSON(t, api, http.MethodGet, "/organization/acme/copilot/billing/seats", "ghp_good", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var seats []copilotservice.SeatRecord
	require.NoError(t, json.Unmarshal(body, &seats))
	require.Len(t, seats, 1)
	require.Equal(t, "alice", seats[0].Login)
}

func TestMetricsEndpointWithRange(t *testing.T) {
	t.Parallel()

	github := fakeGitHub(t)
	defer github.Close()
	api := newAPI(t, github.URL, false)

	rec, body := doJSON(t, api, http.MethodGet, "/organization/acme/copilot/metrics?since=2024-06-01&until=2024-06-02", "ghp_good", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var days []copilotservice.MetricsDay
	require.NoError(t, json.Unmarshal(body, &days))
	require.Len(t, days, 1)
	require.Equal(t, "2024-06-01", days[0].Date)
}

func TestTeamScopedRouteReachesUpstream(t *testing.T) {
	t.Parallel()

	var sawTeamPath atomic.Bool
	github := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "/team/platform/") {
			sawTeamPath.Store(true)
		}
		_ = json.NewEncoder(w).Encode([]githubapi.UsageDay{{Day: "2024-06-01"}})
	}))
	defer github.Close()
	api := newAPI(t, github.URL, false)

	rec, _ := doJSON(t, api, http.MethodGet, "/organization/acme/team/platform/copilot/usage", "ghp_good", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, sawTeamPath.Load(), "team-scoped routes must narrow the upstream scope")
}

func TestRegisterAndRemoveTenantLifecycle(t *testing.T) {
	t.Parallel()

	github := fakeGitHub(t)
	defer github.Close()
	api := newAPI(t, github.URL, false)

	rec, _ := doJSON(t, api, http.MethodPost, "/tenants", "", map[string]any{
		"scopeType": "organization",
		"scopeName": "acme",
		"token":     "ghp_good",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, _ = doJSON(t, api, http.MethodPost, "/tenants", "", map[string]any{
		"scopeType": "organization",
		"scopeName": "acme",
		"token":     "ghp_bad",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code, "registration probes the credential upstream")

	rec, _ = doJSON(t, api, http.MethodPost, "/tenants/delete", "", map[string]any{
		"scopeType": "organization",
		"scopeName": "acme",
		"token":     "ghp_good",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, body := doJSON(t, api, http.MethodGet, "/tenants", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, "[]", string(body))
}
