package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rahul/scout/internal/agent"
	"github.com/rahul/scout/internal/observability"
)

func serve(t *testing.T, a Agent, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	handler := NewServer(a, observability.NewMetrics(), nil).Router()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestExecute(t *testing.T) {
	a := &fakeAgent{resp: succeeded()}
	rec := serve(t, a, http.MethodPost, "/execute", `{"query":"latest ai news","user_id":"bob"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	var resp agent.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, agent.StatusSucceeded, resp.Data.Status)
	require.Len(t, resp.Data.Steps, 3)
	assert.Equal(t, "Reasoned about query: latest ai news", resp.Data.Steps[0].Description)

	require.Len(t, a.requests, 1)
	assert.Equal(t, "bob", a.requests[0].UserID)
}

func TestExecute_BadRequests(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"empty body", ""},
		{"malformed json", `{"query":`},
		{"missing query", `{"user_id":"bob"}`},
		{"blank query", `{"query":"   "}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(t, &fakeAgent{}, http.MethodPost, "/execute", tt.body)
			require.Equal(t, http.StatusBadRequest, rec.Code)

			out := decode(t, rec)
			assert.Equal(t, false, out["success"])
			assert.NotEmpty(t, out["error"])
			assert.Contains(t, out, "data")
			assert.Nil(t, out["data"])
		})
	}
}

func TestExecute_InternalErrors(t *testing.T) {
	rec := serve(t, &fakeAgent{err: errors.New("boom")}, http.MethodPost, "/execute", `{"query":"x"}`)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "boom", decode(t, rec)["error"])

	rec = serve(t, &fakeAgent{panicWith: "kaboom"}, http.MethodPost, "/execute", `{"query":"x"}`)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	out := decode(t, rec)
	assert.Equal(t, false, out["success"])
	assert.Equal(t, "internal error", out["error"])
}

func TestHealth(t *testing.T) {
	healthy := &fakeAgent{health: agent.Health{Reasoner: true, Browser: true, Healthy: true}}
	rec := serve(t, healthy, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["healthy"])

	degraded := &fakeAgent{health: agent.Health{
		Browser: true,
		Errors:  map[string]string{"reasoner": "unavailable"},
	}}
	rec = serve(t, degraded, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	out := decode(t, rec)
	assert.Equal(t, false, out["healthy"])
	assert.Equal(t, map[string]any{"reasoner": "unavailable"}, out["errors"])
}

func TestSessions(t *testing.T) {
	a := &fakeAgent{parked: []agent.ParkedSession{{
		ID:     "sess-1",
		TaskID: "task-1",
		URL:    "https://www.linkedin.com",
		Since:  time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}}}

	rec := serve(t, a, http.MethodGet, "/sessions", "")
	require.Equal(t, http.StatusOK, rec.Code)
	sessions, ok := decode(t, rec)["sessions"].([]any)
	require.True(t, ok)
	require.Len(t, sessions, 1)
	assert.Equal(t, "sess-1", sessions[0].(map[string]any)["id"])

	rec = serve(t, a, http.MethodDelete, "/sessions/sess-1", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []string{"sess-1"}, a.released)

	rec = serve(t, a, http.MethodDelete, "/sessions/unknown", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, agent.ErrSessionNotFound.Error(), decode(t, rec)["error"])
}

func TestMetricsEndpoint(t *testing.T) {
	rec := serve(t, &fakeAgent{}, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestCORSPreflight(t *testing.T) {
	rec := serve(t, &fakeAgent{}, http.MethodOptions, "/execute", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "POST")
}
