package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/jobetl/internal/config"
	"github.com/JonMunkholm/jobetl/internal/core"
	"github.com/JonMunkholm/jobetl/internal/pipeline"
)

type fakeRunner struct {
	startErr error
	started  int
	latest   *pipeline.Report
}

func (f *fakeRunner) Start(context.Context) (string, error) {
	if f.startErr != nil {
		return "", f.startErr
	}
	f.started++
	return "run-1", nil
}

func (f *fakeRunner) Latest() (pipeline.Report, bool) {
	if f.latest == nil {
		return pipeline.Report{}, false
	}
	return *f.latest, true
}

func (f *fakeRunner) Running() bool { return false }

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

func newTestServer(runner Runner, db Pinger, sec config.SecurityConfig) *Server {
	return NewServer(context.Background(), runner, db, config.ServerConfig{RequestTimeout: time.Second}, sec)
}

func do(t *testing.T, s *Server, method, path string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	rec := do(t, newTestServer(&fakeRunner{}, fakePinger{}, config.SecurityConfig{}), http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"status":"ok"`)
	require.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	rec = do(t, newTestServer(&fakeRunner{}, fakePinger{err: errors.New("dial tcp: connection refused")}, config.SecurityConfig{}), http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "DB004", body.Code)
}

func TestHealth_NoDatabase(t *testing.T) {
	rec := do(t, newTestServer(&fakeRunner{}, nil, config.SecurityConfig{}), http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestStartRun(t *testing.T) {
	runner := &fakeRunner{}
	s := newTestServer(runner, nil, config.SecurityConfig{})

	rec := do(t, s, http.MethodPost, "/api/runs", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.JSONEq(t, `{"run_id":"run-1"}`, rec.Body.String())
	require.Equal(t, 1, runner.started)
}

func TestStartRun_InProgress(t *testing.T) {
	s := newTestServer(&fakeRunner{startErr: core.ErrRunInProgress}, nil, config.SecurityConfig{})

	rec := do(t, s, http.MethodPost, "/api/runs", nil)
	require.Equal(t, http.StatusConflict, rec.Code)

	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "RUN001", body.Code)
}

func TestStartRun_RequiresKey(t *testing.T) {
	runner := &fakeRunner{}
	s := newTestServer(runner, nil, config.SecurityConfig{RequireAPIKey: true, APIKeys: []string{"secret"}})

	require.Equal(t, http.StatusUnauthorized, do(t, s, http.MethodPost, "/api/runs", nil).Code)
	require.Zero(t, runner.started)

	rec := do(t, s, http.MethodPost, "/api/runs", map[string]string{"X-API-Key": "secret"})
	require.Equal(t, http.StatusAccepted, rec.Code)

	// Reads stay open.
	require.Equal(t, http.StatusNotFound, do(t, s, http.MethodGet, "/api/runs/latest", nil).Code)
}

func TestLatestRun(t *testing.T) {
	rep := &pipeline.Report{
		RunID:     "run-7",
		Status:    pipeline.StatusFailed,
		StartedAt: time.Now().Add(-time.Minute),
		Stages:    []pipeline.StageReport{{Stage: core.StageExtract, Attempts: 2, Records: 1200}},
		Counts:    pipeline.Counts{Extracted: 1200, Dropped: 3},
		Error:     "stage load: <boom>",
		ErrorCode: "ERR000",
	}
	s := newTestServer(&fakeRunner{latest: rep}, nil, config.SecurityConfig{})

	rec := do(t, s, http.MethodGet, "/api/runs/latest", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var got pipeline.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, "run-7", got.RunID)
	require.Equal(t, int64(1200), got.Counts.Extracted)

	rec = do(t, s, http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page := rec.Body.String()
	require.Contains(t, page, "run-7")
	require.Contains(t, page, "1,200")
	require.Contains(t, page, "&lt;boom&gt;")
	require.False(t, strings.Contains(page, "<boom>"))
}

func TestStatusPage_NoRun(t *testing.T) {
	rec := do(t, newTestServer(&fakeRunner{}, nil, config.SecurityConfig{}), http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "No run yet")
}

func TestStatusPage_StageTable(t *testing.T) {
	rep := &pipeline.Report{
		RunID:  "run-8",
		Status: pipeline.StatusSucceeded,
		Stages: []pipeline.StageReport{
			{Stage: core.StageTransform, Attempts: 1, Records: 25000, Duration: 1500 * time.Millisecond},
			{Stage: core.StageLoad, Attempts: 3, Records: 25000, Error: "a & b"},
		},
	}

	var sb strings.Builder
	require.NoError(t, statusPage(rep).Render(context.Background(), &sb))
	page := sb.String()

	require.Contains(t, page, "<h2>Stages</h2>")
	require.Contains(t, page, "<td>transform</td><td>1</td><td>25,000</td><td>1.5s</td>")
	require.Contains(t, page, "<td>load</td><td>3</td>")
	require.Contains(t, page, "a &amp; b")
	require.NotContains(t, page, "No run yet")
}
