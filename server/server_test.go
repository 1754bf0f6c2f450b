package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arcline/adsync/config"
	"github.com/arcline/adsync/creds"
	"github.com/arcline/adsync/dispatch"
	adsynctest "github.com/arcline/adsync/internal/testing"
	"github.com/arcline/adsync/pulse/async"
)

func intPtr(v int) *int { return &v }

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Server.Port = intPtr(config.DefaultServerPort)
	cfg.Server.AllowedOrigins = []string{"http://localhost"}
	cfg.Pipeline.WorkspaceID = "ws-1"
	cfg.Pipeline.DestinationID = "dest-1"
	cfg.Pipeline.SourceDefinitionID = "def-ads"
	cfg.Sync.FallbackThreshold = 3
	cfg.Sync.FreshnessMinutes = 60
	cfg.Pulse.Workers = 1
	cfg.Pulse.TickerIntervalSeconds = 1
	return cfg
}

// newTestServer builds a full server over an in-memory database. The
// worker pool is never started, so enqueued jobs stay queued.
func newTestServer(t *testing.T) (*AdsyncServer, *httptest.Server) {
	t.Helper()

	db := adsynctest.CreateTestDB(t)
	srv := NewServer(context.Background(), db, testConfig())

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	t.Cleanup(func() { srv.cancel() })

	return srv, ts
}

func seedCredential(t *testing.T, srv *AdsyncServer, status creds.TokenStatus) {
	t.Helper()
	err := srv.credStore.Upsert(context.Background(), &creds.Credential{
		TenantID:        "t1",
		AccountID:       "1234567890",
		RefreshTokenEnc: "refresh-token",
		TokenStatus:     status,
	})
	require.NoError(t, err)
}

func decodeBody(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestHandleHealth(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]interface{}
	decodeBody(t, resp, &body)
	assert.Equal(t, "ok", body["status"])
	assert.Contains(t, body, "jobs")
}

func TestSyncTriggerEnqueuesSDKJob(t *testing.T) {
	srv, ts := newTestServer(t)
	seedCredential(t, srv, creds.TokenValid)

	resp, err := http.Post(ts.URL+"/api/accounts/t1/1234567890/sync", "application/json", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	var result dispatch.TriggerResult
	decodeBody(t, resp, &result)
	assert.Equal(t, "SDK", string(result.Engine))
	assert.NotEmpty(t, result.JobID)
	assert.False(t, result.Reused)

	job, err := srv.Queue().GetJob(result.JobID)
	require.NoError(t, err)
	assert.Equal(t, async.JobStatusQueued, job.Status)
	assert.Equal(t, "t1:1234567890", job.Source)
}

func TestSyncTriggerReusesActiveJob(t *testing.T) {
	srv, ts := newTestServer(t)
	seedCredential(t, srv, creds.TokenValid)

	resp1, err := http.Post(ts.URL+"/api/accounts/t1/1234567890/sync", "application/json", nil)
	require.NoError(t, err)
	var first dispatch.TriggerResult
	decodeBody(t, resp1, &first)

	resp2, err := http.Post(ts.URL+"/api/accounts/t1/1234567890/sync", "application/json", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, resp2.StatusCode)

	var second dispatch.TriggerResult
	decodeBody(t, resp2, &second)
	assert.Equal(t, first.JobID, second.JobID)
	assert.True(t, second.Reused)
}

func TestSyncTriggerUnknownAccount(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Post(ts.URL+"/api/accounts/t1/999/sync", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSyncTriggerReauthRequired(t *testing.T) {
	srv, ts := newTestServer(t)
	seedCredential(t, srv, creds.TokenReauthRequired)

	resp, err := http.Post(ts.URL+"/api/accounts/t1/1234567890/sync", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestSyncTriggerRequiresPOST(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/accounts/t1/1234567890/sync")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestAccountStatusNotConnected(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/accounts/t1/1234567890/status")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]interface{}
	decodeBody(t, resp, &body)
	assert.Equal(t, "not_connected", body["status"])
}

func TestAccountStatusReauthRequired(t *testing.T) {
	srv, ts := newTestServer(t)
	seedCredential(t, srv, creds.TokenReauthRequired)

	resp, err := http.Get(ts.URL + "/api/accounts/t1/1234567890/status")
	require.NoError(t, err)

	var body map[string]interface{}
	decodeBody(t, resp, &body)
	assert.Equal(t, "started_not_complete", body["status"])
	assert.Contains(t, body["actions"], "reconnect")
}

func TestAccountStatusConfiguredAwaitingRun(t *testing.T) {
	srv, ts := newTestServer(t)
	seedCredential(t, srv, creds.TokenValid)

	resp, err := http.Get(ts.URL + "/api/accounts/t1/1234567890/status")
	require.NoError(t, err)

	var body map[string]interface{}
	decodeBody(t, resp, &body)
	assert.Equal(t, "complete", body["status"])
}

func TestAccountStatusNeverErrorsOnMissingState(t *testing.T) {
	srv, ts := newTestServer(t)
	seedCredential(t, srv, creds.TokenValid)

	// No sync_state or pipeline connection rows exist, yet the status
	// endpoint must still answer.
	resp, err := http.Get(ts.URL + "/api/accounts/t1/1234567890/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAccountRouteShapeValidation(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/accounts/t1/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp2, err := http.Get(ts.URL + "/api/accounts/t1/1234567890/bogus")
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp2.StatusCode)
}

func TestProvisionUnknownAccount(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Post(ts.URL+"/api/accounts/t1/999/provision", "application/json",
		strings.NewReader(`{"schedule_type":"manual"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListJobs(t *testing.T) {
	srv, ts := newTestServer(t)
	seedCredential(t, srv, creds.TokenValid)

	_, err := http.Post(ts.URL+"/api/accounts/t1/1234567890/sync", "application/json", nil)
	require.NoError(t, err)

	resp, err := http.Get(ts.URL + "/api/jobs")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Jobs  []*async.Job `json:"jobs"`
		Count int          `json:"count"`
	}
	decodeBody(t, resp, &body)
	require.Equal(t, 1, body.Count)
	assert.Equal(t, dispatch.SDKSyncHandlerName, body.Jobs[0].HandlerName)
}

func TestListJobsStatusFilter(t *testing.T) {
	srv, ts := newTestServer(t)
	seedCredential(t, srv, creds.TokenValid)

	_, err := http.Post(ts.URL+"/api/accounts/t1/1234567890/sync", "application/json", nil)
	require.NoError(t, err)

	resp, err := http.Get(ts.URL + "/api/jobs?status=completed")
	require.NoError(t, err)
	var body struct {
		Count int `json:"count"`
	}
	decodeBody(t, resp, &body)
	assert.Equal(t, 0, body.Count)

	resp2, err := http.Get(ts.URL + "/api/jobs?status=bogus")
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp2.StatusCode)
}

func TestGetJob(t *testing.T) {
	srv, ts := newTestServer(t)
	seedCredential(t, srv, creds.TokenValid)

	resp, err := http.Post(ts.URL+"/api/accounts/t1/1234567890/sync", "application/json", nil)
	require.NoError(t, err)
	var result dispatch.TriggerResult
	decodeBody(t, resp, &result)

	resp2, err := http.Get(ts.URL + "/api/jobs/" + result.JobID)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp2.StatusCode)

	var job async.Job
	decodeBody(t, resp2, &job)
	assert.Equal(t, result.JobID, job.ID)

	resp3, err := http.Get(ts.URL + "/api/jobs/job-missing")
	require.NoError(t, err)
	defer resp3.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp3.StatusCode)
}

func TestGetJobChildren(t *testing.T) {
	srv, ts := newTestServer(t)
	seedCredential(t, srv, creds.TokenValid)

	resp, err := http.Post(ts.URL+"/api/accounts/t1/1234567890/sync", "application/json", nil)
	require.NoError(t, err)
	var result dispatch.TriggerResult
	decodeBody(t, resp, &result)

	resp2, err := http.Get(ts.URL + "/api/jobs/" + result.JobID + "/children")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp2.StatusCode)

	var body struct {
		Count int `json:"count"`
	}
	decodeBody(t, resp2, &body)
	assert.Equal(t, 0, body.Count)
}

func TestCORSPreflightAllowedOrigin(t *testing.T) {
	_, ts := newTestServer(t)

	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/api/jobs", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:3000")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "http://localhost:3000", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestCORSDisallowedOrigin(t *testing.T) {
	_, ts := newTestServer(t)

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/jobs", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://evil.example.com")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestReloadConfigAppliesToNextRequest(t *testing.T) {
	srv, ts := newTestServer(t)

	doGet := func(origin string) string {
		req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/jobs", nil)
		require.NoError(t, err)
		req.Header.Set("Origin", origin)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		return resp.Header.Get("Access-Control-Allow-Origin")
	}

	assert.Empty(t, doGet("http://console.example.com"))

	updated := testConfig()
	updated.Server.AllowedOrigins = []string{"http://console.example.com"}
	srv.ReloadConfig(updated)

	assert.Equal(t, "http://console.example.com", doGet("http://console.example.com"))
}

func TestJobsWebSocketFeed(t *testing.T) {
	srv, ts := newTestServer(t)
	seedCredential(t, srv, creds.TokenValid)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/jobs"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	// Enqueue through the HTTP API so the subscriber sees the event
	_, err = http.Post(ts.URL+"/api/accounts/t1/1234567890/sync", "application/json", nil)
	require.NoError(t, err)

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var msg struct {
		Type string     `json:"type"`
		Job  *async.Job `json:"job"`
	}
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "job_update", msg.Type)
	require.NotNil(t, msg.Job)
	assert.Equal(t, "t1:1234567890", msg.Job.Source)
	assert.Equal(t, async.JobStatusQueued, msg.Job.Status)
}
