package api

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/interpd/internal/events"
	"github.com/mattjoyce/interpd/internal/history"
	"github.com/mattjoyce/interpd/internal/log"
	"github.com/mattjoyce/interpd/internal/pool"
	"github.com/mattjoyce/interpd/internal/storage"
)

// newTestServer wires a real pool against a shell fixture so the handlers
// are exercised end to end.
func newTestServer(t *testing.T, apiKey string) (*Server, *pool.Pool, *events.Hub) {
	t.Helper()

	script := filepath.Join(t.TempDir(), "worker.sh")
	body := "#!/bin/sh\nwhile read line; do echo '{\"status\":\"success\",\"echo\":true,\"__t\":4}'; done\n"
	require.NoError(t, os.WriteFile(script, []byte(body), 0o755))

	p, err := pool.New(pool.Config{
		Runtime:      "/bin/sh",
		Script:       script,
		MinWorkers:   1,
		MaxWorkers:   1,
		TaskTimeout:  5 * time.Second,
		IdleTTL:      time.Minute,
		RespawnDelay: 50 * time.Millisecond,
	})
	require.NoError(t, err)
	t.Cleanup(p.Shutdown)

	db, err := storage.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "interpd.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	hub := events.NewHub(64)
	s := New(Config{Listen: "127.0.0.1:0", APIKey: apiKey}, p, history.New(db), hub, log.WithComponent("api"))
	return s, p, hub
}

func TestHealthz(t *testing.T) {
	s, _, _ := newTestServer(t, "")
	ts := httptest.NewServer(s.Routes())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body HealthzResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, 1, body.Workers)
}

func TestAuthRequired(t *testing.T) {
	s, _, _ := newTestServer(t, "sekrit")
	ts := httptest.NewServer(s.Routes())
	defer ts.Close()

	// Healthz stays open.
	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Status requires the bearer token.
	resp, err = http.Get(ts.URL + "/status")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/status", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req.Header.Set("Authorization", "Bearer sekrit")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestInterpret(t *testing.T) {
	s, _, _ := newTestServer(t, "")
	ts := httptest.NewServer(s.Routes())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/interpret", "application/json",
		strings.NewReader(`{"interpretation":{"product":"abc"}}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body InterpretResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.True(t, body.Success)
	assert.NotEmpty(t, body.Rid)
	assert.Equal(t, int64(4), body.ExecutionTimeMs)
	assert.Equal(t, true, body.Result["echo"])
}

func TestInterpretBadBody(t *testing.T) {
	s, _, _ := newTestServer(t, "")
	ts := httptest.NewServer(s.Routes())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/interpret", "application/json", strings.NewReader(`{not json`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Post(ts.URL+"/interpret", "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestStatusIncludesPool(t *testing.T) {
	s, _, _ := newTestServer(t, "")
	ts := httptest.NewServer(s.Routes())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body StatusResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, 1, body.Pool.MinWorkers)
	assert.Len(t, body.Pool.Workers, 1)
	require.NotNil(t, body.History)
}

func TestEventsStream(t *testing.T) {
	s, _, hub := newTestServer(t, "")
	ts := httptest.NewServer(s.Routes())
	defer ts.Close()

	hub.Publish(events.TypeTaskCompleted, map[string]string{"rid": "r-1"})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/events", nil)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	// The buffered event is replayed immediately for late clients.
	reader := bufio.NewReader(resp.Body)
	var sawEvent, sawData bool
	for !sawEvent || !sawData {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		if strings.HasPrefix(line, "event: "+events.TypeTaskCompleted) {
			sawEvent = true
		}
		if strings.HasPrefix(line, "data: ") && strings.Contains(line, "r-1") {
			sawData = true
		}
	}
}
