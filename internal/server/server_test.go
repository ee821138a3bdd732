package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neboloop/hotword/internal/db"
	"github.com/neboloop/hotword/internal/metrics"
)

type fakeHistory struct {
	entries []db.Entry
	err     error
	limit   int
	outcome string
}

func (f *fakeHistory) Recent(_ context.Context, limit int, outcome string) ([]db.Entry, error) {
	f.limit, f.outcome = limit, outcome
	return f.entries, f.err
}

func (f *fakeHistory) Counts(context.Context) (map[string]int, error) {
	return map[string]int{"forwarded": len(f.entries)}, f.err
}

func (f *fakeHistory) SourceEvents(context.Context, int) ([]db.SourceEvent, error) {
	return nil, f.err
}

func get(t *testing.T, h http.Handler, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", path, nil))
	var body map[string]any
	if rec.Header().Get("Content-Type") == "application/json; charset=utf-8" {
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	}
	return rec, body
}

func TestHealth(t *testing.T) {
	rec, body := get(t, Router(Options{}), "/health")
	assert.Equal(t, 200, rec.Code)
	assert.Equal(t, "ok", body["status"])
}

func TestStatus(t *testing.T) {
	h := Router(Options{Status: func() any { return map[string]string{"state": "IDLE"} }})
	rec, body := get(t, h, "/api/v1/status")
	assert.Equal(t, 200, rec.Code)
	assert.Equal(t, "IDLE", body["state"])

	rec, _ = get(t, Router(Options{}), "/api/v1/status")
	assert.Equal(t, 503, rec.Code)
}

func TestHistory(t *testing.T) {
	hist := &fakeHistory{entries: []db.Entry{{ID: "a", Outcome: "forwarded"}}}
	h := Router(Options{History: hist})

	rec, body := get(t, h, "/api/v1/history?limit=1000&outcome=forwarded")
	assert.Equal(t, 200, rec.Code)
	assert.Equal(t, 500, hist.limit)
	assert.Equal(t, "forwarded", hist.outcome)
	entries := body["entries"].([]any)
	require.Len(t, entries, 1)
	assert.Equal(t, "a", entries[0].(map[string]any)["id"])

	rec, body = get(t, h, "/api/v1/history/stats")
	assert.Equal(t, 200, rec.Code)
	assert.Equal(t, 1.0, body["outcomes"].(map[string]any)["forwarded"])

	rec, body = get(t, h, "/api/v1/sources")
	assert.Equal(t, 200, rec.Code)
	assert.Empty(t, body["events"])
}

func TestHistoryErrors(t *testing.T) {
	rec, _ := get(t, Router(Options{}), "/api/v1/history")
	assert.Equal(t, 503, rec.Code)

	rec, body := get(t, Router(Options{History: &fakeHistory{err: errors.New("disk I/O error")}}), "/api/v1/history")
	assert.Equal(t, 500, rec.Code)
	assert.Equal(t, "disk I/O error", body["message"])
}

func TestMetricsRoute(t *testing.T) {
	rec, _ := get(t, Router(Options{Metrics: metrics.New()}), "/metrics")
	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "hotword_frames_total")

	rec, _ = get(t, Router(Options{}), "/metrics")
	assert.Equal(t, 404, rec.Code)
}

func TestServeStopsOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, ln, Options{}) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == 200
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestRunFailsOnBusyPort(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	err = Run(context.Background(), Options{Addr: ln.Addr().String()})
	assert.Error(t, err)
}
