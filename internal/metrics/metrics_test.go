package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New()
	m.Frame(false)
	m.Frame(true)
	m.Detection("jarvis")
	m.Utterance("wake", "forwarded", 1300*time.Millisecond, 2*time.Second)
	m.Utterance("speech", "ignored", time.Second, 0)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.frames))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.discarded))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.detections.WithLabelValues("jarvis")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.utterances.WithLabelValues("speech", "ignored")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.dispatchTime))
}

func TestStateGaugeIsExclusive(t *testing.T) {
	m := New()
	m.State("", "IDLE")
	m.State("IDLE", "ARMED")

	assert.Equal(t, 0.0, testutil.ToFloat64(m.state.WithLabelValues("IDLE")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.state.WithLabelValues("ARMED")))
}

func TestHandlerServesRegistry(t *testing.T) {
	m := New()
	m.Level(321)
	m.Fallback(true)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	body, _ := io.ReadAll(rec.Body)
	assert.Contains(t, string(body), "hotword_input_rms 321")
	assert.Contains(t, string(body), "hotword_fallback_mode 1")
	assert.Contains(t, string(body), "go_goroutines")
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.Frame(true)
	m.Detection("x")
	m.Utterance("wake", "empty", 0, 0)
	m.State("a", "b")
	m.Level(1)
	m.SourceOpen(false)
	m.Fallback(true)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, 404, rec.Code)
}
