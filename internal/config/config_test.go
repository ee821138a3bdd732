package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadDefaults(t *testing.T) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("..", "..", "etc", "hotword.yaml"))
	require.NoError(t, err)
	return data
}

func TestEmbeddedDefaultsAreValid(t *testing.T) {
	t.Setenv("HOTWORD_DATA_DIR", t.TempDir())
	c, err := Load(loadDefaults(t), "")
	require.NoError(t, err)

	assert.Equal(t, 16000, c.Audio.SampleRate)
	assert.Equal(t, 512, c.Audio.FrameLength)
	assert.Equal(t, 2.0, c.Audio.Gain)
	assert.Equal(t, []string{"jarvis", "computer", "alexa"}, c.Wake.Keywords)
	assert.Equal(t, 0.95, c.Wake.Sensitivity)
	assert.Equal(t, 600*time.Millisecond, c.Endpoint.MinTalk)
	assert.Equal(t, 8*time.Second, c.Endpoint.MaxCapture)
	assert.Equal(t, 800*time.Millisecond, c.Endpoint.SilenceHang)
	assert.Equal(t, 700.0, c.Endpoint.SilenceRMS)
	assert.Equal(t, 300*time.Millisecond, c.Endpoint.Preroll)
	assert.Equal(t, 60*time.Second, c.Assistant.Timeout)
	assert.NotEmpty(t, c.Journal.Path)
}

func TestApplyEnvOverrides(t *testing.T) {
	c, err := LoadFromBytes(loadDefaults(t))
	require.NoError(t, err)

	env := map[string]string{
		"WAKEWORDS":     " Jarvis , ordenador ,,",
		"WAKEWORD_SENS": "0.7",
		"WAKEWORD_GAIN": "3",
		"MIN_TALK_SEC":  "1.5",
		"SILENCE_HANG":  "0.5",
		"PULSE_SOURCE":  "alsa_input.usb",
		"ASSISTANT_URL": "http://assistant:9000/ask",
		"JOURNAL":       "no",
	}
	require.NoError(t, ApplyEnv(&c, func(k string) string { return env[k] }))

	assert.Equal(t, []string{"jarvis", "ordenador"}, c.Wake.Keywords)
	assert.Equal(t, 0.7, c.Wake.Sensitivity)
	assert.Equal(t, 3.0, c.Audio.Gain)
	assert.Equal(t, 1500*time.Millisecond, c.Endpoint.MinTalk)
	assert.Equal(t, 500*time.Millisecond, c.Endpoint.SilenceHang)
	assert.Equal(t, "alsa_input.usb", c.Capture.Device)
	assert.Equal(t, "http://assistant:9000/ask", c.Assistant.URL)
	assert.False(t, c.Journal.Enabled)
}

func TestApplyEnvRejectsGarbage(t *testing.T) {
	var c Config
	err := ApplyEnv(&c, func(k string) string {
		if k == "SILENCE_RMS" {
			return "loud"
		}
		return ""
	})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "SILENCE_RMS", verr.Field)
}

func TestValidateCooldownAsymmetry(t *testing.T) {
	t.Setenv("HOTWORD_DATA_DIR", t.TempDir())
	c, err := Load(loadDefaults(t), "")
	require.NoError(t, err)

	c.Cooldown.AfterText = 3 * time.Second
	c.Cooldown.AfterEmpty = time.Second
	err = c.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cooldown.after_empty")
}

func TestValidateCollectsEveryProblem(t *testing.T) {
	var c Config
	err := c.Validate()
	require.Error(t, err)

	var fields []string
	for _, e := range unwrapAll(err) {
		var verr *ValidationError
		if errors.As(e, &verr) {
			fields = append(fields, verr.Field)
		}
	}
	assert.Contains(t, fields, "audio.sample_rate")
	assert.Contains(t, fields, "wake.backend")
	assert.Contains(t, fields, "wake.keywords")
	assert.Contains(t, fields, "assistant.url")
}

func TestLoadMergesFile(t *testing.T) {
	t.Setenv("HOTWORD_DATA_DIR", t.TempDir())
	t.Setenv("TEST_ASSISTANT_HOST", "assistant.lan")

	path := filepath.Join(t.TempDir(), "override.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
wake:
  backend: phrase
assistant:
  url: http://${TEST_ASSISTANT_HOST}:8088/speak
`), 0o644))

	c, err := Load(loadDefaults(t), path)
	require.NoError(t, err)
	assert.Equal(t, "phrase", c.Wake.Backend)
	assert.Equal(t, "http://assistant.lan:8088/speak", c.Assistant.URL)
	// untouched keys keep their defaults
	assert.Equal(t, 0.95, c.Wake.Sensitivity)
}

func unwrapAll(err error) []error {
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		return joined.Unwrap()
	}
	return []error{err}
}

func TestValidatePruneSchedule(t *testing.T) {
	t.Setenv("HOTWORD_DATA_DIR", t.TempDir())
	c, err := Load(loadDefaults(t), "")
	require.NoError(t, err)
	assert.Equal(t, 720*time.Hour, c.Journal.Retention)

	c.Journal.PruneSchedule = "whenever"
	err = c.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "journal.prune_schedule")

	c.Journal.Retention = 0
	require.NoError(t, c.Validate())
}

func TestValidateSpeakTimeout(t *testing.T) {
	t.Setenv("HOTWORD_DATA_DIR", t.TempDir())
	c, err := Load(loadDefaults(t), "")
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, c.Speak.Timeout)

	c.Speak.Command = []string{"espeak-ng", "--stdin"}
	c.Speak.Timeout = 0
	err = c.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "speak.timeout")
}
