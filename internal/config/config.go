package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/neboloop/hotword/internal/defaults"
)

// Config is the full runtime configuration. It is immutable once the
// pipeline starts.
type Config struct {
	Audio      Audio      `yaml:"audio"`
	Capture    Capture    `yaml:"capture"`
	Wake       Wake       `yaml:"wake"`
	VAD        VAD        `yaml:"vad"`
	Endpoint   Endpoint   `yaml:"endpoint"`
	Cooldown   Cooldown   `yaml:"cooldown"`
	Transcribe Transcribe `yaml:"transcribe"`
	Assistant  Assistant  `yaml:"assistant"`
	Playback   Playback   `yaml:"playback"`
	Speak      Speak      `yaml:"speak"`
	Journal    Journal    `yaml:"journal"`
	Diag       Diag       `yaml:"diag"`
	Log        Log        `yaml:"log"`
	Models     Models     `yaml:"models"`
}

type Audio struct {
	SampleRate  int     `yaml:"sample_rate"`
	FrameLength int     `yaml:"frame_length"`
	Gain        float64 `yaml:"gain"`
}

type Capture struct {
	// Source is one of command, file, wav, stdin, portaudio.
	Source      string   `yaml:"source"`
	Command     []string `yaml:"command"`
	Device      string   `yaml:"device"`
	PulseServer string   `yaml:"pulse_server"`
	Path        string   `yaml:"path"`
	Backoff     Backoff  `yaml:"backoff"`
	// ReportAfter is the number of consecutive failed opens before the
	// source is reported unhealthy.
	ReportAfter int `yaml:"report_after"`
}

type Backoff struct {
	Initial time.Duration `yaml:"initial"`
	Max     time.Duration `yaml:"max"`
}

type Wake struct {
	// Backend is one of onnx, phrase, none.
	Backend     string        `yaml:"backend"`
	Keywords    []string      `yaml:"keywords"`
	Sensitivity float64       `yaml:"sensitivity"`
	ProbeWindow time.Duration `yaml:"probe_window"`

	// onnx backend
	ModelDir   string `yaml:"model_dir"`
	Window     int    `yaml:"window"`
	InputName  string `yaml:"input_name"`
	OutputName string `yaml:"output_name"`

	// phrase backend
	MinPhrase     time.Duration `yaml:"min_phrase"`
	MaxPhrase     time.Duration `yaml:"max_phrase"`
	PhraseSilence time.Duration `yaml:"phrase_silence"`
}

type VAD struct {
	// Backend is one of silero, energy.
	Backend   string  `yaml:"backend"`
	Threshold float64 `yaml:"threshold"`
	Model     string  `yaml:"model"`
}

type Endpoint struct {
	MinTalk     time.Duration `yaml:"min_talk"`
	MaxCapture  time.Duration `yaml:"max_capture"`
	SilenceHang time.Duration `yaml:"silence_hang"`
	SilenceRMS  float64       `yaml:"silence_rms"`
	Preroll     time.Duration `yaml:"preroll"`
}

type Cooldown struct {
	AfterText  time.Duration `yaml:"after_text"`
	AfterEmpty time.Duration `yaml:"after_empty"`
}

type Transcribe struct {
	// Backend is one of whisper, openai.
	Backend       string        `yaml:"backend"`
	Language      string        `yaml:"language"`
	WhisperBinary string        `yaml:"whisper_binary"`
	WhisperModel  string        `yaml:"whisper_model"`
	Threads       int           `yaml:"threads"`
	OpenAIModel   string        `yaml:"openai_model"`
	APIKey        string        `yaml:"api_key"`
	Timeout       time.Duration `yaml:"timeout"`
}

type Assistant struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

type Playback struct {
	Command      []string      `yaml:"command"`
	Ack          bool          `yaml:"ack"`
	Frequency    float64       `yaml:"frequency"`
	Duration     time.Duration `yaml:"duration"`
	Volume       float64       `yaml:"volume"`
	StartupBeeps int           `yaml:"startup_beeps"`
}

// Speak pipes the assistant reply to an external synthesizer. An empty
// command disables it.
type Speak struct {
	Command []string      `yaml:"command"`
	Timeout time.Duration `yaml:"timeout"`
}

// Journal rows older than Retention are pruned on PruneSchedule (a
// standard five-field cron spec or a descriptor like "@hourly"). Zero
// retention keeps everything.
type Journal struct {
	Enabled       bool          `yaml:"enabled"`
	Path          string        `yaml:"path"`
	Retention     time.Duration `yaml:"retention"`
	PruneSchedule string        `yaml:"prune_schedule"`
}

type Diag struct {
	Addr       string        `yaml:"addr"`
	VUInterval time.Duration `yaml:"vu_interval"`
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type Models struct {
	// RuntimeLib is the onnxruntime shared library. Empty uses the
	// platform default.
	RuntimeLib string `yaml:"runtime_lib"`
}

// LoadFromBytes parses YAML with environment variable expansion.
func LoadFromBytes(data []byte) (Config, error) {
	var c Config
	if err := mergeBytes(&c, data); err != nil {
		return c, err
	}
	return c, nil
}

// Load starts from the embedded defaults, merges the optional file at path,
// applies environment overrides and validates the result.
func Load(embedded []byte, path string) (Config, error) {
	c, err := LoadFromBytes(embedded)
	if err != nil {
		return c, fmt.Errorf("embedded config: %w", err)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return c, fmt.Errorf("read config: %w", err)
		}
		if err := mergeBytes(&c, data); err != nil {
			return c, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	if err := ApplyEnv(&c, os.Getenv); err != nil {
		return c, err
	}
	resolvePaths(&c)
	if err := c.Validate(); err != nil {
		return c, err
	}
	return c, nil
}

// resolvePaths fills unset file locations from the data directory.
func resolvePaths(c *Config) {
	dir, err := defaults.DataDir()
	if err != nil {
		return
	}
	if c.Journal.Path == "" {
		c.Journal.Path = filepath.Join(dir, "data", "hotword.db")
	}
	if c.Wake.ModelDir == "" {
		c.Wake.ModelDir = defaults.ModelsDir(dir)
	}
	if c.VAD.Model == "" {
		c.VAD.Model = filepath.Join(defaults.ModelsDir(dir), "silero_vad.onnx")
	}
}

func mergeBytes(c *Config, data []byte) error {
	expanded := os.ExpandEnv(string(data))
	return yaml.Unmarshal([]byte(expanded), c)
}

// ApplyEnv overlays the environment variables the deployment scripts set.
func ApplyEnv(c *Config, getenv func(string) string) error {
	var errs []error
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *float64) {
		v := strings.TrimSpace(getenv(key))
		if v == "" {
			return
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, &ValidationError{Field: key, Reason: fmt.Sprintf("not a number: %q", v)})
			return
		}
		*dst = f
	}
	seconds := func(key string, dst *time.Duration) {
		var f float64 = -1
		num(key, &f)
		if f >= 0 {
			*dst = time.Duration(f * float64(time.Second))
		}
	}

	if v := getenv("WAKEWORDS"); strings.TrimSpace(v) != "" {
		c.Wake.Keywords = splitList(v)
	}
	str("WAKEWORD_BACKEND", &c.Wake.Backend)
	num("WAKEWORD_SENS", &c.Wake.Sensitivity)
	num("WAKEWORD_GAIN", &c.Audio.Gain)
	seconds("WAKEWORD_PROBE_SEC", &c.Wake.ProbeWindow)
	str("WAKEWORD_MODEL_DIR", &c.Wake.ModelDir)
	seconds("MIN_TALK_SEC", &c.Endpoint.MinTalk)
	seconds("MAX_CMD_SEC", &c.Endpoint.MaxCapture)
	num("SILENCE_RMS", &c.Endpoint.SilenceRMS)
	seconds("SILENCE_HANG", &c.Endpoint.SilenceHang)
	seconds("PREROLL_SEC", &c.Endpoint.Preroll)
	str("VAD_BACKEND", &c.VAD.Backend)
	str("CAPTURE_SOURCE", &c.Capture.Source)
	str("CAPTURE_PATH", &c.Capture.Path)
	str("PULSE_SOURCE", &c.Capture.Device)
	str("PULSE_SERVER", &c.Capture.PulseServer)
	str("ASSISTANT_URL", &c.Assistant.URL)
	str("TRANSCRIBE_BACKEND", &c.Transcribe.Backend)
	str("WHISPER_MODEL", &c.Transcribe.WhisperModel)
	str("WHISPER_LANG", &c.Transcribe.Language)
	str("OPENAI_API_KEY", &c.Transcribe.APIKey)
	str("DIAG_ADDR", &c.Diag.Addr)
	str("LOG_LEVEL", &c.Log.Level)
	if v := getenv("JOURNAL"); v != "" {
		c.Journal.Enabled = parseBool(v, c.Journal.Enabled)
	}
	return errors.Join(errs...)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.ToLower(strings.TrimSpace(part)); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// parseBool parses a string as boolean with a default value.
// Accepts: "true", "1", "yes" as true; "false", "0", "no" as false.
func parseBool(s string, defaultVal bool) bool {
	s = strings.TrimSpace(strings.ToLower(s))
	switch s {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	}
	return defaultVal
}

// ValidationError reports a single invalid setting.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

// Validate reports every invalid setting at once. The process must refuse
// to start when it returns an error.
func (c Config) Validate() error {
	var errs []error
	bad := func(field, format string, args ...any) {
		errs = append(errs, &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)})
	}

	if c.Audio.SampleRate <= 0 {
		bad("audio.sample_rate", "must be positive")
	}
	if c.Audio.FrameLength <= 0 {
		bad("audio.frame_length", "must be positive")
	}
	if c.Audio.Gain <= 0 {
		bad("audio.gain", "must be positive, got %v", c.Audio.Gain)
	}

	switch c.Capture.Source {
	case "command":
		if len(c.Capture.Command) == 0 {
			bad("capture.command", "required for command source")
		}
	case "file", "wav":
		if c.Capture.Path == "" {
			bad("capture.path", "required for %s source", c.Capture.Source)
		}
	case "stdin", "portaudio":
	default:
		bad("capture.source", "unknown source %q", c.Capture.Source)
	}
	if c.Capture.Backoff.Initial <= 0 || c.Capture.Backoff.Max < c.Capture.Backoff.Initial {
		bad("capture.backoff", "initial must be positive and not above max")
	}

	switch c.Wake.Backend {
	case "onnx":
		if c.Wake.Window <= 0 {
			bad("wake.window", "must be positive")
		}
	case "phrase":
		if c.Wake.MinPhrase <= 0 || c.Wake.MaxPhrase < c.Wake.MinPhrase {
			bad("wake.min_phrase", "must be positive and not above max_phrase")
		}
	case "none":
	default:
		bad("wake.backend", "unknown backend %q", c.Wake.Backend)
	}
	if len(c.Wake.Keywords) == 0 {
		bad("wake.keywords", "at least one keyword is required")
	}
	if c.Wake.Sensitivity <= 0 || c.Wake.Sensitivity > 1 {
		bad("wake.sensitivity", "must be in (0, 1], got %v", c.Wake.Sensitivity)
	}
	if c.Wake.ProbeWindow < 0 {
		bad("wake.probe_window", "must not be negative")
	}

	switch c.VAD.Backend {
	case "silero", "energy":
	default:
		bad("vad.backend", "unknown backend %q", c.VAD.Backend)
	}

	e := c.Endpoint
	if e.MinTalk <= 0 {
		bad("endpoint.min_talk", "must be positive")
	}
	if e.SilenceHang <= 0 {
		bad("endpoint.silence_hang", "must be positive")
	}
	if e.MaxCapture < e.MinTalk {
		bad("endpoint.max_capture", "must be at least min_talk")
	}
	if e.SilenceRMS <= 0 {
		bad("endpoint.silence_rms", "must be positive")
	}
	if e.Preroll < 0 {
		bad("endpoint.preroll", "must not be negative")
	}
	if c.Audio.SampleRate > 0 && c.Audio.FrameLength > 0 && e.MaxCapture > 0 {
		if frames(e.MaxCapture, c.Audio.SampleRate, c.Audio.FrameLength) < 1 {
			bad("endpoint.max_capture", "shorter than one frame")
		}
	}

	if c.Cooldown.AfterText < 0 {
		bad("cooldown.after_text", "must not be negative")
	}
	if c.Cooldown.AfterEmpty < c.Cooldown.AfterText {
		bad("cooldown.after_empty", "must be at least after_text (%s)", c.Cooldown.AfterText)
	}

	switch c.Transcribe.Backend {
	case "whisper":
		if c.Transcribe.WhisperModel == "" {
			bad("transcribe.whisper_model", "required for whisper backend")
		}
	case "openai":
		if c.Transcribe.APIKey == "" {
			bad("transcribe.api_key", "required for openai backend")
		}
	default:
		bad("transcribe.backend", "unknown backend %q", c.Transcribe.Backend)
	}

	if u, err := url.Parse(c.Assistant.URL); err != nil || u.Scheme == "" || u.Host == "" {
		bad("assistant.url", "must be an absolute URL, got %q", c.Assistant.URL)
	}
	if len(c.Speak.Command) > 0 && c.Speak.Timeout <= 0 {
		bad("speak.timeout", "must be positive when speak.command is set")
	}
	if c.Assistant.Timeout <= 0 {
		bad("assistant.timeout", "must be positive")
	}

	if c.Journal.Enabled && c.Journal.Path == "" {
		bad("journal.path", "required when the journal is enabled")
	}
	if c.Journal.Retention < 0 {
		bad("journal.retention", "must not be negative")
	}
	if c.Journal.Retention > 0 {
		if _, err := cron.ParseStandard(c.Journal.PruneSchedule); err != nil {
			bad("journal.prune_schedule", "invalid cron spec %q: %v", c.Journal.PruneSchedule, err)
		}
	}
	return errors.Join(errs...)
}

func frames(d time.Duration, rate, frameLen int) int {
	return int(int64(d) * int64(rate) / (int64(frameLen) * int64(time.Second)))
}
