package wakeword

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neboloop/hotword/internal/audio"
	"github.com/neboloop/hotword/internal/transcribe"
)

var discard = slog.New(slog.DiscardHandler)

func TestMatch(t *testing.T) {
	keywords := []string{"jarvis", "computer", "alexa"}

	kw, score := Match("Jarvis, enciende la luz.", keywords)
	assert.Equal(t, "jarvis", kw)
	assert.Equal(t, 1.0, score)

	kw, score = Match("  COMPUTER ", keywords)
	assert.Equal(t, "computer", kw)
	assert.Equal(t, 1.0, score)

	kw, score = Match("jarvys", keywords)
	assert.Equal(t, "jarvis", kw)
	assert.InDelta(t, 5.0/6.0, score, 1e-9)

	_, score = Match("buenos días", keywords)
	assert.Less(t, score, 0.5)
}

func TestMatchMultiWordKeyword(t *testing.T) {
	kw, score := Match("hey nebo what time is it", []string{"hey nebo"})
	assert.Equal(t, "hey nebo", kw)
	assert.Equal(t, 1.0, score)
}

func TestStripHotword(t *testing.T) {
	kw, rest, ok := StripHotword("Oye Jarvis, ¿qué hora es?", []string{"alexa", "jarvis"})
	require.True(t, ok)
	assert.Equal(t, "jarvis", kw)
	assert.Equal(t, "¿qué hora es?", rest)

	_, rest, ok = StripHotword("qué hora es", []string{"jarvis"})
	assert.False(t, ok)
	assert.Equal(t, "qué hora es", rest)

	// substrings of other words do not count
	_, _, ok = StripHotword("computerized voice", []string{"computer"})
	assert.False(t, ok)
}

func TestLevenshtein(t *testing.T) {
	assert.Equal(t, 0, levenshtein([]rune("nebo"), []rune("nebo")))
	assert.Equal(t, 3, levenshtein([]rune("kitten"), []rune("sitting")))
	assert.Equal(t, 4, levenshtein(nil, []rune("nebo")))
	assert.Equal(t, 1, levenshtein([]rune("días"), []rune("dias")))
}

func TestBest(t *testing.T) {
	assert.Nil(t, Best(nil))
	b := Best([]Detection{{Keyword: "a", Confidence: 0.96}, {Keyword: "b", Confidence: 0.99}})
	require.NotNil(t, b)
	assert.Equal(t, "b", b.Keyword)
}

type scriptedModel struct {
	scores []float64
	calls  int
	err    error
	closed bool
}

func (m *scriptedModel) Predict(window []float32) (float64, error) {
	if m.err != nil {
		return 0, m.err
	}
	s := m.scores[min(m.calls, len(m.scores)-1)]
	m.calls++
	return s, nil
}

func (m *scriptedModel) Close() error {
	m.closed = true
	return nil
}

func silentFrame(i uint64) audio.Frame {
	return audio.Frame{Samples: make([]int16, 512), Index: i}
}

func TestWindowedScoresFullWindows(t *testing.T) {
	jarvis := &scriptedModel{scores: []float64{0.1, 0.97, 0.2}}
	alexa := &scriptedModel{scores: []float64{0.3}}
	w := NewWindowed([]string{"jarvis", "alexa"}, []Model{jarvis, alexa}, 1280, 0.95)

	// 512 + 512 < 1280: nothing scored yet
	for i := uint64(0); i < 2; i++ {
		ds, err := w.Score(context.Background(), silentFrame(i))
		require.NoError(t, err)
		assert.Empty(t, ds)
	}
	assert.Zero(t, jarvis.calls)

	// third frame completes the first window
	ds, err := w.Score(context.Background(), silentFrame(2))
	require.NoError(t, err)
	assert.Empty(t, ds)
	assert.Equal(t, 1, jarvis.calls)

	var hit []Detection
	for i := uint64(3); i < 8 && hit == nil; i++ {
		ds, err := w.Score(context.Background(), silentFrame(i))
		require.NoError(t, err)
		if len(ds) > 0 {
			hit = ds
		}
	}
	require.Len(t, hit, 1)
	assert.Equal(t, "jarvis", hit[0].Keyword)
	assert.Equal(t, 0.97, hit[0].Confidence)

	require.NoError(t, w.Close())
	assert.True(t, jarvis.closed)
	assert.True(t, alexa.closed)
}

func TestWindowedPropagatesModelErrors(t *testing.T) {
	w := NewWindowed([]string{"jarvis"}, []Model{&scriptedModel{err: errors.New("session gone")}}, 512, 0.5)
	_, err := w.Score(context.Background(), silentFrame(0))
	assert.ErrorContains(t, err, "session gone")
}

func TestLoadWindowedAllowList(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "alexa.onnx"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "hey_mycroft.onnx"), []byte("x"), 0o644))

	var loaded []string
	loader := func(path string) (Model, error) {
		loaded = append(loaded, filepath.Base(path))
		return &scriptedModel{scores: []float64{0}}, nil
	}
	w, err := LoadWindowed(dir, []string{"jarvis", "alexa"}, 1280, 0.9, loader, discard)
	require.NoError(t, err)
	assert.Equal(t, []string{"alexa.onnx"}, loaded)
	assert.Equal(t, []string{"alexa"}, w.keywords)

	_, err = LoadWindowed(t.TempDir(), []string{"jarvis"}, 1280, 0.9, loader, discard)
	assert.ErrorIs(t, err, ErrUnavailable)
}

type fakeTranscriber struct {
	text string
	err  error
	reqs chan transcribe.Request
}

func (f *fakeTranscriber) Name() string { return "fake" }
func (f *fakeTranscriber) Transcribe(_ context.Context, req transcribe.Request) (string, error) {
	if f.reqs != nil {
		f.reqs <- req
	}
	return f.text, f.err
}

func loudFrame(i uint64) audio.Frame {
	s := make([]int16, 512)
	for j := range s {
		s[j] = 3000
	}
	return audio.Frame{Samples: s, Index: i}
}

func newTestPhrase(tr transcribe.Transcriber) *Phrase {
	return NewPhrase(tr, []string{"jarvis"}, 0.8, PhraseOptions{
		SampleRate:    16000,
		FrameLength:   512,
		Threshold:     700,
		MinPhrase:     300 * time.Millisecond,
		MaxPhrase:     2 * time.Second,
		PhraseSilence: 300 * time.Millisecond,
		Language:      "es",
	})
}

// feed runs n frames through p and returns every detection or error seen.
func feed(t *testing.T, p *Phrase, frames []audio.Frame) ([]Detection, error) {
	t.Helper()
	var all []Detection
	for _, f := range frames {
		ds, err := p.Score(context.Background(), f)
		if err != nil {
			return all, err
		}
		all = append(all, ds...)
	}
	return all, nil
}

func utterance(speech, silence int) []audio.Frame {
	var frames []audio.Frame
	for i := 0; i < speech; i++ {
		frames = append(frames, loudFrame(uint64(len(frames))))
	}
	for i := 0; i < silence; i++ {
		frames = append(frames, silentFrame(uint64(len(frames))))
	}
	return frames
}

func TestPhraseDetectsAfterTranscription(t *testing.T) {
	tr := &fakeTranscriber{text: "Jarvis.", reqs: make(chan transcribe.Request, 1)}
	p := newTestPhrase(tr)

	// 15 loud frames (0.48 s) then 9 silent frames closes the segment
	ds, err := feed(t, p, utterance(15, 9))
	require.NoError(t, err)
	assert.Empty(t, ds)

	select {
	case req := <-tr.reqs:
		assert.Equal(t, "es", req.Language)
		assert.Len(t, req.Samples, 24*512)
	case <-time.After(time.Second):
		t.Fatal("segment was not transcribed")
	}

	require.Eventually(t, func() bool {
		ds, err := p.Score(context.Background(), silentFrame(100))
		return err == nil && len(ds) == 1 && ds[0].Keyword == "jarvis"
	}, time.Second, 5*time.Millisecond)
}

func TestPhraseIgnoresShortAndLongSegments(t *testing.T) {
	tr := &fakeTranscriber{text: "jarvis", reqs: make(chan transcribe.Request, 4)}
	p := NewPhrase(tr, []string{"jarvis"}, 0.8, PhraseOptions{
		SampleRate:    16000,
		FrameLength:   512,
		Threshold:     700,
		MinPhrase:     500 * time.Millisecond,
		MaxPhrase:     2 * time.Second,
		PhraseSilence: 300 * time.Millisecond,
	})

	// 1 loud + 9 silent frames is 0.32 s, under the minimum
	_, err := feed(t, p, utterance(1, 9))
	require.NoError(t, err)

	// 64 loud frames overflow the 2 s maximum at frame 63; the trailing
	// frame plus silence is again too short
	_, err = feed(t, p, utterance(64, 20))
	require.NoError(t, err)

	select {
	case <-tr.reqs:
		t.Fatal("segment outside the phrase bounds was transcribed")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPhraseReportsTranscriberErrors(t *testing.T) {
	p := newTestPhrase(&fakeTranscriber{err: errors.New("whisper-cli missing")})
	_, err := feed(t, p, utterance(15, 9))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, err := p.Score(context.Background(), silentFrame(0))
		return err != nil
	}, time.Second, 5*time.Millisecond)
}

func TestPhraseResetDropsInflightResult(t *testing.T) {
	tr := &fakeTranscriber{text: "jarvis", reqs: make(chan transcribe.Request, 1)}
	p := newTestPhrase(tr)
	_, err := feed(t, p, utterance(15, 9))
	require.NoError(t, err)
	<-tr.reqs
	p.Reset()

	time.Sleep(20 * time.Millisecond)
	for i := 0; i < 5; i++ {
		ds, err := p.Score(context.Background(), silentFrame(0))
		require.NoError(t, err)
		assert.Empty(t, ds)
	}
}
