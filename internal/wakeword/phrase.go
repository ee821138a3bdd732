package wakeword

import (
	"context"
	"fmt"
	"time"

	"github.com/neboloop/hotword/internal/audio"
	"github.com/neboloop/hotword/internal/transcribe"
)

// Phrase spots keywords by energy-segmenting short utterances and
// transcribing them. Transcription runs off the frame path; its result is
// picked up by a later Score call.
type Phrase struct {
	t           transcribe.Transcriber
	keywords    []string
	sensitivity float64
	language    string
	rate        int
	threshold   float64

	minSamples    int
	maxSamples    int
	silenceFrames int

	buf      []int16
	inSpeech bool
	silent   int

	results chan phraseResult
	busy    bool
	gen     uint64
}

type phraseResult struct {
	text  string
	err   error
	gen   uint64
	index uint64
}

// PhraseOptions configures segmentation.
type PhraseOptions struct {
	SampleRate    int
	FrameLength   int
	Threshold     float64
	MinPhrase     time.Duration
	MaxPhrase     time.Duration
	PhraseSilence time.Duration
	Language      string
}

// NewPhrase creates a phrase spotter that transcribes with t.
func NewPhrase(t transcribe.Transcriber, keywords []string, sensitivity float64, o PhraseOptions) *Phrase {
	return &Phrase{
		t:             t,
		keywords:      keywords,
		sensitivity:   sensitivity,
		language:      o.Language,
		rate:          o.SampleRate,
		threshold:     o.Threshold,
		minSamples:    int(int64(o.SampleRate) * int64(o.MinPhrase) / int64(time.Second)),
		maxSamples:    int(int64(o.SampleRate) * int64(o.MaxPhrase) / int64(time.Second)),
		silenceFrames: max(1, audio.FrameCount(o.PhraseSilence, o.SampleRate, o.FrameLength)),
		results:       make(chan phraseResult, 1),
	}
}

func (p *Phrase) Name() string { return "phrase" }

func (p *Phrase) Score(ctx context.Context, f audio.Frame) ([]Detection, error) {
	var out []Detection
	select {
	case r := <-p.results:
		p.busy = false
		if r.gen == p.gen {
			if r.err != nil {
				return nil, fmt.Errorf("phrase transcription: %w", r.err)
			}
			if kw, conf := Match(r.text, p.keywords); conf >= p.sensitivity {
				out = append(out, Detection{Keyword: kw, Confidence: conf, FrameIndex: r.index})
			}
		}
	default:
	}
	p.segment(ctx, f)
	return out, nil
}

func (p *Phrase) segment(ctx context.Context, f audio.Frame) {
	if audio.RMS(f.Samples) >= p.threshold {
		if !p.inSpeech {
			p.inSpeech = true
			p.buf = p.buf[:0]
		}
		p.silent = 0
		p.buf = append(p.buf, f.Samples...)
		// Too long to be a wake word
		if len(p.buf) > p.maxSamples {
			p.inSpeech = false
			p.buf = p.buf[:0]
		}
		return
	}
	if !p.inSpeech {
		return
	}
	p.buf = append(p.buf, f.Samples...)
	p.silent++
	if p.silent < p.silenceFrames {
		return
	}

	p.inSpeech = false
	p.silent = 0
	if len(p.buf) >= p.minSamples && !p.busy {
		p.busy = true
		req := transcribe.Request{
			Samples:    append([]int16(nil), p.buf...),
			SampleRate: p.rate,
			Language:   p.language,
		}
		gen, index := p.gen, f.Index
		go func() {
			text, err := p.t.Transcribe(ctx, req)
			p.results <- phraseResult{text: text, err: err, gen: gen, index: index}
		}()
	}
	p.buf = p.buf[:0]
}

// Reset drops the current segment and ignores any transcription in flight.
func (p *Phrase) Reset() {
	p.buf = p.buf[:0]
	p.inSpeech = false
	p.silent = 0
	p.gen++
}

func (p *Phrase) Close() error { return nil }
