// Package dispatch turns finalized utterances into assistant questions. It
// runs on a single serial worker so the frame loop never waits on
// transcription or the network.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/neboloop/hotword/internal/assistant"
	"github.com/neboloop/hotword/internal/endpoint"
	"github.com/neboloop/hotword/internal/transcribe"
	"github.com/neboloop/hotword/internal/wakeword"
)

// Outcome is the final disposition of an utterance.
type Outcome string

const (
	OutcomeForwarded        Outcome = "forwarded"
	OutcomeEmpty            Outcome = "empty"
	OutcomeIgnored          Outcome = "ignored"
	OutcomeTranscribeFailed Outcome = "transcribe_failed"
	OutcomeAssistantFailed  Outcome = "assistant_failed"
	OutcomeAborted          Outcome = "aborted"
	OutcomeDropped          Outcome = "dropped"
)

// Result is reported back to the capture loop for every submitted
// utterance.
type Result struct {
	UtteranceID string
	Trigger     endpoint.Trigger
	Keyword     string
	Outcome     Outcome
	// Text is the sanitized transcript.
	Text     string
	Question string
	Answer   string
	Err      error
	// NonEmpty selects the shorter cooldown.
	NonEmpty bool
	// Speech is the reply text still to be voiced after the Result is
	// reported; empty when there is nothing to say.
	Speech   string
	Audio    time.Duration
	Elapsed  time.Duration
}

// Speaker voices the assistant reply.
type Speaker interface {
	Speak(ctx context.Context, text string) error
}

// Options wires the collaborators.
type Options struct {
	Transcriber transcribe.Transcriber
	Assistant   assistant.Asker
	// Speaker is optional.
	Speaker    Speaker
	Keywords   []string
	Language   string
	SampleRate int
	Logger     *slog.Logger
	// QueueSize bounds pending utterances; extra submissions are dropped.
	QueueSize int
	// SpeakTimeout bounds one Speak call. Defaults to 30s.
	SpeakTimeout time.Duration
}

type job struct {
	u *endpoint.Utterance
}

// Dispatcher processes utterances one at a time.
type Dispatcher struct {
	o       Options
	log     *slog.Logger
	jobs    chan job
	results chan Result

	startOnce sync.Once
	closeOnce sync.Once
	done      chan struct{}
}

func New(o Options) *Dispatcher {
	if o.QueueSize <= 0 {
		o.QueueSize = 4
	}
	if o.SpeakTimeout <= 0 {
		o.SpeakTimeout = 30 * time.Second
	}
	log := o.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Dispatcher{
		o:       o,
		log:     log,
		jobs:    make(chan job, o.QueueSize),
		results: make(chan Result, o.QueueSize+1),
		done:    make(chan struct{}),
	}
}

// Start runs the worker. Work in flight is not cancelled with ctx; each
// step is bounded by its own timeout, and Close waits for it.
func (d *Dispatcher) Start(ctx context.Context) {
	d.startOnce.Do(func() {
		work := context.WithoutCancel(ctx)
		go d.run(work)
	})
}

func (d *Dispatcher) run(ctx context.Context) {
	defer close(d.done)
	defer close(d.results)
	for j := range d.jobs {
		res := d.safeHandle(ctx, j.u)
		// The endpointer only needs the outcome; voicing the reply
		// happens after it has been released.
		d.results <- res
		if res.Speech != "" {
			d.speak(ctx, res.UtteranceID, res.Speech)
		}
	}
}

func (d *Dispatcher) speak(ctx context.Context, id, text string) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("speak panic", "utterance", id, "panic", r)
		}
	}()
	ctx, cancel := context.WithTimeout(ctx, d.o.SpeakTimeout)
	defer cancel()
	if err := d.o.Speaker.Speak(ctx, text); err != nil {
		d.log.Warn("speak failed", "utterance", id, "error", err)
	}
}

func (d *Dispatcher) safeHandle(ctx context.Context, u *endpoint.Utterance) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("dispatch panic", "utterance", u.ID, "panic", r, "stack", string(debug.Stack()))
			res = Result{UtteranceID: u.ID, Trigger: u.Trigger, Outcome: OutcomeTranscribeFailed, Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	return d.Handle(ctx, u)
}

// Submit queues u without blocking. It returns false when the queue is
// full or the dispatcher is closed.
func (d *Dispatcher) Submit(u *endpoint.Utterance) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	select {
	case d.jobs <- job{u: u}:
		return true
	default:
		return false
	}
}

// Results delivers one Result per accepted submission, in order. It is
// closed after Close once the queue drains.
func (d *Dispatcher) Results() <-chan Result {
	return d.results
}

// Close stops accepting work and waits for queued utterances to finish.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() { close(d.jobs) })
	d.startOnce.Do(func() { go d.run(context.Background()) })
	<-d.done
}

// Handle transcribes u and forwards the text. It never returns an error;
// failures are reported in the Result.
func (d *Dispatcher) Handle(ctx context.Context, u *endpoint.Utterance) Result {
	start := time.Now()
	res := Result{
		UtteranceID: u.ID,
		Trigger:     u.Trigger,
		Keyword:     u.Keyword,
		Audio:       u.Duration(d.o.SampleRate),
	}
	defer func() { res.Elapsed = time.Since(start) }()
	log := d.log.With("utterance", u.ID)

	log.Info("transcribing", "trigger", u.Trigger, "samples", len(u.Frames), "audio", res.Audio.Round(10*time.Millisecond))
	raw, err := d.o.Transcriber.Transcribe(ctx, transcribe.Request{
		Samples:    u.Samples(),
		SampleRate: d.o.SampleRate,
		Language:   d.o.Language,
	})
	if err != nil {
		log.Error("transcription failed", "error", err)
		res.Outcome, res.Err = OutcomeTranscribeFailed, err
		return res
	}

	text := Sanitize(raw)
	res.Text = text
	if text == "" {
		log.Info("transcription empty")
		res.Outcome = OutcomeEmpty
		return res
	}
	log.Info("transcribed", "text", text)

	question := text
	if u.Trigger == endpoint.TriggerSpeech {
		kw, rest, ok := wakeword.StripHotword(text, d.o.Keywords)
		if !ok {
			log.Info("no hotword in transcript, ignoring")
			res.Outcome = OutcomeIgnored
			return res
		}
		res.Keyword = kw
		question = rest
		if question == "" {
			res.Outcome = OutcomeEmpty
			return res
		}
	}
	res.NonEmpty = true
	res.Question = question

	reply, err := d.o.Assistant.Ask(ctx, question)
	if err != nil {
		log.Error("assistant request failed", "error", err)
		res.Outcome, res.Err = OutcomeAssistantFailed, err
		return res
	}
	res.Outcome = OutcomeForwarded
	res.Answer = reply.Answer
	log.Info("assistant replied", "chars", len(reply.Answer), "spoken", reply.Spoken)

	if d.o.Speaker != nil && !reply.Spoken {
		res.Speech = SpeechText(reply.Answer)
	}
	return res
}
