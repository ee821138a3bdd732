// Package pipeline runs the capture loop: it reads frames, feeds the wake
// scorer or speech gate, steps the endpointer, and hands finalized
// utterances to the dispatcher.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/neboloop/hotword/internal/audio"
	"github.com/neboloop/hotword/internal/capture"
	"github.com/neboloop/hotword/internal/config"
	"github.com/neboloop/hotword/internal/db"
	"github.com/neboloop/hotword/internal/dispatch"
	"github.com/neboloop/hotword/internal/endpoint"
	"github.com/neboloop/hotword/internal/events"
	"github.com/neboloop/hotword/internal/metrics"
	"github.com/neboloop/hotword/internal/playback"
	"github.com/neboloop/hotword/internal/vad"
	"github.com/neboloop/hotword/internal/vumeter"
	"github.com/neboloop/hotword/internal/wakeword"
)

// healthySession is how long a capture stream must run before its reopen
// backoff starts over.
const healthySession = time.Second

// Journal records outcomes. *db.Store satisfies it.
type Journal interface {
	Record(ctx context.Context, e db.Entry) error
	RecordSource(ctx context.Context, ev db.SourceEvent) error
}

// Deps wires a Pipeline. Config, Source, Gate and Dispatcher are required.
type Deps struct {
	Config     *config.Config
	Source     capture.Source
	Gate       vad.Gate
	Dispatcher *dispatch.Dispatcher

	// Scorer is nil when wake-word detection is off. ScorerErr says why
	// when the configured backend failed to load.
	Scorer    wakeword.Scorer
	ScorerErr error

	Acker       *playback.Acker
	Journal     Journal
	Bus         *events.Bus
	Metrics     *metrics.Metrics
	Meter       *vumeter.Meter
	Logger      *slog.Logger
	Now         func() time.Time
	MachineOpts []endpoint.Option
}

// Status is a point-in-time view for diagnostics.
type Status struct {
	State      string        `json:"state"`
	Fallback   bool          `json:"fallback"`
	Scorer     string        `json:"scorer"`
	Source     string        `json:"source"`
	SourceUp   bool          `json:"source_up"`
	Frames     uint64        `json:"frames"`
	Pending    string        `json:"pending,omitempty"`
	Cooldown   time.Duration `json:"cooldown"`
	StartedAt  time.Time     `json:"started_at"`
	LastResult string        `json:"last_result,omitempty"`
}

// Pipeline owns the endpointer and every per-frame collaborator. Only the
// Run goroutine touches them.
type Pipeline struct {
	cfg     *config.Config
	src     capture.Source
	scorer  wakeword.Scorer
	gate    vad.Gate
	disp    *dispatch.Dispatcher
	acker   *playback.Acker
	journal Journal
	bus     *events.Bus
	metrics *metrics.Metrics
	meter   *vumeter.Meter
	log     *slog.Logger
	now     func() time.Time

	machine  *endpoint.Machine
	gain     float64
	probe    time.Duration
	detected bool
	started  time.Time
	next     uint64
	inflight map[string]*endpoint.Utterance

	mu     sync.Mutex
	status Status
}

func New(d Deps) *Pipeline {
	log := d.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	now := d.Now
	if now == nil {
		now = time.Now
	}
	p := &Pipeline{
		cfg:      d.Config,
		src:      d.Source,
		scorer:   d.Scorer,
		gate:     d.Gate,
		disp:     d.Dispatcher,
		acker:    d.Acker,
		journal:  d.Journal,
		bus:      d.Bus,
		metrics:  d.Metrics,
		meter:    d.Meter,
		log:      log,
		now:      now,
		gain:     d.Config.Audio.Gain,
		inflight: map[string]*endpoint.Utterance{},
	}
	if p.scorer != nil && d.Config.Wake.Backend != "none" {
		p.probe = d.Config.Wake.ProbeWindow
	}

	fallback := p.scorer == nil
	p.machine = endpoint.New(endpoint.ParamsFromConfig(d.Config), fallback, d.MachineOpts...)
	switch {
	case fallback && d.ScorerErr != nil:
		log.Warn("wake-word backend unavailable, listening for speech", "backend", d.Config.Wake.Backend, "error", d.ScorerErr)
	case fallback:
		log.Info("wake-word detection disabled, listening for speech")
	}
	p.metrics.Fallback(fallback)
	p.metrics.State("", p.machine.State().String())

	p.status = Status{
		State:    p.machine.State().String(),
		Fallback: fallback,
		Scorer:   p.scorerName(),
		Source:   d.Source.Name(),
	}
	return p
}

// Status returns the latest snapshot. It is safe from any goroutine.
func (p *Pipeline) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// StatusAny adapts Status for the diagnostics server.
func (p *Pipeline) StatusAny() any { return p.Status() }

// Run processes audio until ctx is cancelled or a one-shot source ends.
// Queued utterances are finished before it returns.
func (p *Pipeline) Run(ctx context.Context) error {
	p.started = p.now()
	p.updateStatus(func(s *Status) { s.StartedAt = p.started })
	p.disp.Start(ctx)
	defer p.shutdown()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.cfg.Capture.Backoff.Initial
	bo.MaxInterval = p.cfg.Capture.Backoff.Max

	for {
		rc, err := p.open(ctx, bo)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		frames, err := p.session(ctx, rc)
		rc.Close()
		p.endSession(ctx, frames, err)

		if ctx.Err() != nil {
			return nil
		}
		if capture.IsOneShot(p.src) {
			p.log.Info("capture source finished", "source", p.src.Name(), "frames", frames)
			return nil
		}
		// Only a session that ran for a while earns a fresh backoff, so a
		// capture program dying after every short burst is still paced.
		if frames >= p.healthyFrames() {
			bo.Reset()
		}
		if !sleep(ctx, bo.NextBackOff()) {
			return nil
		}
	}
}

// healthyFrames is one second of audio, at least one frame.
func (p *Pipeline) healthyFrames() int {
	return max(1, audio.FrameCount(healthySession, p.cfg.Audio.SampleRate, p.cfg.Audio.FrameLength))
}

func (p *Pipeline) open(ctx context.Context, bo *backoff.ExponentialBackOff) (io.ReadCloser, error) {
	failures := 0
	for {
		rc, err := p.src.Open(ctx)
		if err == nil {
			p.metrics.SourceOpen(true)
			p.sourceEvent(ctx, "opened", "")
			p.updateStatus(func(s *Status) { s.SourceUp = true })
			p.log.Info("capture source opened", "source", p.src.Name())
			return rc, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		failures++
		p.metrics.SourceOpen(false)
		if capture.IsOneShot(p.src) {
			return nil, fmt.Errorf("open %s: %w", p.src.Name(), err)
		}
		wait := bo.NextBackOff()
		if failures == p.cfg.Capture.ReportAfter {
			p.log.Error("capture source unavailable", "source", p.src.Name(), "attempts", failures, "error", err)
			p.sourceEvent(ctx, "unhealthy", err.Error())
		} else {
			p.log.Warn("capture source open failed", "source", p.src.Name(), "attempt", failures, "retry_in", wait, "error", err)
		}
		if !sleep(ctx, wait) {
			return nil, ctx.Err()
		}
	}
}

func (p *Pipeline) session(ctx context.Context, rc io.Reader) (int, error) {
	fr := capture.NewFrameReader(rc, p.cfg.Audio.FrameLength, p.next)
	frames := 0
	for {
		f, err := fr.Next()
		p.next = fr.NextIndex()
		if err != nil {
			return frames, err
		}
		frames++
		p.drainResults(ctx)
		p.handleFrame(ctx, f)
	}
}

// endSession drops any partial capture. The aborted audio is journaled
// but never transcribed.
func (p *Pipeline) endSession(ctx context.Context, frames int, err error) {
	detail := ""
	if err != nil && err != capture.ErrEndOfStream {
		detail = err.Error()
	}
	if ctx.Err() == nil {
		p.log.Warn("capture stream ended", "source", p.src.Name(), "frames", frames, "error", detail)
	}
	p.sourceEvent(context.WithoutCancel(ctx), "ended", detail)
	p.updateStatus(func(s *Status) { s.SourceUp = false })

	prev := p.machine.State()
	if u := p.machine.Abort(p.now()); u != nil {
		p.log.Info("capture aborted", "utterance", u.ID, "frames", u.FramesSeen)
		p.record(context.WithoutCancel(ctx), u, dispatch.Result{
			UtteranceID: u.ID,
			Trigger:     u.Trigger,
			Keyword:     u.Keyword,
			Outcome:     dispatch.OutcomeAborted,
			Audio:       u.Duration(p.cfg.Audio.SampleRate),
		})
	}
	p.stateChanged(prev, p.machine.State())
	p.resetDetectors()
}

func (p *Pipeline) handleFrame(ctx context.Context, f audio.Frame) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("frame processing panic", "frame", f.Index, "panic", r, "stack", string(debug.Stack()))
		}
	}()

	now := p.now()
	p.meter.Observe(f, now)

	if p.probe > 0 && !p.detected && now.Sub(p.started) >= p.probe {
		p.switchToFallback("no wake detection within probe window", nil)
	}

	in := endpoint.Input{Frame: f, Now: now}
	need := p.machine.Needs(now)
	if need.Score && p.scorer != nil {
		ds, err := p.scorer.Score(ctx, audio.ApplyGain(f, p.gain))
		if err != nil {
			p.switchToFallback("wake-word scorer failed", err)
			need = p.machine.Needs(now)
		} else if d := wakeword.Best(ds); d != nil {
			in.Wake = d
		}
	}
	if need.Speech {
		in.Speech = p.gate.IsSpeech(f)
	}

	out := p.machine.Step(in)
	p.metrics.Frame(out.Discarded)

	if out.Ack && in.Wake != nil {
		p.detected = true
		p.log.Info("wake word detected", "keyword", in.Wake.Keyword, "confidence", fmt.Sprintf("%.2f", in.Wake.Confidence), "frame", f.Index)
		p.metrics.Detection(in.Wake.Keyword)
		_ = events.Emit(p.bus, events.TopicDetection, events.Detection{
			Keyword: in.Wake.Keyword, Confidence: in.Wake.Confidence, Frame: f.Index, At: now,
		})
		p.acker.Ack(context.WithoutCancel(ctx))
	}
	p.stateChanged(out.Prev, out.State)

	if u := out.Finalized; u != nil {
		p.log.Info("utterance finalized", "utterance", u.ID, "trigger", u.Trigger, "reason", u.Reason,
			"frames", u.FramesSeen, "preroll", u.Preroll, "audio", u.Duration(p.cfg.Audio.SampleRate))
		p.inflight[u.ID] = u
		if !p.disp.Submit(u) {
			p.log.Warn("dispatch queue full, dropping utterance", "utterance", u.ID)
			p.complete(ctx, dispatch.Result{
				UtteranceID: u.ID,
				Trigger:     u.Trigger,
				Keyword:     u.Keyword,
				Outcome:     dispatch.OutcomeDropped,
				Audio:       u.Duration(p.cfg.Audio.SampleRate),
			})
		}
	}

	p.updateStatus(func(s *Status) {
		s.Frames++
		s.State = p.machine.State().String()
		s.Pending = p.machine.Pending()
		s.Cooldown = p.machine.CooldownRemaining(now)
	})
}

func (p *Pipeline) drainResults(ctx context.Context) {
	for {
		select {
		case r, ok := <-p.disp.Results():
			if !ok {
				return
			}
			p.complete(ctx, r)
		default:
			return
		}
	}
}

// complete closes out a dispatched utterance: the endpointer leaves
// FINALIZING and the cooldown starts.
func (p *Pipeline) complete(ctx context.Context, r dispatch.Result) {
	now := p.now()
	prev := p.machine.State()
	p.machine.Complete(r.UtteranceID, r.NonEmpty, now)
	p.stateChanged(prev, p.machine.State())
	if prev == endpoint.Finalizing {
		p.resetDetectors()
	}

	u := p.inflight[r.UtteranceID]
	delete(p.inflight, r.UtteranceID)

	p.log.Info("utterance done", "utterance", r.UtteranceID, "outcome", r.Outcome,
		"elapsed", r.Elapsed.Round(time.Millisecond), "cooldown", p.machine.CooldownRemaining(now).Round(time.Millisecond))
	p.record(context.WithoutCancel(ctx), u, r)
	p.updateStatus(func(s *Status) {
		s.LastResult = string(r.Outcome)
		s.State = p.machine.State().String()
		s.Pending = p.machine.Pending()
	})
}

func (p *Pipeline) record(ctx context.Context, u *endpoint.Utterance, r dispatch.Result) {
	now := p.now()
	p.metrics.Utterance(r.Trigger.String(), string(r.Outcome), r.Audio, r.Elapsed)
	_ = events.Emit(p.bus, events.TopicUtterance, events.UtteranceDone{
		ID:      r.UtteranceID,
		Trigger: r.Trigger.String(),
		Outcome: string(r.Outcome),
		Text:    r.Text,
		Audio:   r.Audio,
		Elapsed: r.Elapsed,
		At:      now,
	})
	if p.journal == nil {
		return
	}
	e := db.Entry{
		ID:         r.UtteranceID,
		Trigger:    r.Trigger.String(),
		Keyword:    r.Keyword,
		Outcome:    string(r.Outcome),
		Transcript: r.Text,
		Question:   r.Question,
		Answer:     r.Answer,
		Audio:      r.Audio,
		Elapsed:    r.Elapsed,
		StartedAt:  now,
		CreatedAt:  now,
	}
	if r.Err != nil {
		e.Error = r.Err.Error()
	}
	if u != nil {
		e.Confidence = u.Confidence
		e.Reason = string(u.Reason)
		e.StartedAt = u.StartedAt
	}
	if err := p.journal.Record(ctx, e); err != nil {
		p.log.Warn("journal write failed", "utterance", r.UtteranceID, "error", err)
	}
}

// switchToFallback disables wake-word scoring for the rest of the process.
func (p *Pipeline) switchToFallback(reason string, err error) {
	prev := p.machine.State()
	if !p.machine.SwitchToFallback() {
		return
	}
	p.log.Warn("switching to fallback listening", "reason", reason, "scorer", p.scorerName(), "error", err)
	if p.scorer != nil {
		if cerr := p.scorer.Close(); cerr != nil {
			p.log.Debug("scorer close failed", "error", cerr)
		}
		p.scorer = nil
	}
	p.metrics.Fallback(true)
	p.stateChanged(prev, p.machine.State())
	p.updateStatus(func(s *Status) {
		s.Fallback = true
		s.Scorer = "none"
	})
}

func (p *Pipeline) stateChanged(from, to endpoint.State) {
	if from == to {
		return
	}
	p.log.Debug("state", "from", from, "to", to)
	p.metrics.State(from.String(), to.String())
	_ = events.Emit(p.bus, events.TopicState, events.StateChange{From: from.String(), To: to.String(), At: p.now()})
}

func (p *Pipeline) resetDetectors() {
	if p.scorer != nil {
		p.scorer.Reset()
	}
	p.gate.Reset()
}

func (p *Pipeline) sourceEvent(ctx context.Context, event, detail string) {
	_ = events.Emit(p.bus, events.TopicSource, events.SourceChange{Source: p.src.Name(), Event: event, Detail: detail, At: p.now()})
	if p.journal == nil {
		return
	}
	if err := p.journal.RecordSource(ctx, db.SourceEvent{Source: p.src.Name(), Event: event, Detail: detail}); err != nil {
		p.log.Debug("journal write failed", "error", err)
	}
}

func (p *Pipeline) shutdown() {
	ctx := context.Background()
	go p.disp.Close()
	for r := range p.disp.Results() {
		p.complete(ctx, r)
	}
	if p.scorer != nil {
		p.scorer.Close()
	}
	p.log.Info("pipeline stopped")
}

func (p *Pipeline) scorerName() string {
	if p.scorer == nil {
		return "none"
	}
	return p.scorer.Name()
}

func (p *Pipeline) updateStatus(fn func(*Status)) {
	p.mu.Lock()
	fn(&p.status)
	p.mu.Unlock()
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
