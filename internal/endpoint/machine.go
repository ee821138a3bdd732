// Package endpoint decides when an utterance starts and ends. The Machine
// is a plain value driven one frame at a time; it never blocks and owns no
// goroutines, so the capture loop is its only caller.
package endpoint

import (
	"time"

	"github.com/google/uuid"

	"github.com/neboloop/hotword/internal/audio"
	"github.com/neboloop/hotword/internal/config"
	"github.com/neboloop/hotword/internal/wakeword"
)

// Params are the endpointing thresholds expressed in frames.
type Params struct {
	SampleRate    int
	FrameLength   int
	MinFrames     int
	HangFrames    int
	MaxFrames     int
	PrerollFrames int
	SilenceRMS    float64

	CooldownAfterText  time.Duration
	CooldownAfterEmpty time.Duration
}

// ParamsFromConfig converts durations with floor(d * rate / frame_length).
func ParamsFromConfig(c *config.Config) Params {
	rate, n := c.Audio.SampleRate, c.Audio.FrameLength
	return Params{
		SampleRate:         rate,
		FrameLength:        n,
		MinFrames:          audio.FrameCount(c.Endpoint.MinTalk, rate, n),
		HangFrames:         audio.FrameCount(c.Endpoint.SilenceHang, rate, n),
		MaxFrames:          audio.FrameCount(c.Endpoint.MaxCapture, rate, n),
		PrerollFrames:      audio.FrameCount(c.Endpoint.Preroll, rate, n),
		SilenceRMS:         c.Endpoint.SilenceRMS,
		CooldownAfterText:  c.Cooldown.AfterText,
		CooldownAfterEmpty: c.Cooldown.AfterEmpty,
	}
}

// Input is everything the machine needs for one frame. Frame is the raw,
// ungained frame. Wake is set when the scorer fired on this frame; Speech
// is the gate verdict when the machine asked for it.
type Input struct {
	Frame  audio.Frame
	Now    time.Time
	Wake   *wakeword.Detection
	Speech bool
}

// Output describes what the step did.
type Output struct {
	Prev  State
	State State
	// Ack asks the caller to play the acknowledgment tone.
	Ack bool
	// Finalized is set on the step that closed a capture.
	Finalized *Utterance
	// Discarded is set when the frame was dropped by cooldown or while
	// finalizing.
	Discarded bool
}

// Changed reports whether the step moved to another state.
func (o Output) Changed() bool { return o.Prev != o.State }

// Need tells the caller which detectors to run before the next Step.
type Need struct {
	Score  bool
	Speech bool
}

// Utterance is one bounded capture handed to the dispatcher.
type Utterance struct {
	ID         string
	Trigger    Trigger
	Keyword    string
	Confidence float64
	Frames     []audio.Frame
	// Preroll is the number of leading frames captured before the trigger.
	Preroll    int
	FramesSeen int
	StartedAt  time.Time
	EndedAt    time.Time
	Reason     EndReason
}

// Samples flattens the utterance.
func (u *Utterance) Samples() []int16 {
	return audio.Concat(u.Frames)
}

// Duration is the audio length including pre-roll.
func (u *Utterance) Duration(rate int) time.Duration {
	n := 0
	for _, f := range u.Frames {
		n += len(f.Samples)
	}
	return audio.SamplesDuration(n, rate)
}

// Machine is the utterance endpointer.
type Machine struct {
	p         Params
	state     State
	rest      State
	pre       *preroll
	cur       *Utterance
	silentRun int
	cooldown  Cooldown
	pendingID string
	newID     func() string
}

// Option configures a Machine.
type Option func(*Machine)

// WithIDs replaces the utterance id generator.
func WithIDs(fn func() string) Option {
	return func(m *Machine) { m.newID = fn }
}

// New returns a machine resting in IDLE, or in FALLBACK_LISTEN when no
// wake-word scorer is available.
func New(p Params, fallback bool, opts ...Option) *Machine {
	m := &Machine{
		p:        p,
		state:    Idle,
		rest:     Idle,
		pre:      newPreroll(p.PrerollFrames),
		cooldown: Cooldown{AfterText: p.CooldownAfterText, AfterEmpty: p.CooldownAfterEmpty},
		newID:    uuid.NewString,
	}
	if fallback {
		m.state, m.rest = FallbackListen, FallbackListen
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Machine) State() State { return m.state }

// Fallback reports whether the machine rests in FALLBACK_LISTEN.
func (m *Machine) Fallback() bool { return m.rest == FallbackListen }

// Pending is the id of the utterance awaiting Complete, if any.
func (m *Machine) Pending() string { return m.pendingID }

// CooldownRemaining is how long new captures stay suppressed.
func (m *Machine) CooldownRemaining(now time.Time) time.Duration {
	return m.cooldown.Remaining(now)
}

// Needs reports which detectors the next Step consumes.
func (m *Machine) Needs(now time.Time) Need {
	switch m.state {
	case Idle:
		return Need{Score: !m.cooldown.Active(now)}
	case FallbackListen:
		return Need{Speech: !m.cooldown.Active(now)}
	case Capturing:
		return Need{Speech: m.cur.Trigger == TriggerSpeech}
	}
	return Need{}
}

// Step advances the machine by one frame.
func (m *Machine) Step(in Input) Output {
	out := Output{Prev: m.state}
	switch m.state {
	case Idle, FallbackListen:
		if m.cooldown.Active(in.Now) {
			out.Discarded = true
			break
		}
		if m.state == Idle && in.Wake != nil {
			m.pre.push(in.Frame)
			m.begin(TriggerWake, in.Wake, in.Now)
			m.state = Armed
			out.Ack = true
			break
		}
		if m.state == FallbackListen && in.Speech {
			m.begin(TriggerSpeech, nil, in.Now)
			m.state = Capturing
			m.capture(in, &out)
			break
		}
		m.pre.push(in.Frame)
	case Armed:
		m.state = Capturing
		m.capture(in, &out)
	case Capturing:
		m.capture(in, &out)
	case Finalizing:
		out.Discarded = true
	}
	out.State = m.state
	return out
}

func (m *Machine) begin(t Trigger, wake *wakeword.Detection, now time.Time) {
	frames := m.pre.drain()
	m.cur = &Utterance{
		ID:        m.newID(),
		Trigger:   t,
		Frames:    frames,
		Preroll:   len(frames),
		StartedAt: now,
	}
	if wake != nil {
		m.cur.Keyword = wake.Keyword
		m.cur.Confidence = wake.Confidence
	}
	m.silentRun = 0
}

func (m *Machine) capture(in Input, out *Output) {
	u := m.cur
	u.Frames = append(u.Frames, in.Frame)
	u.FramesSeen++

	var silent bool
	if u.Trigger == TriggerWake {
		silent = audio.RMS(in.Frame.Samples) < m.p.SilenceRMS
	} else {
		silent = !in.Speech
	}
	if silent {
		m.silentRun++
	} else {
		m.silentRun = 0
	}

	switch {
	case m.silentRun >= m.p.HangFrames && u.FramesSeen >= m.p.MinFrames:
		m.finalize(EndSilence, in.Now, out)
	case u.FramesSeen >= m.p.MaxFrames:
		m.finalize(EndMaxTime, in.Now, out)
	}
}

func (m *Machine) finalize(reason EndReason, now time.Time, out *Output) {
	m.cur.Reason = reason
	m.cur.EndedAt = now
	out.Finalized = m.cur
	m.pendingID = m.cur.ID
	m.cur = nil
	m.silentRun = 0
	m.state = Finalizing
}

// Complete applies the dispatch outcome for utterance id: it starts the
// cooldown and leaves FINALIZING. Unknown ids are ignored.
func (m *Machine) Complete(id string, nonEmpty bool, now time.Time) bool {
	if id == "" || id != m.pendingID {
		return false
	}
	m.pendingID = ""
	m.cooldown.Start(now, nonEmpty)
	if m.state == Finalizing {
		m.state = m.rest
	}
	return true
}

// Abort drops any partial capture and returns to the rest state. It returns
// the discarded utterance, if one was in progress. A finalized utterance
// awaiting Complete stays pending.
func (m *Machine) Abort(now time.Time) *Utterance {
	m.pre.reset()
	m.silentRun = 0
	switch m.state {
	case Armed, Capturing:
		u := m.cur
		u.EndedAt = now
		m.cur = nil
		m.state = m.rest
		return u
	case Finalizing:
		m.state = m.rest
	}
	return nil
}

// SwitchToFallback makes FALLBACK_LISTEN the rest state for the rest of
// the process. It reports whether anything changed.
func (m *Machine) SwitchToFallback() bool {
	if m.rest == FallbackListen {
		return false
	}
	m.rest = FallbackListen
	if m.state == Idle {
		m.state = FallbackListen
	}
	return true
}
