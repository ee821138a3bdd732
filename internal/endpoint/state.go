package endpoint

// State is the endpointer mode. The machine is always in exactly one.
type State int

const (
	Idle State = iota
	Armed
	Capturing
	FallbackListen
	Finalizing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "IDLE"
	case Armed:
		return "ARMED"
	case Capturing:
		return "CAPTURING"
	case FallbackListen:
		return "FALLBACK_LISTEN"
	case Finalizing:
		return "FINALIZING"
	default:
		return "UNKNOWN"
	}
}

// Trigger records what started a capture.
type Trigger int

const (
	TriggerWake Trigger = iota
	TriggerSpeech
)

func (t Trigger) String() string {
	if t == TriggerSpeech {
		return "speech"
	}
	return "wake"
}

// EndReason records why a capture finalized.
type EndReason string

const (
	EndSilence EndReason = "silence"
	EndMaxTime EndReason = "max_duration"
)
