package events

import "time"

const (
	// TopicVU carries periodic input level reports.
	TopicVU = "vu"
	// TopicState carries endpointer state transitions.
	TopicState = "state"
	// TopicDetection carries wake detections.
	TopicDetection = "detection"
	// TopicUtterance carries dispatch outcomes.
	TopicUtterance = "utterance"
	// TopicSource carries capture source lifecycle changes.
	TopicSource = "source"
)

// VU is an input level sample over one reporting interval.
type VU struct {
	RMS    float64   `json:"rms"`
	Peak   int       `json:"peak"`
	Frames int       `json:"frames"`
	At     time.Time `json:"at"`
}

type StateChange struct {
	From string    `json:"from"`
	To   string    `json:"to"`
	At   time.Time `json:"at"`
}

type Detection struct {
	Keyword    string    `json:"keyword"`
	Confidence float64   `json:"confidence"`
	Frame      uint64    `json:"frame"`
	At         time.Time `json:"at"`
}

type UtteranceDone struct {
	ID      string        `json:"id"`
	Trigger string        `json:"trigger"`
	Outcome string        `json:"outcome"`
	Text    string        `json:"text,omitempty"`
	Audio   time.Duration `json:"audio"`
	Elapsed time.Duration `json:"elapsed"`
	At      time.Time     `json:"at"`
}

type SourceChange struct {
	Source string    `json:"source"`
	Event  string    `json:"event"`
	Detail string    `json:"detail,omitempty"`
	At     time.Time `json:"at"`
}
