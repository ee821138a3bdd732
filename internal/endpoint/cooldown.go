package endpoint

import "time"

// Cooldown suppresses new captures until a monotonic deadline. Times must
// come from time.Now (or a test clock) so the monotonic reading is used.
type Cooldown struct {
	AfterText  time.Duration
	AfterEmpty time.Duration

	until time.Time
}

// Start arms the cooldown. An empty transcription gets the longer delay.
func (c *Cooldown) Start(now time.Time, nonEmpty bool) {
	d := c.AfterEmpty
	if nonEmpty {
		d = c.AfterText
	}
	c.until = now.Add(d)
}

// Active reports whether now is before the deadline.
func (c *Cooldown) Active(now time.Time) bool {
	return now.Before(c.until)
}

// Remaining is the time left, or zero.
func (c *Cooldown) Remaining(now time.Time) time.Duration {
	if d := c.until.Sub(now); d > 0 {
		return d
	}
	return 0
}
