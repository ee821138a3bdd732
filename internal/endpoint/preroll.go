package endpoint

import "github.com/neboloop/hotword/internal/audio"

// preroll keeps the most recent raw frames seen before a trigger.
type preroll struct {
	frames []audio.Frame
	next   int
	full   bool
}

func newPreroll(n int) *preroll {
	return &preroll{frames: make([]audio.Frame, n)}
}

func (p *preroll) push(f audio.Frame) {
	if len(p.frames) == 0 {
		return
	}
	p.frames[p.next] = f
	p.next = (p.next + 1) % len(p.frames)
	if p.next == 0 {
		p.full = true
	}
}

// drain returns the buffered frames oldest first and empties the ring.
func (p *preroll) drain() []audio.Frame {
	var out []audio.Frame
	if p.full {
		out = append(out, p.frames[p.next:]...)
	}
	out = append(out, p.frames[:p.next]...)
	p.reset()
	return out
}

func (p *preroll) reset() {
	clear(p.frames)
	p.next = 0
	p.full = false
}
