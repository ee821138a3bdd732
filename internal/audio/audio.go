// Package audio holds the PCM primitives shared by every pipeline stage:
// fixed-length frames of signed 16-bit mono samples and the arithmetic
// done on them.
package audio

import (
	"math"
	"time"
)

const (
	DefaultSampleRate  = 16000
	DefaultFrameLength = 512
	BytesPerSample     = 2
)

// Frame is one fixed-length block of mono s16 samples. Index increases by
// one per frame read from a source. A Frame is never mutated after it is
// produced; transformations return a new Frame.
type Frame struct {
	Samples []int16
	Index   uint64
}

// Duration is the wall-clock length of the frame at the given rate.
func (f Frame) Duration(rate int) time.Duration {
	return SamplesDuration(len(f.Samples), rate)
}

// SamplesDuration converts a sample count to time at the given rate.
func SamplesDuration(n, rate int) time.Duration {
	if rate <= 0 {
		return 0
	}
	return time.Duration(int64(n) * int64(time.Second) / int64(rate))
}

// FrameCount converts a duration to whole frames, rounding down.
func FrameCount(d time.Duration, rate, frameLen int) int {
	if d <= 0 || rate <= 0 || frameLen <= 0 {
		return 0
	}
	return int(int64(d) * int64(rate) / (int64(frameLen) * int64(time.Second)))
}

// RMS is the root mean square of the samples in raw int16 units.
func RMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// Peak is the largest absolute sample value.
func Peak(samples []int16) int {
	peak := 0
	for _, s := range samples {
		v := int(s)
		if v < 0 {
			v = -v
		}
		if v > peak {
			peak = v
		}
	}
	return peak
}

// Clamp saturates v to the int16 range.
func Clamp(v float64) int16 {
	switch {
	case v >= math.MaxInt16:
		return math.MaxInt16
	case v <= math.MinInt16:
		return math.MinInt16
	}
	return int16(v)
}

// ApplyGain returns a copy of f with every sample multiplied by gain and
// saturated to the int16 range.
func ApplyGain(f Frame, gain float64) Frame {
	out := Frame{Samples: make([]int16, len(f.Samples)), Index: f.Index}
	if gain == 1 {
		copy(out.Samples, f.Samples)
		return out
	}
	for i, s := range f.Samples {
		out.Samples[i] = Clamp(float64(s) * gain)
	}
	return out
}

// Float32 converts samples to [-1, 1) floats for model inputs.
func Float32(samples []int16) []float32 {
	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = float32(s) / 32768.0
	}
	return out
}

// Tone synthesizes a sine wave at freq Hz.
func Tone(freq float64, d time.Duration, volume float64, rate int) []int16 {
	n := int(int64(rate) * int64(d) / int64(time.Second))
	out := make([]int16, n)
	for i := range out {
		s := volume * math.Sin(2*math.Pi*freq*float64(i)/float64(rate))
		out[i] = Clamp(math.Max(-1, math.Min(1, s)) * 32767)
	}
	return out
}

// Concat flattens frames into one sample slice.
func Concat(frames []Frame) []int16 {
	n := 0
	for _, f := range frames {
		n += len(f.Samples)
	}
	out := make([]int16, 0, n)
	for _, f := range frames {
		out = append(out, f.Samples...)
	}
	return out
}
