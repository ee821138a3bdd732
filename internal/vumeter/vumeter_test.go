package vumeter

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neboloop/hotword/internal/audio"
	"github.com/neboloop/hotword/internal/events"
)

func constant(v int16, n int) audio.Frame {
	s := make([]int16, n)
	for i := range s {
		s[i] = v
	}
	return audio.Frame{Samples: s}
}

func TestMeterReportsEachInterval(t *testing.T) {
	var out bytes.Buffer
	m := New(time.Second, &out, nil, nil)
	t0 := time.Unix(0, 0)

	_, ok := m.Observe(constant(100, 512), t0)
	assert.False(t, ok)
	_, ok = m.Observe(constant(-300, 512), t0.Add(500*time.Millisecond))
	assert.False(t, ok)

	vu, ok := m.Observe(constant(100, 512), t0.Add(time.Second))
	require.True(t, ok)
	assert.Equal(t, 300, vu.Peak)
	assert.Equal(t, 3, vu.Frames)
	assert.InDelta(t, 191.5, vu.RMS, 0.1)
	assert.Equal(t, "[VU] rms=191 peak=300\n", out.String())

	// the next window starts fresh
	vu, ok = m.Observe(constant(10, 512), t0.Add(2*time.Second))
	require.True(t, ok)
	assert.Equal(t, 10, vu.Peak)
}

func TestMeterDisabled(t *testing.T) {
	m := New(0, nil, nil, nil)
	_, ok := m.Observe(constant(1000, 512), time.Now())
	assert.False(t, ok)

	var nilMeter *Meter
	_, ok = nilMeter.Observe(constant(1000, 512), time.Now())
	assert.False(t, ok)
}

func TestMeterPublishes(t *testing.T) {
	bus := events.New()
	defer bus.Close()
	got := make(chan events.VU, 1)
	events.Subscribe(bus, events.TopicVU, func(_ context.Context, vu events.VU) error {
		got <- vu
		return nil
	})

	m := New(time.Millisecond, nil, bus, nil)
	t0 := time.Now()
	m.Observe(constant(50, 512), t0)
	m.Observe(constant(50, 512), t0.Add(time.Millisecond))

	select {
	case vu := <-got:
		assert.Equal(t, 50, vu.Peak)
	case <-time.After(time.Second):
		t.Fatal("no VU event")
	}
}
