package audio

import (
	"math"
	"math/rand"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameCount(t *testing.T) {
	cases := []struct {
		d    time.Duration
		want int
	}{
		{600 * time.Millisecond, 18},
		{800 * time.Millisecond, 25},
		{8 * time.Second, 250},
		{300 * time.Millisecond, 9},
		{0, 0},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, FrameCount(tc.d, 16000, 512), "duration %s", tc.d)
	}
}

func TestApplyGainClampsEverySample(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	samples := make([]int16, 4096)
	for i := range samples {
		samples[i] = int16(rng.Intn(math.MaxUint16) + math.MinInt16)
	}
	samples[0], samples[1] = math.MaxInt16, math.MinInt16

	for _, gain := range []float64{0.5, 1, 2, 7.3, 1000} {
		in := Frame{Samples: samples, Index: 3}
		out := ApplyGain(in, gain)
		require.Len(t, out.Samples, len(samples))
		assert.Equal(t, uint64(3), out.Index)
		for i, s := range out.Samples {
			want := math.Max(math.MinInt16, math.Min(math.MaxInt16, float64(samples[i])*gain))
			assert.InDelta(t, want, float64(s), 1, "gain %v sample %d", gain, i)
		}
	}
}

func TestApplyGainLeavesInputUntouched(t *testing.T) {
	in := Frame{Samples: []int16{100, -100, 20000}}
	out := ApplyGain(in, 2)
	assert.Equal(t, []int16{100, -100, 20000}, in.Samples)
	assert.Equal(t, []int16{200, -200, 32767}, out.Samples)
}

func TestRMSAndPeak(t *testing.T) {
	assert.Zero(t, RMS(nil))
	assert.InDelta(t, 1000, RMS([]int16{1000, -1000, 1000, -1000}), 1e-9)
	assert.Equal(t, 32768, Peak([]int16{3, math.MinInt16, 12}))
}

func TestPCMRoundTrip(t *testing.T) {
	samples := []int16{0, 1, -1, math.MaxInt16, math.MinInt16}
	b := EncodePCM(samples)
	assert.Equal(t, []byte{0, 0, 1, 0, 0xff, 0xff, 0xff, 0x7f, 0, 0x80}, b)
	assert.Equal(t, samples, DecodePCM(append(b, 0x42)))
}

func TestToneAndWAVFile(t *testing.T) {
	tone := Tone(880, 120*time.Millisecond, 0.6, 16000)
	require.Len(t, tone, 1920)
	assert.LessOrEqual(t, Peak(tone), 19661)

	path, err := TempWAV("tone-*.wav", tone, 16000)
	require.NoError(t, err)
	defer os.Remove(path)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	got, info, err := ReadWAV(f)
	require.NoError(t, err)
	assert.Equal(t, WAVInfo{SampleRate: 16000, Channels: 1, BitDepth: 16}, info)
	assert.Equal(t, tone, got)
}
