package audio

import (
	"fmt"
	"io"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WriteWAV encodes mono 16-bit PCM as a RIFF/WAVE stream.
func WriteWAV(w io.WriteSeeker, samples []int16, rate int) error {
	enc := wav.NewEncoder(w, rate, 16, 1, 1)
	data := make([]int, len(samples))
	for i, s := range samples {
		data[i] = int(s)
	}
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: rate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("encode wav: %w", err)
	}
	return enc.Close()
}

// WriteWAVFile writes samples to a new WAV file at path.
func WriteWAVFile(path string, samples []int16, rate int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteWAV(f, samples, rate); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// TempWAV writes samples to a temporary WAV file. The caller removes it.
func TempWAV(pattern string, samples []int16, rate int) (string, error) {
	f, err := os.CreateTemp("", pattern)
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	path := f.Name()
	if err := WriteWAV(f, samples, rate); err != nil {
		f.Close()
		os.Remove(path)
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", err
	}
	return path, nil
}

// WAVInfo describes a decoded WAV stream.
type WAVInfo struct {
	SampleRate int
	Channels   int
	BitDepth   int
}

// ReadWAV decodes a 16-bit WAV stream. Multi-channel input is rejected.
func ReadWAV(r io.ReadSeeker) ([]int16, WAVInfo, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, WAVInfo{}, fmt.Errorf("not a valid wav stream")
	}
	info := WAVInfo{
		SampleRate: int(dec.SampleRate),
		Channels:   int(dec.NumChans),
		BitDepth:   int(dec.BitDepth),
	}
	if info.Channels != 1 || info.BitDepth != 16 {
		return nil, info, fmt.Errorf("unsupported wav: %d channels, %d bits", info.Channels, info.BitDepth)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, info, fmt.Errorf("decode wav: %w", err)
	}
	out := make([]int16, len(buf.Data))
	for i, v := range buf.Data {
		out[i] = int16(v)
	}
	return out, info, nil
}
