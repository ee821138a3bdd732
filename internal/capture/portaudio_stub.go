//go:build !portaudio

package capture

import "errors"

func newPortAudioSource(rate, frameLen int) (Source, error) {
	return nil, errors.New("capture: built without portaudio support (use -tags portaudio)")
}
