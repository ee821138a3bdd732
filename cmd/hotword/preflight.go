package cli

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/neboloop/hotword/internal/audio"
	"github.com/neboloop/hotword/internal/capture"
)

type levelReport struct {
	RMS     float64
	Peak    int
	Samples int
}

// preflight reads up to d of audio from src and measures its level. The
// stream is closed before returning.
func preflight(ctx context.Context, src capture.Source, frameLen int, d time.Duration) (levelReport, error) {
	rc, err := src.Open(ctx)
	if err != nil {
		return levelReport{}, err
	}
	defer rc.Close()

	var (
		rep   levelReport
		sumSq float64
	)
	fr := capture.NewFrameReader(rc, frameLen, 0)
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		f, err := fr.Next()
		if err != nil {
			if errors.Is(err, capture.ErrEndOfStream) && rep.Samples > 0 {
				break
			}
			return rep, err
		}
		for _, s := range f.Samples {
			sumSq += float64(s) * float64(s)
		}
		rep.Samples += len(f.Samples)
		if p := audio.Peak(f.Samples); p > rep.Peak {
			rep.Peak = p
		}
	}
	if rep.Samples > 0 {
		rep.RMS = math.Sqrt(sumSq / float64(rep.Samples))
	}
	return rep, nil
}
