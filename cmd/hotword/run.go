package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/neboloop/hotword/internal/capture"
	"github.com/neboloop/hotword/internal/config"
	"github.com/neboloop/hotword/internal/daemon"
	"github.com/neboloop/hotword/internal/db"
	"github.com/neboloop/hotword/internal/defaults"
	"github.com/neboloop/hotword/internal/dispatch"
	"github.com/neboloop/hotword/internal/events"
	"github.com/neboloop/hotword/internal/logging"
	"github.com/neboloop/hotword/internal/metrics"
	"github.com/neboloop/hotword/internal/onnxrt"
	"github.com/neboloop/hotword/internal/pipeline"
	"github.com/neboloop/hotword/internal/server"
	"github.com/neboloop/hotword/internal/vad"
	"github.com/neboloop/hotword/internal/vumeter"
	"github.com/neboloop/hotword/internal/wakeword"
)

// RunCmd is the explicit form of the root command.
func RunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Listen for the wake word and forward questions (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runListen(cmd.Context())
		},
	}
}

func runListen(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	c, err := loadConfig()
	if err != nil {
		return err
	}
	logging.Setup(os.Stderr, c.Log.Level, c.Log.Format)
	log := logging.For("hotword")

	if _, err := defaults.EnsureDataDir(); err != nil {
		log.Warn("data directory unavailable", "error", err)
	}

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	printBanner(c)

	tr, err := newTranscriber(c)
	if err != nil {
		return err
	}
	scorer, scorerErr := wakeword.New(c, tr, logging.For("wakeword"))
	gate := vad.New(c.VAD, c.Endpoint.SilenceRMS, c.Models.RuntimeLib, c.Audio.SampleRate, logging.For("vad"))
	defer func() {
		if cl, ok := gate.(io.Closer); ok {
			cl.Close()
		}
		onnxrt.Shutdown()
	}()
	src, err := capture.New(c.Capture, c.Audio)
	if err != nil {
		return err
	}

	if c.Capture.Source == "command" {
		preflightLog(ctx, src, c)
	}

	bus := events.New(events.WithReplay(), events.WithLogger(logging.For("events")))
	defer bus.Close()
	m := metrics.New()

	var (
		journal   pipeline.Journal
		history   server.History
		retention *daemon.Retention
	)
	if c.Journal.Enabled {
		store, err := db.NewSQLite(c.Journal.Path)
		if err != nil {
			log.Warn("journal disabled", "path", c.Journal.Path, "error", err)
		} else {
			defer store.Close()
			journal, history = store, store
			if c.Journal.Retention > 0 {
				retention, err = daemon.NewRetention(daemon.PrunerConfig{
					Retention: c.Journal.Retention,
					Schedule:  c.Journal.PruneSchedule,
					Store:     store,
					Logger:    logging.For("retention"),
				})
				if err != nil {
					return err
				}
			}
		}
	}

	acker := newAcker(c, logging.For("playback"))
	disp := dispatch.New(dispatch.Options{
		Transcriber:  tr,
		Assistant:    newAssistant(c),
		Speaker:      newSpeaker(c),
		SpeakTimeout: c.Speak.Timeout,
		Keywords:     c.Wake.Keywords,
		Language:     c.Transcribe.Language,
		SampleRate:   c.Audio.SampleRate,
		Logger:       logging.For("dispatch"),
	})

	p := pipeline.New(pipeline.Deps{
		Config:     c,
		Source:     src,
		Gate:       gate,
		Dispatcher: disp,
		Scorer:     scorer,
		ScorerErr:  scorerErr,
		Acker:      acker,
		Journal:    journal,
		Bus:        bus,
		Metrics:    m,
		Meter:      vumeter.New(c.Diag.VUInterval, os.Stdout, bus, m),
		Logger:     logging.For("pipeline"),
	})

	acker.Startup(ctx, c.Playback.StartupBeeps)
	fmt.Printf("🎤 Say %s …\n", strings.Join(c.Wake.Keywords, " / "))

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		// A one-shot source ending stops the diagnostics server too.
		defer cancel()
		return p.Run(gctx)
	})
	if retention != nil {
		g.Go(func() error { return retention.Run(gctx) })
	}
	if c.Diag.Addr != "" {
		g.Go(func() error {
			return server.Run(gctx, server.Options{
				Addr:    c.Diag.Addr,
				Bus:     bus,
				Metrics: m,
				History: history,
				Status:  p.StatusAny,
			})
		})
	}
	err = g.Wait()
	if ctx.Err() != nil {
		fmt.Println("\n[hotword] stopped.")
	}
	return err
}

func printBanner(c *config.Config) {
	orUnset := func(s string) string {
		if s == "" {
			return "(unset)"
		}
		return s
	}
	fmt.Println("[hotword] ===== ENVIRONMENT =====")
	fmt.Printf("PULSE_SERVER  = %s\n", orUnset(c.Capture.PulseServer))
	fmt.Printf("PULSE_SOURCE  = %s\n", orUnset(c.Capture.Device))
	fmt.Printf("CAPTURE       = %s\n", c.Capture.Source)
	fmt.Printf("ASSISTANT_URL = %s\n", c.Assistant.URL)
	fmt.Printf("TRANSCRIBE    = %s (%s)\n", c.Transcribe.Backend, c.Transcribe.Language)
	fmt.Printf("WAKE BACKEND  = %s  vad=%s\n", c.Wake.Backend, c.VAD.Backend)
	fmt.Printf("KEYWORDS      = %s  sens=%.2f  gain=%.1fx\n", strings.Join(c.Wake.Keywords, ","), c.Wake.Sensitivity, c.Audio.Gain)
	fmt.Printf("ENDPOINT      = min=%s max=%s hang=%s rms<%.0f\n", c.Endpoint.MinTalk, c.Endpoint.MaxCapture, c.Endpoint.SilenceHang, c.Endpoint.SilenceRMS)
	fmt.Println("[hotword] =======================")
}

func preflightLog(ctx context.Context, src capture.Source, c *config.Config) {
	pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	res, err := preflight(pctx, src, c.Audio.FrameLength, time.Second)
	if err != nil {
		fmt.Printf("[hotword] preflight %s failed: %v\n", src.Name(), err)
		return
	}
	fmt.Printf("[hotword] preflight %s RMS=%.1f PEAK=%d\n", src.Name(), res.RMS, res.Peak)
}
