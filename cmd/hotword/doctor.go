package cli

import (
	"context"
	"fmt"
	"os/exec"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/neboloop/hotword/internal/capture"
	"github.com/neboloop/hotword/internal/config"
	"github.com/neboloop/hotword/internal/db"
	"github.com/neboloop/hotword/internal/models"
	"github.com/neboloop/hotword/internal/onnxrt"
)

// DoctorCmd checks that every external piece the listener needs is in place
func DoctorCmd() *cobra.Command {
	var skipAudio bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check the audio source, models, transcriber and assistant",
		Long: `Run diagnostics on the hotword setup.

Checks:
  - Configuration
  - Capture command and a one second level reading
  - ONNX runtime, keyword and VAD models
  - Transcriber binary and model
  - Player command
  - Assistant reachability
  - Journal database

Examples:
  hotword doctor              # Run all diagnostics
  hotword doctor --no-audio   # Skip the microphone reading`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDoctor(cmd.Context(), skipAudio)
		},
	}

	cmd.Flags().BoolVar(&skipAudio, "no-audio", false, "skip the microphone level check")

	return cmd
}

type checkResult struct {
	name    string
	status  string // "ok", "warn", "error"
	message string
}

func runDoctor(ctx context.Context, skipAudio bool) error {
	fmt.Println("\033[1m🔍 hotword doctor\033[0m")
	fmt.Println("=================")
	fmt.Println()

	c, err := loadConfig()
	if err != nil {
		printResults([]checkResult{{"Config", "error", err.Error()}})
		return fmt.Errorf("doctor found problems")
	}

	results := []checkResult{{"Config", "ok", "valid"}}
	results = append(results, checkCapture(ctx, c, skipAudio)...)
	results = append(results, checkModels(c)...)
	results = append(results, checkTranscriber(c)...)
	results = append(results, checkPlayer(c)...)
	results = append(results, checkAssistant(ctx, c)...)
	results = append(results, checkJournal(c)...)

	if printResults(results) > 0 {
		return fmt.Errorf("doctor found problems")
	}
	return nil
}

func printResults(results []checkResult) int {
	okCount, warnCount, errorCount := 0, 0, 0
	for _, r := range results {
		switch r.status {
		case "ok":
			fmt.Printf("\033[32m✓\033[0m %s: %s\n", r.name, r.message)
			okCount++
		case "warn":
			fmt.Printf("\033[33m⚠\033[0m %s: %s\n", r.name, r.message)
			warnCount++
		case "error":
			fmt.Printf("\033[31m✗\033[0m %s: %s\n", r.name, r.message)
			errorCount++
		}
	}

	fmt.Println()
	fmt.Println("Summary:")
	fmt.Printf("  \033[32m%d passed\033[0m", okCount)
	if warnCount > 0 {
		fmt.Printf("  \033[33m%d warnings\033[0m", warnCount)
	}
	if errorCount > 0 {
		fmt.Printf("  \033[31m%d errors\033[0m", errorCount)
	}
	fmt.Println()
	return errorCount
}

func checkCapture(ctx context.Context, c *config.Config, skipAudio bool) []checkResult {
	var results []checkResult
	if c.Capture.Source == "command" {
		if _, err := exec.LookPath(c.Capture.Command[0]); err != nil {
			return []checkResult{{"Capture", "error", fmt.Sprintf("%s not found in PATH", c.Capture.Command[0])}}
		}
		results = append(results, checkResult{"Capture", "ok", c.Capture.Command[0] + " found"})
	}
	if skipAudio {
		return results
	}

	src, err := capture.New(c.Capture, c.Audio)
	if err != nil {
		return append(results, checkResult{"Audio level", "error", err.Error()})
	}
	if capture.IsOneShot(src) {
		return append(results, checkResult{"Audio level", "warn", "skipped for " + src.Name()})
	}
	pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	rep, err := preflight(pctx, src, c.Audio.FrameLength, time.Second)
	switch {
	case err != nil:
		results = append(results, checkResult{"Audio level", "error", err.Error()})
	case rep.Peak == 0:
		results = append(results, checkResult{"Audio level", "warn", "input is digital silence; check the source device"})
	default:
		results = append(results, checkResult{"Audio level", "ok", fmt.Sprintf("RMS=%.1f PEAK=%d", rep.RMS, rep.Peak)})
	}
	return results
}

func checkModels(c *config.Config) []checkResult {
	var results []checkResult
	needsRuntime := c.Wake.Backend == "onnx" || c.VAD.Backend == "silero"
	if needsRuntime {
		if err := onnxrt.Init(c.Models.RuntimeLib); err != nil {
			results = append(results, checkResult{"ONNX runtime", "warn", err.Error() + "; fallback listening will be used"})
		} else {
			results = append(results, checkResult{"ONNX runtime", "ok", "loaded"})
		}
	}

	if c.Wake.Backend == "onnx" {
		found, err := models.Keywords(c.Wake.ModelDir)
		switch {
		case err != nil:
			results = append(results, checkResult{"Keyword models", "warn", err.Error()})
		case len(found) == 0:
			results = append(results, checkResult{"Keyword models", "warn", "none in " + c.Wake.ModelDir})
		default:
			var missing []string
			for _, kw := range c.Wake.Keywords {
				if !slices.Contains(found, kw) {
					missing = append(missing, kw)
				}
			}
			if len(missing) > 0 {
				results = append(results, checkResult{"Keyword models", "warn", fmt.Sprintf("found %v, missing %v", found, missing)})
			} else {
				results = append(results, checkResult{"Keyword models", "ok", fmt.Sprintf("%v", found)})
			}
		}
	}

	if c.VAD.Backend == "silero" {
		if models.Present(c.VAD.Model, models.SileroVAD) {
			results = append(results, checkResult{"VAD model", "ok", c.VAD.Model})
		} else {
			results = append(results, checkResult{"VAD model", "warn", "missing; run 'hotword models pull'"})
		}
	}
	return results
}

func checkTranscriber(c *config.Config) []checkResult {
	if _, err := newTranscriber(c); err != nil {
		return []checkResult{{"Transcriber", "error", err.Error()}}
	}
	return []checkResult{{"Transcriber", "ok", c.Transcribe.Backend}}
}

func checkPlayer(c *config.Config) []checkResult {
	if !c.Playback.Ack && c.Playback.StartupBeeps == 0 {
		return nil
	}
	if len(c.Playback.Command) == 0 {
		return []checkResult{{"Player", "warn", "no playback command; beeps disabled"}}
	}
	if _, err := exec.LookPath(c.Playback.Command[0]); err != nil {
		return []checkResult{{"Player", "warn", c.Playback.Command[0] + " not found; beeps will fail"}}
	}
	return []checkResult{{"Player", "ok", c.Playback.Command[0]}}
}

func checkAssistant(ctx context.Context, c *config.Config) []checkResult {
	if err := newAssistant(c).Ping(ctx); err != nil {
		return []checkResult{{"Assistant", "warn", fmt.Sprintf("%s unreachable: %v", c.Assistant.URL, err)}}
	}
	return []checkResult{{"Assistant", "ok", c.Assistant.URL}}
}

func checkJournal(c *config.Config) []checkResult {
	if !c.Journal.Enabled {
		return []checkResult{{"Journal", "ok", "disabled"}}
	}
	store, err := db.NewSQLite(c.Journal.Path)
	if err != nil {
		return []checkResult{{"Journal", "error", err.Error()}}
	}
	defer store.Close()
	return []checkResult{{"Journal", "ok", c.Journal.Path}}
}
