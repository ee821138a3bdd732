package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/neboloop/hotword/internal/audio"
	"github.com/neboloop/hotword/internal/dispatch"
	"github.com/neboloop/hotword/internal/transcribe"
	"github.com/neboloop/hotword/internal/wakeword"
)

// TranscribeCmd runs the configured transcriber on a WAV file and shows
// what the listener would forward.
func TranscribeCmd() *cobra.Command {
	var ask bool
	cmd := &cobra.Command{
		Use:   "transcribe <file.wav>",
		Short: "Transcribe a 16-bit mono WAV file with the configured backend",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadConfig()
			if err != nil {
				return err
			}
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			samples, info, err := audio.ReadWAV(f)
			if err != nil {
				return err
			}
			if info.SampleRate != c.Audio.SampleRate {
				return fmt.Errorf("%s is %d Hz, expected %d Hz", args[0], info.SampleRate, c.Audio.SampleRate)
			}

			tr, err := newTranscriber(c)
			if err != nil {
				return err
			}
			raw, err := tr.Transcribe(cmd.Context(), transcribe.Request{
				Samples:    samples,
				SampleRate: info.SampleRate,
				Language:   c.Transcribe.Language,
			})
			if err != nil {
				return err
			}
			text := dispatch.Sanitize(raw)
			fmt.Printf("raw:       %q\n", raw)
			fmt.Printf("sanitized: %q\n", text)
			if kw, rest, ok := wakeword.StripHotword(text, c.Wake.Keywords); ok {
				fmt.Printf("hotword:   %s -> %q\n", kw, rest)
			}

			if ask && text != "" {
				reply, err := newAssistant(c).Ask(cmd.Context(), text)
				if err != nil {
					return err
				}
				fmt.Printf("answer:    %s\n", reply.Answer)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&ask, "ask", false, "also send the text to the assistant")
	return cmd
}
