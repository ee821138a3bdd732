package cli

import (
	"github.com/spf13/cobra"

	"github.com/neboloop/hotword/internal/playback"
)

// BeepCmd plays the acknowledgment tone once, for checking the output path.
func BeepCmd() *cobra.Command {
	var count int
	cmd := &cobra.Command{
		Use:   "beep",
		Short: "Play the acknowledgment tone",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadConfig()
			if err != nil {
				return err
			}
			player := playback.NewCommandPlayer(c.Playback.Command, c.Audio.SampleRate, c.Capture.PulseServer)
			tone := playback.Tone{Frequency: c.Playback.Frequency, Duration: c.Playback.Duration, Volume: c.Playback.Volume}
			for range count {
				if err := player.Beep(cmd.Context(), tone); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", 1, "number of beeps")
	return cmd
}
