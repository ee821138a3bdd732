package cli

import (
	"github.com/spf13/cobra"

	"github.com/neboloop/hotword/internal/config"
)

// Shared CLI flags (used across multiple command files)
var (
	cfgFile string
	verbose bool
)

// embeddedConfig holds the built-in defaults (set by main)
var embeddedConfig []byte

// SetupRootCmd configures the root command with all subcommands and flags
func SetupRootCmd(defaults []byte) *cobra.Command {
	embeddedConfig = defaults

	rootCmd := &cobra.Command{
		Use:   "hotword",
		Short: "hotword - wake-word listener for a voice assistant",
		Long: `hotword listens to a microphone stream, waits for a wake word, records
the question that follows until the speaker stops, transcribes it, and
forwards the text to the assistant service.

Just type 'hotword' to start listening with the built-in defaults.
Environment variables (see README) override the config file.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runListen(cmd.Context())
		},
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file merged over the built-in defaults")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(RunCmd())
	rootCmd.AddCommand(DoctorCmd())
	rootCmd.AddCommand(BeepCmd())
	rootCmd.AddCommand(HistoryCmd())
	rootCmd.AddCommand(ModelsCmd())
	rootCmd.AddCommand(TranscribeCmd())
	rootCmd.AddCommand(ConfigCmd())

	return rootCmd
}

// loadConfig merges the defaults, --config, and the environment.
func loadConfig() (*config.Config, error) {
	c, err := config.Load(embeddedConfig, cfgFile)
	if err != nil {
		return nil, err
	}
	if verbose {
		c.Log.Level = "debug"
	}
	return &c, nil
}
