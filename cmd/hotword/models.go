package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/neboloop/hotword/internal/defaults"
	"github.com/neboloop/hotword/internal/models"
)

// ModelsCmd manages the model files in the data directory.
func ModelsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List or download model files",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "Show which models are present",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadConfig()
			if err != nil {
				return err
			}
			present := "\033[32mpresent\033[0m"
			missing := "\033[33mmissing\033[0m"
			state := missing
			if models.Present(c.VAD.Model, models.SileroVAD) {
				state = present
			}
			fmt.Printf("VAD      %s  %s\n", c.VAD.Model, state)

			found, _ := models.Keywords(c.Wake.ModelDir)
			for _, kw := range c.Wake.Keywords {
				state := missing
				if slices.Contains(found, kw) {
					state = present
				}
				fmt.Printf("keyword  %-10s %s\n", kw, state)
			}
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "pull",
		Short: "Download the speech classifier model",
		RunE: func(cmd *cobra.Command, args []string) error {
			dataDir, err := defaults.EnsureDataDir()
			if err != nil {
				return err
			}
			dir := defaults.ModelsDir(dataDir)
			last := ""
			err = models.NewDownloader().Fetch(cmd.Context(), dir, models.Required(), func(p models.Progress) {
				switch {
				case p.Done:
					fmt.Printf("\r%s done\n", p.Model)
				case p.Total > 0:
					line := fmt.Sprintf("\r%s %3d%%", p.Model, p.Downloaded*100/p.Total)
					if line != last {
						fmt.Print(line)
						last = line
					}
				}
			})
			if err != nil {
				return err
			}
			fmt.Printf("Models in %s\n", dir)
			return nil
		},
	})
	return cmd
}
