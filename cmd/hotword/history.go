package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/neboloop/hotword/internal/db"
)

// HistoryCmd prints recent journal entries.
func HistoryCmd() *cobra.Command {
	var (
		limit   int
		outcome string
		asJSON  bool
		sources bool
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent utterances from the journal",
		Example: `  hotword history
  hotword history --outcome forwarded -n 50
  hotword history --sources`,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadConfig()
			if err != nil {
				return err
			}
			if !c.Journal.Enabled {
				return fmt.Errorf("journal is disabled")
			}
			store, err := db.NewSQLite(c.Journal.Path)
			if err != nil {
				return err
			}
			defer store.Close()

			if sources {
				evs, err := store.SourceEvents(cmd.Context(), limit)
				if err != nil {
					return err
				}
				if asJSON {
					return json.NewEncoder(os.Stdout).Encode(evs)
				}
				w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "TIME\tSOURCE\tEVENT\tDETAIL")
				for _, ev := range evs {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", ev.CreatedAt.Format(time.DateTime), ev.Source, ev.Event, ev.Detail)
				}
				return w.Flush()
			}

			entries, err := store.Recent(cmd.Context(), limit, outcome)
			if err != nil {
				return err
			}
			if asJSON {
				return json.NewEncoder(os.Stdout).Encode(entries)
			}
			printEntries(entries)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of entries")
	cmd.Flags().StringVar(&outcome, "outcome", "", "only this outcome (forwarded, empty, ignored, aborted, ...)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	cmd.Flags().BoolVar(&sources, "sources", false, "show capture source events instead")
	return cmd
}

func printEntries(entries []db.Entry) {
	if len(entries) == 0 {
		fmt.Println("No utterances recorded yet.")
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tTRIGGER\tOUTCOME\tAUDIO\tTEXT")
	for _, e := range entries {
		text := e.Transcript
		if e.Error != "" {
			text = "error: " + e.Error
		}
		trigger := e.Trigger
		if e.Keyword != "" {
			trigger += ":" + e.Keyword
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			e.CreatedAt.Format(time.DateTime), trigger, e.Outcome,
			e.Audio.Round(10*time.Millisecond), truncate(strings.TrimSpace(text), 60))
	}
	w.Flush()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
