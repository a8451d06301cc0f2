package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"notes-tracker/internal/engine"
	"notes-tracker/internal/models"
	"notes-tracker/internal/store"
)

// addCheckCommands adds barrier evaluation commands.
func addCheckCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newCheckCmd(app))
}

func newCheckCmd(app *App) *cobra.Command {
	var (
		asOfStr string
		isin    string
		dryRun  bool
	)

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Evaluate barriers and update note statuses",
		Long: `Evaluate knock-out and knock-in barriers for every open note
against stored price snapshots, derive each note's lifecycle status,
and persist the result. Terminal notes are skipped.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if app.Store == nil {
				return fmt.Errorf("store unavailable")
			}

			asOf := time.Now().UTC()
			if asOfStr != "" {
				var err error
				if asOf, err = parseDateFlag(asOfStr); err != nil {
					return err
				}
			}

			ctx := cmd.Context()

			var notes []models.Note
			if isin != "" {
				note, err := app.Store.GetNoteByISIN(ctx, isin)
				if err != nil {
					return err
				}
				notes = []models.Note{*note}
			} else {
				var err error
				notes, err = app.Store.ListNotes(ctx, store.NoteFilter{})
				if err != nil {
					return err
				}
			}

			items := make([]engine.BatchItem, 0, len(notes))
			for i := range notes {
				note := &notes[i]
				if note.Status.Terminal() {
					continue
				}

				underlyings, err := app.Store.GetUnderlyings(ctx, note.ID)
				if err != nil {
					output.Warning("Skipping %s: %v", note.ISIN, err)
					continue
				}

				tickers := make([]string, 0, len(underlyings))
				for _, u := range underlyings {
					tickers = append(tickers, u.Ticker)
				}
				snaps, err := app.Store.GetSnapshots(ctx, tickers, note.ObservationStart, asOf)
				if err != nil {
					output.Warning("Skipping %s: %v", note.ISIN, err)
					continue
				}

				items = append(items, engine.BatchItem{
					Note:        note,
					Underlyings: underlyings,
					Snapshots:   snaps,
				})
			}

			if len(items) == 0 {
				output.Dim("No open notes to evaluate")
				return nil
			}

			results := app.Engine.EvaluateBatch(ctx, items, asOf)

			type checkSummary struct {
				ISIN    string  `json:"isin"`
				Status  string  `json:"status"`
				KODate  *string `json:"ko_date,omitempty"`
				KIDate  *string `json:"ki_date,omitempty"`
				Error   string  `json:"error,omitempty"`
				Changed bool    `json:"changed"`
			}

			summaries := make([]checkSummary, 0, len(results))
			updated := 0
			failed := 0

			for _, res := range results {
				summary := checkSummary{ISIN: res.Note.ISIN}

				if res.Err != nil {
					summary.Error = res.Err.Error()
					failed++
					summaries = append(summaries, summary)
					continue
				}

				summary.Status = string(res.Result.Status)
				summary.Changed = res.Result.Status != res.Note.Status

				var koDate, kiDate *time.Time
				if res.Result.KOEvent != nil {
					d := res.Result.KOEvent.Date
					koDate = &d
					s := FormatDate(d)
					summary.KODate = &s
				}
				if res.Result.KIEvent != nil {
					d := res.Result.KIEvent.Date
					kiDate = &d
					s := FormatDate(d)
					summary.KIDate = &s
				}

				if !dryRun {
					if err := app.Store.UpdateDerived(ctx, res.Note.ID, res.Result.Status, koDate, kiDate); err != nil {
						summary.Error = err.Error()
						failed++
						summaries = append(summaries, summary)
						continue
					}
				}
				if summary.Changed {
					updated++
				}
				summaries = append(summaries, summary)
			}

			if output.IsJSON() {
				return output.JSON(summaries)
			}

			table := NewTable(output, "ISIN", "Status", "KO Date", "KI Date", "Note")
			for _, s := range summaries {
				koDate, kiDate := "-", "-"
				if s.KODate != nil {
					koDate = *s.KODate
				}
				if s.KIDate != nil {
					kiDate = *s.KIDate
				}
				noteCol := ""
				if s.Error != "" {
					noteCol = output.Red(TruncateString(s.Error, 40))
				} else if s.Changed {
					noteCol = output.Yellow("changed")
				}
				table.AddRow(s.ISIN, output.StatusText(models.Status(s.Status)), koDate, kiDate, noteCol)
			}
			table.Render()
			output.Println()

			if dryRun {
				output.Dim("Dry run: no statuses were persisted")
			}
			output.Printf("Evaluated %d note(s): %d changed, %d failed\n", len(results), updated, failed)
			return nil
		},
	}

	cmd.Flags().StringVar(&asOfStr, "as-of", "", "evaluation date (YYYY-MM-DD, default today)")
	cmd.Flags().StringVar(&isin, "isin", "", "evaluate a single note")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "evaluate without persisting statuses")

	return cmd
}
