package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/spf13/cobra"

	"notes-tracker/internal/marketdata"
	"notes-tracker/internal/models"
)

// addPriceCommands adds price snapshot commands.
func addPriceCommands(rootCmd *cobra.Command, app *App) {
	pricesCmd := &cobra.Command{
		Use:   "prices",
		Short: "Manage daily price snapshots",
	}

	pricesCmd.AddCommand(newPricesSyncCmd(app))
	pricesCmd.AddCommand(newPricesShowCmd(app))
	pricesCmd.AddCommand(newPricesImportCmd(app))

	rootCmd.AddCommand(pricesCmd)
}

func newPricesSyncCmd(app *App) *cobra.Command {
	var (
		fromStr string
		toStr   string
		tickers []string
	)

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Fetch daily closes for all tracked tickers",
		Long: `Fetch daily closing prices for every ticker referenced by a note
underlying (or an explicit ticker list) and store them as snapshots.
Per-ticker failures are reported and skipped; stored history is never
overwritten.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if app.Store == nil {
				return fmt.Errorf("store unavailable")
			}

			ctx := cmd.Context()

			to := time.Now().UTC()
			from := to.AddDate(0, 0, -app.Config.Prices.LookbackDays)
			var err error
			if fromStr != "" {
				if from, err = parseDateFlag(fromStr); err != nil {
					return err
				}
			}
			if toStr != "" {
				if to, err = parseDateFlag(toStr); err != nil {
					return err
				}
			}

			if len(tickers) == 0 {
				if tickers, err = app.Store.Tickers(ctx); err != nil {
					return err
				}
			}
			if len(tickers) == 0 {
				output.Dim("No tickers to sync")
				return nil
			}

			set, results, err := app.Fetcher.FetchAll(ctx, tickers, from, to)
			if err != nil {
				return err
			}

			snapshots := marketdata.Snapshots(set)
			if err := app.Store.SaveSnapshots(ctx, snapshots); err != nil {
				return err
			}

			// keep display prices on underlyings current
			for _, ticker := range tickers {
				if last, ok := latestClose(set, ticker, to); ok {
					if err := app.Store.UpdateLastClose(ctx, ticker, last); err != nil {
						output.Warning("Updating last close for %s: %v", ticker, err)
					}
				}
			}

			if err := app.Store.SetLastSync("prices", time.Now().UTC()); err != nil {
				output.Warning("Recording sync time: %v", err)
			}

			if output.IsJSON() {
				return output.JSON(results)
			}

			table := NewTable(output, "Ticker", "Bars", "Result")
			failed := 0
			for _, r := range results {
				if r.Err != nil {
					failed++
					table.AddRow(r.Ticker, "0", output.Red(TruncateString(r.Err.Error(), 50)))
				} else {
					table.AddRow(r.Ticker, fmt.Sprintf("%d", r.Bars), output.Green("ok"))
				}
			}
			table.Render()
			output.Println()
			output.Printf("Stored %d snapshot(s) for %d ticker(s), %d failed\n", len(snapshots), len(tickers), failed)
			return nil
		},
	}

	cmd.Flags().StringVar(&fromStr, "from", "", "history start (YYYY-MM-DD, default lookback window)")
	cmd.Flags().StringVar(&toStr, "to", "", "history end (YYYY-MM-DD, default today)")
	cmd.Flags().StringSliceVar(&tickers, "ticker", nil, "explicit tickers (default: all tracked)")

	return cmd
}

// latestClose finds the most recent stored close for a ticker, scanning
// back up to ten days from the end of the window.
func latestClose(set models.SnapshotSet, ticker string, to time.Time) (float64, bool) {
	for i := 0; i < 10; i++ {
		if px, ok := set.Price(ticker, to.AddDate(0, 0, -i)); ok {
			return px, true
		}
	}
	return 0, false
}

func newPricesShowCmd(app *App) *cobra.Command {
	var (
		fromStr string
		toStr   string
	)

	cmd := &cobra.Command{
		Use:   "show <ticker>",
		Short: "Show stored snapshots for a ticker",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if app.Store == nil {
				return fmt.Errorf("store unavailable")
			}

			to := time.Now().UTC()
			from := to.AddDate(0, -1, 0)
			var err error
			if fromStr != "" {
				if from, err = parseDateFlag(fromStr); err != nil {
					return err
				}
			}
			if toStr != "" {
				if to, err = parseDateFlag(toStr); err != nil {
					return err
				}
			}

			set, err := app.Store.GetSnapshots(cmd.Context(), []string{args[0]}, from, to)
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(set[args[0]])
			}

			byDate := set[args[0]]
			if len(byDate) == 0 {
				output.Dim("No snapshots for %s in range", args[0])
				return nil
			}

			table := NewTable(output, "Date", "Close")
			for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
				if px, ok := set.Price(args[0], d); ok {
					table.AddRow(FormatDate(d), FormatPrice(px))
				}
			}
			table.Render()
			return nil
		},
	}

	cmd.Flags().StringVar(&fromStr, "from", "", "range start (YYYY-MM-DD, default one month back)")
	cmd.Flags().StringVar(&toStr, "to", "", "range end (YYYY-MM-DD, default today)")

	return cmd
}

// snapshotCSVRow is the CSV representation of a price snapshot.
type snapshotCSVRow struct {
	Ticker string  `csv:"ticker"`
	Date   string  `csv:"date"`
	Close  float64 `csv:"close"`
}

func newPricesImportCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <file.csv>",
		Short: "Import snapshots from CSV (ticker, date, close)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if app.Store == nil {
				return fmt.Errorf("store unavailable")
			}

			file, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("opening %s: %w", args[0], err)
			}
			defer file.Close()

			var rows []*snapshotCSVRow
			if err := gocsv.UnmarshalFile(file, &rows); err != nil {
				return fmt.Errorf("reading CSV: %w", err)
			}

			snapshots := make([]models.PriceSnapshot, 0, len(rows))
			for _, row := range rows {
				date, err := parseDateFlag(row.Date)
				if err != nil || date.IsZero() {
					output.Warning("Skipping row with bad date %q", row.Date)
					continue
				}
				snapshots = append(snapshots, models.PriceSnapshot{
					Ticker: row.Ticker,
					Date:   date,
					Close:  row.Close,
				})
			}

			if err := app.Store.SaveSnapshots(cmd.Context(), snapshots); err != nil {
				return err
			}

			output.Success("✓ Imported %d snapshot(s)", len(snapshots))
			return nil
		},
	}
	return cmd
}
