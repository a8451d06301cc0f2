package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"notes-tracker/internal/engine"
)

// addCouponCommands adds coupon accrual commands.
func addCouponCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newCouponsCmd(app))
}

func newCouponsCmd(app *App) *cobra.Command {
	var asOfStr string

	cmd := &cobra.Command{
		Use:   "coupons <isin>",
		Short: "Show the coupon accrual schedule for a note",
		Long: `Evaluate barriers for the note, then walk its coupon schedule:
each period shows the scheduled rate, whether its barrier was met,
the paid rate (including any memory carry-forward) and amount.`,
		Args: cobra.ExactArgs(1),
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
			note, err := app.Store.GetNoteByISIN(ctx, args[0])
			if err != nil {
				return err
			}
			underlyings, err := app.Store.GetUnderlyings(ctx, note.ID)
			if err != nil {
				return err
			}

			tickers := make([]string, 0, len(underlyings))
			for _, u := range underlyings {
				tickers = append(tickers, u.Ticker)
			}
			snaps, err := app.Store.GetSnapshots(ctx, tickers, note.ObservationStart, asOf)
			if err != nil {
				return err
			}

			result, err := app.Engine.EvaluateBarriers(note, underlyings, snaps, asOf)
			if err != nil {
				return err
			}

			periods, err := app.Engine.AccrueCoupons(note, underlyings, snaps, result.KOEvent, asOf)
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{
					"isin":       note.ISIN,
					"status":     result.Status,
					"periods":    periods,
					"total_paid": engine.TotalPaid(periods),
				})
			}

			output.Bold("%s  %s  %s", note.ISIN, note.Product, output.StatusText(result.Status))
			output.Println()

			if len(periods) == 0 {
				output.Dim("No coupon schedule defined")
				return nil
			}

			table := NewTable(output, "#", "Period", "Scheduled", "Barrier", "Paid Rate", "Amount")
			for _, p := range periods {
				barrier := "-"
				paidRate := "-"
				amount := "-"
				if p.Evaluated {
					if p.BarrierMet {
						barrier = output.Green("met")
					} else {
						barrier = output.Red("missed")
					}
					paidRate = FormatRate(p.PaidRate)
					amount = FormatMoney(p.PaidAmount)
					if p.DeferredRate > 0 {
						barrier += output.DimText(fmt.Sprintf(" (deferred %s)", FormatRate(p.DeferredRate)))
					}
				} else {
					barrier = output.DimText("pending")
				}
				table.AddRow(
					fmt.Sprintf("%d", p.Index),
					fmt.Sprintf("%s → %s", FormatDate(p.Start), FormatDate(p.End)),
					FormatRate(p.ScheduledRate),
					barrier,
					paidRate,
					amount,
				)
			}
			table.Render()
			output.Println()
			output.Printf("Total paid: %s\n", FormatMoney(engine.TotalPaid(periods)))
			return nil
		},
	}

	cmd.Flags().StringVar(&asOfStr, "as-of", "", "evaluation date (YYYY-MM-DD, default today)")
	return cmd
}
