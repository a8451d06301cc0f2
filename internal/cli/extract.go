package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// addExtractCommands adds termsheet extraction commands.
func addExtractCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newExtractCmd(app))
}

func newExtractCmd(app *App) *cobra.Command {
	var save bool

	cmd := &cobra.Command{
		Use:   "extract <termsheet.txt>",
		Short: "Extract a note from termsheet text using an LLM",
		Long: `Send extracted termsheet text to the configured LLM and parse the
reply into a note draft. With --save, the draft and its underlyings
are written to the store; otherwise the draft is printed for review.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if app.Extractor == nil {
				return fmt.Errorf("extraction unavailable: set openai.api_key in credentials.toml or OPENAI_API_KEY")
			}

			text, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading %s: %w", args[0], err)
			}

			ctx := cmd.Context()
			note, underlyings, err := app.Extractor.ExtractNote(ctx, string(text))
			if err != nil {
				return err
			}

			if save {
				if app.Store == nil {
					return fmt.Errorf("store unavailable")
				}
				id, err := app.Store.SaveNote(ctx, note)
				if err != nil {
					return fmt.Errorf("saving note: %w", err)
				}
				if err := app.Store.SaveUnderlyings(ctx, id, underlyings); err != nil {
					return fmt.Errorf("saving underlyings: %w", err)
				}
				output.Success("✓ Saved extracted note %s (id %d)", note.ISIN, id)
				return nil
			}

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{
					"note":        note,
					"underlyings": underlyings,
				})
			}

			output.Bold("Extracted draft (not saved, use --save to persist)")
			output.Printf("  ISIN:            %s\n", note.ISIN)
			output.Printf("  Product:         %s\n", note.Product)
			output.Printf("  Customer:        %s\n", note.CustomerName)
			output.Printf("  Notional:        %s\n", FormatMoney(note.Notional))
			output.Printf("  Trade Date:      %s\n", FormatDate(note.TradeDate))
			output.Printf("  Final Valuation: %s\n", FormatDate(note.FinalValuation))
			output.Printf("  Coupon p.a.:     %s\n", FormatRate(note.CouponRate))
			output.Printf("  KO/KI:           %s / %s\n", note.KOType, note.KIType)
			output.Println()

			table := NewTable(output, "Ticker", "Spot", "KO", "KI", "Strike")
			for _, u := range underlyings {
				table.AddRow(
					u.Ticker,
					FormatPrice(u.SpotPrice),
					FormatPrice(u.KOPrice),
					FormatPrice(u.KIPrice),
					FormatPrice(u.StrikePrice),
				)
			}
			table.Render()
			return nil
		},
	}

	cmd.Flags().BoolVar(&save, "save", false, "save the extracted note to the store")
	return cmd
}
