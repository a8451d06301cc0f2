package cli

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/spf13/cobra"

	"notes-tracker/internal/models"
	"notes-tracker/internal/store"
)

// addNoteCommands adds note portfolio commands.
func addNoteCommands(rootCmd *cobra.Command, app *App) {
	notesCmd := &cobra.Command{
		Use:   "note",
		Short: "Manage structured note positions",
	}

	notesCmd.AddCommand(newNoteAddCmd(app))
	notesCmd.AddCommand(newNoteListCmd(app))
	notesCmd.AddCommand(newNoteShowCmd(app))
	notesCmd.AddCommand(newNoteDeleteCmd(app))
	notesCmd.AddCommand(newNoteExportCmd(app))
	notesCmd.AddCommand(newNoteImportCmd(app))

	rootCmd.AddCommand(notesCmd)
}

func newNoteAddCmd(app *App) *cobra.Command {
	var (
		customer    string
		product     string
		notional    float64
		tradeDate   string
		issueDate   string
		obsStart    string
		finalVal    string
		couponRate  float64
		couponDates string
		couponBar   float64
		koType      string
		koFreq      string
		kiType      string
		stepDown    string
		memoryRates string
		underlyings []string
	)

	cmd := &cobra.Command{
		Use:   "add <isin>",
		Short: "Add a structured note position",
		Long: `Add a structured note position to the portfolio.

Underlyings are given as ticker:spot:ko:ki[:strike], one --underlying
flag per underlying. Step-down barriers are given as "1:100,2:98".`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if app.Store == nil {
				return fmt.Errorf("store unavailable")
			}

			note := &models.Note{
				CustomerName:         customer,
				ISIN:                 args[0],
				Product:              models.ProductType(product),
				Notional:             notional,
				CouponRate:           couponRate,
				CouponBarrier:        couponBar,
				KOType:               models.KOType(koType),
				ObservationFrequency: models.Frequency(koFreq),
				KIType:               models.KIType(kiType),
				Status:               models.StatusNotYetObserved,
			}

			var err error
			if note.TradeDate, err = parseDateFlag(tradeDate); err != nil {
				return err
			}
			if note.IssueDate, err = parseDateFlag(issueDate); err != nil {
				return err
			}
			if note.ObservationStart, err = parseDateFlag(obsStart); err != nil {
				return err
			}
			if note.FinalValuation, err = parseDateFlag(finalVal); err != nil {
				return err
			}
			if note.ObservationStart.IsZero() {
				note.ObservationStart = note.TradeDate
			}

			for _, part := range strings.Split(couponDates, ",") {
				part = strings.TrimSpace(part)
				if part == "" {
					continue
				}
				d, err := parseDateFlag(part)
				if err != nil {
					return fmt.Errorf("invalid coupon date %q: %w", part, err)
				}
				note.CouponDates = append(note.CouponDates, d)
			}

			note.StepDownKO = parseStepDownFlag(stepDown)
			for _, part := range strings.Split(memoryRates, ",") {
				part = strings.TrimSpace(part)
				if part == "" {
					continue
				}
				r, err := strconv.ParseFloat(part, 64)
				if err != nil {
					return fmt.Errorf("invalid memory rate %q: %w", part, err)
				}
				note.MemoryRates = append(note.MemoryRates, r)
			}

			parsed, err := parseUnderlyingFlags(underlyings)
			if err != nil {
				return err
			}
			if len(parsed) == 0 {
				return fmt.Errorf("at least one --underlying is required")
			}

			ctx := cmd.Context()
			id, err := app.Store.SaveNote(ctx, note)
			if err != nil {
				return fmt.Errorf("saving note: %w", err)
			}
			if err := app.Store.SaveUnderlyings(ctx, id, parsed); err != nil {
				return fmt.Errorf("saving underlyings: %w", err)
			}

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{"id": id, "isin": note.ISIN})
			}
			output.Success("✓ Added note %s (id %d) with %d underlying(s)", note.ISIN, id, len(parsed))
			return nil
		},
	}

	cmd.Flags().StringVar(&customer, "customer", "", "customer name")
	cmd.Flags().StringVar(&product, "product", "", "product type (FCN, WOFCN, Phoenix, DCN, WOBEN, ACCU, DECU, TWINWIN)")
	cmd.Flags().Float64Var(&notional, "notional", 0, "notional amount")
	cmd.Flags().StringVar(&tradeDate, "trade-date", "", "trade date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&issueDate, "issue-date", "", "issue date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&obsStart, "observation-start", "", "observation start date (defaults to trade date)")
	cmd.Flags().StringVar(&finalVal, "final-valuation", "", "final valuation date (YYYY-MM-DD)")
	cmd.Flags().Float64Var(&couponRate, "coupon-rate", 0, "coupon rate per annum as decimal")
	cmd.Flags().StringVar(&couponDates, "coupon-dates", "", "comma-separated coupon payment dates")
	cmd.Flags().Float64Var(&couponBar, "coupon-barrier", 0, "coupon barrier price (0 = unconditional)")
	cmd.Flags().StringVar(&koType, "ko-type", "Daily", "KO observation type (Daily or Period-End)")
	cmd.Flags().StringVar(&koFreq, "ko-frequency", "", "KO observation frequency for Period-End")
	cmd.Flags().StringVar(&kiType, "ki-type", "Daily", "KI observation type (Daily or EKI)")
	cmd.Flags().StringVar(&stepDown, "step-down", "", "step-down KO schedule, e.g. \"1:100,2:98\"")
	cmd.Flags().StringVar(&memoryRates, "memory-rates", "", "cumulative memory coupon rates, comma-separated")
	cmd.Flags().StringArrayVar(&underlyings, "underlying", nil, "underlying as ticker:spot:ko:ki[:strike]")
	cmd.MarkFlagRequired("product")
	cmd.MarkFlagRequired("trade-date")
	cmd.MarkFlagRequired("final-valuation")

	return cmd
}

func parseDateFlag(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (want YYYY-MM-DD)", s)
	}
	return t, nil
}

func parseStepDownFlag(s string) []models.StepDownBarrier {
	var schedule []models.StepDownBarrier
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" || !strings.Contains(part, ":") {
			continue
		}
		fields := strings.SplitN(part, ":", 2)
		period, err1 := strconv.Atoi(strings.TrimSpace(fields[0]))
		level, err2 := strconv.ParseFloat(strings.TrimSpace(fields[1]), 64)
		if err1 != nil || err2 != nil {
			continue
		}
		schedule = append(schedule, models.StepDownBarrier{Period: period, Level: level})
	}
	return schedule
}

func parseUnderlyingFlags(flags []string) ([]models.Underlying, error) {
	var out []models.Underlying
	for i, raw := range flags {
		fields := strings.Split(raw, ":")
		if len(fields) < 4 {
			return nil, fmt.Errorf("invalid underlying %q (want ticker:spot:ko:ki[:strike])", raw)
		}
		u := models.Underlying{Seq: i + 1, Ticker: strings.TrimSpace(fields[0])}
		var err error
		if u.SpotPrice, err = strconv.ParseFloat(fields[1], 64); err != nil {
			return nil, fmt.Errorf("invalid spot price in %q", raw)
		}
		if u.KOPrice, err = strconv.ParseFloat(fields[2], 64); err != nil {
			return nil, fmt.Errorf("invalid KO price in %q", raw)
		}
		if u.KIPrice, err = strconv.ParseFloat(fields[3], 64); err != nil {
			return nil, fmt.Errorf("invalid KI price in %q", raw)
		}
		if len(fields) >= 5 {
			if u.StrikePrice, err = strconv.ParseFloat(fields[4], 64); err != nil {
				return nil, fmt.Errorf("invalid strike price in %q", raw)
			}
		} else {
			u.StrikePrice = u.SpotPrice
		}
		out = append(out, u)
	}
	return out, nil
}

func newNoteListCmd(app *App) *cobra.Command {
	var (
		product  string
		status   string
		customer string
		limit    int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List note positions",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if app.Store == nil {
				return fmt.Errorf("store unavailable")
			}

			notes, err := app.Store.ListNotes(cmd.Context(), store.NoteFilter{
				Product:  models.ProductType(product),
				Status:   models.Status(status),
				Customer: customer,
				Limit:    limit,
			})
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(notes)
			}

			if len(notes) == 0 {
				output.Dim("No notes found")
				return nil
			}

			table := NewTable(output, "ID", "ISIN", "Product", "Customer", "Notional", "Final Val", "Status")
			for _, n := range notes {
				table.AddRow(
					strconv.FormatInt(n.ID, 10),
					n.ISIN,
					string(n.Product),
					TruncateString(n.CustomerName, 20),
					FormatMoney(n.Notional),
					FormatDate(n.FinalValuation),
					output.StatusText(n.Status),
				)
			}
			table.Render()
			return nil
		},
	}

	cmd.Flags().StringVar(&product, "product", "", "filter by product type")
	cmd.Flags().StringVar(&status, "status", "", "filter by status")
	cmd.Flags().StringVar(&customer, "customer", "", "filter by customer name substring")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum rows")

	return cmd
}

func newNoteShowCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <isin>",
		Short: "Show a note position in detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if app.Store == nil {
				return fmt.Errorf("store unavailable")
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

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{
					"note":        note,
					"underlyings": underlyings,
				})
			}

			output.Bold("%s  %s", note.ISIN, note.Product)
			output.Printf("  Customer:         %s\n", note.CustomerName)
			output.Printf("  Notional:         %s\n", FormatMoney(note.Notional))
			output.Printf("  Trade Date:       %s\n", FormatDate(note.TradeDate))
			output.Printf("  Observation From: %s\n", FormatDate(note.ObservationStart))
			output.Printf("  Final Valuation:  %s\n", FormatDate(note.FinalValuation))
			output.Printf("  Coupon Rate p.a.: %s\n", FormatRate(note.CouponRate))
			output.Printf("  Coupon Barrier:   %s\n", FormatPrice(note.CouponBarrier))
			output.Printf("  KO Type:          %s %s\n", note.KOType, note.ObservationFrequency)
			output.Printf("  KI Type:          %s\n", note.KIType)
			if len(note.StepDownKO) > 0 {
				output.Printf("  Step-Down KO:     %s\n", FormatStepDown(note.StepDownKO))
			}
			output.Printf("  Status:           %s\n", output.StatusText(note.Status))
			if note.KOEventDate != nil {
				output.Printf("  KO Event:         %s\n", FormatDatePtr(note.KOEventDate))
			}
			if note.KIEventDate != nil {
				output.Printf("  KI Event:         %s\n", FormatDatePtr(note.KIEventDate))
			}
			output.Println()

			table := NewTable(output, "Ticker", "Spot", "KO", "KI", "Strike", "Last")
			for _, u := range underlyings {
				table.AddRow(
					u.Ticker,
					FormatPrice(u.SpotPrice),
					FormatPrice(u.KOPrice),
					FormatPrice(u.KIPrice),
					FormatPrice(u.StrikePrice),
					FormatPrice(u.LastClose),
				)
			}
			table.Render()
			return nil
		},
	}
	return cmd
}

func newNoteDeleteCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <isin>",
		Short: "Delete a note position",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if app.Store == nil {
				return fmt.Errorf("store unavailable")
			}

			ctx := cmd.Context()
			note, err := app.Store.GetNoteByISIN(ctx, args[0])
			if err != nil {
				return err
			}
			if err := app.Store.DeleteNote(ctx, note.ID); err != nil {
				return err
			}
			output.Success("✓ Deleted note %s", note.ISIN)
			return nil
		},
	}
}

// noteCSVRow is the flat CSV representation of a note and its underlyings.
type noteCSVRow struct {
	ISIN          string  `csv:"isin"`
	Customer      string  `csv:"customer_name"`
	Product       string  `csv:"product_type"`
	Notional      float64 `csv:"notional"`
	TradeDate     string  `csv:"trade_date"`
	IssueDate     string  `csv:"issue_date"`
	ObsStart      string  `csv:"observation_start_date"`
	FinalVal      string  `csv:"final_valuation_date"`
	CouponRate    float64 `csv:"coupon_per_annum"`
	CouponDates   string  `csv:"coupon_payment_dates"`
	CouponBarrier float64 `csv:"coupon_barrier"`
	KOType        string  `csv:"ko_type"`
	KOFrequency   string  `csv:"ko_observation_frequency"`
	KIType        string  `csv:"ki_type"`
	StepDownKO    string  `csv:"step_down_ko"`
	MemoryRates   string  `csv:"memory_rates"`
	Status        string  `csv:"current_status"`
	Underlyings   string  `csv:"underlyings"`
}

func newNoteExportCmd(app *App) *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export note positions to CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if app.Store == nil {
				return fmt.Errorf("store unavailable")
			}

			ctx := cmd.Context()
			notes, err := app.Store.ListNotes(ctx, store.NoteFilter{})
			if err != nil {
				return err
			}

			rows := make([]*noteCSVRow, 0, len(notes))
			for _, n := range notes {
				underlyings, err := app.Store.GetUnderlyings(ctx, n.ID)
				if err != nil {
					return err
				}
				var uparts []string
				for _, u := range underlyings {
					uparts = append(uparts, fmt.Sprintf("%s:%g:%g:%g:%g",
						u.Ticker, u.SpotPrice, u.KOPrice, u.KIPrice, u.StrikePrice))
				}

				var couponDates []string
				for _, d := range n.CouponDates {
					couponDates = append(couponDates, d.Format("2006-01-02"))
				}

				rows = append(rows, &noteCSVRow{
					ISIN:          n.ISIN,
					Customer:      n.CustomerName,
					Product:       string(n.Product),
					Notional:      n.Notional,
					TradeDate:     FormatDate(n.TradeDate),
					IssueDate:     FormatDate(n.IssueDate),
					ObsStart:      FormatDate(n.ObservationStart),
					FinalVal:      FormatDate(n.FinalValuation),
					CouponRate:    n.CouponRate,
					CouponDates:   strings.Join(couponDates, ", "),
					CouponBarrier: n.CouponBarrier,
					KOType:        string(n.KOType),
					KOFrequency:   string(n.ObservationFrequency),
					KIType:        string(n.KIType),
					StepDownKO:    stepDownString(n.StepDownKO),
					MemoryRates:   ratesString(n.MemoryRates),
					Status:        string(n.Status),
					Underlyings:   strings.Join(uparts, "; "),
				})
			}

			file, err := os.Create(path)
			if err != nil {
				return fmt.Errorf("creating %s: %w", path, err)
			}
			defer file.Close()

			if err := gocsv.MarshalFile(&rows, file); err != nil {
				return fmt.Errorf("writing CSV: %w", err)
			}

			output.Success("✓ Exported %d note(s) to %s", len(rows), path)
			return nil
		},
	}

	cmd.Flags().StringVar(&path, "out", "notes.csv", "output CSV path")
	return cmd
}

func newNoteImportCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <file.csv>",
		Short: "Import note positions from CSV",
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

			var rows []*noteCSVRow
			if err := gocsv.UnmarshalFile(file, &rows); err != nil {
				return fmt.Errorf("reading CSV: %w", err)
			}

			ctx := cmd.Context()
			imported := 0
			for _, row := range rows {
				note := &models.Note{
					CustomerName:         row.Customer,
					ISIN:                 row.ISIN,
					Product:              models.ProductType(row.Product),
					Notional:             row.Notional,
					CouponRate:           row.CouponRate,
					CouponBarrier:        row.CouponBarrier,
					KOType:               models.KOType(row.KOType),
					ObservationFrequency: models.Frequency(row.KOFrequency),
					KIType:               models.KIType(row.KIType),
					StepDownKO:           parseStepDownFlag(row.StepDownKO),
					Status:               models.StatusNotYetObserved,
				}
				note.TradeDate, _ = parseDateFlag(row.TradeDate)
				note.IssueDate, _ = parseDateFlag(row.IssueDate)
				note.ObservationStart, _ = parseDateFlag(row.ObsStart)
				note.FinalValuation, _ = parseDateFlag(row.FinalVal)
				if note.ObservationStart.IsZero() {
					note.ObservationStart = note.TradeDate
				}
				for _, part := range strings.Split(row.CouponDates, ",") {
					if d, err := parseDateFlag(strings.TrimSpace(part)); err == nil && !d.IsZero() {
						note.CouponDates = append(note.CouponDates, d)
					}
				}
				for _, part := range strings.Split(row.MemoryRates, ",") {
					part = strings.TrimSpace(part)
					if part == "" {
						continue
					}
					if r, err := strconv.ParseFloat(part, 64); err == nil {
						note.MemoryRates = append(note.MemoryRates, r)
					}
				}

				var underlyings []models.Underlying
				for i, raw := range strings.Split(row.Underlyings, ";") {
					raw = strings.TrimSpace(raw)
					if raw == "" {
						continue
					}
					parsed, err := parseUnderlyingFlags([]string{raw})
					if err != nil {
						output.Warning("Skipping underlying %q for %s: %v", raw, row.ISIN, err)
						continue
					}
					parsed[0].Seq = i + 1
					underlyings = append(underlyings, parsed[0])
				}

				id, err := app.Store.SaveNote(ctx, note)
				if err != nil {
					output.Warning("Skipping %s: %v", row.ISIN, err)
					continue
				}
				if err := app.Store.SaveUnderlyings(ctx, id, underlyings); err != nil {
					output.Warning("Underlyings for %s: %v", row.ISIN, err)
					continue
				}
				imported++
			}

			output.Success("✓ Imported %d of %d note(s)", imported, len(rows))
			return nil
		},
	}
	return cmd
}

func stepDownString(schedule []models.StepDownBarrier) string {
	parts := make([]string, 0, len(schedule))
	for _, e := range schedule {
		parts = append(parts, fmt.Sprintf("%d:%g", e.Period, e.Level))
	}
	return strings.Join(parts, ", ")
}

func ratesString(rates []float64) string {
	parts := make([]string, 0, len(rates))
	for _, r := range rates {
		parts = append(parts, strconv.FormatFloat(r, 'f', -1, 64))
	}
	return strings.Join(parts, ", ")
}
