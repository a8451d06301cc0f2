package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"notes-tracker/internal/engine"
	"notes-tracker/internal/models"
)

// addScheduleCommands adds observation schedule commands.
func addScheduleCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newScheduleCmd(app))
}

func newScheduleCmd(app *App) *cobra.Command {
	var (
		startStr string
		endStr   string
		freq     string
	)

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Generate an observation schedule",
		Long: `Generate observation dates between two dates at a given frequency.
Daily produces every calendar day; other frequencies produce period
boundaries measured from the start date, with the final boundary
clipped to the end date.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			start, err := parseDateFlag(startStr)
			if err != nil {
				return err
			}
			end, err := parseDateFlag(endStr)
			if err != nil {
				return err
			}
			if start.IsZero() || end.IsZero() {
				return fmt.Errorf("--start and --end are required")
			}

			dates, err := engine.GenerateSchedule(start, end, models.Frequency(freq))
			if err != nil {
				return err
			}

			if output.IsJSON() {
				formatted := make([]string, 0, len(dates))
				for _, d := range dates {
					formatted = append(formatted, FormatDate(d))
				}
				return output.JSON(map[string]interface{}{
					"frequency": freq,
					"dates":     formatted,
				})
			}

			output.Bold("%s schedule: %s → %s (%d dates)", freq, FormatDate(start), FormatDate(end), len(dates))
			for i, d := range dates {
				output.Printf("  %3d  %s\n", i+1, FormatDate(d))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&startStr, "start", "", "schedule start date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&endStr, "end", "", "schedule end date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&freq, "frequency", "Monthly", "frequency (Daily, Weekly, Monthly, Quarterly, Semi-Annually)")

	return cmd
}
