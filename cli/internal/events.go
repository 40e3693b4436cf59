package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/guarzo/studyplan/modules/calendar"
)

func newEventsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Browse the calendar events of the active plan",
	}

	cmd.AddCommand(newEventsUpcomingCommand())
	cmd.AddCommand(newEventsMonthCommand())

	return cmd
}

func loadEvents(c *CliContext, now time.Time) ([]calendar.Event, error) {
	raw, err := c.Plans.Events()
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}
	return calendar.DecodeEvents(raw, now)
}

func newEventsUpcomingCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "upcoming",
		Short: "List events from today onwards",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := getCliContext(cmd)
			now := time.Now()
			events, err := loadEvents(c, now)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			upcoming := calendar.Upcoming(events, now, limit)
			if len(upcoming) == 0 {
				fmt.Fprintln(out, "No upcoming events")
				return nil
			}
			for _, e := range upcoming {
				printEvent(out, e)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 5, "Maximum number of events (0 = all)")
	return cmd
}

func newEventsMonthCommand() *cobra.Command {
	var month string
	var mondayFirst bool

	cmd := &cobra.Command{
		Use:   "month",
		Short: "Print a month view with the number of events per day",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := getCliContext(cmd)
			now := time.Now()
			target := now
			if month != "" {
				t, err := time.ParseInLocation("2006-01", month, time.Local)
				if err != nil {
					return fmt.Errorf("invalid --month %q, want YYYY-MM", month)
				}
				target = t
			}

			events, err := loadEvents(c, now)
			if err != nil {
				return err
			}

			weekStart := time.Sunday
			if mondayFirst {
				weekStart = time.Monday
			}
			printMonth(cmd.OutOrStdout(), target, weekStart, events)
			return nil
		},
	}
	cmd.Flags().StringVar(&month, "month", "", "Month to show, YYYY-MM (default: current)")
	cmd.Flags().BoolVar(&mondayFirst, "monday", false, "Start weeks on Monday")
	return cmd
}

func printEvent(w io.Writer, e calendar.Event) {
	fmt.Fprintf(w, "%s  %-6s %s\n", e.Date.Format("Mon 02 Jan 2006 15:04"), e.Type, e.Title)
}

func printMonth(w io.Writer, month time.Time, weekStart time.Weekday, events []calendar.Event) {
	fmt.Fprintf(w, "%s %d\n", month.Month(), month.Year())

	var header []string
	for i := 0; i < 7; i++ {
		header = append(header, fmt.Sprintf("%-6s", time.Weekday((int(weekStart)+i)%7).String()[:3]))
	}
	fmt.Fprintln(w, strings.TrimRight(strings.Join(header, " "), " "))

	days := calendar.MonthGrid(month, weekStart)
	for i := 0; i < len(days); i += 7 {
		var cells []string
		for _, d := range days[i : i+7] {
			cell := "  "
			if d.Month() == month.Month() {
				cell = fmt.Sprintf("%2d", d.Day())
			}
			if n := len(calendar.OnDay(events, d)); n > 0 && d.Month() == month.Month() {
				cell += fmt.Sprintf("(%d)", n)
			}
			cells = append(cells, fmt.Sprintf("%-6s", cell))
		}
		fmt.Fprintln(w, strings.TrimRight(strings.Join(cells, " "), " "))
	}

	counts := calendar.Counts(events)
	fmt.Fprintf(w, "study: %d  exam: %d  other: %d\n",
		counts[calendar.TypeStudy], counts[calendar.TypeExam], counts[calendar.TypeOther])
}
