package cmd

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/database"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Mark unrecorded identities absent for closed days",
	Long: `Run the absence sweep for one closed day or a range of closed days.

Every enrolled identity without an event on the day is marked ABSENT. Days whose
attendance window has not closed yet are refused. Re-running a sweep is safe.

Examples:
  # Sweep yesterday
  face-attendance sweep --date 2025-03-13

  # Backfill a range with 8 workers
  face-attendance sweep --from 2025-03-01 --to 2025-03-13 --concurrency 8`,
	RunE: runSweep,
}

func init() {
	rootCmd.AddCommand(sweepCmd)

	sweepCmd.Flags().String("date", "", "Day to sweep (YYYY-MM-DD)")
	sweepCmd.Flags().String("from", "", "First day of a backfill range (YYYY-MM-DD)")
	sweepCmd.Flags().String("to", "", "Last day of a backfill range (YYYY-MM-DD)")
	sweepCmd.Flags().Int("concurrency", constants.WorkerPoolSize, "Days swept in parallel during a backfill")
}

// sweepDays expands the --date or --from/--to flags into a day list.
func sweepDays(cmd *cobra.Command) ([]database.Date, error) {
	date, err := dateFlag(cmd, "date")
	if err != nil {
		return nil, err
	}
	from, err := dateFlag(cmd, "from")
	if err != nil {
		return nil, err
	}
	to, err := dateFlag(cmd, "to")
	if err != nil {
		return nil, err
	}

	switch {
	case !date.IsZero() && (!from.IsZero() || !to.IsZero()):
		return nil, errors.New("use either --date or --from/--to")
	case !date.IsZero():
		return []database.Date{date}, nil
	case from.IsZero() || to.IsZero():
		return nil, errors.New("--date or both --from and --to are required")
	case to.Before(from):
		return nil, errors.New("--to is before --from")
	}

	var days []database.Date
	for d := from; !d.After(to); d = d.AddDays(1) {
		days = append(days, d)
		if len(days) > constants.MaxBackfillDays {
			return nil, fmt.Errorf("range exceeds %d days", constants.MaxBackfillDays)
		}
	}
	return days, nil
}

func runSweep(cmd *cobra.Command, args []string) error {
	days, err := sweepDays(cmd)
	if err != nil {
		return err
	}
	concurrency := max(1, mustGetInt(cmd, "concurrency"))

	ctx, cancel := context.WithTimeout(context.Background(), constants.CommandTimeout)
	defer cancel()

	a, err := newApp(ctx, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	now := time.Now()
	if len(days) == 1 {
		marked, err := a.service.SweepDay(ctx, days[0], now)
		if err != nil {
			return sweepError(days[0], err)
		}
		fmt.Printf("%s: marked %d absent\n", days[0], marked)
		return nil
	}

	bar := progressbar.NewOptions(len(days),
		progressbar.OptionSetDescription("Sweeping days"),
		progressbar.OptionShowCount(),
		progressbar.OptionSetItsString("days"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionFullWidth(),
	)

	var total int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, day := range days {
		g.Go(func() error {
			marked, err := a.service.SweepDay(gctx, day, now)
			if err != nil {
				return sweepError(day, err)
			}
			atomic.AddInt64(&total, int64(marked))
			_ = bar.Add(1)
			return nil
		})
	}
	err = g.Wait()
	fmt.Println()
	if err != nil {
		return err
	}

	fmt.Printf("Swept %d days, marked %d absent\n", len(days), total)
	return nil
}

func sweepError(day database.Date, err error) error {
	if errors.Is(err, attendance.ErrDayNotClosed) {
		return fmt.Errorf("%s: attendance window has not closed yet", day)
	}
	return fmt.Errorf("%s: %w", day, err)
}
