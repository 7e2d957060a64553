package cmd

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/report"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Export a monthly attendance grid as CSV",
	Long: `Build the monthly attendance grid for one category (and class for students)
and write it as CSV. Closed days are swept before they are reported, so every
identity shows Present or Absent for them.

Examples:
  face-attendance report --category student --group 5A --year 2025 --month 3
  face-attendance report --category staff --year 2025 --month 3 --out reports/`,
	RunE: runReport,
}

var exportDayCmd = &cobra.Command{
	Use:   "export-day",
	Short: "Export one day's attendance as CSV",
	Long: `Write every identity's status for a single day as CSV. The ledger is read as
is; identities without an event are listed as absent.`,
	RunE: runExportDay,
}

func init() {
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(exportDayCmd)

	now := time.Now()
	reportCmd.Flags().String("category", string(database.CategoryStudent), "Category: student or staff")
	reportCmd.Flags().String("group", "", "Class name (students only)")
	reportCmd.Flags().Int("year", now.Year(), "Report year")
	reportCmd.Flags().Int("month", int(now.Month()), "Report month (1-12)")
	reportCmd.Flags().String("out", "", "Output file or directory (default: stdout)")

	exportDayCmd.Flags().String("date", "", "Day to export (YYYY-MM-DD, default today)")
	exportDayCmd.Flags().String("category", "", "Only this category")
	exportDayCmd.Flags().String("group", "", "Only this class")
	exportDayCmd.Flags().String("out", "", "Output file or directory (default: stdout)")
}

func runReport(cmd *cobra.Command, args []string) error {
	category, err := database.ParseCategory(mustGetString(cmd, "category"))
	if err != nil {
		return err
	}
	group := strings.TrimSpace(mustGetString(cmd, "group"))
	if category != database.CategoryStudent {
		group = ""
	}
	year, month := mustGetInt(cmd, "year"), mustGetInt(cmd, "month")
	if err := report.ValidateMonth(year, month); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), constants.CommandTimeout)
	defer cancel()

	a, err := newApp(ctx, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	people, err := a.service.ListPeople(ctx, database.IdentityFilter{Category: category, Group: group})
	if err != nil {
		return err
	}
	grid, err := a.reports.BuildMonth(ctx, people, year, month, time.Now())
	if err != nil {
		return err
	}
	return writeTable(mustGetString(cmd, "out"), report.MonthFilename(string(category), group, year, month), grid)
}

func runExportDay(cmd *cobra.Command, args []string) error {
	day, err := dateFlag(cmd, "date")
	if err != nil {
		return err
	}
	filter, err := filterFlags(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), constants.CommandTimeout)
	defer cancel()

	a, err := newApp(ctx, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	if day.IsZero() {
		day = attendance.Today(time.Now(), a.service.Window)
	}
	people, err := a.service.ListPeople(ctx, filter)
	if err != nil {
		return err
	}
	table, err := a.reports.BuildDay(ctx, people, day)
	if err != nil {
		return err
	}
	return writeTable(mustGetString(cmd, "out"), report.DayFilename(day.String()), table)
}

// writeTable writes t as CSV to stdout, to out, or to out/filename when out
// is an existing directory.
func writeTable(out, filename string, t report.Table) error {
	var buf bytes.Buffer
	if err := report.WriteCSV(&buf, t); err != nil {
		return err
	}
	if out == "" {
		_, err := os.Stdout.Write(buf.Bytes())
		return err
	}
	if info, err := os.Stat(out); err == nil && info.IsDir() {
		out = filepath.Join(out, filename)
	}
	if err := os.WriteFile(out, buf.Bytes(), 0o644); err != nil { //nolint:gosec // report files are not secret
		return fmt.Errorf("write %s: %w", out, err)
	}
	fmt.Fprintf(os.Stderr, "Wrote %s\n", out)
	return nil
}
