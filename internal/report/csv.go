package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

// Table is anything that serializes to CSV records, header first.
type Table interface {
	Records() [][]string
}

// WriteCSV writes t as comma-separated text.
func WriteCSV(w io.Writer, t Table) error {
	cw := csv.NewWriter(w)
	if err := cw.WriteAll(t.Records()); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return nil
}

// MonthFilename returns attendance_{category}_{group}_{YYYY}-{MM}.csv,
// leaving out the group segment when group is empty.
func MonthFilename(category, group string, year, month int) string {
	parts := []string{"attendance", filenameSegment(category)}
	if g := filenameSegment(group); g != "" {
		parts = append(parts, g)
	}
	return fmt.Sprintf("%s_%04d-%02d.csv", strings.Join(parts, "_"), year, month)
}

// DayFilename returns attendance_day_{YYYY-MM-DD}.csv.
func DayFilename(day string) string {
	return "attendance_day_" + day + ".csv"
}

// filenameSegment keeps a value safe for a Content-Disposition filename.
func filenameSegment(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', '"', ':', '*', '?', '<', '>', '|':
			return '-'
		case ' ':
			return '_'
		}
		return r
	}, s)
}
