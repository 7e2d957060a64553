// Package report renders attendance as a month grid or a single-day table.
package report

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/logging"
	"github.com/kozaktomas/face-attendance/internal/metrics"
)

// ErrInvalidDateRange is returned for a month outside 1..12 or a year outside 1970..9999.
var ErrInvalidDateRange = errors.New("invalid date range")

const (
	minYear = 1970
	maxYear = 9999

	labelAbsent   = "Absent"
	presentLayout = "15:04:05"
)

// Sweeper resolves unmarked identities on a closed day.
type Sweeper interface {
	SweepTriggered(ctx context.Context, trigger attendance.Trigger, day database.Date, identities []database.Identity) (int, error)
}

// Builder reconstructs attendance from the ledger, sweeping closed days first.
type Builder struct {
	ledger  database.LedgerReader
	sweeper Sweeper
	window  attendance.WindowSpec
	metrics *metrics.Collectors
	logger  *zap.Logger
}

// NewBuilder creates a report builder. metrics and logger may be nil.
func NewBuilder(ledger database.LedgerReader, sweeper Sweeper, window attendance.WindowSpec, m *metrics.Collectors, logger *zap.Logger) *Builder {
	return &Builder{
		ledger:  ledger,
		sweeper: sweeper,
		window:  window,
		metrics: m,
		logger:  logging.OrNop(logger),
	}
}

// Row is one identity's line in a month grid.
type Row struct {
	Serial   int
	Identity database.Identity
	Cells    []string // one per day of month
}

// Grid is a month of attendance labels, one row per identity in input order.
type Grid struct {
	Year  int
	Month time.Month
	Days  int
	Rows  []Row
}

// Header returns ["S.No", "Name", "01", ..., "NN"].
func (g Grid) Header() []string {
	h := make([]string, 0, g.Days+2)
	h = append(h, "S.No", "Name")
	for d := 1; d <= g.Days; d++ {
		h = append(h, fmt.Sprintf("%02d", d))
	}
	return h
}

// Records returns the header followed by one record per row.
func (g Grid) Records() [][]string {
	out := make([][]string, 0, len(g.Rows)+1)
	out = append(out, g.Header())
	for _, r := range g.Rows {
		rec := make([]string, 0, len(r.Cells)+2)
		rec = append(rec, fmt.Sprintf("%d", r.Serial), r.Identity.DisplayName)
		rec = append(rec, r.Cells...)
		out = append(out, rec)
	}
	return out
}

// ValidateMonth rejects months that cannot be reported.
func ValidateMonth(year, month int) error {
	if month < 1 || month > 12 {
		return fmt.Errorf("%w: month %d", ErrInvalidDateRange, month)
	}
	if year < minYear || year > maxYear {
		return fmt.Errorf("%w: year %d", ErrInvalidDateRange, year)
	}
	return nil
}

type eventKey struct {
	identityID int64
	day        database.Date
}

// dayRegime says how a day's cells are resolved relative to now.
type dayRegime int

const (
	regimeBlank  dayRegime = iota // future, or today before the window
	regimeOpen                    // today inside the window: present or blank
	regimeClosed                  // past, or today after the window: present or absent
)

// BuildMonth renders identities' attendance for year/month as seen at now.
// Closed days (before today, and today once the window has ended) are swept
// before they are read, so every closed cell is "Present (HH:MM:SS)" or
// "Absent". The result depends only on now, the identities and the ledger.
func (b *Builder) BuildMonth(ctx context.Context, identities []database.Identity, year, month int, now time.Time) (Grid, error) {
	if err := ValidateMonth(year, month); err != nil {
		return Grid{}, err
	}

	days := database.DaysInMonth(year, time.Month(month))
	first := database.NewDate(year, time.Month(month), 1)
	last := database.NewDate(year, time.Month(month), days)
	today := attendance.Today(now, b.window)

	regimes := make([]dayRegime, days)
	for i := range regimes {
		regimes[i] = b.regime(first.AddDays(i), today, now)
	}

	events, err := b.events(ctx, first, last)
	if err != nil {
		return Grid{}, err
	}

	swept := false
	for i, regime := range regimes {
		if regime != regimeClosed || len(identities) == 0 {
			continue
		}
		day := first.AddDays(i)
		if !missingAny(events, identities, day) {
			continue
		}
		if _, err := b.sweeper.SweepTriggered(ctx, attendance.TriggerReport, day, identities); err != nil {
			return Grid{}, fmt.Errorf("resolve %s: %w", day, err)
		}
		swept = true
	}
	if swept {
		if events, err = b.events(ctx, first, last); err != nil {
			return Grid{}, err
		}
	}

	grid := Grid{Year: year, Month: time.Month(month), Days: days, Rows: make([]Row, 0, len(identities))}
	for n, identity := range identities {
		row := Row{Serial: n + 1, Identity: identity, Cells: make([]string, days)}
		for i, regime := range regimes {
			row.Cells[i] = b.cell(regime, events[eventKey{identity.ID, first.AddDays(i)}])
		}
		grid.Rows = append(grid.Rows, row)
	}

	b.metrics.ObserveReport("month")
	b.logger.Debug("built month report",
		zap.Int("year", year),
		zap.Int("month", month),
		zap.Int("identities", len(identities)),
		zap.Bool("swept", swept))
	return grid, nil
}

func (b *Builder) regime(day, today database.Date, now time.Time) dayRegime {
	switch {
	case day.Before(today):
		return regimeClosed
	case day.After(today):
		return regimeBlank
	}
	switch attendance.Classify(now, b.window, day) {
	case attendance.WindowInside:
		return regimeOpen
	case attendance.WindowAfter:
		return regimeClosed
	default:
		return regimeBlank
	}
}

func (b *Builder) cell(regime dayRegime, event database.PresenceEvent) string {
	present := event.Status == database.StatusPresent
	switch regime {
	case regimeClosed:
		if present {
			return b.presentLabel(event.Timestamp)
		}
		return labelAbsent
	case regimeOpen:
		if present {
			return b.presentLabel(event.Timestamp)
		}
	}
	return ""
}

func (b *Builder) presentLabel(ts time.Time) string {
	loc := b.window.Location
	if loc == nil {
		loc = time.UTC
	}
	return "Present (" + ts.In(loc).Format(presentLayout) + ")"
}

func (b *Builder) events(ctx context.Context, from, to database.Date) (map[eventKey]database.PresenceEvent, error) {
	list, err := b.ledger.EventsForRange(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("read events %s..%s: %w", from, to, err)
	}
	out := make(map[eventKey]database.PresenceEvent, len(list))
	for _, e := range list {
		out[eventKey{e.IdentityID, e.Day}] = e
	}
	return out, nil
}

func missingAny(events map[eventKey]database.PresenceEvent, identities []database.Identity, day database.Date) bool {
	for _, identity := range identities {
		if _, ok := events[eventKey{identity.ID, day}]; !ok {
			return true
		}
	}
	return false
}
