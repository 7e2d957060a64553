package report

import (
	"context"
	"fmt"
	"time"

	"github.com/kozaktomas/face-attendance/internal/database"
)

// DayRow is one identity's status on a single day.
type DayRow struct {
	Identity database.Identity
	Status   database.Status
	MarkedAt time.Time // zero when no event exists
}

// DayTable is the single-day export.
type DayTable struct {
	Day  database.Date
	Rows []DayRow
}

// DayHeader is the header row of the single-day export.
var DayHeader = []string{"Date", "Name", "Category", "Group", "Status", "MarkedAtUTC"}

// Records returns the header followed by one record per identity.
func (t DayTable) Records() [][]string {
	out := make([][]string, 0, len(t.Rows)+1)
	out = append(out, append([]string(nil), DayHeader...))
	for _, r := range t.Rows {
		marked := ""
		if !r.MarkedAt.IsZero() {
			marked = r.MarkedAt.UTC().Format(time.RFC3339)
		}
		out = append(out, []string{
			t.Day.String(),
			r.Identity.DisplayName,
			string(r.Identity.Category),
			r.Identity.Group,
			string(r.Status),
			marked,
		})
	}
	return out
}

// BuildDay reads the ledger for day without sweeping. Identities without an
// event are listed as absent with no timestamp.
func (b *Builder) BuildDay(ctx context.Context, identities []database.Identity, day database.Date) (DayTable, error) {
	events, err := b.ledger.EventsForDay(ctx, day)
	if err != nil {
		return DayTable{}, fmt.Errorf("read events %s: %w", day, err)
	}
	byID := make(map[int64]database.PresenceEvent, len(events))
	for _, e := range events {
		byID[e.IdentityID] = e
	}

	table := DayTable{Day: day, Rows: make([]DayRow, 0, len(identities))}
	for _, identity := range identities {
		row := DayRow{Identity: identity, Status: database.StatusAbsent}
		if e, ok := byID[identity.ID]; ok {
			row.Status = e.Status
			row.MarkedAt = e.Timestamp
		}
		table.Rows = append(table.Rows, row)
	}
	b.metrics.ObserveReport("day")
	return table, nil
}
