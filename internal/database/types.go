package database

import (
	"fmt"
	"strings"
	"time"
)

// Category classifies an enrolled identity.
type Category string

const (
	CategoryStudent Category = "student" // primary population, grouped by class
	CategoryStaff   Category = "staff"
)

// ParseCategory accepts the stored names plus the PRIMARY/SECONDARY aliases.
func ParseCategory(s string) (Category, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "student", "primary":
		return CategoryStudent, nil
	case "staff", "secondary":
		return CategoryStaff, nil
	default:
		return "", fmt.Errorf("unknown category %q", s)
	}
}

// Identity is an enrolled person with the face embedding used for matching.
// The embedding never changes after enrollment.
type Identity struct {
	ID          int64
	DisplayName string
	Category    Category
	Group       string // class name, students only
	Embedding   Embedding
	CreatedAt   time.Time
}

// IdentityFilter narrows an identity snapshot. Zero values match everything.
type IdentityFilter struct {
	Category Category
	Group    string
}

// Matches reports whether the identity passes the filter.
func (f IdentityFilter) Matches(id *Identity) bool {
	if f.Category != "" && id.Category != f.Category {
		return false
	}
	if f.Group != "" && id.Group != f.Group {
		return false
	}
	return true
}

// Status of a presence event.
type Status string

const (
	StatusPresent Status = "present"
	StatusAbsent  Status = "absent"
)

// Source records which flow wrote a presence event.
type Source string

const (
	SourceLiveMatch Source = "live_match"
	SourceSweep     Source = "sweep"
)

// PresenceEvent is the single attendance record for an identity on a day.
// At most one event exists per (IdentityID, Day) and it is never mutated.
type PresenceEvent struct {
	ID         string
	IdentityID int64
	Day        Date
	Timestamp  time.Time // UTC
	Status     Status
	Source     Source
}
