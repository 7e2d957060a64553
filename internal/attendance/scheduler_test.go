package attendance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/robfig/cron"

	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/database/mock"
)

func TestCronSpec(t *testing.T) {
	tests := []struct {
		name  string
		end   string
		delay time.Duration
		want  string
	}{
		{"default", "21:00", 5 * time.Minute, "0 5 21 * * *"},
		{"minute carry", "17:58", 5 * time.Minute, "0 3 18 * * *"},
		{"wraps past midnight", "23:58", 5 * time.Minute, "0 3 0 * * *"},
		{"seconds", "09:00", 90 * time.Second, "30 1 9 * * *"},
		{"zero delay", "12:30", 0, "0 30 12 * * *"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := mustWindow(t, "00:00", tt.end, "UTC")
			got := CronSpec(w, tt.delay)
			if got != tt.want {
				t.Errorf("CronSpec() = %q, want %q", got, tt.want)
			}
			if _, err := cron.Parse(got); err != nil {
				t.Errorf("cron rejects %q: %v", got, err)
			}
		})
	}
}

func TestCronSpec_NextFire(t *testing.T) {
	w := mustWindow(t, "09:00", "17:00", "Asia/Kolkata")
	sched, err := cron.Parse(CronSpec(w, DefaultSweepDelay))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	from := time.Date(2025, time.March, 14, 12, 0, 0, 0, w.Location)
	want := time.Date(2025, time.March, 14, 17, 5, 0, 0, w.Location)
	if got := sched.Next(from); !got.Equal(want) {
		t.Errorf("next fire = %s, want %s", got, want)
	}
}

func newSchedulerFixture(t *testing.T, end string) (*Scheduler, *mock.MockLedger, *mock.MockIdentityStore, WindowSpec) {
	t.Helper()
	store := mock.NewMockIdentityStore()
	for _, id := range testIdentities(3) {
		store.AddIdentity(id)
	}
	ledger := mock.NewMockLedger()
	w := mustWindow(t, "09:00", end, "Asia/Kolkata")
	s := NewScheduler(NewSweeper(ledger, nil, nil), store, w, DefaultSweepDelay, nil)
	return s, ledger, store, w
}

func TestScheduler_RunOnce(t *testing.T) {
	s, ledger, _, w := newSchedulerFixture(t, "17:00")

	now := time.Date(2025, time.March, 14, 17, 5, 0, 0, w.Location)
	n, err := s.RunOnce(context.Background(), now)
	if err != nil {
		t.Fatalf("RunOnce() error: %v", err)
	}
	if n != 3 {
		t.Errorf("expected 3 absences, got %d", n)
	}
	for _, e := range ledger.Events() {
		if e.Day != database.NewDate(2025, time.March, 14) {
			t.Errorf("swept wrong day %s", e.Day)
		}
	}
}

func TestScheduler_RunOnce_AcrossMidnight(t *testing.T) {
	s, ledger, _, w := newSchedulerFixture(t, "23:58")

	now := time.Date(2025, time.March, 15, 0, 3, 0, 0, w.Location)
	n, err := s.RunOnce(context.Background(), now)
	if err != nil {
		t.Fatalf("RunOnce() error: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 absences, got %d", n)
	}
	if e := ledger.Events()[0]; e.Day != database.NewDate(2025, time.March, 14) {
		t.Errorf("expected the closed day to be swept, got %s", e.Day)
	}
}

func TestScheduler_RunOnce_WindowStillOpen(t *testing.T) {
	s, ledger, _, w := newSchedulerFixture(t, "17:00")

	// A misfire while the window is open must not write anything.
	now := time.Date(2025, time.March, 14, 16, 0, 0, 0, w.Location)
	n, err := s.RunOnce(context.Background(), now)
	if err != nil || n != 0 {
		t.Fatalf("expected 0, nil; got %d, %v", n, err)
	}
	if len(ledger.Events()) != 0 {
		t.Error("no events expected while the window is open")
	}
}

func TestScheduler_RunOnce_IdentityError(t *testing.T) {
	s, _, store, w := newSchedulerFixture(t, "17:00")
	store.ListError = errors.New("db down")

	now := time.Date(2025, time.March, 14, 17, 5, 0, 0, w.Location)
	if _, err := s.RunOnce(context.Background(), now); err == nil {
		t.Error("expected error when identities cannot be loaded")
	}
}

func TestScheduler_StartStop(t *testing.T) {
	s, _, _, _ := newSchedulerFixture(t, "17:00")
	if err := s.Start(); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if err := s.Start(); err != nil {
		t.Fatalf("second Start() error: %v", err)
	}
	s.Stop()
	s.Stop()
}
