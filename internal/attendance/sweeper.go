package attendance

import (
	"context"
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"slices"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/logging"
	"github.com/kozaktomas/face-attendance/internal/metrics"
)

// Trigger names what started a sweep. It only labels logs and metrics.
type Trigger string

const (
	TriggerManual   Trigger = "manual"
	TriggerSchedule Trigger = "schedule"
	TriggerReport   Trigger = "report"
)

// DefaultSweepRunTimeout bounds a shared sweep run once it no longer follows
// its callers' contexts.
const DefaultSweepRunTimeout = 5 * time.Minute

// Sweeper writes ABSENT events for identities without any event on a day.
// Sweeps are idempotent; concurrent sweeps of the same day and identity set
// share one run.
type Sweeper struct {
	ledger     database.Ledger
	metrics    *metrics.Collectors
	logger     *zap.Logger
	now        func() time.Time
	runTimeout time.Duration
	group      singleflight.Group
}

// NewSweeper creates a sweeper. metrics and logger may be nil.
func NewSweeper(ledger database.Ledger, m *metrics.Collectors, logger *zap.Logger) *Sweeper {
	return &Sweeper{
		ledger:     ledger,
		metrics:    m,
		logger:     logging.OrNop(logger),
		now:        time.Now,
		runTimeout: DefaultSweepRunTimeout,
	}
}

// WithClock overrides the sweep timestamp source.
func (s *Sweeper) WithClock(now func() time.Time) *Sweeper {
	s.now = now
	return s
}

// Sweep marks every identity with no event on day as absent and returns the
// number of events written. On failure the count written so far is returned
// with the error; running the sweep again completes it.
func (s *Sweeper) Sweep(ctx context.Context, day database.Date, identities []database.Identity) (int, error) {
	return s.SweepTriggered(ctx, TriggerManual, day, identities)
}

// WithRunTimeout overrides DefaultSweepRunTimeout.
func (s *Sweeper) WithRunTimeout(d time.Duration) *Sweeper {
	if d > 0 {
		s.runTimeout = d
	}
	return s
}

// SweepTriggered is Sweep with an explicit trigger label.
//
// The shared run is detached from every caller's cancellation and bounded by
// the run timeout instead. A caller whose ctx ends stops waiting and gets
// ctx.Err(); the run keeps going for the others.
func (s *Sweeper) SweepTriggered(ctx context.Context, trigger Trigger, day database.Date, identities []database.Identity) (int, error) {
	if len(identities) == 0 {
		return 0, nil
	}
	runCtx := context.WithoutCancel(ctx)
	ch := s.group.DoChan(sweepKey(day, identities), func() (any, error) {
		ctx, cancel := context.WithTimeout(runCtx, s.runTimeout)
		defer cancel()
		return s.sweep(ctx, trigger, day, identities)
	})
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("sweep %s: %w", day, ctx.Err())
	case res := <-ch:
		marked, _ := res.Val.(int)
		return marked, res.Err
	}
}

func (s *Sweeper) sweep(ctx context.Context, trigger Trigger, day database.Date, identities []database.Identity) (marked int, err error) {
	runID := uuid.NewString()
	started := time.Now()
	logger := s.logger.With(
		zap.String("run_id", runID),
		zap.String("trigger", string(trigger)),
		zap.Stringer("day", day))
	defer func() {
		s.metrics.ObserveSweep(string(trigger), marked, time.Since(started), err)
		if err != nil {
			logger.Error("sweep failed", zap.Int("marked_absent", marked), zap.Error(err))
			return
		}
		logger.Info("sweep finished", zap.Int("marked_absent", marked), zap.Duration("elapsed", time.Since(started)))
	}()

	events, err := s.ledger.EventsForDay(ctx, day)
	if err != nil {
		return 0, fmt.Errorf("sweep %s: read events: %w", day, err)
	}
	seen := make(map[int64]struct{}, len(events))
	for _, e := range events {
		seen[e.IdentityID] = struct{}{}
	}

	at := s.now().UTC()
	for _, identity := range identities {
		if _, ok := seen[identity.ID]; ok {
			continue
		}
		// MarkAbsent re-checks inside its transaction, so a PRESENT written
		// since EventsForDay still wins.
		created, err := s.ledger.MarkAbsent(ctx, identity.ID, day, at)
		if err != nil {
			return marked, fmt.Errorf("sweep %s: mark absent %d: %w", day, identity.ID, err)
		}
		if created {
			marked++
		}
	}
	return marked, nil
}

// sweepKey identifies a sweep by day and the sorted identity ids.
func sweepKey(day database.Date, identities []database.Identity) string {
	ids := make([]int64, len(identities))
	for i, identity := range identities {
		ids[i] = identity.ID
	}
	slices.Sort(ids)

	h := fnv.New64a()
	var buf [8]byte
	for _, id := range ids {
		binary.LittleEndian.PutUint64(buf[:], uint64(id))
		_, _ = h.Write(buf[:])
	}
	return day.String() + ":" + strconv.FormatUint(h.Sum64(), 16)
}
