package attendance

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/extraction"
	"github.com/kozaktomas/face-attendance/internal/facematch"
	"github.com/kozaktomas/face-attendance/internal/logging"
	"github.com/kozaktomas/face-attendance/internal/metrics"
)

var (
	// ErrInvalidEnrollment is returned for a missing name, image or category.
	ErrInvalidEnrollment = errors.New("invalid enrollment")

	// ErrNoFace and ErrMultipleFaces reject enrollment images.
	ErrNoFace        = errors.New("no face detected")
	ErrMultipleFaces = errors.New("multiple faces detected")

	// ErrDayNotClosed is returned when sweeping a day whose window has not ended.
	ErrDayNotClosed = errors.New("attendance window has not closed for this day")
)

// Service bundles the stores and the components built on them. It is
// constructed once in cmd and passed to the CLI commands and HTTP handlers.
type Service struct {
	Identities database.IdentityWriter
	Ledger     database.Ledger
	Recognizer *Recognizer
	Sweeper    *Sweeper
	Window     WindowSpec
	Extractor  extraction.Extractor

	metrics *metrics.Collectors
	logger  *zap.Logger
}

// ServiceDeps are the inputs of NewService.
type ServiceDeps struct {
	Identities database.IdentityWriter
	Ledger     database.Ledger
	Matcher    facematch.Matcher
	Window     WindowSpec
	Extractor  extraction.Extractor
	Dim        int
	Metrics    *metrics.Collectors
	Logger     *zap.Logger
}

// NewService wires the recognizer and sweeper. A nil Matcher defaults to a
// LinearMatcher over Identities.
func NewService(deps ServiceDeps) *Service {
	logger := logging.OrNop(deps.Logger)
	matcher := deps.Matcher
	if matcher == nil {
		matcher = facematch.NewLinearMatcher(deps.Identities, facematch.Options{})
	}
	return &Service{
		Identities: deps.Identities,
		Ledger:     deps.Ledger,
		Recognizer: NewRecognizer(RecognizerDeps{
			Matcher:   matcher,
			Ledger:    deps.Ledger,
			Window:    deps.Window,
			Extractor: deps.Extractor,
			Dim:       deps.Dim,
			Metrics:   deps.Metrics,
			Logger:    logger.Named("recognizer"),
		}),
		Sweeper:   NewSweeper(deps.Ledger, deps.Metrics, logger.Named("sweeper")),
		Window:    deps.Window,
		Extractor: deps.Extractor,
		metrics:   deps.Metrics,
		logger:    logger,
	}
}

// EnrollRequest describes a new identity.
type EnrollRequest struct {
	Name     string
	Category string
	Group    string
	Image    []byte
}

// Enroll extracts exactly one face from the image and stores a new identity.
// Duplicate names return database.ErrDuplicateName.
func (s *Service) Enroll(ctx context.Context, req EnrollRequest) (database.Identity, error) {
	identity, err := s.enroll(ctx, req)
	switch {
	case err == nil:
		s.metrics.ObserveEnrollment("created")
	case errors.Is(err, database.ErrDuplicateName):
		s.metrics.ObserveEnrollment("duplicate")
	default:
		s.metrics.ObserveEnrollment("rejected")
	}
	return identity, err
}

func (s *Service) enroll(ctx context.Context, req EnrollRequest) (database.Identity, error) {
	name := facematch.CleanDisplayName(req.Name)
	if name == "" {
		return database.Identity{}, fmt.Errorf("%w: name is required", ErrInvalidEnrollment)
	}
	if len(req.Image) == 0 {
		return database.Identity{}, fmt.Errorf("%w: image is required", ErrInvalidEnrollment)
	}
	category, err := database.ParseCategory(req.Category)
	if err != nil {
		return database.Identity{}, fmt.Errorf("%w: %w", ErrInvalidEnrollment, err)
	}
	group := strings.TrimSpace(req.Group)
	if category != database.CategoryStudent {
		group = ""
	}
	if s.Extractor == nil {
		return database.Identity{}, ErrNoExtractor
	}

	ext, err := s.Extractor.Extract(ctx, req.Image)
	if err != nil {
		return database.Identity{}, fmt.Errorf("extract face: %w", err)
	}
	switch ext.Outcome {
	case extraction.OutcomeSuccess:
	case extraction.OutcomeMultipleFaces:
		return database.Identity{}, fmt.Errorf("%w: %d faces", ErrMultipleFaces, ext.FacesCount)
	default:
		return database.Identity{}, ErrNoFace
	}

	created, err := s.Identities.CreateIdentity(ctx, database.Identity{
		DisplayName: name,
		Category:    category,
		Group:       group,
		Embedding:   ext.Embedding,
	})
	if err != nil {
		return database.Identity{}, fmt.Errorf("create identity %q: %w", name, err)
	}
	s.logger.Info("enrolled identity",
		zap.Int64("identity_id", created.ID),
		zap.String("name", created.DisplayName),
		zap.String("category", string(created.Category)),
		zap.String("group", created.Group))
	return created, nil
}

// ListPeople returns identities matching filter with students first, then by
// group and name.
func (s *Service) ListPeople(ctx context.Context, filter database.IdentityFilter) ([]database.Identity, error) {
	people, err := s.Identities.ListIdentities(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list identities: %w", err)
	}
	SortPeople(people)
	return people, nil
}

// SortPeople orders identities by category (students first), group, name, id.
func SortPeople(people []database.Identity) {
	sort.SliceStable(people, func(i, j int) bool {
		a, b := people[i], people[j]
		if a.Category != b.Category {
			return a.Category > b.Category
		}
		if a.Group != b.Group {
			return a.Group < b.Group
		}
		if na, nb := facematch.NormalizeDisplayName(a.DisplayName), facematch.NormalizeDisplayName(b.DisplayName); na != nb {
			return na < nb
		}
		return a.ID < b.ID
	})
}

// SweepDay sweeps every enrolled identity for day. Days whose window has not
// closed at now are refused with ErrDayNotClosed.
func (s *Service) SweepDay(ctx context.Context, day database.Date, now time.Time) (int, error) {
	if Classify(now, s.Window, day) != WindowAfter {
		return 0, fmt.Errorf("%w: %s", ErrDayNotClosed, day)
	}
	identities, err := s.Identities.ListIdentities(ctx, database.IdentityFilter{})
	if err != nil {
		return 0, fmt.Errorf("load identities: %w", err)
	}
	return s.Sweeper.Sweep(ctx, day, identities)
}

// NewScheduler creates the daily sweep scheduler for this service.
func (s *Service) NewScheduler(delay time.Duration) *Scheduler {
	return NewScheduler(s.Sweeper, s.Identities, s.Window, delay, s.logger.Named("scheduler"))
}
