package attendance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/extraction"
	"github.com/kozaktomas/face-attendance/internal/facematch"
	"github.com/kozaktomas/face-attendance/internal/logging"
	"github.com/kozaktomas/face-attendance/internal/metrics"
)

var (
	// ErrGalleryUnavailable means the identity snapshot could not be loaded. Retryable.
	ErrGalleryUnavailable = errors.New("identity gallery unavailable")

	// ErrNoExtractor is returned by RecognizeImage when no extractor is configured.
	ErrNoExtractor = errors.New("no face extractor configured")
)

// Recognition outcomes as reported to callers and metrics.
const (
	OutcomeMatched       = "matched"
	OutcomeNoMatch       = "no_match"
	OutcomeAmbiguous     = "ambiguous"
	OutcomeNoFace        = "no_face"
	OutcomeMultipleFaces = "multiple_faces"
)

// RecognitionResult is the answer to one recognition request. WindowState is
// always set so callers can tell "matched outside the window" from "recorded".
type RecognitionResult struct {
	Identity      *database.Identity
	Distance      float64
	MarkedPresent bool
	WindowState   WindowState
	Day           database.Date
	Ambiguous     bool
	Extraction    extraction.Outcome // set only by RecognizeImage
}

// Outcome summarizes the result as one of the Outcome* constants.
func (r RecognitionResult) Outcome() string {
	switch {
	case r.Extraction == extraction.OutcomeNoFace:
		return OutcomeNoFace
	case r.Extraction == extraction.OutcomeMultipleFaces:
		return OutcomeMultipleFaces
	case r.Identity != nil:
		return OutcomeMatched
	case r.Ambiguous:
		return OutcomeAmbiguous
	default:
		return OutcomeNoMatch
	}
}

// RecognizerDeps are the collaborators of a Recognizer. Extractor, Metrics
// and Logger are optional.
type RecognizerDeps struct {
	Matcher   facematch.Matcher
	Ledger    database.Ledger
	Window    WindowSpec
	Extractor extraction.Extractor
	Dim       int // expected embedding dimension, 0 skips the check
	Metrics   *metrics.Collectors
	Logger    *zap.Logger
}

// Recognizer matches a probe embedding and records presence inside the window.
type Recognizer struct {
	matcher   facematch.Matcher
	ledger    database.Ledger
	window    WindowSpec
	extractor extraction.Extractor
	dim       int
	metrics   *metrics.Collectors
	logger    *zap.Logger
}

// NewRecognizer creates a recognizer.
func NewRecognizer(deps RecognizerDeps) *Recognizer {
	return &Recognizer{
		matcher:   deps.Matcher,
		ledger:    deps.Ledger,
		window:    deps.Window,
		extractor: deps.Extractor,
		dim:       deps.Dim,
		metrics:   deps.Metrics,
		logger:    logging.OrNop(deps.Logger),
	}
}

// Window returns the configured attendance window.
func (r *Recognizer) Window() WindowSpec {
	return r.window
}

// Recognize matches query against the gallery and, when matched inside
// today's window, writes at most one PRESENT event for the identity.
// Ledger failures are returned wrapped in database.ErrLedgerUnavailable and
// never reported as "no match".
func (r *Recognizer) Recognize(ctx context.Context, query database.Embedding, now time.Time) (RecognitionResult, error) {
	if err := query.Validate(r.dim); err != nil {
		return RecognitionResult{}, err
	}

	day := Today(now, r.window)
	res := RecognitionResult{
		Day:         day,
		WindowState: Classify(now, r.window, day),
	}

	match, err := r.matcher.Match(ctx, query)
	if err != nil {
		return RecognitionResult{}, fmt.Errorf("%w: %w", ErrGalleryUnavailable, err)
	}
	res.Distance = match.Distance
	res.Ambiguous = match.Ambiguous
	res.Identity = match.Identity

	if res.Identity == nil || res.WindowState != WindowInside {
		r.observe(res)
		return res, nil
	}

	created, err := r.ledger.MarkPresent(ctx, res.Identity.ID, day, now.UTC())
	if err != nil {
		r.metrics.ObservePresenceWrite("error")
		r.logger.Warn("presence write failed",
			zap.Int64("identity_id", res.Identity.ID),
			zap.Stringer("day", day),
			zap.Error(err))
		if errors.Is(err, database.ErrLedgerUnavailable) {
			return RecognitionResult{}, fmt.Errorf("mark present: %w", err)
		}
		return RecognitionResult{}, fmt.Errorf("%w: mark present: %w", database.ErrLedgerUnavailable, err)
	}
	res.MarkedPresent = created
	if created {
		r.metrics.ObservePresenceWrite("created")
		r.logger.Info("marked present",
			zap.Int64("identity_id", res.Identity.ID),
			zap.String("name", res.Identity.DisplayName),
			zap.Stringer("day", day),
			zap.Float64("distance", res.Distance))
	} else {
		r.metrics.ObservePresenceWrite("exists")
	}
	r.observe(res)
	return res, nil
}

// RecognizeImage extracts a single face from image and recognizes it.
// No-face and multiple-face images are returned as results, not errors.
func (r *Recognizer) RecognizeImage(ctx context.Context, image []byte, now time.Time) (RecognitionResult, error) {
	if r.extractor == nil {
		return RecognitionResult{}, ErrNoExtractor
	}
	ext, err := r.extractor.Extract(ctx, image)
	if err != nil {
		return RecognitionResult{}, fmt.Errorf("extract face: %w", err)
	}
	if !ext.Success() {
		day := Today(now, r.window)
		res := RecognitionResult{
			Distance:    facematch.NoMatchDistance,
			Day:         day,
			WindowState: Classify(now, r.window, day),
			Extraction:  ext.Outcome,
		}
		r.observe(res)
		return res, nil
	}

	res, err := r.Recognize(ctx, ext.Embedding, now)
	if err != nil {
		return res, err
	}
	res.Extraction = ext.Outcome
	return res, nil
}

func (r *Recognizer) observe(res RecognitionResult) {
	hasDistance := res.Extraction == "" || res.Extraction == extraction.OutcomeSuccess
	r.metrics.ObserveRecognition(res.Outcome(), string(res.WindowState), res.Distance, hasDistance && res.Distance < facematch.NoMatchDistance)
}
