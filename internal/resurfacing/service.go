package resurfacing

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"backburner/internal/types"
)

// DefaultEventSource labels events emitted by interactive evaluation.
const DefaultEventSource = "resurfacing_engine"

// maxCandidateLimit bounds how many candidates a single request may ask for.
const maxCandidateLimit = 50

// Store opens transactions over the engine's persistence.
type Store interface {
	BeginTx(ctx context.Context) (Tx, error)
}

// Tx is the transactional surface the engine needs. Candidate selection
// reads, scores and writes signals inside one transaction so concurrent
// evaluations of the same backlog serialize cleanly.
type Tx interface {
	ListCapturedWithContext(ctx context.Context, userID string) ([]types.NoteWithContext, error)
	GetNoteWithContext(ctx context.Context, noteID string) (types.NoteWithContext, error)
	UpsertSignal(ctx context.Context, sig types.ResurfacingSignal) error
	InsertResurfacedEvent(ctx context.Context, noteID string, metadata types.EventMetadata) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Service scores notes and selects resurfacing candidates.
type Service struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the service clock. Tests use this to pin evaluation
// time; production always runs on time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService creates a resurfacing service over the given store.
func NewService(store Store, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// EvaluateNote scores a single note and persists the resulting signal. The
// note's status does not gate evaluation: a COMPLETED note evaluates to a
// low score rather than an error, so callers can inspect why a note ranks
// where it does.
func (s *Service) EvaluateNote(ctx context.Context, noteID string) (types.EvaluatedSignal, error) {
	if err := validateID(noteID, "noteID"); err != nil {
		return types.EvaluatedSignal{}, err
	}

	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return types.EvaluatedSignal{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	note, err := tx.GetNoteWithContext(ctx, noteID)
	if err != nil {
		return types.EvaluatedSignal{}, err
	}

	now := s.now().UTC()
	result := ComputeScore(ScoreInput{
		CreatedAt:        note.CreatedAt,
		Urgency:          note.Urgency,
		Status:           note.Status,
		HasReminder:      note.HasReminder,
		LastResurfacedAt: note.LastResurfacedAt,
		Now:              now,
	})

	sig := types.ResurfacingSignal{
		NoteID:          note.ID,
		Score:           result.Score,
		Reason:          result.Reason,
		LastEvaluatedAt: now,
	}
	if err := tx.UpsertSignal(ctx, sig); err != nil {
		if types.IsReferentialRace(err) {
			// The note vanished between read and write; report it gone.
			return types.EvaluatedSignal{}, types.NewAppError(types.ErrCodeNotFoundNote, "note deleted during evaluation", err)
		}
		return types.EvaluatedSignal{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return types.EvaluatedSignal{}, types.NewAppError(types.ErrCodeInternalDB, "failed to commit evaluation", err)
	}

	return types.EvaluatedSignal{
		NoteID:          sig.NoteID,
		Score:           sig.Score,
		Reason:          sig.Reason,
		LastEvaluatedAt: sig.LastEvaluatedAt,
	}, nil
}

// TopOptions tunes candidate selection.
type TopOptions struct {
	// EmitEvents records a resurfaced event for each returned candidate that
	// is outside the recency window. Interactive reads turn this on; the
	// batch job leaves it off and records events itself once it knows what
	// was actually delivered.
	EmitEvents bool
	// EventSource labels emitted events. Defaults to DefaultEventSource.
	EventSource string
}

// TopCandidates scores every CAPTURED note the user owns, persists all
// signals, and returns the highest-scoring notes up to limit.
//
// Signal writes that lose a race with note deletion are swallowed: the
// deleted note simply drops out of the candidate set. Ties in score resolve
// toward the older note, then the smaller id.
func (s *Service) TopCandidates(ctx context.Context, userID string, limit int, opts TopOptions) ([]types.ResurfacingCandidate, error) {
	if err := validateID(userID, "userID"); err != nil {
		return nil, err
	}
	if limit < 1 || limit > maxCandidateLimit {
		return nil, types.NewAppError(types.ErrCodeValidationLimitRange,
			fmt.Sprintf("limit must be between 1 and %d", maxCandidateLimit), nil)
	}

	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	notes, err := tx.ListCapturedWithContext(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	candidates := make([]types.ResurfacingCandidate, 0, len(notes))
	for _, note := range notes {
		result := ComputeScore(ScoreInput{
			CreatedAt:        note.CreatedAt,
			Urgency:          note.Urgency,
			Status:           note.Status,
			HasReminder:      note.HasReminder,
			LastResurfacedAt: note.LastResurfacedAt,
			Now:              now,
		})

		sig := types.ResurfacingSignal{
			NoteID:          note.ID,
			Score:           result.Score,
			Reason:          result.Reason,
			LastEvaluatedAt: now,
		}
		if err := tx.UpsertSignal(ctx, sig); err != nil {
			if types.IsReferentialRace(err) {
				s.logger.Debug("note deleted during evaluation, skipping",
					"note_id", note.ID, "user_id", userID)
				continue
			}
			return nil, err
		}

		candidates = append(candidates, types.ResurfacingCandidate{
			NoteWithContext: note,
			Score:           result.Score,
			Reason:          result.Reason,
		})
	}

	// Input order is created_at ASC, id ASC; a stable sort preserves that
	// order among equal scores.
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	if opts.EmitEvents {
		source := opts.EventSource
		if source == "" {
			source = DefaultEventSource
		}
		for _, c := range candidates {
			if IsRecentlyResurfaced(c.LastResurfacedAt, now) {
				continue
			}
			md := types.EventMetadata{Score: c.Score, Reason: c.Reason, Source: source}
			if err := tx.InsertResurfacedEvent(ctx, c.ID, md); err != nil {
				if types.IsReferentialRace(err) {
					s.logger.Debug("note deleted before event write, skipping",
						"note_id", c.ID, "user_id", userID)
					continue
				}
				return nil, err
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to commit candidate selection", err)
	}

	return candidates, nil
}

func validateID(id, field string) error {
	if id == "" {
		return types.NewAppError(types.ErrCodeValidationMissingField, field+" is required", nil)
	}
	if _, err := uuid.Parse(id); err != nil {
		return types.NewAppError(types.ErrCodeValidationInvalidID, field+" must be a valid uuid", err)
	}
	return nil
}
