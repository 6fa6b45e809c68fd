package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"backburner/internal/types"
)

// SignalRepository persists resurfacing signals. note_id is the table's
// primary key, so the upsert below guarantees at most one signal row per
// note with last-write-wins semantics under concurrent evaluation.
type SignalRepository struct {
	db DBTX
}

// NewSignalRepository creates a SignalRepository backed by the given
// database connection (pool or transaction).
func NewSignalRepository(db DBTX) *SignalRepository {
	return &SignalRepository{db: db}
}

// Upsert writes the latest score for a note, inserting on first evaluation
// and overwriting in place on every subsequent one.
//
// The statement runs inside a savepoint when called within a transaction: if
// the note was deleted concurrently the insert fails with a foreign-key
// violation, and the caller swallows that without poisoning the enclosing
// transaction. The violation is surfaced as a referential-race error; every
// other failure maps to an internal database error.
func (r *SignalRepository) Upsert(ctx context.Context, sig types.ResurfacingSignal) error {
	err := execGuarded(ctx, r.db, func(db DBTX) error {
		_, execErr := db.Exec(ctx,
			`INSERT INTO resurfacing_signals (note_id, score, reason, last_evaluated_at)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (note_id) DO UPDATE SET
				score = EXCLUDED.score,
				reason = EXCLUDED.reason,
				last_evaluated_at = EXCLUDED.last_evaluated_at`,
			sig.NoteID,
			sig.Score,
			sig.Reason,
			sig.LastEvaluatedAt,
		)
		return execErr
	})
	if err != nil {
		return wrapWriteError(err, "failed to upsert resurfacing signal")
	}
	return nil
}

// Get fetches the signal for a note, if one exists. Returns a not-found
// error when the note has never been evaluated.
func (r *SignalRepository) Get(ctx context.Context, noteID string) (types.ResurfacingSignal, error) {
	var sig types.ResurfacingSignal
	err := r.db.QueryRow(ctx,
		`SELECT note_id, score, reason, last_evaluated_at
		 FROM resurfacing_signals
		 WHERE note_id = $1`,
		noteID,
	).Scan(&sig.NoteID, &sig.Score, &sig.Reason, &sig.LastEvaluatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return types.ResurfacingSignal{}, types.NewAppError(types.ErrCodeNotFoundNote, "no signal for note", err)
		}
		return types.ResurfacingSignal{}, types.NewAppError(types.ErrCodeInternalDB, "failed to get resurfacing signal", err)
	}
	return sig, nil
}
