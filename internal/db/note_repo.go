package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"backburner/internal/types"
)

// noteContextColumns is the shared projection for reads that hydrate a note
// with its resurfacing context. The reminder-presence flag and the latest
// resurfaced-event timestamp are computed in the same statement as the note
// itself so scoring always sees a consistent snapshot.
const noteContextColumns = `
	n.id, n.user_id, n.original_text, COALESCE(n.cleaned_text, ''),
	n.urgency, n.status, n.created_at, n.updated_at,
	EXISTS (SELECT 1 FROM reminders r WHERE r.note_id = n.id) AS has_reminder,
	(SELECT max(e.created_at) FROM note_events e
	  WHERE e.note_id = n.id AND e.event_type = $1) AS last_resurfaced_at`

// NoteRepository provides read access to the notes table. The resurfacing
// engine never mutates notes; status transitions belong to the capture and
// planning workflows.
type NoteRepository struct {
	db DBTX
}

// NewNoteRepository creates a NoteRepository backed by the given database
// connection (pool or transaction).
func NewNoteRepository(db DBTX) *NoteRepository {
	return &NoteRepository{db: db}
}

// ListCapturedWithContext returns all of a user's CAPTURED notes hydrated
// with reminder presence and last-resurfaced timestamp. Rows are ordered by
// creation time then id so ranking ties resolve reproducibly.
func (r *NoteRepository) ListCapturedWithContext(ctx context.Context, userID string) ([]types.NoteWithContext, error) {
	rows, err := r.db.Query(ctx,
		`SELECT`+noteContextColumns+`
		 FROM notes n
		 WHERE n.user_id = $2 AND n.status = $3
		 ORDER BY n.created_at ASC, n.id ASC`,
		string(types.EventResurfaced),
		userID,
		string(types.StatusCaptured),
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list captured notes", err)
	}
	defer rows.Close()

	var notes []types.NoteWithContext
	for rows.Next() {
		n, scanErr := scanNoteWithContext(rows)
		if scanErr != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan note row", scanErr)
		}
		notes = append(notes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating note rows", err)
	}

	return notes, nil
}

// GetWithContext fetches a single note hydrated with its resurfacing
// context. Returns a not-found error when no such note exists.
func (r *NoteRepository) GetWithContext(ctx context.Context, noteID string) (types.NoteWithContext, error) {
	row := r.db.QueryRow(ctx,
		`SELECT`+noteContextColumns+`
		 FROM notes n
		 WHERE n.id = $2`,
		string(types.EventResurfaced),
		noteID,
	)

	n, err := scanNoteWithContext(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return types.NoteWithContext{}, types.NewAppError(types.ErrCodeNotFoundNote, "note not found", err)
		}
		return types.NoteWithContext{}, types.NewAppError(types.ErrCodeInternalDB, "failed to get note", err)
	}

	return n, nil
}

// scanNoteWithContext scans one row of the shared note-context projection.
func scanNoteWithContext(row pgx.Row) (types.NoteWithContext, error) {
	var (
		n                types.NoteWithContext
		urgency          string
		status           string
		lastResurfacedAt *time.Time
	)

	err := row.Scan(
		&n.ID,
		&n.UserID,
		&n.OriginalText,
		&n.CleanedText,
		&urgency,
		&status,
		&n.CreatedAt,
		&n.UpdatedAt,
		&n.HasReminder,
		&lastResurfacedAt,
	)
	if err != nil {
		return types.NoteWithContext{}, err
	}

	n.Urgency = types.UrgencyLevel(urgency)
	n.Status = types.NoteStatus(status)
	n.LastResurfacedAt = lastResurfacedAt

	return n, nil
}
