package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"backburner/internal/types"
)

// EventRepository writes and reads note events. Events are append-only;
// nothing in the service updates or rewrites an event after insertion.
type EventRepository struct {
	db DBTX
}

// NewEventRepository creates an EventRepository backed by the given database
// connection (pool or transaction).
func NewEventRepository(db DBTX) *EventRepository {
	return &EventRepository{db: db}
}

// ResurfacedEventRow is one row of a batch resurfaced-event insert.
type ResurfacedEventRow struct {
	NoteID   string
	Metadata types.EventMetadata
}

// InsertResurfacedEvents inserts resurfaced events for the given notes in a
// single multi-row statement and returns the number of rows created.
//
// The statement runs savepoint-guarded: if any referenced note was deleted
// concurrently the whole batch fails with a foreign-key violation, surfaced
// as a referential-race error. Callers fall back to InsertResurfacedEvent
// per row so one deleted note does not suppress events for the rest.
func (r *EventRepository) InsertResurfacedEvents(ctx context.Context, events []ResurfacedEventRow) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}

	placeholders := make([]string, 0, len(events))
	args := make([]any, 0, len(events)*3)
	for i, ev := range events {
		base := i * 3
		placeholders = append(placeholders, fmt.Sprintf("($%d, $%d, $%d)", base+1, base+2, base+3))
		args = append(args, ev.NoteID, string(types.EventResurfaced), ev.Metadata.Value())
	}

	var created int64
	err := execGuarded(ctx, r.db, func(db DBTX) error {
		tag, execErr := db.Exec(ctx,
			`INSERT INTO note_events (note_id, event_type, metadata) VALUES `+strings.Join(placeholders, ", "),
			args...,
		)
		if execErr != nil {
			return execErr
		}
		created = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, wrapWriteError(err, "failed to insert resurfaced events")
	}

	return int(created), nil
}

// InsertResurfacedEvent inserts a single resurfaced event. Savepoint-guarded
// for the same reason as the batch variant: a concurrent note deletion must
// be swallowable without poisoning the enclosing transaction.
func (r *EventRepository) InsertResurfacedEvent(ctx context.Context, noteID string, metadata types.EventMetadata) error {
	err := execGuarded(ctx, r.db, func(db DBTX) error {
		_, execErr := db.Exec(ctx,
			`INSERT INTO note_events (note_id, event_type, metadata) VALUES ($1, $2, $3)`,
			noteID,
			string(types.EventResurfaced),
			metadata.Value(),
		)
		return execErr
	})
	if err != nil {
		return wrapWriteError(err, "failed to insert resurfaced event")
	}
	return nil
}

// ListResurfacedBefore returns up to limit resurfaced events created before
// the cutoff, oldest first. Used by the retention job to page through
// expired events.
func (r *EventRepository) ListResurfacedBefore(ctx context.Context, cutoff time.Time, limit int) ([]types.NoteEvent, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, note_id, event_type, metadata, created_at
		 FROM note_events
		 WHERE event_type = $1 AND created_at < $2
		 ORDER BY created_at ASC
		 LIMIT $3`,
		string(types.EventResurfaced),
		cutoff,
		limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list expired events", err)
	}
	defer rows.Close()

	var events []types.NoteEvent
	for rows.Next() {
		var (
			ev        types.NoteEvent
			eventType string
			metadata  []byte
		)
		if scanErr := rows.Scan(&ev.ID, &ev.NoteID, &eventType, &metadata, &ev.CreatedAt); scanErr != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan event row", scanErr)
		}
		ev.EventType = types.NoteEventType(eventType)
		ev.Metadata = types.ParseEventMetadata(metadata)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating event rows", err)
	}

	return events, nil
}

// DeleteEventsByID deletes the given events and returns the number of rows
// removed. The retention job calls this only after the batch has been
// archived durably.
func (r *EventRepository) DeleteEventsByID(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	tag, err := r.db.Exec(ctx, `DELETE FROM note_events WHERE id = ANY($1)`, ids)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to delete archived events", err)
	}

	return int(tag.RowsAffected()), nil
}
