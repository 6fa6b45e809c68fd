package resurfacing

import (
	"context"
	"log/slog"

	"backburner/internal/types"
)

// EventWriter persists resurfaced events outside a selection transaction.
type EventWriter interface {
	InsertResurfacedEvents(ctx context.Context, events []EventRecord) (int, error)
	InsertResurfacedEvent(ctx context.Context, noteID string, metadata types.EventMetadata) error
}

// EventRecord is one resurfaced event to persist.
type EventRecord struct {
	NoteID   string
	Metadata types.EventMetadata
}

// EventCandidate identifies a selected note whose resurfacing should be
// recorded.
type EventCandidate struct {
	NoteID string
	Score  float64
	Reason string
}

// EventRecorder writes resurfaced events race-tolerantly. The batch job uses
// it after notification so an event is only recorded for notes the user was
// actually told about.
type EventRecorder struct {
	writer EventWriter
	logger *slog.Logger
}

// NewEventRecorder creates an EventRecorder over the given writer.
func NewEventRecorder(writer EventWriter, logger *slog.Logger) *EventRecorder {
	return &EventRecorder{writer: writer, logger: logger}
}

// RecordMany persists one resurfaced event per candidate and returns how
// many were created.
//
// The happy path is a single batch insert. If the batch fails because a
// referenced note was deleted concurrently, it falls back to inserting each
// event individually, swallowing only the per-row races: a user deleting one
// note must not suppress events for the rest of their selection. Any other
// failure is returned.
func (r *EventRecorder) RecordMany(ctx context.Context, candidates []EventCandidate, source string) (int, error) {
	if len(candidates) == 0 {
		return 0, nil
	}

	records := make([]EventRecord, 0, len(candidates))
	for _, c := range candidates {
		records = append(records, EventRecord{
			NoteID:   c.NoteID,
			Metadata: types.EventMetadata{Score: c.Score, Reason: c.Reason, Source: source},
		})
	}

	created, err := r.writer.InsertResurfacedEvents(ctx, records)
	if err == nil {
		return created, nil
	}
	if !types.IsReferentialRace(err) {
		return 0, err
	}

	r.logger.Warn("batch event insert hit deleted note, retrying per row",
		"candidates", len(records))

	created = 0
	for _, rec := range records {
		if err := r.writer.InsertResurfacedEvent(ctx, rec.NoteID, rec.Metadata); err != nil {
			if types.IsReferentialRace(err) {
				r.logger.Debug("note deleted before event write, skipping", "note_id", rec.NoteID)
				continue
			}
			return created, err
		}
		created++
	}

	return created, nil
}
