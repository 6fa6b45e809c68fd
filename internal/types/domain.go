package types

import (
	"encoding/json"
	"time"
)

// Note is a captured unit of user input. Notes are created by the capture
// workflow; the resurfacing engine reads them and never mutates their status.
type Note struct {
	ID           string       `json:"id" db:"id"`
	UserID       string       `json:"user_id" db:"user_id"`
	OriginalText string       `json:"original_text" db:"original_text"`
	CleanedText  string       `json:"cleaned_text,omitempty" db:"cleaned_text"`
	Urgency      UrgencyLevel `json:"urgency" db:"urgency"`
	Status       NoteStatus   `json:"status" db:"status"`
	CreatedAt    time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at" db:"updated_at"`
}

// DisplayText returns the cleaned text when available, falling back to the
// raw capture text. Used for notification bodies.
func (n *Note) DisplayText() string {
	if n.CleanedText != "" {
		return n.CleanedText
	}
	return n.OriginalText
}

// NoteWithContext is a note hydrated with the two pieces of adjacent state
// the scoring function needs: whether any reminder is attached and when the
// note was last resurfaced. Both are fetched in the same read as the note so
// scoring sees a consistent snapshot.
type NoteWithContext struct {
	Note
	HasReminder      bool       `json:"has_reminder"`
	LastResurfacedAt *time.Time `json:"last_resurfaced_at,omitempty"`
}

// ResurfacingSignal is the engine's persisted record of a note's most recent
// computed score. At most one signal row exists per note; every evaluation
// overwrites it in place.
type ResurfacingSignal struct {
	NoteID          string    `json:"note_id" db:"note_id"`
	Score           float64   `json:"score" db:"score"`
	Reason          string    `json:"reason" db:"reason"`
	LastEvaluatedAt time.Time `json:"last_evaluated_at" db:"last_evaluated_at"`
}

// EventMetadata is the JSONB payload stored alongside a note event.
type EventMetadata struct {
	Score  float64 `json:"score,omitempty"`
	Reason string  `json:"reason,omitempty"`
	Source string  `json:"source,omitempty"`
}

// Value marshals the metadata for storage. A nil-safe empty object is
// returned on marshal failure so an event write never fails on metadata.
func (m EventMetadata) Value() []byte {
	b, err := json.Marshal(m)
	if err != nil {
		return []byte("{}")
	}
	return b
}

// ParseEventMetadata unmarshals a stored metadata payload. Malformed or
// empty payloads yield the zero metadata rather than an error.
func ParseEventMetadata(b []byte) EventMetadata {
	var m EventMetadata
	if len(b) == 0 {
		return m
	}
	_ = json.Unmarshal(b, &m)
	return m
}

// NoteEvent is an immutable, append-only record of something happening to a
// note. Resurfaced events are ordered by creation time; the most recent one
// determines recency suppression.
type NoteEvent struct {
	ID        string        `json:"id" db:"id"`
	NoteID    string        `json:"note_id" db:"note_id"`
	EventType NoteEventType `json:"event_type" db:"event_type"`
	Metadata  EventMetadata `json:"metadata" db:"metadata"`
	CreatedAt time.Time     `json:"created_at" db:"created_at"`
}

// ResurfacingCandidate is a scored note under consideration for a run's
// top-K selection.
type ResurfacingCandidate struct {
	NoteWithContext
	Score  float64 `json:"resurfacing_score"`
	Reason string  `json:"resurfacing_reason"`
}

// EvaluatedSignal is the result of a single-note evaluation.
type EvaluatedSignal struct {
	NoteID          string    `json:"note_id"`
	Score           float64   `json:"score"`
	Reason          string    `json:"reason"`
	LastEvaluatedAt time.Time `json:"last_evaluated_at"`
}

// DeviceToken is a registered push token for one of a user's devices.
type DeviceToken struct {
	ID        string         `json:"id" db:"id"`
	UserID    string         `json:"user_id" db:"user_id"`
	Token     string         `json:"token" db:"token"`
	Platform  DevicePlatform `json:"platform" db:"platform"`
	CreatedAt time.Time      `json:"created_at" db:"created_at"`
	RevokedAt *time.Time     `json:"revoked_at,omitempty" db:"revoked_at"`
}

// PushDeliverySummary reports the outcome of one push dispatch to a user
// across all of their registered devices.
type PushDeliverySummary struct {
	Attempted int `json:"attempted"`
	Delivered int `json:"delivered"`
	Failed    int `json:"failed"`
}

// RunReport is the ephemeral aggregate produced by one resurfacing job run.
// It is never persisted; it is logged and optionally exported as metrics.
type RunReport struct {
	TotalUsers             int       `json:"total_users"`
	ProcessedUsers         int       `json:"processed_users"`
	TotalCandidates        int       `json:"total_candidates"`
	EventsCreated          int       `json:"events_created"`
	SkippedRecent          int       `json:"skipped_recently_resurfaced"`
	NotificationsAttempted int       `json:"notifications_attempted"`
	NotificationsDelivered int       `json:"notifications_delivered"`
	NotificationsFailed    int       `json:"notifications_failed"`
	CompletedAt            time.Time `json:"completed_at"`
}
