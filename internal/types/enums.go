package types

// UrgencyLevel is the triage level assigned to a note at capture time.
type UrgencyLevel string

const (
	UrgencyLow    UrgencyLevel = "LOW"
	UrgencyMedium UrgencyLevel = "MEDIUM"
	UrgencyHigh   UrgencyLevel = "HIGH"
)

// Valid reports whether the urgency level is one of the known values.
func (u UrgencyLevel) Valid() bool {
	switch u {
	case UrgencyLow, UrgencyMedium, UrgencyHigh:
		return true
	}
	return false
}

// NoteStatus represents the lifecycle state of a note. Only CAPTURED notes
// are eligible for resurfacing.
type NoteStatus string

const (
	StatusCaptured  NoteStatus = "CAPTURED"
	StatusPlanned   NoteStatus = "PLANNED"
	StatusCompleted NoteStatus = "COMPLETED"
	StatusArchived  NoteStatus = "ARCHIVED"
)

// Valid reports whether the status is one of the known values.
func (s NoteStatus) Valid() bool {
	switch s {
	case StatusCaptured, StatusPlanned, StatusCompleted, StatusArchived:
		return true
	}
	return false
}

// NoteEventType identifies the kind of note event.
type NoteEventType string

const (
	// EventCreated is stamped by the capture workflow when a note is born.
	EventCreated NoteEventType = "created"
	// EventResurfaced is stamped each time a note is selected for resurfacing.
	// The most recent resurfaced event drives the recency suppression window.
	EventResurfaced NoteEventType = "resurfaced"
)

// ReminderStatus represents the delivery state of a reminder attached to a note.
type ReminderStatus string

const (
	ReminderPending ReminderStatus = "PENDING"
	ReminderSent    ReminderStatus = "SENT"
	ReminderFailed  ReminderStatus = "FAILED"
)

// DevicePlatform identifies the mobile platform a push token belongs to.
type DevicePlatform string

const (
	PlatformIOS     DevicePlatform = "ios"
	PlatformAndroid DevicePlatform = "android"
)
