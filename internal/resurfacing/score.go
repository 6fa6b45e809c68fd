// Package resurfacing implements the scoring and selection engine that
// decides which of a user's captured notes deserve renewed attention.
//
// Scoring is a pure function of a note's age, urgency, status, reminder
// presence and resurfacing recency. The service layer wraps it with
// persistence: every evaluation overwrites the note's signal row, and
// selected candidates may emit resurfaced events.
package resurfacing

import (
	"fmt"
	"math"
	"time"

	"backburner/internal/types"
)

// Scoring weights. The score is a bounded heuristic, not a probability;
// changing any weight changes ranking behavior for every user.
const (
	// ageCapDays caps the age contribution so ancient notes stop gaining.
	ageCapDays = 30.0
	// agePointsPerDay is the linear growth rate of the age component.
	agePointsPerDay = 1.2

	urgencyLowPoints    = 4
	urgencyMediumPoints = 10
	urgencyHighPoints   = 18

	statusCapturedPoints  = 12
	statusPlannedPoints   = 4
	statusCompletedPoints = -30
	statusArchivedPoints  = -45

	reminderPenalty = -6

	// recencyWindow is how long a resurfaced event suppresses the note.
	recencyWindow  = 3 * 24 * time.Hour
	recencyPenalty = -20

	minScore = 0.0
	maxScore = 100.0
)

// ScoreInput carries everything the scoring function reads. Now is passed
// explicitly so batch runs evaluate every note against the same instant.
type ScoreInput struct {
	CreatedAt        time.Time
	Urgency          types.UrgencyLevel
	Status           types.NoteStatus
	HasReminder      bool
	LastResurfacedAt *time.Time
	Now              time.Time
}

// ScoreComponents breaks a score down by contributing term. Stored in the
// reason string so a ranking decision can be audited after the fact.
type ScoreComponents struct {
	Age      float64
	Urgency  int
	Reminder int
	Status   int
	Recent   int
}

// ScoreResult is the outcome of scoring one note.
type ScoreResult struct {
	Score      float64
	Reason     string
	Components ScoreComponents
}

// ComputeScore evaluates one note. It is deterministic: identical inputs
// always produce an identical score and reason.
func ComputeScore(in ScoreInput) ScoreResult {
	ageDays := in.Now.Sub(in.CreatedAt).Hours() / 24
	if ageDays < 0 {
		ageDays = 0
	}
	if ageDays > ageCapDays {
		ageDays = ageCapDays
	}

	c := ScoreComponents{
		Age:      ageDays * agePointsPerDay,
		Urgency:  urgencyPoints(in.Urgency),
		Reminder: 0,
		Status:   statusPoints(in.Status),
		Recent:   0,
	}
	if in.HasReminder {
		c.Reminder = reminderPenalty
	}
	if IsRecentlyResurfaced(in.LastResurfacedAt, in.Now) {
		c.Recent = recencyPenalty
	}

	raw := c.Age + float64(c.Urgency) + float64(c.Reminder) + float64(c.Status) + float64(c.Recent)
	score := round2(clamp(raw, minScore, maxScore))

	reason := fmt.Sprintf("age=%.2f;urgency=%d;reminder=%d;status=%d;recent=%d;score=%.2f",
		c.Age, c.Urgency, c.Reminder, c.Status, c.Recent, score)

	return ScoreResult{Score: score, Reason: reason, Components: c}
}

// IsRecentlyResurfaced reports whether the note was resurfaced within the
// suppression window. A nil timestamp means never resurfaced.
func IsRecentlyResurfaced(lastResurfacedAt *time.Time, now time.Time) bool {
	if lastResurfacedAt == nil {
		return false
	}
	return now.Sub(*lastResurfacedAt) <= recencyWindow
}

func urgencyPoints(u types.UrgencyLevel) int {
	switch u {
	case types.UrgencyLow:
		return urgencyLowPoints
	case types.UrgencyHigh:
		return urgencyHighPoints
	default:
		return urgencyMediumPoints
	}
}

func statusPoints(s types.NoteStatus) int {
	switch s {
	case types.StatusPlanned:
		return statusPlannedPoints
	case types.StatusCompleted:
		return statusCompletedPoints
	case types.StatusArchived:
		return statusArchivedPoints
	default:
		return statusCapturedPoints
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
