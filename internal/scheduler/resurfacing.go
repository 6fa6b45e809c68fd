// Package scheduler contains the periodic jobs: the daily resurfacing run
// and event retention. Jobs are wired against narrow interfaces so tests
// drive them with in-memory fakes.
package scheduler

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"backburner/internal/resurfacing"
	"backburner/internal/types"
)

// JobEventSource labels resurfaced events recorded by the batch job.
const JobEventSource = "daily_resurfacing_job"

const (
	defaultCandidateLimit = 3
	defaultUserTimeout    = 30 * time.Second

	// Notification body bounds: bodies longer than maxBodyRunes are cut to
	// truncatedBodyRunes plus an ellipsis.
	maxBodyRunes       = 120
	truncatedBodyRunes = 117

	fallbackBody = "Your top notes are ready to review."
)

// UserDirectory lists the users the run iterates over.
type UserDirectory interface {
	ListUserIDs(ctx context.Context) ([]string, error)
}

// CandidateSelector scores a user's backlog and returns their top notes.
type CandidateSelector interface {
	TopCandidates(ctx context.Context, userID string, limit int, opts resurfacing.TopOptions) ([]types.ResurfacingCandidate, error)
}

// EventRecorder persists resurfaced events for notified candidates.
type EventRecorder interface {
	RecordMany(ctx context.Context, candidates []resurfacing.EventCandidate, source string) (int, error)
}

// PushDispatcher delivers the run's notification to one user.
type PushDispatcher interface {
	Dispatch(ctx context.Context, userID, body string) (types.PushDeliverySummary, error)
}

// RunMetrics exports the run report to a metrics backend.
type RunMetrics interface {
	PublishRunReport(ctx context.Context, report types.RunReport) error
}

// ResurfacingJobConfig wires a ResurfacingJob's dependencies.
type ResurfacingJobConfig struct {
	Users    UserDirectory
	Selector CandidateSelector
	Events   EventRecorder
	Push     PushDispatcher
	Metrics  RunMetrics // optional
	Logger   *slog.Logger

	CandidateLimit int
	UserTimeout    time.Duration
}

// ResurfacingJob runs one resurfacing pass over every user with a backlog.
type ResurfacingJob struct {
	cfg ResurfacingJobConfig
}

// NewResurfacingJob creates the job, applying defaults for an unset
// candidate limit or per-user timeout.
func NewResurfacingJob(cfg ResurfacingJobConfig) *ResurfacingJob {
	if cfg.CandidateLimit <= 0 {
		cfg.CandidateLimit = defaultCandidateLimit
	}
	if cfg.UserTimeout <= 0 {
		cfg.UserTimeout = defaultUserTimeout
	}
	return &ResurfacingJob{cfg: cfg}
}

// Run executes one pass: per user it selects top candidates, drops the ones
// resurfaced within the suppression window, records resurfaced events for
// the remainder, and notifies the user's devices.
//
// Per-user failures are logged and skipped so one broken backlog cannot
// stall the rest of the run. Each user's work is bounded by the configured
// timeout. Only a failure to list users aborts the run.
func (j *ResurfacingJob) Run(ctx context.Context, now time.Time) (types.RunReport, error) {
	logger := j.cfg.Logger
	report := types.RunReport{}

	userIDs, err := j.cfg.Users.ListUserIDs(ctx)
	if err != nil {
		return report, err
	}
	report.TotalUsers = len(userIDs)

	logger.Info("resurfacing run starting", "users", len(userIDs))

	for _, userID := range userIDs {
		if ctx.Err() != nil {
			logger.Warn("resurfacing run cancelled", "processed", report.ProcessedUsers)
			break
		}
		j.runUser(ctx, userID, now, &report)
	}

	report.CompletedAt = time.Now().UTC()

	logger.Info("resurfacing run complete",
		"total_users", report.TotalUsers,
		"processed_users", report.ProcessedUsers,
		"candidates", report.TotalCandidates,
		"events_created", report.EventsCreated,
		"skipped_recent", report.SkippedRecent,
		"notifications_attempted", report.NotificationsAttempted,
		"notifications_delivered", report.NotificationsDelivered,
		"notifications_failed", report.NotificationsFailed,
	)

	if j.cfg.Metrics != nil {
		if err := j.cfg.Metrics.PublishRunReport(ctx, report); err != nil {
			logger.Warn("failed to publish run metrics", "error", err)
		}
	}

	return report, nil
}

func (j *ResurfacingJob) runUser(ctx context.Context, userID string, now time.Time, report *types.RunReport) {
	logger := j.cfg.Logger

	uctx, cancel := context.WithTimeout(ctx, j.cfg.UserTimeout)
	defer cancel()

	candidates, err := j.cfg.Selector.TopCandidates(uctx, userID, j.cfg.CandidateLimit, resurfacing.TopOptions{})
	if err != nil {
		logger.Error("candidate selection failed, skipping user",
			"user_id", userID, "error", err)
		return
	}

	report.ProcessedUsers++
	report.TotalCandidates += len(candidates)

	skipped := 0
	eligible := candidates[:0:len(candidates)]
	for _, c := range candidates {
		if resurfacing.IsRecentlyResurfaced(c.LastResurfacedAt, now) {
			skipped++
			continue
		}
		eligible = append(eligible, c)
	}
	report.SkippedRecent += skipped

	if len(eligible) == 0 {
		logger.Info("user processed, nothing to resurface",
			"user_id", userID,
			"candidates", len(candidates),
			"skipped_recent", skipped,
		)
		return
	}

	// Events go in before the push: a note with no recorded event would be
	// re-notified on the next run, while an event without a delivered push
	// only suppresses it for the recency window.
	events := make([]resurfacing.EventCandidate, 0, len(eligible))
	for _, c := range eligible {
		events = append(events, resurfacing.EventCandidate{
			NoteID: c.ID,
			Score:  c.Score,
			Reason: c.Reason,
		})
	}
	created, err := j.cfg.Events.RecordMany(uctx, events, JobEventSource)
	if err != nil {
		logger.Error("event recording failed, skipping notification",
			"user_id", userID, "error", err)
		return
	}
	report.EventsCreated += created

	summary, err := j.cfg.Push.Dispatch(uctx, userID, buildNotificationBody(eligible))
	if err != nil {
		logger.Warn("push dispatch failed", "user_id", userID, "error", err)
	}
	report.NotificationsAttempted += summary.Attempted
	report.NotificationsDelivered += summary.Delivered
	report.NotificationsFailed += summary.Failed
}

// buildNotificationBody renders the push body for a user's selection: the
// top candidate's display text, whitespace-normalized and truncated, with a
// count of the remaining candidates.
func buildNotificationBody(candidates []types.ResurfacingCandidate) string {
	if len(candidates) == 0 {
		return fallbackBody
	}

	text := strings.Join(strings.Fields(candidates[0].DisplayText()), " ")
	if text == "" {
		text = fallbackBody
	} else if runes := []rune(text); len(runes) > maxBodyRunes {
		text = string(runes[:truncatedBodyRunes]) + "..."
	}

	if extra := len(candidates) - 1; extra > 0 {
		text += " (+" + strconv.Itoa(extra) + " more)"
	}

	return text
}
