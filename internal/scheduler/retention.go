package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/gzip"

	"backburner/internal/types"
)

// EventArchiveStore pages through expired events and deletes archived ones.
type EventArchiveStore interface {
	ListResurfacedBefore(ctx context.Context, cutoff time.Time, limit int) ([]types.NoteEvent, error)
	DeleteEventsByID(ctx context.Context, ids []string) (int, error)
}

// RetentionReport summarizes one retention pass.
type RetentionReport struct {
	EventsArchived int    `json:"events_archived"`
	EventsDeleted  int    `json:"events_deleted"`
	ArchiveFile    string `json:"archive_file,omitempty"`
}

// RetentionJobConfig wires a RetentionJob's dependencies.
type RetentionJobConfig struct {
	Store      EventArchiveStore
	Logger     *slog.Logger
	MaxAge     time.Duration
	ArchiveDir string
	BatchSize  int
}

// RetentionJob archives resurfaced events past the retention horizon to
// gzipped JSONL and deletes them from the live table. Deletion happens per
// batch, only after the batch has been flushed to the archive.
type RetentionJob struct {
	cfg RetentionJobConfig
}

// NewRetentionJob creates the job, defaulting the batch size when unset.
func NewRetentionJob(cfg RetentionJobConfig) *RetentionJob {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 5000
	}
	return &RetentionJob{cfg: cfg}
}

// Run executes one retention pass against events older than now minus the
// configured maximum age. When nothing is expired, no archive file is
// created.
func (j *RetentionJob) Run(ctx context.Context, now time.Time) (RetentionReport, error) {
	logger := j.cfg.Logger
	cutoff := now.Add(-j.cfg.MaxAge)
	report := RetentionReport{}

	var (
		file *os.File
		gz   *gzip.Writer
		enc  *json.Encoder
	)
	defer func() {
		if gz != nil {
			_ = gz.Close()
		}
		if file != nil {
			_ = file.Close()
		}
	}()

	for {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}

		events, err := j.cfg.Store.ListResurfacedBefore(ctx, cutoff, j.cfg.BatchSize)
		if err != nil {
			return report, err
		}
		if len(events) == 0 {
			break
		}

		// Lazily open the archive on the first non-empty batch.
		if file == nil {
			if err := os.MkdirAll(j.cfg.ArchiveDir, 0o755); err != nil {
				return report, fmt.Errorf("creating archive directory: %w", err)
			}
			name := filepath.Join(j.cfg.ArchiveDir,
				fmt.Sprintf("resurfaced-events-%s.jsonl.gz", now.UTC().Format("20060102-150405")))
			file, err = os.Create(name)
			if err != nil {
				return report, fmt.Errorf("creating archive file: %w", err)
			}
			gz = gzip.NewWriter(file)
			enc = json.NewEncoder(gz)
			report.ArchiveFile = name
		}

		ids := make([]string, 0, len(events))
		for _, ev := range events {
			if err := enc.Encode(ev); err != nil {
				return report, fmt.Errorf("writing archive record: %w", err)
			}
			ids = append(ids, ev.ID)
		}
		if err := gz.Flush(); err != nil {
			return report, fmt.Errorf("flushing archive: %w", err)
		}
		report.EventsArchived += len(events)

		deleted, err := j.cfg.Store.DeleteEventsByID(ctx, ids)
		if err != nil {
			return report, err
		}
		report.EventsDeleted += deleted
	}

	if gz != nil {
		if err := gz.Close(); err != nil {
			return report, fmt.Errorf("closing archive: %w", err)
		}
		gz = nil
		if err := file.Close(); err != nil {
			return report, fmt.Errorf("closing archive file: %w", err)
		}
		file = nil
	}

	logger.Info("retention run complete",
		"cutoff", cutoff,
		"events_archived", report.EventsArchived,
		"events_deleted", report.EventsDeleted,
		"archive_file", report.ArchiveFile,
	)

	return report, nil
}
