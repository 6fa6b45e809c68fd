package scheduler

import (
	"bufio"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backburner/internal/types"
)

type mockArchiveStore struct {
	batches [][]types.NoteEvent
	listErr error

	deleted   [][]string
	deleteErr error
}

func (m *mockArchiveStore) ListResurfacedBefore(_ context.Context, _ time.Time, _ int) ([]types.NoteEvent, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	if len(m.batches) == 0 {
		return nil, nil
	}
	batch := m.batches[0]
	m.batches = m.batches[1:]
	return batch, nil
}

func (m *mockArchiveStore) DeleteEventsByID(_ context.Context, ids []string) (int, error) {
	if m.deleteErr != nil {
		return 0, m.deleteErr
	}
	m.deleted = append(m.deleted, ids)
	return len(ids), nil
}

func retentionEvent(id string) types.NoteEvent {
	return types.NoteEvent{
		ID:        id,
		NoteID:    "5f0c3a7e-1111-4b2a-9c3d-000000000001",
		EventType: types.EventResurfaced,
		Metadata:  types.EventMetadata{Score: 42, Reason: "r", Source: JobEventSource},
		CreatedAt: jobNow.Add(-200 * 24 * time.Hour),
	}
}

func newTestRetentionJob(store *mockArchiveStore, dir string) *RetentionJob {
	return NewRetentionJob(RetentionJobConfig{
		Store:      store,
		Logger:     slog.New(slog.DiscardHandler),
		MaxAge:     180 * 24 * time.Hour,
		ArchiveDir: dir,
		BatchSize:  2,
	})
}

func readArchive(t *testing.T, path string) []types.NoteEvent {
	t.Helper()

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	gz, err := gzip.NewReader(f)
	require.NoError(t, err)
	defer gz.Close()

	var events []types.NoteEvent
	scanner := bufio.NewScanner(gz)
	for scanner.Scan() {
		var ev types.NoteEvent
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &ev))
		events = append(events, ev)
	}
	require.NoError(t, scanner.Err())
	return events
}

func TestRetentionRun_ArchivesThenDeletes(t *testing.T) {
	dir := t.TempDir()
	store := &mockArchiveStore{batches: [][]types.NoteEvent{
		{retentionEvent("e1"), retentionEvent("e2")},
		{retentionEvent("e3")},
	}}
	job := newTestRetentionJob(store, dir)

	report, err := job.Run(context.Background(), jobNow)

	require.NoError(t, err)
	assert.Equal(t, 3, report.EventsArchived)
	assert.Equal(t, 3, report.EventsDeleted)
	require.NotEmpty(t, report.ArchiveFile)

	// Deletion follows archival batch by batch.
	assert.Equal(t, [][]string{{"e1", "e2"}, {"e3"}}, store.deleted)

	events := readArchive(t, report.ArchiveFile)
	require.Len(t, events, 3)
	assert.Equal(t, "e1", events[0].ID)
	assert.Equal(t, types.EventResurfaced, events[0].EventType)
	assert.Equal(t, 42.0, events[0].Metadata.Score)
}

func TestRetentionRun_NothingExpired(t *testing.T) {
	dir := t.TempDir()
	job := newTestRetentionJob(&mockArchiveStore{}, dir)

	report, err := job.Run(context.Background(), jobNow)

	require.NoError(t, err)
	assert.Zero(t, report.EventsArchived)
	assert.Empty(t, report.ArchiveFile)

	// No archive file is created for an empty pass.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRetentionRun_DeleteFailureStopsRun(t *testing.T) {
	dir := t.TempDir()
	store := &mockArchiveStore{
		batches:   [][]types.NoteEvent{{retentionEvent("e1")}},
		deleteErr: types.NewAppError(types.ErrCodeInternalDB, "down", nil),
	}
	job := newTestRetentionJob(store, dir)

	report, err := job.Run(context.Background(), jobNow)

	require.Error(t, err)
	assert.Equal(t, 1, report.EventsArchived)
	assert.Zero(t, report.EventsDeleted)
}

func TestRetentionRun_ArchiveNameIsTimestamped(t *testing.T) {
	dir := t.TempDir()
	store := &mockArchiveStore{batches: [][]types.NoteEvent{{retentionEvent("e1")}}}
	job := newTestRetentionJob(store, dir)

	report, err := job.Run(context.Background(), jobNow)

	require.NoError(t, err)
	assert.Equal(t,
		filepath.Join(dir, "resurfaced-events-20260315-090000.jsonl.gz"),
		report.ArchiveFile)
}
