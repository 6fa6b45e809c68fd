package resurfacing

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backburner/internal/types"
)

const (
	testUserID = "2d9f1f33-56a1-4c5e-9f3a-8a1f0c6f2b11"
	noteIDOld  = "5f0c3a7e-1111-4b2a-9c3d-000000000001"
	noteIDMid  = "5f0c3a7e-1111-4b2a-9c3d-000000000002"
	noteIDNew  = "5f0c3a7e-1111-4b2a-9c3d-000000000003"
)

type mockTx struct {
	notes      []types.NoteWithContext
	getNote    *types.NoteWithContext
	getErr     error
	listErr    error
	upsertErrs map[string]error
	eventErrs  map[string]error

	signals    []types.ResurfacingSignal
	events     []string
	committed  bool
	rolledBack bool
}

func (m *mockTx) ListCapturedWithContext(_ context.Context, _ string) ([]types.NoteWithContext, error) {
	return m.notes, m.listErr
}

func (m *mockTx) GetNoteWithContext(_ context.Context, _ string) (types.NoteWithContext, error) {
	if m.getErr != nil {
		return types.NoteWithContext{}, m.getErr
	}
	return *m.getNote, nil
}

func (m *mockTx) UpsertSignal(_ context.Context, sig types.ResurfacingSignal) error {
	if err := m.upsertErrs[sig.NoteID]; err != nil {
		return err
	}
	m.signals = append(m.signals, sig)
	return nil
}

func (m *mockTx) InsertResurfacedEvent(_ context.Context, noteID string, _ types.EventMetadata) error {
	if err := m.eventErrs[noteID]; err != nil {
		return err
	}
	m.events = append(m.events, noteID)
	return nil
}

func (m *mockTx) Commit(_ context.Context) error {
	m.committed = true
	return nil
}

func (m *mockTx) Rollback(_ context.Context) error {
	if !m.committed {
		m.rolledBack = true
	}
	return nil
}

type mockStore struct {
	tx       *mockTx
	beginErr error
}

func (m *mockStore) BeginTx(_ context.Context) (Tx, error) {
	if m.beginErr != nil {
		return nil, m.beginErr
	}
	return m.tx, nil
}

func testNote(id string, ageDays int, urgency types.UrgencyLevel) types.NoteWithContext {
	return types.NoteWithContext{
		Note: types.Note{
			ID:           id,
			UserID:       testUserID,
			OriginalText: "note " + id,
			Urgency:      urgency,
			Status:       types.StatusCaptured,
			CreatedAt:    scoreNow.Add(-time.Duration(ageDays) * 24 * time.Hour),
		},
	}
}

func newTestService(tx *mockTx) *Service {
	return NewService(&mockStore{tx: tx}, slog.New(slog.DiscardHandler), WithClock(func() time.Time { return scoreNow }))
}

func TestTopCandidates_RanksByScoreDescending(t *testing.T) {
	tx := &mockTx{notes: []types.NoteWithContext{
		testNote(noteIDNew, 1, types.UrgencyLow),   // 1.2 + 4 + 12 = 17.20
		testNote(noteIDOld, 30, types.UrgencyHigh), // 36 + 18 + 12 = 66.00
		testNote(noteIDMid, 10, types.UrgencyHigh), // 12 + 18 + 12 = 42.00
	}}
	svc := newTestService(tx)

	candidates, err := svc.TopCandidates(context.Background(), testUserID, 2, TopOptions{})

	require.NoError(t, err)
	require.Len(t, candidates, 2)
	assert.Equal(t, noteIDOld, candidates[0].ID)
	assert.Equal(t, 66.00, candidates[0].Score)
	assert.Equal(t, noteIDMid, candidates[1].ID)
	assert.Equal(t, 42.00, candidates[1].Score)

	// Every note gets a signal even when it misses the top-K cut.
	assert.Len(t, tx.signals, 3)
	assert.True(t, tx.committed)
}

func TestTopCandidates_TieBreakPreservesBacklogOrder(t *testing.T) {
	// Identical inputs score identically; the older note (listed first)
	// must win the tie.
	tx := &mockTx{notes: []types.NoteWithContext{
		testNote(noteIDOld, 5, types.UrgencyMedium),
		testNote(noteIDMid, 5, types.UrgencyMedium),
	}}
	svc := newTestService(tx)

	candidates, err := svc.TopCandidates(context.Background(), testUserID, 1, TopOptions{})

	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, noteIDOld, candidates[0].ID)
}

func TestTopCandidates_SwallowsSignalRace(t *testing.T) {
	tx := &mockTx{
		notes: []types.NoteWithContext{
			testNote(noteIDOld, 20, types.UrgencyHigh),
			testNote(noteIDMid, 10, types.UrgencyMedium),
		},
		upsertErrs: map[string]error{
			noteIDOld: types.NewAppError(types.ErrCodeReferentialRace, "note gone", nil),
		},
	}
	svc := newTestService(tx)

	candidates, err := svc.TopCandidates(context.Background(), testUserID, 3, TopOptions{})

	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, noteIDMid, candidates[0].ID)
	assert.True(t, tx.committed)
}

func TestTopCandidates_PropagatesNonRaceSignalFailure(t *testing.T) {
	tx := &mockTx{
		notes: []types.NoteWithContext{testNote(noteIDOld, 20, types.UrgencyHigh)},
		upsertErrs: map[string]error{
			noteIDOld: types.NewAppError(types.ErrCodeInternalDB, "write failed", nil),
		},
	}
	svc := newTestService(tx)

	_, err := svc.TopCandidates(context.Background(), testUserID, 3, TopOptions{})

	require.Error(t, err)
	assert.False(t, tx.committed)
	assert.True(t, tx.rolledBack)
}

func TestTopCandidates_ValidatesInput(t *testing.T) {
	svc := newTestService(&mockTx{})

	_, err := svc.TopCandidates(context.Background(), "not-a-uuid", 3, TopOptions{})
	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeValidationInvalidID, appErr.Code)

	_, err = svc.TopCandidates(context.Background(), "", 3, TopOptions{})
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeValidationMissingField, appErr.Code)

	for _, limit := range []int{0, -1, 51} {
		_, err = svc.TopCandidates(context.Background(), testUserID, limit, TopOptions{})
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, types.ErrCodeValidationLimitRange, appErr.Code)
	}
}

func TestTopCandidates_EmitEventsSkipsRecent(t *testing.T) {
	recent := scoreNow.Add(-time.Hour)
	suppressed := testNote(noteIDOld, 25, types.UrgencyHigh)
	suppressed.LastResurfacedAt = &recent

	tx := &mockTx{notes: []types.NoteWithContext{
		suppressed,
		testNote(noteIDMid, 20, types.UrgencyHigh),
	}}
	svc := newTestService(tx)

	candidates, err := svc.TopCandidates(context.Background(), testUserID, 3, TopOptions{EmitEvents: true})

	require.NoError(t, err)
	// The suppressed note still ranks (the penalty is part of its score),
	// but only the other note gets an event.
	require.Len(t, candidates, 2)
	assert.Equal(t, []string{noteIDMid}, tx.events)
}

func TestEvaluateNote_PersistsSignal(t *testing.T) {
	note := testNote(noteIDMid, 10, types.UrgencyHigh)
	tx := &mockTx{getNote: &note}
	svc := newTestService(tx)

	signal, err := svc.EvaluateNote(context.Background(), noteIDMid)

	require.NoError(t, err)
	assert.Equal(t, noteIDMid, signal.NoteID)
	assert.Equal(t, 42.00, signal.Score)
	assert.Equal(t, scoreNow, signal.LastEvaluatedAt)
	require.Len(t, tx.signals, 1)
	assert.Equal(t, signal.Score, tx.signals[0].Score)
	assert.True(t, tx.committed)
}

func TestEvaluateNote_NotFoundPassesThrough(t *testing.T) {
	tx := &mockTx{getErr: types.NewAppError(types.ErrCodeNotFoundNote, "note not found", nil)}
	svc := newTestService(tx)

	_, err := svc.EvaluateNote(context.Background(), noteIDMid)

	assert.True(t, types.IsNotFound(err))
}

func TestEvaluateNote_RaceMapsToNotFound(t *testing.T) {
	note := testNote(noteIDMid, 10, types.UrgencyHigh)
	tx := &mockTx{
		getNote: &note,
		upsertErrs: map[string]error{
			noteIDMid: types.NewAppError(types.ErrCodeReferentialRace, "note gone", nil),
		},
	}
	svc := newTestService(tx)

	_, err := svc.EvaluateNote(context.Background(), noteIDMid)

	assert.True(t, types.IsNotFound(err))
	assert.False(t, tx.committed)
}

func TestEvaluateNote_ValidatesID(t *testing.T) {
	svc := newTestService(&mockTx{})

	_, err := svc.EvaluateNote(context.Background(), "nope")

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeValidationInvalidID, appErr.Code)
}
