package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backburner/internal/types"
)

type stubDBTX struct {
	execErr error
	execed  []string
}

func (s *stubDBTX) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	s.execed = append(s.execed, sql)
	return pgconn.CommandTag{}, s.execErr
}

func (s *stubDBTX) Query(_ context.Context, _ string, _ ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

func (s *stubDBTX) QueryRow(_ context.Context, _ string, _ ...any) pgx.Row {
	return nil
}

func fkViolation() error {
	return &pgconn.PgError{Code: pgForeignKeyViolation, Message: "violates foreign key constraint"}
}

func TestWrapWriteError(t *testing.T) {
	t.Run("foreign key violation becomes referential race", func(t *testing.T) {
		err := wrapWriteError(fkViolation(), "failed to write")

		assert.True(t, types.IsReferentialRace(err))

		var appErr *types.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, types.ErrCodeReferentialRace, appErr.Code)
	})

	t.Run("wrapped foreign key violation still detected", func(t *testing.T) {
		wrapped := errors.Join(errors.New("exec failed"), fkViolation())
		assert.True(t, types.IsReferentialRace(wrapWriteError(wrapped, "failed")))
	})

	t.Run("other errors become internal", func(t *testing.T) {
		err := wrapWriteError(errors.New("connection reset"), "failed to write")

		assert.False(t, types.IsReferentialRace(err))

		var appErr *types.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, types.ErrCodeInternalDB, appErr.Code)
	})

	t.Run("unique violation is not a race", func(t *testing.T) {
		uv := &pgconn.PgError{Code: pgUniqueViolation}
		assert.False(t, types.IsReferentialRace(wrapWriteError(uv, "failed")))
		assert.True(t, isUniqueViolation(uv))
	})
}

func TestExecGuarded_FallsThroughWithoutBegin(t *testing.T) {
	stub := &stubDBTX{}

	var ran bool
	err := execGuarded(context.Background(), stub, func(db DBTX) error {
		ran = true
		assert.Same(t, DBTX(stub), db)
		return nil
	})

	require.NoError(t, err)
	assert.True(t, ran)
}

func TestExecGuarded_PropagatesError(t *testing.T) {
	stub := &stubDBTX{}

	wantErr := errors.New("boom")
	err := execGuarded(context.Background(), stub, func(DBTX) error { return wantErr })

	assert.ErrorIs(t, err, wantErr)
}

func TestSignalUpsert_MapsRace(t *testing.T) {
	repo := NewSignalRepository(&stubDBTX{execErr: fkViolation()})

	err := repo.Upsert(context.Background(), types.ResurfacingSignal{NoteID: "n1", Score: 42})

	assert.True(t, types.IsReferentialRace(err))
}

func TestEventInsert_MapsRace(t *testing.T) {
	repo := NewEventRepository(&stubDBTX{execErr: fkViolation()})

	err := repo.InsertResurfacedEvent(context.Background(), "n1", types.EventMetadata{Score: 42})
	assert.True(t, types.IsReferentialRace(err))

	_, err = repo.InsertResurfacedEvents(context.Background(), []ResurfacedEventRow{{NoteID: "n1"}})
	assert.True(t, types.IsReferentialRace(err))
}

func TestInsertResurfacedEvents_EmptyBatch(t *testing.T) {
	stub := &stubDBTX{}
	repo := NewEventRepository(stub)

	created, err := repo.InsertResurfacedEvents(context.Background(), nil)

	require.NoError(t, err)
	assert.Zero(t, created)
	assert.Empty(t, stub.execed)
}

func TestInsertResurfacedEvents_BuildsMultiRowStatement(t *testing.T) {
	stub := &stubDBTX{}
	repo := NewEventRepository(stub)

	_, err := repo.InsertResurfacedEvents(context.Background(), []ResurfacedEventRow{
		{NoteID: "n1", Metadata: types.EventMetadata{Score: 66}},
		{NoteID: "n2", Metadata: types.EventMetadata{Score: 42}},
	})

	require.NoError(t, err)
	require.Len(t, stub.execed, 1)
	assert.Contains(t, stub.execed[0], "($1, $2, $3), ($4, $5, $6)")
}

func TestPgxURL(t *testing.T) {
	assert.Equal(t, "pgx5://u:p@h/db", pgxURL("postgres://u:p@h/db"))
	assert.Equal(t, "pgx5://u:p@h/db", pgxURL("postgresql://u:p@h/db"))
	assert.Equal(t, "pgx5://already", pgxURL("pgx5://already"))
}
