package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"backburner/internal/resurfacing"
	"backburner/internal/types"
)

// ResurfacingStore adapts the connection pool and repositories to the
// engine's transactional interface. It also serves as the engine's event
// writer for post-transaction batch writes.
type ResurfacingStore struct {
	pool   *pgxpool.Pool
	events *EventRepository
}

// NewResurfacingStore creates a ResurfacingStore over the pool.
func NewResurfacingStore(pool *pgxpool.Pool) *ResurfacingStore {
	return &ResurfacingStore{
		pool:   pool,
		events: NewEventRepository(pool),
	}
}

// Users returns the pool-backed user directory.
func (s *ResurfacingStore) Users() *UserRepository {
	return NewUserRepository(s.pool)
}

// DeviceTokens returns the pool-backed device token repository.
func (s *ResurfacingStore) DeviceTokens() *DeviceTokenRepository {
	return NewDeviceTokenRepository(s.pool)
}

// Events returns the pool-backed event repository, used by the retention
// job outside any selection transaction.
func (s *ResurfacingStore) Events() *EventRepository {
	return s.events
}

// BeginTx opens a transaction and returns the engine's view of it.
func (s *ResurfacingStore) BeginTx(ctx context.Context) (resurfacing.Tx, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to begin transaction", err)
	}

	return &resurfacingTx{
		tx:      tx,
		notes:   NewNoteRepository(tx),
		signals: NewSignalRepository(tx),
		events:  NewEventRepository(tx),
	}, nil
}

// InsertResurfacedEvents writes a batch of resurfaced events against the
// pool, outside any selection transaction.
func (s *ResurfacingStore) InsertResurfacedEvents(ctx context.Context, events []resurfacing.EventRecord) (int, error) {
	rows := make([]ResurfacedEventRow, 0, len(events))
	for _, ev := range events {
		rows = append(rows, ResurfacedEventRow{NoteID: ev.NoteID, Metadata: ev.Metadata})
	}
	return s.events.InsertResurfacedEvents(ctx, rows)
}

// InsertResurfacedEvent writes a single resurfaced event against the pool.
func (s *ResurfacingStore) InsertResurfacedEvent(ctx context.Context, noteID string, metadata types.EventMetadata) error {
	return s.events.InsertResurfacedEvent(ctx, noteID, metadata)
}

// resurfacingTx is the transactional implementation handed to the engine.
// Repository methods run against the pgx transaction, so guarded writes
// become savepoints.
type resurfacingTx struct {
	tx      pgx.Tx
	notes   *NoteRepository
	signals *SignalRepository
	events  *EventRepository
}

func (t *resurfacingTx) ListCapturedWithContext(ctx context.Context, userID string) ([]types.NoteWithContext, error) {
	return t.notes.ListCapturedWithContext(ctx, userID)
}

func (t *resurfacingTx) GetNoteWithContext(ctx context.Context, noteID string) (types.NoteWithContext, error) {
	return t.notes.GetWithContext(ctx, noteID)
}

func (t *resurfacingTx) UpsertSignal(ctx context.Context, sig types.ResurfacingSignal) error {
	return t.signals.Upsert(ctx, sig)
}

func (t *resurfacingTx) InsertResurfacedEvent(ctx context.Context, noteID string, metadata types.EventMetadata) error {
	return t.events.InsertResurfacedEvent(ctx, noteID, metadata)
}

func (t *resurfacingTx) Commit(ctx context.Context) error {
	return t.tx.Commit(ctx)
}

func (t *resurfacingTx) Rollback(ctx context.Context) error {
	return t.tx.Rollback(ctx)
}
