package db

import (
	"context"

	"backburner/internal/types"
)

// UserRepository provides the user directory reads the batch job needs.
type UserRepository struct {
	db DBTX
}

// NewUserRepository creates a UserRepository backed by the given database
// connection (pool or transaction).
func NewUserRepository(db DBTX) *UserRepository {
	return &UserRepository{db: db}
}

// ListUserIDs returns the ids of every user with at least one CAPTURED note,
// ordered by id for reproducible run order. Users with nothing to resurface
// never enter the batch loop.
func (r *UserRepository) ListUserIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.Query(ctx,
		`SELECT DISTINCT u.id
		 FROM users u
		 JOIN notes n ON n.user_id = u.id AND n.status = $1
		 ORDER BY u.id`,
		string(types.StatusCaptured),
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list users", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if scanErr := rows.Scan(&id); scanErr != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan user id", scanErr)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating user rows", err)
	}

	return ids, nil
}
