package db

import (
	"context"
	"time"

	"backburner/internal/types"
)

// DeviceTokenRepository manages registered push tokens.
type DeviceTokenRepository struct {
	db DBTX
}

// NewDeviceTokenRepository creates a DeviceTokenRepository backed by the
// given database connection (pool or transaction).
func NewDeviceTokenRepository(db DBTX) *DeviceTokenRepository {
	return &DeviceTokenRepository{db: db}
}

// ListActive returns the user's non-revoked device tokens.
func (r *DeviceTokenRepository) ListActive(ctx context.Context, userID string) ([]types.DeviceToken, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, user_id, token, platform, created_at, revoked_at
		 FROM device_tokens
		 WHERE user_id = $1 AND revoked_at IS NULL
		 ORDER BY created_at`,
		userID,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list device tokens", err)
	}
	defer rows.Close()

	var tokens []types.DeviceToken
	for rows.Next() {
		var (
			t        types.DeviceToken
			platform string
		)
		if scanErr := rows.Scan(&t.ID, &t.UserID, &t.Token, &platform, &t.CreatedAt, &t.RevokedAt); scanErr != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan device token", scanErr)
		}
		t.Platform = types.DevicePlatform(platform)
		tokens = append(tokens, t)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating device token rows", err)
	}

	return tokens, nil
}

// Revoke marks a token revoked. Revoked tokens are excluded from future
// dispatch; the provider told us the device is no longer registered.
func (r *DeviceTokenRepository) Revoke(ctx context.Context, tokenID string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE device_tokens SET revoked_at = $1 WHERE id = $2 AND revoked_at IS NULL`,
		time.Now().UTC(),
		tokenID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to revoke device token", err)
	}
	return nil
}
