// Package notifications delivers resurfacing pushes to a user's registered
// devices. Delivery is best-effort: per-device failures are counted, never
// propagated, and tokens the provider reports as dead are revoked so they
// stop consuming attempts.
package notifications

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"backburner/internal/types"
)

// ErrDeviceNotRegistered is returned by a Provider when the push service
// reports the device token as permanently dead.
var ErrDeviceNotRegistered = errors.New("device not registered")

// Notification is the rendered payload sent to a device.
type Notification struct {
	Title string
	Body  string
}

// Provider sends one notification to one device token.
type Provider interface {
	Send(ctx context.Context, token string, n Notification) error
}

// TokenStore supplies active device tokens and revokes dead ones.
type TokenStore interface {
	ListActive(ctx context.Context, userID string) ([]types.DeviceToken, error)
	Revoke(ctx context.Context, tokenID string) error
}

// PushService fans a notification out to every active device a user has.
type PushService struct {
	tokens         TokenStore
	provider       Provider
	logger         *slog.Logger
	title          string
	maxConcurrency int
}

// NewPushService creates a PushService. maxConcurrency bounds in-flight
// provider calls per dispatch; values below one are treated as one.
func NewPushService(tokens TokenStore, provider Provider, logger *slog.Logger, title string, maxConcurrency int) *PushService {
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}
	return &PushService{
		tokens:         tokens,
		provider:       provider,
		logger:         logger,
		title:          title,
		maxConcurrency: maxConcurrency,
	}
}

// Dispatch sends body to all of the user's active devices and reports the
// delivery outcome. A user with no registered devices yields an empty
// summary and no error. Provider failures mark the device failed; a
// dead-token report additionally revokes the token.
func (s *PushService) Dispatch(ctx context.Context, userID, body string) (types.PushDeliverySummary, error) {
	tokens, err := s.tokens.ListActive(ctx, userID)
	if err != nil {
		return types.PushDeliverySummary{}, err
	}
	if len(tokens) == 0 {
		return types.PushDeliverySummary{}, nil
	}

	summary := types.PushDeliverySummary{Attempted: len(tokens)}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.maxConcurrency)

	for _, token := range tokens {
		g.Go(func() error {
			sendErr := s.provider.Send(gctx, token.Token, Notification{Title: s.title, Body: body})

			mu.Lock()
			defer mu.Unlock()
			if sendErr == nil {
				summary.Delivered++
				return nil
			}
			summary.Failed++

			if errors.Is(sendErr, ErrDeviceNotRegistered) {
				if revokeErr := s.tokens.Revoke(ctx, token.ID); revokeErr != nil {
					s.logger.Warn("failed to revoke dead device token",
						"token_id", token.ID, "error", revokeErr)
				} else {
					s.logger.Info("revoked dead device token", "token_id", token.ID)
				}
				return nil
			}

			s.logger.Warn("push delivery failed",
				"token_id", token.ID, "user_id", userID, "error", sendErr)
			return nil
		})
	}

	// Workers never return errors; Wait only observes context cancellation.
	_ = g.Wait()

	return summary, nil
}

// Disabled is a no-op dispatcher wired in when push delivery is turned off.
type Disabled struct{}

// Dispatch reports nothing attempted.
func (Disabled) Dispatch(context.Context, string, string) (types.PushDeliverySummary, error) {
	return types.PushDeliverySummary{}, nil
}
