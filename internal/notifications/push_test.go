package notifications

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backburner/internal/types"
)

const pushUserID = "2d9f1f33-56a1-4c5e-9f3a-8a1f0c6f2b11"

type mockTokenStore struct {
	mu      sync.Mutex
	tokens  []types.DeviceToken
	listErr error
	revoked []string
}

func (m *mockTokenStore) ListActive(_ context.Context, _ string) ([]types.DeviceToken, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.tokens, nil
}

func (m *mockTokenStore) Revoke(_ context.Context, tokenID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.revoked = append(m.revoked, tokenID)
	return nil
}

type mockProvider struct {
	mu   sync.Mutex
	errs map[string]error
	sent []Notification
}

func (m *mockProvider) Send(_ context.Context, token string, n Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.errs[token]; err != nil {
		return err
	}
	m.sent = append(m.sent, n)
	return nil
}

func deviceToken(id, token string) types.DeviceToken {
	return types.DeviceToken{ID: id, UserID: pushUserID, Token: token, Platform: types.PlatformIOS}
}

func newTestPushService(store *mockTokenStore, provider *mockProvider) *PushService {
	return NewPushService(store, provider, slog.New(slog.DiscardHandler), "Backburner", 4)
}

func TestDispatch_DeliversToAllDevices(t *testing.T) {
	store := &mockTokenStore{tokens: []types.DeviceToken{
		deviceToken("t1", "ExponentPushToken[aaa]"),
		deviceToken("t2", "ExponentPushToken[bbb]"),
	}}
	provider := &mockProvider{}
	svc := newTestPushService(store, provider)

	summary, err := svc.Dispatch(context.Background(), pushUserID, "fix the gutter")

	require.NoError(t, err)
	assert.Equal(t, types.PushDeliverySummary{Attempted: 2, Delivered: 2}, summary)
	require.Len(t, provider.sent, 2)
	assert.Equal(t, "Backburner", provider.sent[0].Title)
	assert.Equal(t, "fix the gutter", provider.sent[0].Body)
}

func TestDispatch_NoDevices(t *testing.T) {
	svc := newTestPushService(&mockTokenStore{}, &mockProvider{})

	summary, err := svc.Dispatch(context.Background(), pushUserID, "body")

	require.NoError(t, err)
	assert.Equal(t, types.PushDeliverySummary{}, summary)
}

func TestDispatch_DeadTokenRevoked(t *testing.T) {
	store := &mockTokenStore{tokens: []types.DeviceToken{
		deviceToken("t1", "dead"),
		deviceToken("t2", "alive"),
	}}
	provider := &mockProvider{errs: map[string]error{"dead": ErrDeviceNotRegistered}}
	svc := newTestPushService(store, provider)

	summary, err := svc.Dispatch(context.Background(), pushUserID, "body")

	require.NoError(t, err)
	assert.Equal(t, types.PushDeliverySummary{Attempted: 2, Delivered: 1, Failed: 1}, summary)
	assert.Equal(t, []string{"t1"}, store.revoked)
}

func TestDispatch_TransientFailureCountedNotRevoked(t *testing.T) {
	store := &mockTokenStore{tokens: []types.DeviceToken{deviceToken("t1", "flaky")}}
	provider := &mockProvider{errs: map[string]error{
		"flaky": types.NewAppError(types.ErrCodeUpstreamPush, "provider down", nil),
	}}
	svc := newTestPushService(store, provider)

	summary, err := svc.Dispatch(context.Background(), pushUserID, "body")

	require.NoError(t, err)
	assert.Equal(t, types.PushDeliverySummary{Attempted: 1, Failed: 1}, summary)
	assert.Empty(t, store.revoked)
}

func TestDispatch_TokenListFailurePropagates(t *testing.T) {
	store := &mockTokenStore{listErr: types.NewAppError(types.ErrCodeInternalDB, "down", nil)}
	svc := newTestPushService(store, &mockProvider{})

	_, err := svc.Dispatch(context.Background(), pushUserID, "body")

	require.Error(t, err)
}

func TestDispatch_BoundedConcurrency(t *testing.T) {
	tokens := make([]types.DeviceToken, 16)
	for i := range tokens {
		tokens[i] = deviceToken("t", "tok")
	}
	store := &mockTokenStore{tokens: tokens}

	var mu sync.Mutex
	inFlight, peak := 0, 0
	provider := &countingProvider{onSend: func() {
		mu.Lock()
		inFlight++
		if inFlight > peak {
			peak = inFlight
		}
		mu.Unlock()

		time.Sleep(5 * time.Millisecond)

		mu.Lock()
		inFlight--
		mu.Unlock()
	}}

	svc := NewPushService(store, provider, slog.New(slog.DiscardHandler), "Backburner", 2)

	summary, err := svc.Dispatch(context.Background(), pushUserID, "body")

	require.NoError(t, err)
	assert.Equal(t, 16, summary.Delivered)
	assert.LessOrEqual(t, peak, 2)
}

type countingProvider struct {
	onSend func()
}

func (p *countingProvider) Send(_ context.Context, _ string, _ Notification) error {
	p.onSend()
	return nil
}

func TestDisabledDispatcher(t *testing.T) {
	summary, err := Disabled{}.Dispatch(context.Background(), pushUserID, "body")

	require.NoError(t, err)
	assert.Equal(t, types.PushDeliverySummary{}, summary)
}
