package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"backburner/internal/external"
	"backburner/internal/types"
)

// expoDeviceNotRegistered is the provider's error detail for a token whose
// device uninstalled the app or rotated its token.
const expoDeviceNotRegistered = "DeviceNotRegistered"

// ExpoProvider sends pushes through an Expo-compatible push endpoint.
type ExpoProvider struct {
	client      *external.Client
	url         string
	accessToken types.SecretString
}

// NewExpoProvider creates an ExpoProvider targeting the given endpoint.
func NewExpoProvider(client *external.Client, url string, accessToken types.SecretString) *ExpoProvider {
	return &ExpoProvider{client: client, url: url, accessToken: accessToken}
}

type expoMessage struct {
	To    string `json:"to"`
	Title string `json:"title"`
	Body  string `json:"body"`
	Sound string `json:"sound"`
}

type expoTicket struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Details struct {
		Error string `json:"error"`
	} `json:"details"`
}

type expoResponse struct {
	Data []expoTicket `json:"data"`
}

// Send pushes one notification to one token. A dead-token ticket maps to
// ErrDeviceNotRegistered; every other rejection is an upstream error.
func (p *ExpoProvider) Send(ctx context.Context, token string, n Notification) error {
	payload, err := json.Marshal(expoMessage{
		To:    token,
		Title: n.Title,
		Body:  n.Body,
		Sound: "default",
	})
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode push message", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(payload))
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build push request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if p.accessToken.IsSet() {
		req.Header.Set("Authorization", "Bearer "+p.accessToken.Reveal())
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return types.NewAppError(types.ErrCodeUpstreamPush,
			fmt.Sprintf("push endpoint returned %d: %s", resp.StatusCode, string(body)), nil)
	}

	var parsed expoResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return types.NewAppError(types.ErrCodeUpstreamPush, "failed to decode push response", err)
	}
	if len(parsed.Data) == 0 {
		return types.NewAppError(types.ErrCodeUpstreamPush, "push response contained no ticket", nil)
	}

	ticket := parsed.Data[0]
	if ticket.Status == "error" {
		if ticket.Details.Error == expoDeviceNotRegistered {
			return fmt.Errorf("%w: %s", ErrDeviceNotRegistered, ticket.Message)
		}
		return types.NewAppError(types.ErrCodeUpstreamPush,
			fmt.Sprintf("push rejected: %s", ticket.Message), nil)
	}

	return nil
}
