package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// maxResponseBytes caps how much of a Bot API response is read.
const maxResponseBytes = 1 << 20

// Sender performs the outbound sendMessage call.
//
// A non-nil error means the transport failed (no usable response).
// Otherwise the raw response envelope is returned, whatever its status.
// Implementations must be safe for concurrent use.
type Sender interface {
	Send(ctx context.Context, msg Message) ([]byte, error)
}

// HTTPSender posts the message as JSON to a URL built per call.
type HTTPSender struct {
	endpoint func() string
	client   *http.Client
}

func NewHTTPSender(endpoint func() string, client *http.Client) *HTTPSender {
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	return &HTTPSender{endpoint: endpoint, client: client}
}

func (s *HTTPSender) Send(ctx context.Context, msg Message) ([]byte, error) {
	if s == nil || s.endpoint == nil {
		return nil, errors.New("relay: endpoint not configured")
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return data, nil
}
