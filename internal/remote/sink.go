// Package remote defines the sink the sync queue delivers to, plus the
// HTTP implementation used against the backend.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"playguard/internal/model"
)

// Delivery errors. The sync queue retries transient failures with backoff
// and drops items on permanent ones.
var (
	// ErrTransient marks a failure worth retrying (network error, 5xx).
	ErrTransient = errors.New("transient sync error")
	// ErrPermanent marks a rejected payload that will never succeed.
	ErrPermanent = errors.New("permanent sync error")
)

// Sink receives sync items for delivery to the remote store. Delivery is
// at-least-once; the remote deduplicates on the item's idempotency key.
type Sink interface {
	Push(ctx context.Context, item *model.SyncItem) error
}

// HTTPSink delivers sync items to the backend over HTTP.
type HTTPSink struct {
	client  *http.Client
	baseURL string
}

// NewHTTPSink creates a sink posting to baseURL.
func NewHTTPSink(baseURL string, timeout time.Duration) *HTTPSink {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPSink{
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

type pushRequest struct {
	Kind           model.SyncKind  `json:"kind"`
	IdempotencyKey string          `json:"idempotency_key"`
	Payload        json.RawMessage `json:"payload"`
}

// Push posts the item to POST {baseURL}/v1/sync. Network failures and
// 5xx/408/429 responses are transient; other non-2xx responses are
// permanent.
func (s *HTTPSink) Push(ctx context.Context, item *model.SyncItem) error {
	body, err := json.Marshal(pushRequest{
		Kind:           item.Kind,
		IdempotencyKey: item.IdempotencyKey,
		Payload:        item.Payload,
	})
	if err != nil {
		return fmt.Errorf("%w: failed to encode item: %v", ErrPermanent, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/v1/sync", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: failed to build request: %v", ErrPermanent, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", item.IdempotencyKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		log.Debug().
			Str("kind", string(item.Kind)).
			Str("idempotency_key", item.IdempotencyKey).
			Msg("sync item delivered")
		return nil
	case resp.StatusCode >= 500, resp.StatusCode == http.StatusRequestTimeout, resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: remote returned %d", ErrTransient, resp.StatusCode)
	default:
		return fmt.Errorf("%w: remote returned %d", ErrPermanent, resp.StatusCode)
	}
}
