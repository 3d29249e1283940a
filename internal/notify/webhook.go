package notify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jacklau/dispatch/internal/retry"
)

// webhook posts JSON bodies to a chat webhook with retries.
type webhook struct {
	name    string
	url     string
	client  *http.Client
	backoff retry.Backoff
}

// WebhookOption configures a webhook notifier.
type WebhookOption func(*webhook)

// WithMaxAttempts sets how many times a delivery is attempted.
func WithMaxAttempts(n int) WebhookOption {
	return func(w *webhook) { w.backoff.MaxAttempts = n }
}

// WithBackoff replaces the retry schedule.
func WithBackoff(b retry.Backoff) WebhookOption {
	return func(w *webhook) { w.backoff = b }
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) WebhookOption {
	return func(w *webhook) { w.client = c }
}

func newWebhook(name, url string, timeout time.Duration, opts []WebhookOption) webhook {
	w := webhook{
		name:   name,
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(&w)
	}
	return w
}

// send posts body, retrying transient failures. Client errors other than
// 429 are not retried.
func (w *webhook) send(ctx context.Context, body []byte) error {
	err := w.backoff.Do(ctx, func() error {
		return w.post(ctx, body)
	})
	if err != nil {
		return fmt.Errorf("%s notify: %w", w.name, err)
	}
	return nil
}

func (w *webhook) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return retry.Permanent(fmt.Errorf("creating request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	err = fmt.Errorf("%s webhook returned %d: %s", w.name, resp.StatusCode, string(respBody))
	if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
		return retry.Permanent(err)
	}
	return err
}
