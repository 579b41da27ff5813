package order

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"
)

// Webhook posts orders as JSON to an HTTP endpoint such as an n8n workflow.
type Webhook struct {
	HTTPClient *http.Client
	URL        string
}

func NewWebhook(url string) *Webhook {
	return &Webhook{
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
		URL:        url,
	}
}

// Submit posts the order. Any non-2xx response is an error.
func (w *Webhook) Submit(ctx context.Context, o Order) error {
	if w.URL == "" {
		return fmt.Errorf("order webhook url not configured")
	}
	body, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("order webhook: encode: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("order webhook: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("order webhook: status=%d body=%s", resp.StatusCode, string(b))
	}
	return nil
}

// Fanout delivers an order to every backend concurrently. It succeeds when
// at least one backend accepts the order; failures of the others are logged.
type Fanout []Submitter

func (f Fanout) Submit(ctx context.Context, o Order) error {
	if len(f) == 0 {
		return fmt.Errorf("no order backends configured")
	}
	errs := make([]error, len(f))
	var wg sync.WaitGroup
	for i, s := range f {
		wg.Add(1)
		go func(i int, s Submitter) {
			defer wg.Done()
			errs[i] = s.Submit(ctx, o)
		}(i, s)
	}
	wg.Wait()

	failed := 0
	for _, err := range errs {
		if err != nil {
			failed++
			log.Printf("[%s] order backend error: %v", o.SessionID, err)
		}
	}
	if failed == len(f) {
		return errors.Join(errs...)
	}
	return nil
}
