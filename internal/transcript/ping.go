package transcript

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

// DefaultProjectsURL lists the projects visible to a key; a 200 proves the
// key is valid without opening a stream.
const DefaultProjectsURL = "https://api.deepgram.com/v1/projects"

// KeyChecker validates a Deepgram API key.
type KeyChecker struct {
	APIKey     string
	URL        string
	HTTPClient *http.Client
}

func NewKeyChecker(apiKey string) *KeyChecker {
	return &KeyChecker{APIKey: apiKey, URL: DefaultProjectsURL, HTTPClient: http.DefaultClient}
}

func (k *KeyChecker) Ping(ctx context.Context) error {
	if k.APIKey == "" {
		return fmt.Errorf("Deepgram API key is empty")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, k.URL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Token "+k.APIKey)
	resp, err := k.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("deepgram: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("deepgram: status %d: %s", resp.StatusCode, string(b))
	}
	return nil
}
