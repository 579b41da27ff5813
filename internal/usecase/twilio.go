// Package usecase holds the Twilio REST operations behind the HTTP layer:
// starting call recordings and archiving finished ones.
package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// Storage abstracts file upload behavior for recordings.
type Storage interface {
	Upload(objectKey string, contentType string, body []byte) error
}

// RecordingStatusPath is the webhook Twilio reports recording progress to.
const RecordingStatusPath = "/twilio/recording-status"

var errMissingCredentials = errors.New("missing Twilio credentials: TWILIO_ACCOUNT_SID and TWILIO_AUTH_TOKEN required")

type TwilioConfig struct {
	AccountSID string
	AuthToken  string
	// PublicBaseURL is the externally reachable origin used for callbacks.
	PublicBaseURL string
}

// TwilioService starts call recordings and moves finished recordings into
// storage.
type TwilioService struct {
	config     TwilioConfig
	storage    Storage
	HTTPClient *http.Client

	createRecording func(callSID string, params *twilioApi.CreateCallRecordingParams) error
}

// NewTwilioService builds the service; storage may be nil, in which case
// finished recordings stay on Twilio.
func NewTwilioService(config TwilioConfig, storage Storage) *TwilioService {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: config.AccountSID,
		Password: config.AuthToken,
	})
	return &TwilioService{
		config:     config,
		storage:    storage,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		createRecording: func(callSID string, params *twilioApi.CreateCallRecordingParams) error {
			_, err := client.Api.CreateCallRecording(callSID, params)
			return err
		},
	}
}

// ArchivesRecordings reports whether finished recordings are uploaded.
func (s *TwilioService) ArchivesRecordings() bool { return s.storage != nil }

// BuildAbsoluteURL builds a public absolute URL for callbacks.
// Priority: PUBLIC_BASE_URL > X-Forwarded-* headers > request Host heuristic.
func BuildAbsoluteURL(publicBaseURL string, r *http.Request, path string) string {
	baseURL := strings.TrimRight(publicBaseURL, "/")
	if baseURL == "" && r != nil {
		proto := r.Header.Get("X-Forwarded-Proto")
		host := r.Header.Get("X-Forwarded-Host")
		if proto != "" && host != "" {
			baseURL = fmt.Sprintf("%s://%s", proto, host)
		}
	}
	if baseURL == "" && r != nil {
		host := r.Host
		proto := "https"
		if strings.HasPrefix(host, "localhost:") || strings.HasPrefix(host, "127.0.0.1:") {
			proto = "http"
		}
		baseURL = fmt.Sprintf("%s://%s", proto, host)
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return baseURL + path
}

// StreamURL converts a public base URL into the wss:// URL of a websocket
// route on the same host.
func StreamURL(absoluteHTTPURL string) string {
	switch {
	case strings.HasPrefix(absoluteHTTPURL, "https://"):
		return "wss://" + strings.TrimPrefix(absoluteHTTPURL, "https://")
	case strings.HasPrefix(absoluteHTTPURL, "http://"):
		return "ws://" + strings.TrimPrefix(absoluteHTTPURL, "http://")
	}
	return absoluteHTTPURL
}

// StartRecording creates a single continuous recording on an in-progress
// call. Status updates are posted to RecordingStatusPath on PublicBaseURL.
func (s *TwilioService) StartRecording(ctx context.Context, callSID string) error {
	if s.config.AccountSID == "" || s.config.AuthToken == "" {
		return errMissingCredentials
	}
	if s.config.PublicBaseURL == "" {
		return errors.New("PUBLIC_BASE_URL required for the recording status callback")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	params := &twilioApi.CreateCallRecordingParams{}
	params.SetRecordingStatusCallback(BuildAbsoluteURL(s.config.PublicBaseURL, nil, RecordingStatusPath))
	params.SetRecordingStatusCallbackMethod("POST")
	params.SetRecordingStatusCallbackEvent([]string{"in-progress", "completed", "absent"})
	params.SetRecordingChannels("mono")
	params.SetRecordingTrack("both")
	params.SetTrim("do-not-trim")

	if err := s.createRecording(callSID, params); err != nil {
		return fmt.Errorf("failed to start recording: %w", err)
	}
	return nil
}

// RecordingFileName names the archived object for a recording.
func RecordingFileName(recordingSID string, now time.Time) string {
	return fmt.Sprintf("recording_%s_%d.wav", recordingSID, now.Unix())
}

// ArchiveRecording downloads a finished recording as WAV and uploads it to
// storage under fileName.
func (s *TwilioService) ArchiveRecording(ctx context.Context, recordingURL, fileName string) error {
	if s.storage == nil {
		return errors.New("no recording storage configured")
	}
	if s.config.AccountSID == "" || s.config.AuthToken == "" {
		return errMissingCredentials
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, recordingURL+".wav", nil)
	if err != nil {
		return fmt.Errorf("failed to create request to Twilio recording URL: %w", err)
	}
	req.SetBasicAuth(s.config.AccountSID, s.config.AuthToken)

	resp, err := s.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download recording: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyPreview, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("failed to download recording, status %d: %s", resp.StatusCode, string(bodyPreview))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read recording: %w", err)
	}

	if err := s.storage.Upload(fileName, "audio/wav", body); err != nil {
		return fmt.Errorf("failed to upload to storage: %w", err)
	}
	return nil
}
