package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/uleaarn/paahi-backend/internal/agent"
	"github.com/uleaarn/paahi-backend/internal/codec"
)

const (
	DefaultElevenLabsBaseURL = "https://api.elevenlabs.io"
	DefaultElevenLabsFormat  = "pcm_16000"
	elevenLabsModel          = "eleven_flash_v2_5"
)

// ElevenLabsClient synthesizes speech over the HTTP streaming endpoint.
// When VoiceID is empty the first voice on the account is used.
type ElevenLabsClient struct {
	APIKey       string
	OutputFormat string
	BaseURL      string
	HTTPClient   *http.Client

	mu      sync.Mutex
	voiceID string
}

func NewElevenLabsClient(apiKey, voiceID, outputFormat string) *ElevenLabsClient {
	if outputFormat == "" {
		outputFormat = DefaultElevenLabsFormat
	}
	return &ElevenLabsClient{
		APIKey:       apiKey,
		OutputFormat: outputFormat,
		BaseURL:      DefaultElevenLabsBaseURL,
		HTTPClient:   &http.Client{},
		voiceID:      voiceID,
	}
}

// ParseOutputFormat maps an ElevenLabs output_format such as pcm_16000 or
// ulaw_8000 to an encoding and sample rate.
func ParseOutputFormat(format string) (encoding string, rate int, err error) {
	kind, r, ok := strings.Cut(format, "_")
	if !ok {
		return "", 0, fmt.Errorf("elevenlabs: bad output format %q", format)
	}
	rate, err = strconv.Atoi(r)
	if err != nil || rate <= 0 {
		return "", 0, fmt.Errorf("elevenlabs: bad output format %q", format)
	}
	switch kind {
	case "pcm":
		return codec.EncodingLinear16, rate, nil
	case "ulaw":
		return codec.EncodingMulaw, rate, nil
	}
	return "", 0, fmt.Errorf("elevenlabs: unsupported output format %q", format)
}

// VoiceID returns the configured or resolved voice.
func (e *ElevenLabsClient) VoiceID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.voiceID
}

type voicesResponse struct {
	Voices []struct {
		VoiceID string `json:"voice_id"`
		Name    string `json:"name"`
	} `json:"voices"`
}

// ResolveVoice validates the API key by listing voices and, when no voice
// is configured, adopts the first one.
func (e *ElevenLabsClient) ResolveVoice(ctx context.Context) error {
	if e.APIKey == "" {
		return fmt.Errorf("elevenlabs: api key missing")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.BaseURL+"/v1/voices", nil)
	if err != nil {
		return err
	}
	req.Header.Set("xi-api-key", e.APIKey)
	resp, err := e.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("elevenlabs voices: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
		return fmt.Errorf("elevenlabs voices status=%d body=%s", resp.StatusCode, string(b))
	}
	var vr voicesResponse
	if err := json.NewDecoder(resp.Body).Decode(&vr); err != nil {
		return fmt.Errorf("elevenlabs voices: decode: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.voiceID != "" {
		return nil
	}
	if len(vr.Voices) == 0 {
		return fmt.Errorf("elevenlabs: account has no voices")
	}
	e.voiceID = vr.Voices[0].VoiceID
	log.Printf("elevenlabs: using voice %s (%s)", vr.Voices[0].Name, e.voiceID)
	return nil
}

// Ping is ResolveVoice; it satisfies the health checker.
func (e *ElevenLabsClient) Ping(ctx context.Context) error { return e.ResolveVoice(ctx) }

// Synthesize streams the audio for text and returns it once complete.
func (e *ElevenLabsClient) Synthesize(ctx context.Context, text string) (agent.Audio, error) {
	encoding, rate, err := ParseOutputFormat(e.OutputFormat)
	if err != nil {
		return agent.Audio{}, err
	}
	out := agent.Audio{Encoding: encoding, SampleRate: rate}
	voice := e.VoiceID()
	if e.APIKey == "" || voice == "" {
		return out, fmt.Errorf("elevenlabs: api key or voice id missing")
	}
	if text == "" {
		return out, nil
	}

	u, err := url.Parse(e.BaseURL)
	if err != nil {
		return out, err
	}
	u.Path = "/v1/text-to-speech/" + voice + "/stream"
	q := u.Query()
	q.Set("output_format", e.OutputFormat)
	// 0..4, lower trades quality for latency.
	q.Set("optimize_streaming_latency", "2")
	u.RawQuery = q.Encode()

	body := map[string]any{
		"model_id": elevenLabsModel,
		"text":     text,
		"voice_settings": map[string]any{
			"stability":         0.4,
			"similarity_boost":  0.7,
			"style":             0.0,
			"use_speaker_boost": true,
		},
	}
	buf, _ := json.Marshal(body)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(buf))
	if err != nil {
		return out, err
	}
	req.Header.Set("xi-api-key", e.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.HTTPClient.Do(req)
	if err != nil {
		return out, fmt.Errorf("elevenlabs http stream error: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return out, fmt.Errorf("elevenlabs http status=%d body=%s", resp.StatusCode, string(b))
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return out, fmt.Errorf("elevenlabs http read error: %w", err)
	}
	if encoding == codec.EncodingLinear16 && len(data)%2 != 0 {
		data = data[:len(data)-1]
	}
	out.Data = data
	return out, nil
}
