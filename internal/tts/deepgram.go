package tts

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	msginterfaces "github.com/deepgram/deepgram-go-sdk/pkg/api/speak/v1/websocket/interfaces"
	clientinterfaces "github.com/deepgram/deepgram-go-sdk/pkg/client/interfaces/v1"
	"github.com/deepgram/deepgram-go-sdk/pkg/client/speak"

	"github.com/uleaarn/paahi-backend/internal/agent"
	"github.com/uleaarn/paahi-backend/internal/codec"
)

const DefaultDeepgramModel = "aura-2-thalia-en"

const (
	// Audio is complete once no binary message arrived for idleWindow.
	idleWindow    = 400 * time.Millisecond
	synthDeadline = 12 * time.Second
)

// DeepgramClient synthesizes μ-law 8 kHz speech over Deepgram's speak
// websocket, so no conversion is needed before playout.
type DeepgramClient struct {
	apiKey     string
	model      string
	sampleRate int
	encoding   string
}

func NewDeepgramClient(apiKey, model string) *DeepgramClient {
	if model == "" {
		model = DefaultDeepgramModel
	}
	return &DeepgramClient{apiKey: apiKey, model: model, sampleRate: codec.TelephonyRate, encoding: codec.EncodingMulaw}
}

// Synthesize returns the full audio for text.
func (d *DeepgramClient) Synthesize(ctx context.Context, text string) (agent.Audio, error) {
	out := agent.Audio{Encoding: d.encoding, SampleRate: d.sampleRate}
	if d.apiKey == "" {
		return out, fmt.Errorf("deepgram: API key missing")
	}
	if text == "" {
		return out, nil
	}

	options := &clientinterfaces.WSSpeakOptions{
		Model:      d.model,
		Encoding:   d.encoding,
		SampleRate: d.sampleRate,
	}

	var (
		mu          sync.Mutex
		buf         bytes.Buffer
		lastRecv    atomic.Int64
		seenAudio   atomic.Bool
		remoteError atomic.Value
	)
	cb := &speakCallback{
		onBinary: func(data []byte) error {
			if len(data) == 0 {
				return nil
			}
			lastRecv.Store(time.Now().UnixNano())
			seenAudio.Store(true)
			mu.Lock()
			buf.Write(data)
			mu.Unlock()
			return nil
		},
		onError: func(e *msginterfaces.ErrorResponse) {
			remoteError.Store(fmt.Sprintf("%+v", *e))
		},
	}

	dg, err := speak.NewWSUsingCallback(ctx, d.apiKey, &clientinterfaces.ClientOptions{}, options, cb)
	if err != nil {
		return out, fmt.Errorf("deepgram: create ws client: %w", err)
	}
	defer dg.Stop()

	if ok := dg.Connect(); !ok {
		return out, fmt.Errorf("deepgram: connect failed")
	}
	if err := dg.SpeakWithText(text); err != nil {
		return out, fmt.Errorf("deepgram: speak text: %w", err)
	}
	if err := dg.Flush(); err != nil {
		log.Printf("deepgram: flush error: %v", err)
	}

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	deadline := time.Now().Add(synthDeadline)
wait:
	for {
		select {
		case <-ctx.Done():
			return out, ctx.Err()
		case <-ticker.C:
			if seenAudio.Load() && time.Since(time.Unix(0, lastRecv.Load())) > idleWindow {
				break wait
			}
			if time.Now().After(deadline) {
				log.Printf("deepgram: synthesis deadline reached")
				break wait
			}
		}
	}

	mu.Lock()
	out.Data = append([]byte(nil), buf.Bytes()...)
	mu.Unlock()
	if len(out.Data) == 0 {
		if msg, ok := remoteError.Load().(string); ok {
			return out, fmt.Errorf("deepgram: %s", msg)
		}
		return out, fmt.Errorf("deepgram: no audio received")
	}
	return out, nil
}

type speakCallback struct {
	onBinary func([]byte) error
	onError  func(*msginterfaces.ErrorResponse)
}

func (s *speakCallback) Open(*msginterfaces.OpenResponse) error         { return nil }
func (s *speakCallback) Metadata(*msginterfaces.MetadataResponse) error { return nil }
func (s *speakCallback) Flush(*msginterfaces.FlushedResponse) error     { return nil }
func (s *speakCallback) Clear(*msginterfaces.ClearedResponse) error     { return nil }
func (s *speakCallback) Close(*msginterfaces.CloseResponse) error       { return nil }
func (s *speakCallback) Warning(*msginterfaces.WarningResponse) error   { return nil }
func (s *speakCallback) Error(e *msginterfaces.ErrorResponse) error {
	if s.onError != nil && e != nil {
		s.onError(e)
	}
	return nil
}
func (s *speakCallback) UnhandledEvent([]byte) error { return nil }
func (s *speakCallback) Binary(byMsg []byte) error {
	if s.onBinary != nil {
		return s.onBinary(byMsg)
	}
	return nil
}
