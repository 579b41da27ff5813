package transcript

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/uleaarn/paahi-backend/internal/agent"
)

const (
	DefaultEndpoint = "wss://api.deepgram.com/v1/listen"
	DefaultModel    = "nova-2"
	DefaultLanguage = "en-US"

	// Deepgram closes idle streams after about 10 s without audio.
	keepAliveInterval = 5 * time.Second
)

// DeepgramService streams telephony audio to Deepgram's live transcription
// API and publishes interim and final results.
type DeepgramService struct {
	apiKey   string
	model    string
	language string
	// Endpoint overrides the listen URL; used by tests.
	Endpoint string

	conn        *websocket.Conn
	writeMu     sync.Mutex
	transcripts chan agent.Transcript
	audioData   chan []byte
	stopCh      chan struct{}
	wg          sync.WaitGroup
	mu          sync.RWMutex
	connected   bool
	closed      bool
}

// deepgramResponse is the subset of a Results message we consume.
type deepgramResponse struct {
	Type        string `json:"type"`
	IsFinal     bool   `json:"is_final"`
	SpeechFinal bool   `json:"speech_final"`
	Channel     struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
}

type errorMessage struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Message     string `json:"message"`
}

// NewDeepgramService creates a transcriber. model and language default to
// nova-2 and en-US.
func NewDeepgramService(apiKey, model, language string) *DeepgramService {
	if model == "" {
		model = DefaultModel
	}
	if language == "" {
		language = DefaultLanguage
	}
	return &DeepgramService{
		apiKey:      apiKey,
		model:       model,
		language:    language,
		Endpoint:    DefaultEndpoint,
		transcripts: make(chan agent.Transcript, 100),
		audioData:   make(chan []byte, 1000),
		stopCh:      make(chan struct{}),
	}
}

// Connect dials the listen endpoint for the given stream format.
func (s *DeepgramService) Connect(ctx context.Context, cfg agent.StreamConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.connected {
		return nil
	}
	if s.closed {
		return fmt.Errorf("deepgram transcriber closed")
	}
	if s.apiKey == "" {
		return fmt.Errorf("Deepgram API key is empty")
	}
	wsURL, err := s.buildURL(cfg)
	if err != nil {
		return fmt.Errorf("deepgram: build URL: %w", err)
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+s.apiKey)
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}

	conn, resp, err := dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("failed to connect to Deepgram (status %d): %w", resp.StatusCode, err)
		}
		return fmt.Errorf("failed to connect to Deepgram: %w", err)
	}
	s.conn = conn
	s.connected = true

	s.wg.Add(2)
	go s.handleMessages()
	go s.sendAudioData()

	log.Printf("Connected to Deepgram live transcription (model=%s, %s@%d)", s.model, cfg.Encoding, cfg.SampleRate)
	return nil
}

func (s *DeepgramService) buildURL(cfg agent.StreamConfig) (string, error) {
	u, err := url.Parse(s.Endpoint)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("model", s.model)
	q.Set("language", s.language)
	q.Set("smart_format", "true")
	if cfg.Encoding != "" {
		q.Set("encoding", cfg.Encoding)
	}
	if cfg.SampleRate > 0 {
		q.Set("sample_rate", strconv.Itoa(cfg.SampleRate))
	}
	if cfg.Channels > 0 {
		q.Set("channels", strconv.Itoa(cfg.Channels))
	}
	q.Set("interim_results", "true")
	q.Set("endpointing", "300")
	q.Set("utterance_end_ms", "1000")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// SendAudio queues raw audio for the socket. Audio is dropped when the
// queue is full.
func (s *DeepgramService) SendAudio(audio []byte) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.connected {
		return fmt.Errorf("not connected to Deepgram")
	}
	select {
	case s.audioData <- audio:
	default:
		log.Println("Deepgram audio buffer full, dropping packet")
	}
	return nil
}

// Transcripts returns the result channel. It is closed by Close.
func (s *DeepgramService) Transcripts() <-chan agent.Transcript { return s.transcripts }

// Close asks Deepgram to flush the stream, then tears down the socket.
func (s *DeepgramService) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	wasConnected := s.connected
	s.connected = false
	conn := s.conn
	close(s.stopCh)
	s.mu.Unlock()

	if conn != nil {
		s.writeMu.Lock()
		_ = conn.WriteJSON(map[string]string{"type": "CloseStream"})
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		s.writeMu.Unlock()
		_ = conn.Close()
	}
	s.wg.Wait()
	close(s.transcripts)
	if wasConnected {
		log.Println("Deepgram connection closed")
	}
	return nil
}

func (s *DeepgramService) handleMessages() {
	defer s.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic in Deepgram handleMessages: %v", r)
		}
	}()
	for {
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.stopCh:
			default:
				log.Printf("Deepgram read error: %v", err)
			}
			return
		}
		t, ok := s.processMessage(message)
		if !ok {
			continue
		}
		select {
		case s.transcripts <- t:
		case <-s.stopCh:
			return
		default:
			if t.IsFinal {
				// Finals must not be lost; interim results may be.
				select {
				case s.transcripts <- t:
				case <-s.stopCh:
					return
				}
			}
		}
	}
}

// processMessage parses one server message. It reports false for anything
// that is not a non-empty transcript.
func (s *DeepgramService) processMessage(message []byte) (agent.Transcript, bool) {
	var msg deepgramResponse
	if err := json.Unmarshal(message, &msg); err != nil {
		log.Printf("Error unmarshaling Deepgram message: %v", err)
		return agent.Transcript{}, false
	}
	switch msg.Type {
	case "Results":
		if len(msg.Channel.Alternatives) == 0 {
			return agent.Transcript{}, false
		}
		alt := msg.Channel.Alternatives[0]
		text := strings.TrimSpace(alt.Transcript)
		if text == "" {
			return agent.Transcript{}, false
		}
		return agent.Transcript{Text: text, IsFinal: msg.IsFinal || msg.SpeechFinal, Confidence: alt.Confidence}, true
	case "Metadata", "SpeechStarted", "UtteranceEnd":
	case "Error":
		var e errorMessage
		_ = json.Unmarshal(message, &e)
		log.Printf("Deepgram error: %s %s", e.Description, e.Message)
	default:
		log.Printf("Unknown Deepgram message type: %s", msg.Type)
	}
	return agent.Transcript{}, false
}

func (s *DeepgramService) sendAudioData() {
	defer s.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic in Deepgram sendAudioData: %v", r)
		}
	}()
	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-keepAlive.C:
			s.writeMu.Lock()
			err := s.conn.WriteJSON(map[string]string{"type": "KeepAlive"})
			s.writeMu.Unlock()
			if err != nil {
				log.Printf("Deepgram keepalive failed: %v", err)
				return
			}
		case audio := <-s.audioData:
			s.writeMu.Lock()
			err := s.conn.WriteMessage(websocket.BinaryMessage, audio)
			s.writeMu.Unlock()
			if err != nil {
				log.Printf("Error sending audio to Deepgram: %v", err)
				return
			}
			keepAlive.Reset(keepAliveInterval)
		}
	}
}
