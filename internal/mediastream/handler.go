package mediastream

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/uleaarn/paahi-backend/internal/agent"
	"github.com/uleaarn/paahi-backend/internal/metrics"
)

// DefaultGreetingDelay gives the caller's audio path time to settle before
// the greeting plays.
const DefaultGreetingDelay = time.Second

// SessionFactory builds the session for a freshly started stream.
type SessionFactory func(start StartMessage, out agent.Outbound) (*agent.Session, error)

// Recorder starts a recording of the call behind a stream.
type Recorder interface {
	StartRecording(ctx context.Context, callSID string) error
}

// Handler accepts Media Streams websockets.
type Handler struct {
	Manager       *agent.Manager
	NewSession    SessionFactory
	Recorder      Recorder
	GreetingDelay time.Duration
	Metrics       *metrics.Metrics

	upgrader websocket.Upgrader
}

func NewHandler(m *agent.Manager, factory SessionFactory) *Handler {
	return &Handler{
		Manager:       m,
		NewSession:    factory,
		GreetingDelay: DefaultGreetingDelay,
		upgrader: websocket.Upgrader{
			// Twilio does not send an Origin header.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("media stream upgrade failed: %v", err)
		return
	}
	log.Printf("media stream connected from %s", r.RemoteAddr)
	h.Serve(r.Context(), ws)
}

// Serve runs the read loop for one stream until stop or disconnect. The
// session is closed on every exit path.
func (h *Handler) Serve(ctx context.Context, ws *websocket.Conn) {
	conn := newConn(ws)
	var sess *agent.Session
	defer func() {
		if sess != nil {
			sess.Close()
		}
		_ = conn.close()
	}()
	defer func() {
		if r := recover(); r != nil {
			log.Printf("recovered from panic in media stream: %v", r)
		}
	}()

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("media stream read error: %v", err)
			}
			return
		}
		msg, err := ParseMessage(data)
		if err != nil {
			h.Metrics.MalformedEvent()
			log.Printf("dropping malformed media stream event: %v", err)
			continue
		}

		switch msg.Event {
		case EventConnected:
			log.Printf("media stream handshake received")
		case EventStart:
			if sess != nil {
				log.Printf("[%s] duplicate start event ignored", sess.ID())
				continue
			}
			start := *msg.Start
			conn.setStreamSID(start.StreamSID)
			f := start.MediaFormat
			log.Printf("[%s] stream started: call=%s format=%s/%dHz/%dch", start.StreamSID, start.CallSID, f.Encoding, f.SampleRate, f.Channels)
			if f.Encoding != "" && f.Encoding != "audio/x-mulaw" {
				log.Printf("[%s] unexpected media encoding %q; audio is treated as 8 kHz μ-law", start.StreamSID, f.Encoding)
			}
			s, err := h.NewSession(start, conn)
			if err != nil {
				log.Printf("[%s] failed to create session: %v", start.StreamSID, err)
				return
			}
			sess = s
			h.Manager.Add(sess)
			sess.Start(ctx)
			sess.GreetAfter(h.GreetingDelay)
			if h.Recorder != nil && start.CallSID != "" {
				go h.record(start.StreamSID, start.CallSID)
			}
		case EventMedia:
			if sess == nil {
				continue
			}
			if msg.Media.Track != "" && msg.Media.Track != "inbound" {
				continue
			}
			sess.ReceiveAudio(msg.Media.Payload)
		case EventMark:
			if msg.Mark != nil {
				log.Printf("[%s] mark %s", msg.StreamSID, msg.Mark.Name)
			}
		case EventStop:
			log.Printf("[%s] stream stopped", msg.StreamSID)
			return
		default:
			log.Printf("[%s] ignoring %s event", msg.StreamSID, msg.Event)
		}
	}
}

func (h *Handler) record(streamSID, callSID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := h.Recorder.StartRecording(ctx, callSID); err != nil {
		log.Printf("[%s] failed to start call recording: %v", streamSID, err)
		return
	}
	log.Printf("[%s] call recording started", streamSID)
}
