package agent

import (
	"context"

	"github.com/uleaarn/paahi-backend/internal/order"
	"github.com/uleaarn/paahi-backend/internal/playout"
)

// Role of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one entry of the conversation history.
type Turn struct {
	Role Role
	Text string
}

// Transcript is a recognizer result. Only final results drive turns.
type Transcript struct {
	Text       string
	IsFinal    bool
	Confidence float64
}

// StreamConfig describes the audio sent to the recognizer.
type StreamConfig struct {
	Encoding   string
	SampleRate int
	Channels   int
}

// Request is everything the language model sees for one turn.
type Request struct {
	Instructions string
	History      []Turn
}

// Reply is the model's answer. Order is set when the model called the
// order tool.
type Reply struct {
	Text  string
	Order *order.Details
}

// Audio is synthesized speech in the synthesizer's native format.
type Audio struct {
	Data       []byte
	Encoding   string
	SampleRate int
}

// Transcriber is the minimal interface for realtime STT.
type Transcriber interface {
	Connect(ctx context.Context, cfg StreamConfig) error
	SendAudio(audio []byte) error
	Transcripts() <-chan Transcript
	Close() error
}

// LLM produces the assistant's next reply.
type LLM interface {
	Respond(ctx context.Context, req Request) (Reply, error)
}

// ToolCaller is implemented by LLMs that report whether they can emit the
// order tool call. Without it, orders are extracted from caller speech.
type ToolCaller interface {
	SupportsTools() bool
}

// TTS synthesizes the full audio for a reply.
type TTS interface {
	Synthesize(ctx context.Context, text string) (Audio, error)
}

// OrderSubmitter delivers a completed order.
type OrderSubmitter interface {
	Submit(ctx context.Context, o order.Order) error
}

// Outbound is the telephony side of a call: paced media frames plus the
// clear command that flushes the far end's playback buffer.
type Outbound interface {
	playout.Sender
	Clear() error
}

// BargeDetector watches caller audio during playback. Feed reports true
// when the caller is talking over the assistant.
type BargeDetector interface {
	SetSpeaking(on bool)
	Feed(samples []int16) bool
}
