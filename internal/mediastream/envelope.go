// Package mediastream terminates Twilio Media Streams websockets and bridges
// each stream to an agent session.
package mediastream

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Inbound event names.
const (
	EventConnected = "connected"
	EventStart     = "start"
	EventMedia     = "media"
	EventMark      = "mark"
	EventStop      = "stop"
	EventDTMF      = "dtmf"
)

// Message is one inbound Media Streams envelope.
type Message struct {
	Event          string        `json:"event"`
	SequenceNumber string        `json:"sequenceNumber,omitempty"`
	StreamSID      string        `json:"streamSid,omitempty"`
	Start          *StartMessage `json:"start,omitempty"`
	Media          *MediaPayload `json:"media,omitempty"`
	Mark           *MarkMessage  `json:"mark,omitempty"`
	Stop           *StopMessage  `json:"stop,omitempty"`
}

type StartMessage struct {
	StreamSID    string            `json:"streamSid"`
	AccountSID   string            `json:"accountSid"`
	CallSID      string            `json:"callSid"`
	Tracks       []string          `json:"tracks"`
	MediaFormat  MediaFormat       `json:"mediaFormat"`
	CustomParams map[string]string `json:"customParameters"`
}

type MediaFormat struct {
	Encoding   string `json:"encoding"`
	SampleRate int    `json:"sampleRate"`
	Channels   int    `json:"channels"`
}

type MediaPayload struct {
	Track     string `json:"track"`
	Chunk     string `json:"chunk"`
	Timestamp string `json:"timestamp"`
	Payload   string `json:"payload"`
}

type MarkMessage struct {
	Name string `json:"name"`
}

type StopMessage struct {
	AccountSID string `json:"accountSid"`
	CallSID    string `json:"callSid"`
}

// ParseMessage decodes and validates an inbound envelope.
func ParseMessage(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, fmt.Errorf("mediastream: decode envelope: %w", err)
	}
	switch m.Event {
	case "":
		return Message{}, errors.New("mediastream: envelope without event")
	case EventStart:
		if m.Start == nil {
			return Message{}, errors.New("mediastream: start without payload")
		}
		if m.Start.StreamSID == "" {
			m.Start.StreamSID = m.StreamSID
		}
		if m.Start.StreamSID == "" {
			return Message{}, errors.New("mediastream: start without streamSid")
		}
	case EventMedia:
		if m.Media == nil || m.Media.Payload == "" {
			return Message{}, errors.New("mediastream: media without payload")
		}
	}
	return m, nil
}

// Outbound envelopes.
type outboundMedia struct {
	Event     string       `json:"event"`
	StreamSID string       `json:"streamSid"`
	Media     mediaPayload `json:"media"`
}

type mediaPayload struct {
	Payload string `json:"payload"`
}

type outboundClear struct {
	Event     string `json:"event"`
	StreamSID string `json:"streamSid"`
}
