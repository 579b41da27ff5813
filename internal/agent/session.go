package agent

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/uleaarn/paahi-backend/internal/codec"
	"github.com/uleaarn/paahi-backend/internal/metrics"
	"github.com/uleaarn/paahi-backend/internal/order"
	"github.com/uleaarn/paahi-backend/internal/playout"
)

// Apology is spoken when the language model fails.
const Apology = "I apologize, I'm having trouble processing that. Could you please repeat?"

const (
	DefaultCooldown           = 250 * time.Millisecond
	DefaultGreetingEchoWindow = 2000 * time.Millisecond
	DefaultMaxHistory         = 100
)

var greetingEcho = regexp.MustCompile(`(?i)^(hello|hi|hey)[?.!,]*$`)

// State is the session lifecycle stage.
type State int

const (
	StateCreated State = iota
	StateAwaitingTranscript
	StateProcessingTurn
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateAwaitingTranscript:
		return "awaiting_transcript"
	case StateProcessingTurn:
		return "processing_turn"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Verdict is the outcome of gating one recognizer result.
type Verdict string

const (
	VerdictAccepted     Verdict = "accepted"
	VerdictInterim      Verdict = "interim"
	VerdictEmpty        Verdict = "empty"
	VerdictSpeaking     Verdict = "gated_speaking"
	VerdictCooldown     Verdict = "gated_cooldown"
	VerdictGreetingEcho Verdict = "greeting_echo"
	VerdictBusy         Verdict = "busy"
	VerdictClosed       Verdict = "closed"
)

// Config holds per-call settings. Zero durations take the defaults above.
type Config struct {
	StreamID     string
	CallSID      string
	Instructions string
	// Location, when set, prefixes the instructions with the current time there.
	Location           *time.Location
	Greeting           string
	Cooldown           time.Duration
	GreetingEchoWindow time.Duration
	MaxHistory         int
	Extractor          *order.Extractor
	PlayoutInterval    time.Duration
	Metrics            *metrics.Metrics
	Now                func() time.Time
}

// Deps are the external collaborators of a session. Transcriber, Orders
// and Barge may be nil.
type Deps struct {
	Transcriber Transcriber
	LLM         LLM
	TTS         TTS
	Orders      OrderSubmitter
	Out         Outbound
	Barge       BargeDetector
}

type orderState struct {
	details   order.Details
	attempted bool
	submitted bool
}

// Session orchestrates STT -> LLM -> TTS -> playout for a single call.
type Session struct {
	cfg    Config
	deps   Deps
	player *playout.Scheduler
	// regexOrders is set when the LLM cannot call the order tool.
	regexOrders bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu              sync.Mutex
	state           State
	sttReady        bool
	speaking        bool
	cooldownUntil   time.Time
	speechStartedAt time.Time
	history         []Turn
	order           orderState
	greetTimer      *time.Timer
	onClose         func(*Session)

	startedAt     time.Time
	closeOnce     sync.Once
	sendErrLogged atomic.Bool
}

// NewSession constructs a Session in the created state.
func NewSession(cfg Config, deps Deps) *Session {
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultCooldown
	}
	if cfg.GreetingEchoWindow <= 0 {
		cfg.GreetingEchoWindow = DefaultGreetingEchoWindow
	}
	if cfg.MaxHistory <= 0 {
		cfg.MaxHistory = DefaultMaxHistory
	}
	if cfg.Extractor == nil {
		cfg.Extractor = order.NewExtractor(nil)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	s := &Session{cfg: cfg, deps: deps, startedAt: cfg.Now()}
	if tc, ok := deps.LLM.(ToolCaller); !ok || !tc.SupportsTools() {
		s.regexOrders = true
	}
	s.player = playout.New(deps.Out, playout.Config{
		Tag:       cfg.StreamID,
		FrameSize: playout.DefaultFrameSize,
		Silence:   codec.Silence,
		Interval:  cfg.PlayoutInterval,
		OnStart:   s.playbackStarted,
		OnIdle:    s.playbackIdle,
		Metrics:   cfg.Metrics,
	})
	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s
}

// ID returns the telephony stream identifier.
func (s *Session) ID() string { return s.cfg.StreamID }

// Start opens the recognizer for 8 kHz μ-law mono. A recognizer failure is
// logged and the call continues without transcripts.
func (s *Session) Start(ctx context.Context) {
	s.mu.Lock()
	if s.state != StateCreated {
		s.mu.Unlock()
		return
	}
	s.state = StateAwaitingTranscript
	s.mu.Unlock()

	stop := context.AfterFunc(ctx, s.Close)
	go func() {
		<-s.ctx.Done()
		stop()
	}()

	if s.deps.Transcriber == nil {
		log.Printf("[%s] no transcriber configured; speech recognition disabled", s.cfg.StreamID)
		return
	}
	err := s.deps.Transcriber.Connect(s.ctx, StreamConfig{Encoding: codec.EncodingMulaw, SampleRate: codec.TelephonyRate, Channels: 1})
	if err != nil {
		s.cfg.Metrics.ProviderError("stt")
		log.Printf("[%s] transcriber connect failed, continuing without speech recognition: %v", s.cfg.StreamID, err)
		return
	}

	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		_ = s.deps.Transcriber.Close()
		return
	}
	s.sttReady = true
	s.wg.Add(1)
	s.mu.Unlock()
	go s.readTranscripts()
}

func (s *Session) readTranscripts() {
	defer s.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[%s] recovered from panic in transcript loop: %v", s.cfg.StreamID, r)
		}
	}()
	ch := s.deps.Transcriber.Transcripts()
	for {
		select {
		case <-s.ctx.Done():
			return
		case t, ok := <-ch:
			if !ok {
				return
			}
			s.HandleTranscript(t)
		}
	}
}

// ReceiveAudio forwards one base64 media payload to the recognizer. While
// the assistant is speaking the audio also feeds the barge-in detector.
func (s *Session) ReceiveAudio(payload string) {
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		s.cfg.Metrics.MalformedEvent()
		log.Printf("[%s] dropping media payload: %v", s.cfg.StreamID, err)
		return
	}
	s.mu.Lock()
	closed := s.state == StateClosed
	ready := s.sttReady
	s.mu.Unlock()
	if closed || len(raw) == 0 {
		return
	}

	if s.deps.Barge != nil && s.player.Playing() {
		if s.deps.Barge.Feed(codec.Decode(raw)) {
			s.BargeIn()
		}
	}
	if !ready {
		return
	}
	if err := s.deps.Transcriber.SendAudio(raw); err != nil && !s.sendErrLogged.Swap(true) {
		log.Printf("[%s] transcriber send failed: %v", s.cfg.StreamID, err)
	}
}

// HandleTranscript gates a recognizer result and starts a turn when it is
// accepted. The turn runs on its own goroutine.
func (s *Session) HandleTranscript(t Transcript) Verdict {
	text := strings.TrimSpace(t.Text)
	if !t.IsFinal {
		return VerdictInterim
	}
	if text == "" {
		return VerdictEmpty
	}
	now := s.cfg.Now()

	s.mu.Lock()
	var v Verdict
	switch {
	case s.state == StateClosed:
		v = VerdictClosed
	case s.speaking:
		v = VerdictSpeaking
	case now.Before(s.cooldownUntil):
		v = VerdictCooldown
	case greetingEcho.MatchString(text) && !s.speechStartedAt.IsZero() && now.Sub(s.speechStartedAt) < s.cfg.GreetingEchoWindow:
		v = VerdictGreetingEcho
	case s.state != StateAwaitingTranscript:
		v = VerdictBusy
	default:
		v = VerdictAccepted
		s.state = StateProcessingTurn
		s.wg.Add(1)
	}
	s.mu.Unlock()

	s.cfg.Metrics.Transcript(string(v))
	if v != VerdictAccepted {
		log.Printf("[%s] dropped transcript (%s): %q", s.cfg.StreamID, v, text)
		return v
	}
	log.Printf("[%s] heard(final): %s", s.cfg.StreamID, text)
	go s.processTurn(text)
	return v
}

func (s *Session) processTurn(text string) {
	defer s.wg.Done()
	defer s.finishTurn()
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[%s] recovered from panic in turn: %v", s.cfg.StreamID, r)
		}
	}()
	start := time.Now()

	s.appendTurn(RoleUser, text)
	req := Request{Instructions: s.instructions(), History: s.History()}
	reply, err := s.deps.LLM.Respond(s.ctx, req)
	if err != nil {
		if s.ctx.Err() != nil {
			return
		}
		s.cfg.Metrics.ProviderError("llm")
		log.Printf("[%s] llm error: %v", s.cfg.StreamID, err)
		reply = Reply{Text: Apology}
	}

	answer := strings.TrimSpace(reply.Text)
	if answer == "" && reply.Order != nil {
		answer = confirmation(*reply.Order)
	}
	if answer == "" {
		answer = Apology
	}
	s.appendTurn(RoleAssistant, answer)
	log.Printf("[%s] assistant: %s", s.cfg.StreamID, answer)

	s.trackOrder(reply.Order)
	s.speak(answer)
	s.cfg.Metrics.TurnCompleted(time.Since(start).Seconds())
}

func confirmation(d order.Details) string {
	name := d.CustomerName
	if name == "" {
		return "Thank you, your order has been placed."
	}
	return fmt.Sprintf("Thank you %s, your order of %s has been placed.", name, d.Summary())
}

func (s *Session) finishTurn() {
	s.mu.Lock()
	if s.state == StateProcessingTurn {
		s.state = StateAwaitingTranscript
	}
	s.mu.Unlock()
}

func (s *Session) instructions() string {
	if s.cfg.Location == nil {
		return s.cfg.Instructions
	}
	now := s.cfg.Now().In(s.cfg.Location)
	return "Current Server Time: " + now.Format("Monday, January 2, 2006 3:04 PM MST") + "\n\n" + s.cfg.Instructions
}

func (s *Session) appendTurn(role Role, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, Turn{Role: role, Text: text})
	if over := len(s.history) - s.cfg.MaxHistory; over > 0 {
		s.history = append(s.history[:0:0], s.history[over:]...)
	}
}

// History returns a copy of the conversation so far.
func (s *Session) History() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Turn, len(s.history))
	copy(out, s.history)
	return out
}

// trackOrder submits the order once all fields are known. A tool call from
// the model takes precedence; speech extraction is used when the model
// cannot call tools. Only one submission is ever attempted.
func (s *Session) trackOrder(fromTool *order.Details) {
	s.mu.Lock()
	if s.order.attempted {
		s.mu.Unlock()
		return
	}
	d := s.order.details
	source := order.SourceRegex
	if fromTool != nil {
		d = fromTool.Merge(d)
		source = order.SourceTool
	}
	if s.regexOrders && !d.Complete() {
		var said []string
		for _, t := range s.history {
			if t.Role == RoleUser {
				said = append(said, t.Text)
			}
		}
		d = d.Merge(s.cfg.Extractor.Extract(said...))
	}
	s.order.details = d
	if !d.Complete() {
		s.mu.Unlock()
		return
	}
	s.order.attempted = true
	history := make([]order.Message, 0, len(s.history))
	for _, t := range s.history {
		history = append(history, order.Message{Role: string(t.Role), Content: t.Text})
	}
	s.mu.Unlock()

	if s.deps.Orders == nil {
		log.Printf("[%s] order complete but no order intake configured: %s", s.cfg.StreamID, d.Summary())
		return
	}
	o := order.New(d, s.cfg.StreamID, s.cfg.CallSID, source, history, s.cfg.Now())
	log.Printf("[%s] submitting order %s (%s): %s for %s", s.cfg.StreamID, o.OrderID, source, d.Summary(), d.CustomerName)
	err := s.deps.Orders.Submit(s.ctx, o)
	s.cfg.Metrics.OrderSubmitted(source, err == nil)
	if err != nil {
		log.Printf("[%s] order submission failed: %v", s.cfg.StreamID, err)
		return
	}
	s.mu.Lock()
	s.order.submitted = true
	s.mu.Unlock()
	log.Printf("[%s] order %s submitted", s.cfg.StreamID, o.OrderID)
}

// OrderSubmitted reports whether the order was accepted by order intake.
func (s *Session) OrderSubmitted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.order.submitted
}

// speak synthesizes text and hands the telephony audio to the playout
// scheduler. Synthesis failures skip playback.
func (s *Session) speak(text string) {
	s.mu.Lock()
	s.speechStartedAt = s.cfg.Now()
	s.mu.Unlock()

	audio, err := s.deps.TTS.Synthesize(s.ctx, text)
	if err != nil {
		if s.ctx.Err() == nil {
			s.cfg.Metrics.ProviderError("tts")
			log.Printf("[%s] tts error: %v", s.cfg.StreamID, err)
		}
		return
	}
	data, err := codec.ToTelephony(audio.Data, audio.Encoding, audio.SampleRate)
	if err != nil {
		log.Printf("[%s] tts audio conversion failed: %v", s.cfg.StreamID, err)
		return
	}
	if len(data) == 0 || s.ctx.Err() != nil {
		return
	}
	s.player.Enqueue(data)
}

// playbackStarted and playbackIdle run under the scheduler lock.
func (s *Session) playbackStarted() {
	s.mu.Lock()
	s.speaking = true
	s.mu.Unlock()
	if s.deps.Barge != nil {
		s.deps.Barge.SetSpeaking(true)
	}
}

func (s *Session) playbackIdle() {
	s.mu.Lock()
	s.speaking = false
	s.cooldownUntil = s.cfg.Now().Add(s.cfg.Cooldown)
	s.mu.Unlock()
	if s.deps.Barge != nil {
		s.deps.Barge.SetSpeaking(false)
	}
}

// Speaking reports whether assistant audio is playing.
func (s *Session) Speaking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.speaking
}

// State returns the current lifecycle stage.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Greet speaks the configured greeting now.
func (s *Session) Greet() {
	if s.cfg.Greeting == "" {
		return
	}
	s.mu.Lock()
	if s.state != StateAwaitingTranscript {
		s.mu.Unlock()
		return
	}
	s.state = StateProcessingTurn
	s.wg.Add(1)
	s.mu.Unlock()

	defer s.wg.Done()
	defer s.finishTurn()
	s.appendTurn(RoleAssistant, s.cfg.Greeting)
	log.Printf("[%s] greeting: %s", s.cfg.StreamID, s.cfg.Greeting)
	s.speak(s.cfg.Greeting)
}

// GreetAfter schedules the greeting. The timer is cancelled by Close.
func (s *Session) GreetAfter(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed || s.cfg.Greeting == "" {
		return
	}
	if s.greetTimer != nil {
		s.greetTimer.Stop()
	}
	s.greetTimer = time.AfterFunc(d, func() {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("[%s] recovered from panic in greeting: %v", s.cfg.StreamID, r)
			}
		}()
		s.Greet()
	})
}

// BargeIn cuts playback short and tells the far end to drop buffered audio.
// An in-flight LLM or TTS request is not cancelled.
func (s *Session) BargeIn() {
	if !s.player.Playing() {
		return
	}
	s.player.Abort()
	if err := s.deps.Out.Clear(); err != nil {
		log.Printf("[%s] clear failed: %v", s.cfg.StreamID, err)
	}
	log.Printf("[%s] barge-in: playback aborted", s.cfg.StreamID)
}

// Close finalizes the recognizer, stops timers and playback and releases
// the session from its registry. Safe to call more than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.state = StateClosed
		timer := s.greetTimer
		s.greetTimer = nil
		ready := s.sttReady
		s.sttReady = false
		onClose := s.onClose
		s.mu.Unlock()

		if timer != nil {
			timer.Stop()
		}
		s.cancel()
		s.player.Close()
		if ready {
			if err := s.deps.Transcriber.Close(); err != nil {
				log.Printf("[%s] transcriber close: %v", s.cfg.StreamID, err)
			}
		}
		s.logTranscript()
		if onClose != nil {
			onClose(s)
		}
	})
}

func (s *Session) logTranscript() {
	h := s.History()
	var b strings.Builder
	for _, t := range h {
		b.WriteString("\n  [")
		b.WriteString(strings.ToUpper(string(t.Role)))
		b.WriteString("] ")
		b.WriteString(t.Text)
	}
	log.Printf("[%s] session closed after %s, %d turns, order_submitted=%v%s",
		s.cfg.StreamID, time.Since(s.startedAt).Round(time.Second), len(h), s.OrderSubmitted(), b.String())
}

// wait blocks until in-flight turns have returned.
func (s *Session) wait() { s.wg.Wait() }
