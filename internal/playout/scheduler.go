// Package playout paces outbound telephony audio as fixed-size frames on a
// fixed wall-clock cadence.
package playout

import (
	"log"
	"sync"
	"time"

	"github.com/uleaarn/paahi-backend/internal/codec"
	"github.com/uleaarn/paahi-backend/internal/metrics"
)

const (
	// DefaultFrameSize is 20 ms of 8 kHz μ-law.
	DefaultFrameSize = 160
	DefaultInterval  = 20 * time.Millisecond
)

// Frame is one transmission unit handed to the Sender.
type Frame struct {
	Seq     uint64
	Payload []byte
}

// Sender transmits a single frame to the telephony transport.
type Sender interface {
	SendFrame(f Frame) error
}

// Config controls framing and pacing. OnStart and OnIdle run while the
// scheduler lock is held and must not call back into the Scheduler.
type Config struct {
	Tag       string
	FrameSize int
	// Silence pads the last frame; zero means μ-law silence.
	Silence   byte
	Interval  time.Duration
	OnStart   func()
	OnIdle    func()
	Metrics   *metrics.Metrics
}

// Scheduler splits audio into frames and sends one per tick.
type Scheduler struct {
	cfg    Config
	sender Sender

	mu      sync.Mutex
	queue   [][]byte
	playing bool
	abort   bool
	closed  bool
	seq     uint64
	stopCh  chan struct{}
	run     runStats
}

type runStats struct {
	frames    int
	minSize   int
	maxSize   int
	firstSent time.Time
	lastSent  time.Time
}

// New returns a Scheduler with μ-law telephony defaults for unset fields.
func New(sender Sender, cfg Config) *Scheduler {
	if cfg.FrameSize <= 0 {
		cfg.FrameSize = DefaultFrameSize
	}
	if cfg.Silence == 0 {
		cfg.Silence = codec.Silence
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	return &Scheduler{cfg: cfg, sender: sender}
}

// Enqueue splits audio into frames, padding the last one with silence, and
// starts playback if idle. It is a no-op after Close.
func (s *Scheduler) Enqueue(audio []byte) {
	if len(audio) == 0 {
		return
	}
	frames := split(audio, s.cfg.FrameSize, s.cfg.Silence)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if s.abort {
		// Audio queued before the abort is stale; the new audio plays.
		s.queue = nil
		s.abort = false
	}
	s.queue = append(s.queue, frames...)
	if s.playing {
		return
	}
	s.playing = true
	s.abort = false
	s.run = runStats{}
	stop := make(chan struct{})
	s.stopCh = stop
	if s.cfg.OnStart != nil {
		s.cfg.OnStart()
	}
	go s.loop(stop)
}

func split(audio []byte, size int, silence byte) [][]byte {
	n := (len(audio) + size - 1) / size
	frames := make([][]byte, 0, n)
	for off := 0; off < len(audio); off += size {
		f := make([]byte, size)
		c := copy(f, audio[off:])
		for i := c; i < size; i++ {
			f[i] = silence
		}
		frames = append(frames, f)
	}
	return frames
}

func (s *Scheduler) loop(stop <-chan struct{}) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if !s.step() {
				return
			}
		}
	}
}

// step runs one tick. It reports whether the loop should keep ticking.
func (s *Scheduler) step() (more bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[%s] playout: recovered from panic in tick: %v", s.cfg.Tag, r)
			s.halt("panic")
			more = false
		}
	}()

	frame, seq, ok := s.next()
	if !ok {
		return false
	}
	if len(frame) != s.cfg.FrameSize {
		log.Printf("[%s] playout: dropping frame of %d bytes (want %d)", s.cfg.Tag, len(frame), s.cfg.FrameSize)
		return true
	}
	if err := s.sender.SendFrame(Frame{Seq: seq, Payload: frame}); err != nil {
		log.Printf("[%s] playout: send failed, stopping playback: %v", s.cfg.Tag, err)
		s.halt("send failed")
		return false
	}
	s.cfg.Metrics.FrameSent()
	s.record(len(frame))
	return true
}

// next dequeues the frame for this tick, or transitions to idle when the
// queue is empty or an abort is pending.
func (s *Scheduler) next() ([]byte, uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || !s.playing {
		return nil, 0, false
	}
	if s.abort {
		s.queue = nil
		s.idleLocked("aborted")
		return nil, 0, false
	}
	if len(s.queue) == 0 {
		s.idleLocked("drained")
		return nil, 0, false
	}
	f := s.queue[0]
	s.queue[0] = nil
	s.queue = s.queue[1:]
	s.seq++
	return f, s.seq, true
}

func (s *Scheduler) record(size int) {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	st := &s.run
	if st.frames == 0 {
		st.firstSent = now
		st.minSize, st.maxSize = size, size
	}
	if size < st.minSize {
		st.minSize = size
	}
	if size > st.maxSize {
		st.maxSize = size
	}
	st.frames++
	st.lastSent = now
}

func (s *Scheduler) halt(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = nil
	if s.playing {
		s.idleLocked(reason)
	}
}

func (s *Scheduler) idleLocked(reason string) {
	s.playing = false
	s.abort = false
	s.stopCh = nil
	if st := s.run; st.frames > 0 {
		var avg time.Duration
		if st.frames > 1 {
			avg = st.lastSent.Sub(st.firstSent) / time.Duration(st.frames-1)
		}
		log.Printf("[%s] playout %s: frames=%d size=%d..%d avg_interval=%s", s.cfg.Tag, reason, st.frames, st.minSize, st.maxSize, avg)
	}
	if s.cfg.OnIdle != nil {
		s.cfg.OnIdle()
	}
}

// Abort drops queued audio on the next tick.
func (s *Scheduler) Abort() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.playing {
		s.abort = true
		s.cfg.Metrics.PlaybackAborted()
	}
}

// Playing reports whether the tick loop is active.
func (s *Scheduler) Playing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playing
}

// Pending returns the number of queued frames.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Close stops the tick loop and discards queued frames. Idle hooks do not
// fire on close. Safe to call more than once.
func (s *Scheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.queue = nil
	s.playing = false
	if s.stopCh != nil {
		close(s.stopCh)
		s.stopCh = nil
	}
}
