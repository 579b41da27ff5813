// Package barge detects a caller talking over assistant playback.
package barge

import (
	"math"
	"sync"
	"time"
)

// Config holds detector thresholds. Zero values take DefaultConfig's.
type Config struct {
	SampleRate      int     // Hz of the samples passed to Feed
	VADThreshold    float64 // per-frame RMS that counts as speech
	OverlapRMS      float64 // window RMS that counts as sustained talk-over
	SmoothFrames    int     // VAD majority window, in 10 ms frames
	FuseWinMs       int     // vote window that must agree before triggering
	HysteresisOffMs int     // silence that resets accumulated votes
}

// DefaultConfig is tuned for 8 kHz telephony audio.
func DefaultConfig() Config {
	return Config{
		SampleRate:      8000,
		VADThreshold:    300,
		OverlapRMS:      500,
		SmoothFrames:    4,
		FuseWinMs:       150,
		HysteresisOffMs: 200,
	}
}

// frame is 10 ms of mono PCM.
type frame []int16

type simpleVAD struct {
	threshold float64
	smoothN   int
	win       []bool
}

func (v *simpleVAD) isSpeech(f frame) bool {
	if len(f) == 0 {
		return false
	}
	b := rms(f) >= v.threshold
	v.win = append(v.win, b)
	if len(v.win) > v.smoothN {
		v.win = v.win[len(v.win)-v.smoothN:]
	}
	trueCount := 0
	for _, x := range v.win {
		if x {
			trueCount++
		}
	}
	return trueCount*2 >= len(v.win)
}

func rms(f frame) float64 {
	var sum float64
	for _, s := range f {
		x := float64(s)
		sum += x * x
	}
	return math.Sqrt(sum / float64(len(f)))
}

// frameWindow keeps the latest N frames.
type frameWindow struct {
	frames []frame
	size   int
}

func (w *frameWindow) push(f frame) {
	w.frames = append(w.frames, f)
	if len(w.frames) > w.size {
		w.frames = w.frames[len(w.frames)-w.size:]
	}
}

func (w *frameWindow) rms() float64 {
	var sum float64
	var n int
	for _, f := range w.frames {
		for _, s := range f {
			x := float64(s)
			sum += x * x
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return math.Sqrt(sum / float64(n))
}

type voteWindow struct {
	max  int
	hist []bool
}

func newVoteWindow(ms int) *voteWindow {
	return &voteWindow{max: int(time.Duration(ms)*time.Millisecond/(10*time.Millisecond)) + 1}
}

func (v *voteWindow) push(b bool) {
	v.hist = append(v.hist, b)
	if len(v.hist) > v.max {
		v.hist = v.hist[len(v.hist)-v.max:]
	}
}

// ratio is zero until the window is full.
func (v *voteWindow) ratio() float64 {
	if len(v.hist) < v.max {
		return 0
	}
	var t int
	for _, b := range v.hist {
		if b {
			t++
		}
	}
	return float64(t) / float64(len(v.hist))
}

func (v *voteWindow) reset() { v.hist = v.hist[:0] }

// Detector fuses a smoothed VAD with a sustained-energy cue. It only votes
// while SetSpeaking(true) is in effect.
type Detector struct {
	cfg Config

	mu       sync.Mutex
	speaking bool
	pending  []int16
	vad      *simpleVAD
	micWin   *frameWindow
	votesOn  *voteWindow
	votesOff *voteWindow
}

func NewDetector(cfg Config) *Detector {
	def := DefaultConfig()
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = def.SampleRate
	}
	if cfg.VADThreshold <= 0 {
		cfg.VADThreshold = def.VADThreshold
	}
	if cfg.OverlapRMS <= 0 {
		cfg.OverlapRMS = def.OverlapRMS
	}
	if cfg.SmoothFrames <= 0 {
		cfg.SmoothFrames = def.SmoothFrames
	}
	if cfg.FuseWinMs <= 0 {
		cfg.FuseWinMs = def.FuseWinMs
	}
	if cfg.HysteresisOffMs <= 0 {
		cfg.HysteresisOffMs = def.HysteresisOffMs
	}
	return &Detector{
		cfg:      cfg,
		vad:      &simpleVAD{threshold: cfg.VADThreshold, smoothN: cfg.SmoothFrames},
		micWin:   &frameWindow{size: cfg.FuseWinMs / 10},
		votesOn:  newVoteWindow(cfg.FuseWinMs),
		votesOff: newVoteWindow(cfg.HysteresisOffMs),
	}
}

// SetSpeaking toggles detection. Turning it off clears all state.
func (d *Detector) SetSpeaking(on bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.speaking = on
	if !on {
		d.resetLocked()
	}
}

func (d *Detector) resetLocked() {
	d.pending = d.pending[:0]
	d.vad.win = d.vad.win[:0]
	d.micWin.frames = nil
	d.votesOn.reset()
	d.votesOff.reset()
}

// Feed consumes caller audio of any length and reports whether the caller
// is talking over playback. Votes reset after a trigger.
func (d *Detector) Feed(samples []int16) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.speaking {
		return false
	}
	per10ms := d.cfg.SampleRate / 100
	d.pending = append(d.pending, samples...)
	triggered := false
	for len(d.pending) >= per10ms {
		f := make(frame, per10ms)
		copy(f, d.pending[:per10ms])
		d.pending = d.pending[per10ms:]
		if d.onFrame(f) {
			triggered = true
		}
	}
	if len(d.pending) == 0 {
		d.pending = nil
	}
	return triggered
}

func (d *Detector) onFrame(f frame) bool {
	d.micWin.push(f)
	vadYes := d.vad.isSpeech(f)
	overlapYes := d.micWin.rms() > d.cfg.OverlapRMS

	d.votesOn.push(vadYes && overlapYes)
	d.votesOff.push(!vadYes && !overlapYes)
	if d.votesOn.ratio() >= 2.0/3.0 {
		d.votesOn.reset()
		d.votesOff.reset()
		return true
	}
	if d.votesOff.ratio() >= 2.0/3.0 {
		d.votesOn.reset()
	}
	return false
}
