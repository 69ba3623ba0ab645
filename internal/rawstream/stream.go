// Package rawstream implements a ping-pong buffer of stereo frames shared
// between the engine's caller goroutine (producer) and the device render
// callback (consumer).
package rawstream

import (
	"sync"
)

type Frame struct {
	L, R float32
}

type State int

const (
	Playing State = iota
	Paused
	Stopped
)

func (s State) String() string {
	switch s {
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

type buffer struct {
	frames []Frame
	cursor int
}

func (b *buffer) remaining() int { return len(b.frames) - b.cursor }

// Stream holds two buffers whose producer/consumer roles swap whenever the
// consumer runs dry. The mutex guards appends and each drain/swap step only.
type Stream struct {
	mu         sync.Mutex
	bufs       [2]buffer
	producer   int
	consumer   int
	paused     bool
	stop       bool
	sampleRate int
}

func New(sampleRate int) *Stream {
	if sampleRate <= 0 {
		sampleRate = 44100
	}
	return &Stream{producer: 0, consumer: 1, sampleRate: sampleRate}
}

func (s *Stream) SampleRate() int { return s.sampleRate }

func (s *Stream) Push(f Frame) {
	s.mu.Lock()
	p := &s.bufs[s.producer]
	p.frames = append(p.frames, f)
	s.mu.Unlock()
}

// PushBatch appends frames scaled by per-channel gains.
func (s *Stream) PushBatch(frames []Frame, gainL, gainR float32) {
	if len(frames) == 0 {
		return
	}
	s.mu.Lock()
	p := &s.bufs[s.producer]
	if gainL == 1 && gainR == 1 {
		p.frames = append(p.frames, frames...)
	} else {
		for _, f := range frames {
			p.frames = append(p.frames, Frame{L: f.L * gainL, R: f.R * gainR})
		}
	}
	s.mu.Unlock()
}

// PushMono appends mono samples, spreading each into both channels with the
// given gains.
func (s *Stream) PushMono(samples []float32, gainL, gainR float32) {
	if len(samples) == 0 {
		return
	}
	s.mu.Lock()
	p := &s.bufs[s.producer]
	for _, v := range samples {
		p.frames = append(p.frames, Frame{L: v * gainL, R: v * gainR})
	}
	s.mu.Unlock()
}

// Render fills dst (interleaved stereo) and reports how many frames it
// produced and whether the stream has ended. A stream that runs dry while not
// stopped pads with silence and reports a full buffer.
func (s *Stream) Render(dst []float32) (int, bool) {
	want := len(dst) / 2
	s.mu.Lock()
	paused := s.paused
	s.mu.Unlock()
	if paused {
		clear(dst)
		return want, false
	}
	written := 0
	for written < want {
		n, ok, stopped := s.drain(dst[written*2 : want*2])
		written += n
		if ok {
			continue
		}
		clear(dst[written*2:])
		if stopped {
			return written, true
		}
		return want, false
	}
	return written, false
}

// drain copies from the consumer buffer. When the consumer is exhausted it is
// reset and the roles swap; ok is false only if both buffers are empty, in
// which case stopped reports the stop flag observed under the same lock.
func (s *Stream) drain(dst []float32) (n int, ok, stopped bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := &s.bufs[s.consumer]
	if c.remaining() == 0 {
		c.frames = c.frames[:0]
		c.cursor = 0
		s.producer, s.consumer = s.consumer, s.producer
		c = &s.bufs[s.consumer]
		if c.remaining() == 0 {
			return 0, false, s.stop
		}
	}
	n = min(len(dst)/2, c.remaining())
	src := c.frames[c.cursor : c.cursor+n]
	for i, f := range src {
		dst[i*2] = f.L
		dst[i*2+1] = f.R
	}
	c.cursor += n
	return n, true, false
}

func (s *Stream) RemainingFrames() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bufs[0].remaining() + s.bufs[1].remaining()
}

func (s *Stream) RemainingSeconds() float64 {
	return float64(s.RemainingFrames()) / float64(s.sampleRate)
}

// Pause toggles whether Render emits silence. Buffered frames are kept.
func (s *Stream) Pause(paused bool) {
	s.mu.Lock()
	s.paused = paused
	s.mu.Unlock()
}

// Stop requests end of stream. It takes effect once Render drains both
// buffers.
func (s *Stream) Stop() {
	s.mu.Lock()
	s.stop = true
	s.mu.Unlock()
}

// Resume clears a pending stop so that further pushes keep the stream alive.
func (s *Stream) Resume() {
	s.mu.Lock()
	s.stop = false
	s.paused = false
	s.mu.Unlock()
}

// Clear drops every buffered frame.
func (s *Stream) Clear() {
	s.mu.Lock()
	for i := range s.bufs {
		s.bufs[i].frames = s.bufs[i].frames[:0]
		s.bufs[i].cursor = 0
	}
	s.mu.Unlock()
}

func (s *Stream) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.stop:
		return Stopped
	case s.paused:
		return Paused
	default:
		return Playing
	}
}

// Drained reports whether a stopped stream has nothing left to play.
func (s *Stream) Drained() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stop && s.bufs[0].remaining()+s.bufs[1].remaining() == 0
}
