package psgengine

import (
	"fmt"

	intaudio "github.com/cbegin/psgengine-go/internal/audio"
	"github.com/cbegin/psgengine-go/internal/rawstream"
)

// NewBuffer creates a silent, stopped sound of frames sample frames that the
// caller fills through RawBufferView. bitDepth is 8, 16 or 32 (float).
func (e *Engine) NewBuffer(frames, channels, bitDepth int) Handle {
	if !e.initialized {
		e.lastErr = ErrNotInitialized
		return InvalidHandle
	}
	if frames <= 0 {
		e.fail(fmt.Errorf("new buffer: %w: %d frames", ErrTooSmall, frames))
		return InvalidHandle
	}
	pcm, err := intaudio.NewPCM(frames, channels, bitDepth, e.sampleRate)
	if err != nil {
		e.fail(fmt.Errorf("new buffer: %w", err))
		return InvalidHandle
	}
	h, s, ok := e.allocate()
	if !ok {
		return InvalidHandle
	}
	e.attachStatic(s, pcm)
	return h
}

// BufferView exposes a sound's sample memory. Data starts at the first
// sample of the requested channel; successive frames are FrameSize bytes
// apart. The view is valid while ValidToken(Token) holds.
type BufferView struct {
	Data        []byte
	ElementSize int
	FrameSize   int
	Frames      int
	Channels    int
	Token       uint64
}

// RawBufferView returns the sample memory of a buffer or decoded sound.
// channel 0 selects all channels interleaved; 1 and 2 select one channel.
func (e *Engine) RawBufferView(h Handle, channel int) (BufferView, bool) {
	s, ok := e.lookup(h)
	if !ok {
		return BufferView{}, false
	}
	if s.kind != kindStatic {
		e.fail(fmt.Errorf("buffer view %d: %w (%s)", h, ErrWrongKind, s.kind))
		return BufferView{}, false
	}
	pcm := s.static.PCM()
	if channel < 0 || channel > pcm.Channels {
		e.fail(fmt.Errorf("buffer view %d: no channel %d", h, channel))
		return BufferView{}, false
	}
	elem := pcm.ElementSize()
	data := pcm.Data
	if channel > 0 {
		data = data[(channel-1)*elem:]
	}
	if s.token == 0 {
		s.token = e.locks.issue(h, s.gen)
	}
	return BufferView{
		Data:        data,
		ElementSize: elem,
		FrameSize:   elem * pcm.Channels,
		Frames:      pcm.Frames(),
		Channels:    pcm.Channels,
		Token:       s.token,
	}, true
}

// ValidToken reports whether the sound behind a BufferView is still alive.
func (e *Engine) ValidToken(token uint64) bool {
	if !e.initialized {
		return false
	}
	ent, ok := e.locks.lookup(token)
	if !ok {
		return false
	}
	s, ok := e.handles.get(ent.h)
	return ok && s.gen == ent.gen
}

// NewRawStream returns a playing sound fed by PushSample and PushBatch.
func (e *Engine) NewRawStream() Handle {
	h, s, ok := e.allocate()
	if !ok {
		return InvalidHandle
	}
	e.attachRaw(s)
	return h
}

func (e *Engine) attachRaw(s *sound) {
	s.kind = kindRaw
	s.raw = rawstream.New(e.sampleRate)
	s.voice = e.mixer.NewVoice(s.raw)
	s.voice.Play()
}

func (e *Engine) rawStream(h Handle) (*sound, bool) {
	s, ok := e.lookup(h)
	if !ok {
		return nil, false
	}
	if s.kind != kindRaw || s.psg != nil {
		e.fail(fmt.Errorf("raw stream %d: %w (%s)", h, ErrWrongKind, s.kind))
		return nil, false
	}
	return s, true
}

// PushSample queues one stereo frame on a raw stream.
func (e *Engine) PushSample(h Handle, l, r float32) bool {
	s, ok := e.rawStream(h)
	if ok {
		s.raw.Push(Frame{L: l, R: r})
	}
	return ok
}

// PushBatch queues frames on a raw stream, scaling each channel by its gain.
func (e *Engine) PushBatch(h Handle, frames []Frame, gainL, gainR float32) bool {
	s, ok := e.rawStream(h)
	if ok {
		s.raw.PushBatch(frames, gainL, gainR)
	}
	return ok
}

// PushMono queues mono samples on both channels of a raw stream.
func (e *Engine) PushMono(h Handle, samples []float32, gainL, gainR float32) bool {
	s, ok := e.rawStream(h)
	if ok {
		s.raw.PushMono(samples, gainL, gainR)
	}
	return ok
}

// IsBufferDrained reports whether a raw stream has played everything queued
// on it. Callers poll it instead of blocking.
func (e *Engine) IsBufferDrained(h Handle) bool {
	s, ok := e.peek(h)
	return ok && s.raw != nil && s.raw.RemainingFrames() == 0
}

// RawRemaining is the seconds of audio queued on a raw stream.
func (e *Engine) RawRemaining(h Handle) float64 {
	s, ok := e.peek(h)
	if !ok || s.raw == nil {
		return 0
	}
	return s.raw.RemainingSeconds()
}
