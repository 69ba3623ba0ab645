package psgengine

import (
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"

	intaudio "github.com/cbegin/psgengine-go/internal/audio"
	intdec "github.com/cbegin/psgengine-go/internal/decode"
	"github.com/cbegin/psgengine-go/internal/rawstream"
)

// Frame is one stereo sample.
type Frame = rawstream.Frame

// Open decodes the file (or buffer key) at path completely and returns a
// stopped sound. Decoding failures invalidate only the returned handle.
func (e *Engine) Open(path string) Handle {
	h, s, ok := e.allocate()
	if !ok {
		return InvalidHandle
	}
	pcm, err := e.decodeAll(path)
	if err != nil {
		e.release(h)
		e.fail(fmt.Errorf("open %s: %w", path, err))
		return InvalidHandle
	}
	e.attachStatic(s, pcm)
	return h
}

// OpenMemory registers data in the buffer store and decodes it like Open.
// The handle keeps its reference to the buffer until it is closed.
func (e *Engine) OpenMemory(data []byte) Handle {
	if !e.initialized {
		e.lastErr = ErrNotInitialized
		return InvalidHandle
	}
	key := e.store.NextKey()
	if !e.store.Add(key, data) {
		e.fail(fmt.Errorf("open memory: %w: empty buffer", ErrTooSmall))
		return InvalidHandle
	}
	h := e.Open(strconv.FormatUint(key, 10))
	if h == InvalidHandle {
		e.store.Release(key)
		return InvalidHandle
	}
	e.handles.slots[h].bufKey = key
	return h
}

// OpenStream opens path for incremental decoding. Update keeps the stream's
// queue topped up while it plays.
func (e *Engine) OpenStream(path string) Handle {
	h, s, ok := e.allocate()
	if !ok {
		return InvalidHandle
	}
	dec, err := e.openDecoder(path)
	if err != nil {
		e.release(h)
		e.fail(fmt.Errorf("open stream %s: %w", path, err))
		return InvalidHandle
	}
	s.kind = kindStream
	s.dec = dec
	s.reader = intdec.NewReader(dec, e.sampleRate)
	s.raw = rawstream.New(e.sampleRate)
	s.voice = e.mixer.NewVoice(s.raw)
	return h
}

func (e *Engine) openDecoder(path string) (intdec.Decoder, error) {
	fd, err := e.fs.Open(path)
	if err != nil {
		return nil, err
	}
	f, err := e.fs.File(fd)
	if err != nil {
		return nil, err
	}
	dec, err := e.decoders.Open(f)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return dec, nil
}

func (e *Engine) decodeAll(path string) (*intaudio.PCM, error) {
	dec, err := e.openDecoder(path)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	samples, err := intdec.DecodeAll(dec, e.sampleRate)
	if err != nil {
		return nil, err
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("%w: no audio", ErrTooSmall)
	}
	return intaudio.PCMFromFloat32(samples, 2, e.sampleRate)
}

func (e *Engine) attachStatic(s *sound, pcm *intaudio.PCM) {
	s.kind = kindStatic
	s.static = intaudio.NewStaticSource(pcm)
	s.voice = e.mixer.NewVoice(s.static)
}

// Close releases h. A sound that is still playing keeps playing and is
// released by Update once it finishes. Internal handles cannot be closed.
func (e *Engine) Close(h Handle) {
	s, ok := e.lookup(h)
	if !ok {
		return
	}
	if s.internal {
		e.fail(fmt.Errorf("%w: %d is reserved", ErrInvalidHandle, h))
		return
	}
	if s.done() {
		e.release(h)
		return
	}
	switch s.kind {
	case kindStatic:
		s.static.SetLoop(false)
	case kindRaw:
		s.raw.Stop()
	case kindStream:
		s.loop = false
	}
	s.autoDispose = true
}

// Play starts h, or resumes it when paused. A sound that has stopped or
// run out starts over.
func (e *Engine) Play(h Handle) bool {
	s, ok := e.lookup(h)
	if !ok {
		return false
	}
	return e.play(s, false)
}

// PlayLooping is Play with the sound set to repeat.
func (e *Engine) PlayLooping(h Handle) bool {
	s, ok := e.lookup(h)
	if !ok {
		return false
	}
	return e.play(s, true)
}

func (e *Engine) play(s *sound, loop bool) bool {
	resume := s.voice.IsPaused()
	switch s.kind {
	case kindStatic:
		s.static.SetLoop(loop)
		if !resume && !s.voice.IsPlaying() {
			s.static.Seek(0)
		}
	case kindRaw:
		if loop {
			e.fail(fmt.Errorf("%w: raw streams cannot loop", ErrWrongKind))
			return false
		}
		s.raw.Resume()
	case kindStream:
		s.loop = loop
		if !resume && !s.voice.IsPlaying() {
			if err := e.rewind(s); err != nil {
				e.fail(err)
				return false
			}
		}
		s.raw.Resume()
	default:
		return false
	}
	s.voice.Play()
	if s.kind == kindStream {
		e.pumpStream(s)
	}
	return true
}

func (e *Engine) Pause(h Handle) {
	if s, ok := e.lookup(h); ok {
		s.voice.Pause()
	}
}

// Stop halts h and moves it back to the start. Queued raw samples are
// discarded.
func (e *Engine) Stop(h Handle) {
	s, ok := e.lookup(h)
	if !ok {
		return
	}
	s.voice.Stop()
	switch s.kind {
	case kindStatic:
		s.static.Seek(0)
	case kindRaw:
		s.raw.Clear()
		if s.psg != nil {
			s.psg.Reset()
		}
	case kindStream:
		if err := e.rewind(s); err != nil {
			e.fail(err)
		}
	}
}

// SetVolume sets h's volume, clamped to 0..1.
func (e *Engine) SetVolume(h Handle, vol float64) {
	if s, ok := e.lookup(h); ok {
		s.volume = float32(max(0, min(vol, 1)))
		s.voice.SetVolume(s.volume)
	}
}

func (e *Engine) Volume(h Handle) float64 {
	if s, ok := e.peek(h); ok {
		return float64(s.volume)
	}
	return 0
}

// SetPan balances h between the speakers: -1 is hard left, 1 hard right.
// y and z are accepted for API compatibility and ignored.
func (e *Engine) SetPan(h Handle, x, y, z float64) {
	s, ok := e.lookup(h)
	if !ok {
		return
	}
	s.pan = max(-1, min(x, 1))
	l, r := BalanceGains(s.pan)
	s.voice.SetGains(l, r)
}

// BalanceGains is the voice pan law: the far channel is attenuated
// linearly while the near one stays at unity.
func BalanceGains(x float64) (l, r float32) {
	x = max(-1, min(x, 1))
	return float32(min(1, 1-x)), float32(min(1, 1+x))
}

// Copy returns a new stopped handle that shares h's sample data. Only
// decoded and in-memory buffer sounds can be copied.
func (e *Engine) Copy(h Handle) Handle {
	s, ok := e.lookup(h)
	if !ok {
		return InvalidHandle
	}
	if s.kind != kindStatic {
		e.fail(fmt.Errorf("copy %d: %w (%s)", h, ErrWrongKind, s.kind))
		return InvalidHandle
	}
	pcm, volume, pan, key := s.static.PCM(), s.volume, s.pan, s.bufKey
	nh, ns, ok := e.allocate()
	if !ok {
		return InvalidHandle
	}
	e.attachStatic(ns, pcm)
	ns.volume, ns.pan = volume, pan
	ns.voice.SetVolume(volume)
	ns.voice.SetGains(BalanceGains(pan))
	if key != 0 && e.store.Add(key, e.store.Get(key)) {
		ns.bufKey = key
	}
	return nh
}

func (e *Engine) IsPlaying(h Handle) bool {
	s, ok := e.peek(h)
	return ok && s.voice.IsPlaying()
}

func (e *Engine) IsPaused(h Handle) bool {
	s, ok := e.peek(h)
	return ok && s.voice.IsPaused()
}

// Length is the duration of h in seconds. For raw streams it is the audio
// still queued.
func (e *Engine) Length(h Handle) float64 {
	s, ok := e.peek(h)
	if !ok {
		return 0
	}
	switch s.kind {
	case kindStatic:
		return float64(s.static.PCM().Frames()) / float64(e.sampleRate)
	case kindRaw:
		return s.raw.RemainingSeconds()
	case kindStream:
		if rate := s.dec.Format().SampleRate; rate > 0 {
			return float64(s.dec.Len()) / float64(rate)
		}
	}
	return 0
}

// Position is the play position of h in seconds.
func (e *Engine) Position(h Handle) float64 {
	s, ok := e.peek(h)
	if !ok {
		return 0
	}
	switch s.kind {
	case kindStatic:
		return float64(s.static.Position()) / float64(e.sampleRate)
	case kindStream:
		rate := s.dec.Format().SampleRate
		if rate <= 0 {
			return 0
		}
		pos := float64(s.dec.Tell())/float64(rate) - s.raw.RemainingSeconds()
		return max(0, pos)
	}
	return 0
}

// SetPosition seeks h to seconds. Raw streams cannot seek.
func (e *Engine) SetPosition(h Handle, seconds float64) bool {
	s, ok := e.lookup(h)
	if !ok {
		return false
	}
	seconds = max(0, seconds)
	switch s.kind {
	case kindStatic:
		s.static.Seek(int(math.Round(seconds * float64(e.sampleRate))))
		return true
	case kindStream:
		frame := int(math.Round(seconds * float64(s.dec.Format().SampleRate)))
		if err := e.seekStream(s, frame); err != nil {
			e.fail(err)
			return false
		}
		return true
	}
	e.fail(fmt.Errorf("set position %d: %w (%s)", h, ErrWrongKind, s.kind))
	return false
}

func (e *Engine) rewind(s *sound) error { return e.seekStream(s, 0) }

func (e *Engine) seekStream(s *sound, frame int) error {
	if err := s.dec.Seek(frame); err != nil {
		return fmt.Errorf("stream seek: %w", err)
	}
	s.raw.Clear()
	s.reader = intdec.NewReader(s.dec, e.sampleRate)
	return nil
}

// streamAhead is how much decoded audio a stream keeps queued.
const streamAhead = 0.25

func (e *Engine) pumpStream(s *sound) {
	if s.reader == nil || s.voice.Finished() || s.raw.State() == rawstream.Stopped {
		return
	}
	target := int(streamAhead * float64(e.sampleRate))
	if s.scratch == nil {
		s.scratch = make([]float32, 2048)
		s.frames = make([]rawstream.Frame, 1024)
	}
	rewound := false
	for s.raw.RemainingFrames() < target {
		n, err := s.reader.Read(s.scratch)
		for i := 0; i < n; i++ {
			s.frames[i] = rawstream.Frame{L: s.scratch[i*2], R: s.scratch[i*2+1]}
		}
		if n > 0 {
			s.raw.PushBatch(s.frames[:n], 1, 1)
			rewound = false
		}
		if err == nil {
			continue
		}
		if !errors.Is(err, io.EOF) {
			e.errLog.Printf("stream: %v", err)
		}
		if s.loop && !rewound && errors.Is(err, io.EOF) {
			if err := e.refill(s); err != nil {
				e.errLog.Printf("stream: %v", err)
				s.raw.Stop()
				return
			}
			rewound = true
			continue
		}
		s.reader = nil
		s.raw.Stop()
		return
	}
}

// refill rewinds a looping stream without dropping what is already queued.
func (e *Engine) refill(s *sound) error {
	if err := s.dec.Seek(0); err != nil {
		return fmt.Errorf("stream loop: %w", err)
	}
	s.reader = intdec.NewReader(s.dec, e.sampleRate)
	return nil
}
