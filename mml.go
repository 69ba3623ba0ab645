package psgengine

import (
	"context"
	"errors"
	"fmt"

	intmml "github.com/cbegin/psgengine-go/internal/mml"
	"github.com/cbegin/psgengine-go/internal/psg"
)

// MMLSegment is the data area X and = references point into.
type MMLSegment = intmml.Segment

func NewMMLSegment() *MMLSegment { return intmml.NewSegment(nil) }

// MMLType is the layout byte of a cell read by an = reference.
type MMLType = intmml.Type

const (
	MMLInt8     = intmml.TypeInt8
	MMLInt16    = intmml.TypeInt16
	MMLInt32    = intmml.TypeInt32
	MMLInt64    = intmml.TypeInt64
	MMLUint8    = intmml.TypeUint8
	MMLUint16   = intmml.TypeUint16
	MMLUint32   = intmml.TypeUint32
	MMLUint64   = intmml.TypeUint64
	MMLSingle   = intmml.TypeSingle
	MMLDouble   = intmml.TypeDouble
	MMLExtended = intmml.TypeExtended
)

func MMLBitField(width int, signed bool) MMLType { return intmml.BitField(width, signed) }

// MMLIndirect returns the X packet that plays the string stored at off in
// the engine's segment.
func MMLIndirect(off uint16) string { return intmml.Ref('X', intmml.TypeString, off) }

// MMLLiteral returns the = packet that substitutes the number stored at off.
func MMLLiteral(typ MMLType, off uint16) string { return intmml.Ref('=', typ, off) }

// psgHost connects an interpreter to the raw stream of its handle. The
// engine voice (handle 0) reports the longest queue of all internal voices
// so a multi-voice statement waits for the slowest one.
type psgHost struct {
	e     *Engine
	s     *sound
	group bool
}

func (h *psgHost) Flush() float64 {
	h.s.flushPSG()
	if h.group {
		return h.e.voicesRemaining()
	}
	return h.s.raw.RemainingSeconds()
}

func (h *psgHost) Wait(ctx context.Context, seconds float64) error {
	return h.e.wait(ctx, seconds)
}

// flushPSG queues the PSG render buffer, restarting a stopped voice.
func (s *sound) flushPSG() {
	s.psg.Flush(s.raw)
	if !s.voice.IsPlaying() && !s.voice.IsPaused() {
		s.raw.Resume()
		s.voice.Play()
	}
}

func (e *Engine) psgParams() psg.Params {
	c := e.cfg.file.PSG
	p := psg.DefaultParams()
	p.Amplitude = float64(c.DefaultVolume) / 100
	p.Waveform = psg.Waveform(c.DefaultWaveform)
	p.Seed = c.Seed
	return p
}

func (e *Engine) mmlConfig() intmml.Config {
	c := e.cfg.file.PSG
	cfg := intmml.DefaultConfig()
	cfg.Tempo = c.Tempo
	cfg.Octave = c.Octave
	cfg.Length = c.Length
	cfg.Volume = c.DefaultVolume
	return cfg
}

func (e *Engine) newPSGHandle(internal bool) (Handle, error) {
	h, s, ok := e.allocate()
	if !ok {
		return InvalidHandle, e.lastErr
	}
	e.attachRaw(s)
	s.internal = internal
	s.psg = psg.New(e.sampleRate, e.psgParams())
	host := &psgHost{e: e, s: s, group: internal && len(e.voices) == 0}
	s.interp = intmml.New(s.psg, host, e.mmlConfig())
	s.interp.SetSegment(e.segment)
	return h, nil
}

func (e *Engine) voicesRemaining() float64 {
	var longest float64
	for _, h := range e.voices {
		if s, ok := e.handles.get(h); ok {
			longest = max(longest, s.raw.RemainingSeconds())
		}
	}
	return longest
}

// NewPSG returns a handle with its own PSG voice for PlayMMLOn.
func (e *Engine) NewPSG() Handle {
	h, err := e.newPSGHandle(false)
	if err != nil {
		return InvalidHandle
	}
	return h
}

// SetMMLSegment selects the data area for X and = on every voice.
func (e *Engine) SetMMLSegment(seg *MMLSegment) {
	e.segment = seg
	if !e.initialized {
		return
	}
	for _, s := range e.handles.slots {
		if s.inUse && s.interp != nil {
			s.interp.SetSegment(seg)
		}
	}
}

// PlayMML plays text on the engine voice. In foreground mode (the default,
// switched with MF and MB) it returns after most of the audio has played.
// A syntax error stops the string where it occurred; audio queued by earlier
// statements keeps playing.
func (e *Engine) PlayMML(ctx context.Context, text string) error {
	return e.PlayMMLVoices(ctx, text)
}

// PlayMMLVoices plays one string per voice, all starting together. Voices
// beyond the first are created on demand and always run in background; the
// foreground wait covers the longest voice.
func (e *Engine) PlayMMLVoices(ctx context.Context, texts ...string) error {
	if !e.initialized {
		if e.initErr != nil {
			return e.initErr
		}
		return ErrNotInitialized
	}
	if len(texts) == 0 {
		return nil
	}
	for len(e.voices) < len(texts) {
		h, err := e.newPSGHandle(true)
		if err != nil {
			return err
		}
		e.voices = append(e.voices, h)
	}
	var errs []error
	for i := len(texts) - 1; i >= 1; i-- {
		in := e.handles.slots[e.voices[i]].interp
		in.SetBackground(true)
		if err := in.Play(ctx, texts[i]); err != nil {
			errs = append(errs, fmt.Errorf("voice %d: %w", i, err))
		}
	}
	in := e.handles.slots[e.voices[0]].interp
	if err := in.Play(ctx, texts[0]); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		e.fail(err)
		return err
	}
	return nil
}

// PlayMMLOn plays text on a handle made by NewPSG.
func (e *Engine) PlayMMLOn(ctx context.Context, h Handle, text string) error {
	s, ok := e.lookup(h)
	if !ok {
		return fmt.Errorf("%w: %d", ErrInvalidHandle, h)
	}
	if s.interp == nil {
		err := fmt.Errorf("mml on %d: %w (%s)", h, ErrWrongKind, s.kind)
		e.fail(err)
		return err
	}
	if err := s.interp.Play(ctx, text); err != nil {
		e.fail(err)
		return err
	}
	return nil
}

// ResetMML restores the engine voice's tempo, octave, length, volume and
// mode to their defaults.
func (e *Engine) ResetMML() {
	for _, h := range e.voices {
		if s, ok := e.handles.get(h); ok {
			s.interp.ResetState()
		}
	}
}

// Sound plays a tone of freq Hz for ticks timer ticks (18.2 per second) on
// the engine voice. A frequency of 0 is a rest. It waits like foreground
// MML unless the voice is in background mode.
func (e *Engine) Sound(ctx context.Context, freq, ticks float64) error {
	if !e.initialized {
		return ErrNotInitialized
	}
	if ticks < 0 || ticks > 65535 {
		err := fmt.Errorf("sound: %w: %v ticks", psg.ErrRange, ticks)
		e.fail(err)
		return err
	}
	s := e.handles.slots[e.voices[0]]
	p := s.psg
	seconds := psg.Ticks(ticks)
	if freq == 0 {
		p.GenerateNote(p.Frames(seconds), 0, true)
	} else {
		if err := p.SetFrequency(freq); err != nil {
			err = fmt.Errorf("sound: %w", err)
			e.fail(err)
			return err
		}
		p.Generate(seconds, false)
	}
	s.flushPSG()
	if s.interp.Background() {
		return nil
	}
	return e.wait(ctx, intmml.ForegroundWait(s.raw.RemainingSeconds()))
}

// Beep sounds a short 900 Hz tone.
func (e *Engine) Beep(ctx context.Context) error {
	return e.Sound(ctx, 900, 5)
}

// SetCustomWaveform loads the table played by waveform 10 (@10) on a PSG
// handle.
func (e *Engine) SetCustomWaveform(h Handle, samples []float32) bool {
	s, ok := e.lookup(h)
	if !ok {
		return false
	}
	if s.psg == nil {
		e.fail(fmt.Errorf("custom waveform %d: %w (%s)", h, ErrWrongKind, s.kind))
		return false
	}
	if err := s.psg.SetCustomWaveform(samples); err != nil {
		e.fail(fmt.Errorf("custom waveform %d: %w", h, err))
		return false
	}
	return true
}

// StopMML silences every engine voice and drops the audio they have queued.
func (e *Engine) StopMML() {
	for _, h := range e.voices {
		e.Stop(h)
	}
}

// MMLRemaining is the seconds of audio still queued on the engine voices.
func (e *Engine) MMLRemaining() float64 {
	if !e.initialized {
		return 0
	}
	return e.voicesRemaining()
}
