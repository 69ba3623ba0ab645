// Package psg is a programmable sound generator: a single voice that renders
// periodic, noise and custom waveforms shaped by an ADSR envelope into a
// stereo render buffer, which is then flushed into a raw stream.
package psg

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"github.com/cbegin/psgengine-go/internal/rawstream"
)

const twoPi = math.Pi * 2

// TicksPerSecond is the rate of the PC timer used by the SOUND statement.
const TicksPerSecond = 18.2065

const (
	MinFrequency     = 20
	MaxFrequency     = 32767
	silentFrequency  = 20000
	minCustomSamples = 2
)

var (
	ErrRange    = errors.New("psg: value out of range")
	ErrTooSmall = errors.New("psg: custom waveform too small")
)

type Waveform int

const (
	None Waveform = iota
	Square
	Sawtooth
	Triangle
	Sine
	NoiseWhite
	NoisePink
	NoiseBrownian
	NoiseLFSR
	Pulse
	Custom
)

func (w Waveform) String() string {
	switch w {
	case None:
		return "none"
	case Square:
		return "square"
	case Sawtooth:
		return "sawtooth"
	case Triangle:
		return "triangle"
	case Sine:
		return "sine"
	case NoiseWhite:
		return "white"
	case NoisePink:
		return "pink"
	case NoiseBrownian:
		return "brownian"
	case NoiseLFSR:
		return "lfsr"
	case Pulse:
		return "pulse"
	case Custom:
		return "custom"
	default:
		return fmt.Sprintf("waveform(%d)", int(w))
	}
}

type Params struct {
	Amplitude float64
	Waveform  Waveform
	Seed      int64
}

func DefaultParams() Params {
	return Params{
		Amplitude: 0.5,
		Waveform:  Square,
		Seed:      1,
	}
}

type PSG struct {
	sampleRate int
	waveform   Waveform
	freq       float64
	amplitude  float64
	pan        float64
	gainL      float64
	gainR      float64
	param      float64
	custom     []float32
	env        Envelope

	phase float64
	rng   *rand.Rand
	pink  [7]float64
	brown float64
	lfsr  uint16

	buf     []rawstream.Frame
	cursor  int
	scratch []float64
}

func New(sampleRate int, params Params) *PSG {
	if sampleRate <= 0 {
		sampleRate = 44100
	}
	if params.Waveform < Square || params.Waveform > Custom {
		params.Waveform = Square
	}
	p := &PSG{
		sampleRate: sampleRate,
		waveform:   params.Waveform,
		freq:       440,
		amplitude:  clamp(params.Amplitude, 0, 1),
		param:      0.5,
		env:        DefaultEnvelope(),
		rng:        rand.New(rand.NewSource(params.Seed)),
		lfsr:       1,
	}
	p.SetPanPosition(0)
	return p
}

func (p *PSG) SampleRate() int { return p.sampleRate }

// SetFrequency selects the oscillator pitch. Frequencies from 20 kHz upward
// are accepted but render silence.
func (p *PSG) SetFrequency(hz float64) error {
	if hz < MinFrequency || hz > MaxFrequency || math.IsNaN(hz) {
		return fmt.Errorf("%w: frequency %v", ErrRange, hz)
	}
	p.freq = hz
	return nil
}

func (p *PSG) Frequency() float64 { return p.freq }

func (p *PSG) SetAmplitude(a float64) { p.amplitude = clamp(a, 0, 1) }

func (p *PSG) Amplitude() float64 { return p.amplitude }

// SetPanPosition places the voice between -1 (left) and 1 (right) using an
// equal-power law.
func (p *PSG) SetPanPosition(pos float64) {
	p.pan = clamp(pos, -1, 1)
	p.gainL, p.gainR = PanGains(p.pan)
}

func (p *PSG) PanPosition() float64 { return p.pan }

func (p *PSG) Gains() (l, r float64) { return p.gainL, p.gainR }

func (p *PSG) SetWaveformType(w Waveform) error {
	if w < Square || w > Custom {
		return fmt.Errorf("%w: waveform %d", ErrRange, int(w))
	}
	p.waveform = w
	return nil
}

func (p *PSG) WaveformType() Waveform { return p.waveform }

// SetWaveformParameter sets the generic shape control in [0,1]: the duty
// cycle for Pulse, and short-period mode (above 0.5) for NoiseLFSR.
func (p *PSG) SetWaveformParameter(v float64) { p.param = clamp(v, 0, 1) }

func (p *PSG) WaveformParameter() float64 { return p.param }

// SetCustomWaveform copies samples into the custom waveform table.
func (p *PSG) SetCustomWaveform(samples []float32) error {
	if len(samples) < minCustomSamples {
		return fmt.Errorf("%w: %d samples", ErrTooSmall, len(samples))
	}
	p.custom = append(p.custom[:0], samples...)
	return nil
}

func (p *PSG) SetEnvelope(e Envelope) { p.env = e.normalized() }

func (p *PSG) Envelope() Envelope { return p.env }

// Generate renders seconds of the current voice at the write cursor and
// advances it. With mix set the note is added to what is already in the
// buffer; otherwise it replaces it.
func (p *PSG) Generate(seconds float64, mix bool) int {
	n := p.Frames(seconds)
	p.render(n, n, mix, true)
	return n
}

// GenerateNote mixes sounding frames at the cursor, grows the buffer to
// cover total frames, and advances the cursor by total when advance is set.
func (p *PSG) GenerateNote(total, sounding int, advance bool) int {
	if sounding > total {
		sounding = total
	}
	p.render(total, sounding, true, advance)
	return total
}

// Frames converts a duration to a frame count at the generator's rate.
func (p *PSG) Frames(seconds float64) int {
	if seconds <= 0 {
		return 0
	}
	return int(math.Round(seconds * float64(p.sampleRate)))
}

func (p *PSG) render(total, sounding int, mix, advance bool) {
	if total <= 0 {
		return
	}
	end := p.cursor + total
	if end > len(p.buf) {
		p.buf = append(p.buf, make([]rawstream.Frame, end-len(p.buf))...)
	}
	if sounding > 0 {
		if cap(p.scratch) < sounding {
			p.scratch = make([]float64, sounding)
		}
		s := p.scratch[:sounding]
		p.oscillate(s)
		p.applyEnvelope(s)
		gl := p.amplitude * p.gainL
		gr := p.amplitude * p.gainR
		dst := p.buf[p.cursor : p.cursor+sounding]
		for i, v := range s {
			l := float32(v * gl)
			r := float32(v * gr)
			if mix {
				dst[i].L += l
				dst[i].R += r
			} else {
				dst[i] = rawstream.Frame{L: l, R: r}
			}
		}
		if !mix {
			clear(p.buf[p.cursor+sounding : end])
		}
	}
	if advance {
		p.cursor = end
	}
}

// Len is the number of frames in the render buffer.
func (p *PSG) Len() int { return len(p.buf) }

func (p *PSG) Cursor() int { return p.cursor }

// Buffer exposes the pending render buffer.
func (p *PSG) Buffer() []rawstream.Frame { return p.buf }

// Flush queues the render buffer onto stream and resets it. It returns the
// number of seconds queued.
func (p *PSG) Flush(stream *rawstream.Stream) float64 {
	n := len(p.buf)
	if n == 0 {
		return 0
	}
	if stream != nil {
		stream.PushBatch(p.buf, 1, 1)
	}
	p.Reset()
	return float64(n) / float64(p.sampleRate)
}

// Reset discards the render buffer without queuing it.
func (p *PSG) Reset() {
	p.buf = p.buf[:0]
	p.cursor = 0
}

// Ticks converts PC timer ticks to seconds.
func Ticks(ticks float64) float64 { return ticks / TicksPerSecond }

func clamp(v, lo, hi float64) float64 {
	if v < lo || math.IsNaN(v) {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
