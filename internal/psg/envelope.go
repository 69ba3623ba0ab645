package psg

import "math"

// Envelope holds ADSR proportions. Attack, Decay and Release are fractions of
// the note length; Sustain is the level held between decay and release.
type Envelope struct {
	Attack  float64
	Decay   float64
	Sustain float64
	Release float64
}

func DefaultEnvelope() Envelope {
	return Envelope{Sustain: 1}
}

// Ramp is the symmetric envelope used by the MML Q command.
func Ramp(fraction float64) Envelope {
	f := clamp(fraction, 0, 1) / 2
	return Envelope{Attack: f, Sustain: 1, Release: f}
}

func (e Envelope) normalized() Envelope {
	e.Attack = clamp(e.Attack, 0, 1)
	e.Decay = clamp(e.Decay, 0, 1)
	e.Sustain = clamp(e.Sustain, 0, 1)
	e.Release = clamp(e.Release, 0, 1)
	return e
}

// Frames splits n frames into attack, decay, sustain and release
// phases. The phases always sum to n; when the requested proportions exceed
// the note they are scaled down to fit.
func (e Envelope) Frames(n int) (a, d, s, r int) {
	if n <= 0 {
		return 0, 0, 0, 0
	}
	fa := e.Attack * float64(n)
	fd := e.Decay * float64(n)
	fr := e.Release * float64(n)
	if sum := fa + fd + fr; sum > float64(n) {
		k := float64(n) / sum
		fa, fd, fr = fa*k, fd*k, fr*k
	}
	a = int(math.Round(fa))
	d = int(math.Round(fd))
	r = int(math.Round(fr))
	for a+d+r > n {
		switch {
		case r > 0:
			r--
		case d > 0:
			d--
		default:
			a--
		}
	}
	s = n - a - d - r
	return a, d, s, r
}

func (p *PSG) EnvelopeFrames(n int) (a, d, s, r int) { return p.env.Frames(n) }

func (p *PSG) applyEnvelope(dst []float64) {
	e := p.env
	a, d, s, r := e.Frames(len(dst))
	i := 0
	for k := 0; k < a; k, i = k+1, i+1 {
		dst[i] *= float64(k+1) / float64(a)
	}
	for k := 0; k < d; k, i = k+1, i+1 {
		t := float64(k+1) / float64(d)
		dst[i] *= 1 + (e.Sustain-1)*t
	}
	for k := 0; k < s; k, i = k+1, i+1 {
		dst[i] *= e.Sustain
	}
	for k := 0; k < r; k, i = k+1, i+1 {
		dst[i] *= e.Sustain * (1 - float64(k+1)/float64(r))
	}
}
