package psg

import "math"

func (p *PSG) oscillate(dst []float64) {
	if p.waveform == None || p.freq >= silentFrequency {
		clear(dst)
		return
	}
	dt := p.freq / float64(p.sampleRate)
	switch p.waveform {
	case NoiseWhite:
		for i := range dst {
			dst[i] = p.white()
		}
		return
	case NoisePink:
		for i := range dst {
			dst[i] = p.pinkSample()
		}
		return
	case NoiseBrownian:
		for i := range dst {
			dst[i] = p.brownSample()
		}
		return
	}
	for i := range dst {
		dst[i] = p.periodic(dt)
		p.phase += dt
		if p.phase >= 1 {
			p.phase -= math.Floor(p.phase)
			if p.waveform == NoiseLFSR {
				p.clockLFSR()
			}
		}
	}
}

func (p *PSG) periodic(dt float64) float64 {
	ph := p.phase
	switch p.waveform {
	case Square:
		if ph < 0.5 {
			return 1
		}
		return -1
	case Sawtooth:
		return 2*ph - 1
	case Triangle:
		return 2*math.Abs(2*ph-1) - 1
	case Sine:
		return math.Sin(twoPi * ph)
	case Pulse:
		if ph < clamp(p.param, 0.01, 0.99) {
			return 1
		}
		return -1
	case NoiseLFSR:
		if p.lfsr&1 == 1 {
			return -1
		}
		return 1
	case Custom:
		return p.customSample(ph)
	default:
		return 0
	}
}

// clockLFSR advances a 15-bit register with the feedback tap at bit 1, or at
// bit 6 in short mode, which yields a 93-step metallic sequence.
func (p *PSG) clockLFSR() {
	tap := uint16(1)
	if p.param > 0.5 {
		tap = 6
	}
	fb := (p.lfsr ^ (p.lfsr >> tap)) & 1
	p.lfsr = (p.lfsr >> 1) | (fb << 14)
	if p.lfsr == 0 {
		p.lfsr = 1
	}
}

func (p *PSG) customSample(ph float64) float64 {
	n := len(p.custom)
	if n < minCustomSamples {
		return 0
	}
	pos := ph * float64(n)
	i := int(pos)
	if i >= n {
		i = n - 1
	}
	frac := pos - float64(i)
	a := float64(p.custom[i])
	b := float64(p.custom[(i+1)%n])
	return a + (b-a)*frac
}

func (p *PSG) white() float64 { return p.rng.Float64()*2 - 1 }

// pinkSample uses Paul Kellet's refined filter.
func (p *PSG) pinkSample() float64 {
	w := p.white()
	b := &p.pink
	b[0] = 0.99886*b[0] + w*0.0555179
	b[1] = 0.99332*b[1] + w*0.0750759
	b[2] = 0.96900*b[2] + w*0.1538520
	b[3] = 0.86650*b[3] + w*0.3104856
	b[4] = 0.55000*b[4] + w*0.5329522
	b[5] = -0.7616*b[5] - w*0.0168980
	out := b[0] + b[1] + b[2] + b[3] + b[4] + b[5] + b[6] + w*0.5362
	b[6] = w * 0.115926
	return clamp(out*0.11, -1, 1)
}

func (p *PSG) brownSample() float64 {
	p.brown = (p.brown + 0.02*p.white()) / 1.02
	return clamp(p.brown*3.5, -1, 1)
}
