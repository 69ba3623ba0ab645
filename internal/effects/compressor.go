package effects

import "math"

// Compressor reduces gain above a threshold with a per-channel envelope
// follower, then applies makeup gain.
type Compressor struct {
	threshold float32
	slope     float64
	attack    float32
	release   float32
	makeup    float32
	env       [2]float32
}

// NewCompressor takes the threshold and makeup gain in dB and the envelope
// times in milliseconds. A ratio below 1 is treated as 1 (no compression).
func NewCompressor(sampleRate int, thresholdDB, ratio, attackMs, releaseMs, makeupDB float64) *Compressor {
	coeff := func(ms float64) float32 {
		return float32(1 - math.Exp(-1/(max(ms, 0.01)*float64(sampleRate)/1000)))
	}
	return &Compressor{
		threshold: float32(dbToGain(thresholdDB)),
		slope:     1/max(ratio, 1) - 1,
		attack:    coeff(attackMs),
		release:   coeff(releaseMs),
		makeup:    float32(dbToGain(makeupDB)),
	}
}

func dbToGain(db float64) float64 { return math.Pow(10, db/20) }

func (c *Compressor) Apply(buf []float32) {
	for i, s := range buf {
		ch := i & 1
		level := float32(math.Abs(float64(s)))
		k := c.release
		if level > c.env[ch] {
			k = c.attack
		}
		c.env[ch] += k * (level - c.env[ch])
		buf[i] = s * c.gain(c.env[ch]) * c.makeup
	}
}

func (c *Compressor) gain(env float32) float32 {
	if env <= c.threshold || c.threshold <= 0 {
		return 1
	}
	return float32(math.Pow(float64(env/c.threshold), c.slope))
}

func (c *Compressor) Reset() { c.env = [2]float32{} }
