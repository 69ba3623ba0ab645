// Package effects holds master-bus processors applied to the mixed output.
package effects

// Effect processes interleaved stereo samples in place.
type Effect interface {
	Apply(buf []float32)
	Reset()
}

// Chain runs effects in order. A nil or empty chain passes audio through.
type Chain []Effect

func (c Chain) Apply(buf []float32) {
	for _, e := range c {
		e.Apply(buf)
	}
}

func (c Chain) Reset() {
	for _, e := range c {
		e.Reset()
	}
}

func clamp(v, lo, hi float32) float32 {
	return max(lo, min(v, hi))
}

// line is a circular delay line.
type line struct {
	buf []float32
	pos int
}

func newLine(n int) line { return line{buf: make([]float32, max(n, 1))} }

// swap returns the oldest sample and stores in.
func (d *line) swap(in float32) float32 {
	out := d.buf[d.pos]
	d.buf[d.pos] = in
	d.pos++
	if d.pos == len(d.buf) {
		d.pos = 0
	}
	return out
}

func (d *line) reset() {
	clear(d.buf)
	d.pos = 0
}
