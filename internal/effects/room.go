package effects

// Room is a Schroeder reverberator: four parallel combs into two allpass
// stages, fed from the mono sum.
type Room struct {
	combs   [4]line
	allpass [2]line
	fb      float32
	wet     float32
}

var (
	combRatios    = [4]int{1000, 1117, 1271, 1437}
	allpassRatios = [2]int{347, 213}
)

// NewRoom sizes the combs from size (0..1, up to 50 ms) and sets their
// feedback from decay.
func NewRoom(sampleRate int, size, decay, wet float32) *Room {
	base := max(int(float32(sampleRate)*clamp(size, 0, 1)*0.05), 10)
	r := &Room{fb: clamp(decay, 0, 0.95), wet: clamp(wet, 0, 1)}
	for i, ratio := range combRatios {
		r.combs[i] = newLine(base * ratio / 1000)
	}
	for i, ratio := range allpassRatios {
		r.allpass[i] = newLine(base * ratio / 1000)
	}
	return r
}

func (r *Room) Apply(buf []float32) {
	for i := 0; i+1 < len(buf); i += 2 {
		mono := (buf[i] + buf[i+1]) * 0.5
		var tail float32
		for c := range r.combs {
			d := &r.combs[c]
			out := d.buf[d.pos]
			d.swap(mono + out*r.fb)
			tail += out
		}
		tail *= 0.25
		for a := range r.allpass {
			d := &r.allpass[a]
			out := d.buf[d.pos]
			d.swap(tail + out*0.5)
			tail = out - tail
		}
		buf[i] = buf[i]*(1-r.wet) + tail*r.wet
		buf[i+1] = buf[i+1]*(1-r.wet) + tail*r.wet
	}
}

func (r *Room) Reset() {
	for i := range r.combs {
		r.combs[i].reset()
	}
	for i := range r.allpass {
		r.allpass[i].reset()
	}
}
