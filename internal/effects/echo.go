package effects

// Echo repeats the signal after a fixed delay, each repeat scaled by
// feedback. Cross sends part of each repeat to the opposite channel.
type Echo struct {
	l, r     line
	feedback float32
	cross    float32
	wet      float32
}

func NewEcho(sampleRate int, delayMs float64, feedback, cross, wet float32) *Echo {
	n := int(delayMs * float64(sampleRate) / 1000)
	return &Echo{
		l:        newLine(n),
		r:        newLine(n),
		feedback: clamp(feedback, 0, 0.95),
		cross:    clamp(cross, 0, 1),
		wet:      clamp(wet, 0, 1),
	}
}

func (e *Echo) Apply(buf []float32) {
	for i := 0; i+1 < len(buf); i += 2 {
		inL, inR := buf[i], buf[i+1]
		dl := e.l.buf[e.l.pos]
		dr := e.r.buf[e.r.pos]
		same, other := e.feedback*(1-e.cross), e.feedback*e.cross
		e.l.swap(inL + dl*same + dr*other)
		e.r.swap(inR + dr*same + dl*other)
		buf[i] = inL*(1-e.wet) + dl*e.wet
		buf[i+1] = inR*(1-e.wet) + dr*e.wet
	}
}

func (e *Echo) Reset() {
	e.l.reset()
	e.r.reset()
}
