package audio

import (
	"sync"
)

// Voice is one playing source inside a Mixer. Its controls are set from the
// caller goroutine and read by the device goroutine.
type Voice struct {
	mu       sync.Mutex
	src      Source
	volume   float32
	gainL    float32
	gainR    float32
	playing  bool
	paused   bool
	finished bool
}

func (v *Voice) Source() Source { return v.src }

func (v *Voice) Play() {
	v.mu.Lock()
	v.playing = true
	v.paused = false
	v.finished = false
	v.mu.Unlock()
}

func (v *Voice) Pause() {
	v.mu.Lock()
	v.paused = true
	v.mu.Unlock()
}

// Stop halts the voice; Play restarts it from wherever its source stands.
func (v *Voice) Stop() {
	v.mu.Lock()
	v.playing = false
	v.paused = false
	v.mu.Unlock()
}

func (v *Voice) SetVolume(vol float32) {
	v.mu.Lock()
	v.volume = max(0, min(vol, 1))
	v.mu.Unlock()
}

func (v *Voice) Volume() float32 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.volume
}

// SetGains sets the per-channel pan gains.
func (v *Voice) SetGains(l, r float32) {
	v.mu.Lock()
	v.gainL, v.gainR = l, r
	v.mu.Unlock()
}

func (v *Voice) IsPlaying() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.playing && !v.paused
}

func (v *Voice) IsPaused() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.playing && v.paused
}

// Finished reports whether the source ran out while the voice was playing.
func (v *Voice) Finished() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.finished
}

type voiceParams struct {
	active       bool
	volume       float32
	gainL, gainR float32
}

func (v *Voice) params() voiceParams {
	v.mu.Lock()
	defer v.mu.Unlock()
	return voiceParams{
		active: v.playing && !v.paused,
		volume: v.volume,
		gainL:  v.gainL,
		gainR:  v.gainR,
	}
}

func (v *Voice) markFinished() {
	v.mu.Lock()
	v.playing = false
	v.finished = true
	v.mu.Unlock()
}

// Post processes the mixed buffer before it is clamped.
type Post interface {
	Apply(buf []float32)
}

// Mixer sums every playing voice into the device buffer.
type Mixer struct {
	mu         sync.Mutex
	post       Post
	voices     []*Voice
	snapshot   []*Voice
	scratch    []float32
	sampleRate int
}

func NewMixer(sampleRate int) *Mixer {
	return &Mixer{sampleRate: sampleRate}
}

func (m *Mixer) SampleRate() int { return m.sampleRate }

// NewVoice registers src with unity volume and centred equal gains.
func (m *Mixer) NewVoice(src Source) *Voice {
	v := &Voice{src: src, volume: 1, gainL: 1, gainR: 1}
	m.mu.Lock()
	m.voices = append(m.voices, v)
	m.mu.Unlock()
	return v
}

// SetPost installs a master-bus processor; nil removes it.
func (m *Mixer) SetPost(p Post) {
	m.mu.Lock()
	m.post = p
	m.mu.Unlock()
}

func (m *Mixer) Remove(v *Voice) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, x := range m.voices {
		if x == v {
			m.voices = append(m.voices[:i], m.voices[i+1:]...)
			return
		}
	}
}

func (m *Mixer) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.voices)
}

// Process implements SampleSource.
func (m *Mixer) Process(dst []float32) {
	m.mu.Lock()
	m.snapshot = append(m.snapshot[:0], m.voices...)
	post := m.post
	m.mu.Unlock()

	clear(dst)
	if cap(m.scratch) < len(dst) {
		m.scratch = make([]float32, len(dst))
	}
	buf := m.scratch[:len(dst)]
	for _, v := range m.snapshot {
		p := v.params()
		if !p.active {
			continue
		}
		n, eos := v.src.Render(buf)
		gl := p.volume * p.gainL
		gr := p.volume * p.gainR
		for i := 0; i < n; i++ {
			dst[i*2] += buf[i*2] * gl
			dst[i*2+1] += buf[i*2+1] * gr
		}
		if eos {
			v.markFinished()
		}
	}
	if post != nil {
		post.Apply(dst)
	}
	for i, s := range dst {
		dst[i] = max(-1, min(s, 1))
	}
	clear(m.snapshot)
}
