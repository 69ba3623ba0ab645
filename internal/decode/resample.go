package decode

import (
	"errors"
	"io"

	"github.com/gopxl/beep/v2"
)

// ResampleQuality is passed to beep.Resample.
const ResampleQuality = 3

// Reader reads a Decoder at the device rate.
type Reader struct {
	dec    Decoder
	s      beep.Streamer
	err    error
	tmp    []float32
	frames [][2]float64
}

// NewReader wraps dec so that Read yields frames at rate. No resampler is
// inserted when the rates already match.
func NewReader(dec Decoder, rate int) *Reader {
	r := &Reader{dec: dec}
	var s beep.Streamer = beep.StreamerFunc(r.pull)
	if src := dec.Format().SampleRate; src > 0 && rate > 0 && src != rate {
		s = beep.Resample(ResampleQuality, beep.SampleRate(src), beep.SampleRate(rate), s)
	}
	r.s = s
	return r
}

func (r *Reader) pull(samples [][2]float64) (int, bool) {
	if r.err != nil {
		return 0, false
	}
	if cap(r.tmp) < len(samples)*2 {
		r.tmp = make([]float32, len(samples)*2)
	}
	tmp := r.tmp[:len(samples)*2]
	n, err := r.dec.Read(tmp)
	for i := 0; i < n; i++ {
		samples[i][0] = float64(tmp[i*2])
		samples[i][1] = float64(tmp[i*2+1])
	}
	if err != nil {
		r.err = err
		return n, n > 0
	}
	return n, true
}

// Read fills dst with interleaved stereo frames. It returns io.EOF when the
// decoder is exhausted.
func (r *Reader) Read(dst []float32) (int, error) {
	frames := len(dst) / 2
	if frames == 0 {
		return 0, nil
	}
	if cap(r.frames) < frames {
		r.frames = make([][2]float64, frames)
	}
	buf := r.frames[:frames]
	n, ok := r.s.Stream(buf)
	for i := 0; i < n; i++ {
		dst[i*2] = float32(buf[i][0])
		dst[i*2+1] = float32(buf[i][1])
	}
	if !ok || n == 0 {
		if r.err != nil && !errors.Is(r.err, io.EOF) {
			return n, r.err
		}
		return n, io.EOF
	}
	return n, nil
}

// DecodeAll reads the whole of dec at rate.
func DecodeAll(dec Decoder, rate int) ([]float32, error) {
	r := NewReader(dec, rate)
	out := make([]float32, 0, max(0, dec.Len())*2)
	chunk := make([]float32, 4096)
	for {
		n, err := r.Read(chunk)
		out = append(out, chunk[:n*2]...)
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
	}
}
