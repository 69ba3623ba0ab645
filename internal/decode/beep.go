package decode

import (
	"io"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/flac"
	"github.com/gopxl/beep/v2/midi"
	"github.com/gopxl/beep/v2/wav"
)

// SoundFont is the instrument bank used to render MIDI files.
type SoundFont = midi.SoundFont

// LoadSoundFont reads a SoundFont 2 bank. The caller keeps ownership of r.
func LoadSoundFont(r io.Reader) (*SoundFont, error) {
	return midi.NewSoundFont(io.NopCloser(r))
}

type wavBackend struct{}

func (wavBackend) Name() string        { return "wav" }
func (wavBackend) Match(h []byte) bool { return isWAV(h) }
func (wavBackend) Open(r io.ReadSeekCloser) (Decoder, error) {
	s, f, err := wav.Decode(noClose{r})
	if err != nil {
		return nil, err
	}
	return newBeepDecoder(s, f, r), nil
}

type flacBackend struct{}

func (flacBackend) Name() string        { return "flac" }
func (flacBackend) Match(h []byte) bool { return isFLAC(h) }
func (flacBackend) Open(r io.ReadSeekCloser) (Decoder, error) {
	s, f, err := flac.Decode(noClose{r})
	if err != nil {
		return nil, err
	}
	return newBeepDecoder(s, f, r), nil
}

// MIDI is synthesized at a fixed rate; the engine resamples as needed.
const midiSampleRate = 44100

type midiBackend struct{ sf *SoundFont }

func (midiBackend) Name() string        { return "midi" }
func (midiBackend) Match(h []byte) bool { return isMIDI(h) }
func (b midiBackend) Open(r io.ReadSeekCloser) (Decoder, error) {
	s, f, err := midi.Decode(io.NopCloser(r), b.sf, beep.SampleRate(midiSampleRate))
	if err != nil {
		return nil, err
	}
	return newBeepDecoder(s, f, r), nil
}

// noClose keeps beep decoders from closing the source; beepDecoder.Close
// owns that.
type noClose struct{ io.ReadSeeker }

// beepDecoder adapts a beep streamer to Decoder. The streamer is closed only
// when it implements io.Closer; the midi decoder does not.
type beepDecoder struct {
	s      beep.StreamSeeker
	format Format
	src    io.Closer
	buf    [][2]float64
}

func newBeepDecoder(s beep.StreamSeeker, f beep.Format, src io.Closer) *beepDecoder {
	st := SampleFloat32
	switch f.Precision {
	case 2:
		st = SampleInt16
	case 3:
		st = SampleInt24
	}
	return &beepDecoder{
		s:   s,
		src: src,
		format: Format{
			SampleRate: int(f.SampleRate),
			Channels:   f.NumChannels,
			SampleType: st,
		},
	}
}

func (d *beepDecoder) Format() Format { return d.format }

func (d *beepDecoder) Read(dst []float32) (int, error) {
	frames := len(dst) / 2
	if frames == 0 {
		return 0, nil
	}
	if cap(d.buf) < frames {
		d.buf = make([][2]float64, frames)
	}
	buf := d.buf[:frames]
	n, ok := d.s.Stream(buf)
	for i := 0; i < n; i++ {
		dst[i*2] = float32(buf[i][0])
		dst[i*2+1] = float32(buf[i][1])
	}
	if !ok || n == 0 {
		if err := d.s.Err(); err != nil {
			return n, err
		}
		return n, io.EOF
	}
	return n, nil
}

func (d *beepDecoder) Seek(frame int) error {
	return d.s.Seek(max(0, min(frame, d.s.Len())))
}

func (d *beepDecoder) Tell() int { return d.s.Position() }

func (d *beepDecoder) Len() int { return d.s.Len() }

func (d *beepDecoder) Close() error {
	var err error
	if c, ok := d.s.(io.Closer); ok {
		err = c.Close()
	}
	if cerr := d.src.Close(); err == nil {
		err = cerr
	}
	return err
}
