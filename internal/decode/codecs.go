package decode

import (
	"encoding/binary"
	"io"

	"github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"
)

type oggBackend struct{}

func (oggBackend) Name() string        { return "ogg" }
func (oggBackend) Match(h []byte) bool { return isOgg(h) }
func (oggBackend) Open(r io.ReadSeekCloser) (Decoder, error) {
	or, err := oggvorbis.NewReader(r)
	if err != nil {
		return nil, err
	}
	return &oggDecoder{r: or, src: r}, nil
}

type oggDecoder struct {
	r   *oggvorbis.Reader
	src io.Closer
	buf []float32
}

func (d *oggDecoder) Format() Format {
	return Format{SampleRate: d.r.SampleRate(), Channels: d.r.Channels(), SampleType: SampleFloat32}
}

func (d *oggDecoder) Read(dst []float32) (int, error) {
	ch := d.r.Channels()
	frames := len(dst) / 2
	if frames == 0 || ch <= 0 {
		return 0, nil
	}
	need := frames * ch
	if cap(d.buf) < need {
		d.buf = make([]float32, need)
	}
	n, err := d.r.Read(d.buf[:need])
	got := n / ch
	spread(dst, d.buf[:got*ch], ch)
	if got == 0 && err == nil {
		err = io.EOF
	}
	return got, err
}

func (d *oggDecoder) Seek(frame int) error { return d.r.SetPosition(int64(max(0, frame))) }
func (d *oggDecoder) Tell() int            { return int(d.r.Position()) }
func (d *oggDecoder) Len() int             { return int(d.r.Length()) }
func (d *oggDecoder) Close() error         { return d.src.Close() }

// spread writes interleaved samples of ch channels into stereo dst.
func spread(dst, src []float32, ch int) {
	frames := len(src) / ch
	for i := 0; i < frames; i++ {
		l := src[i*ch]
		r := l
		if ch > 1 {
			r = src[i*ch+1]
		}
		dst[i*2] = l
		dst[i*2+1] = r
	}
}

type mp3Backend struct{}

func (mp3Backend) Name() string        { return "mp3" }
func (mp3Backend) Match(h []byte) bool { return isMP3(h) }
func (mp3Backend) Open(r io.ReadSeekCloser) (Decoder, error) {
	d, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, err
	}
	return &mp3Decoder{d: d, src: r}, nil
}

// go-mp3 always produces 16-bit little-endian stereo.
const mp3FrameBytes = 4

type mp3Decoder struct {
	d   *mp3.Decoder
	src io.Closer
	buf []byte
	pos int
}

func (d *mp3Decoder) Format() Format {
	return Format{SampleRate: d.d.SampleRate(), Channels: 2, SampleType: SampleInt16}
}

func (d *mp3Decoder) Read(dst []float32) (int, error) {
	frames := len(dst) / 2
	if frames == 0 {
		return 0, nil
	}
	need := frames * mp3FrameBytes
	if cap(d.buf) < need {
		d.buf = make([]byte, need)
	}
	n, err := io.ReadFull(d.d, d.buf[:need])
	got := n / mp3FrameBytes
	for i := 0; i < got*2; i++ {
		dst[i] = float32(int16(binary.LittleEndian.Uint16(d.buf[i*2:]))) / 32768
	}
	d.pos += got
	if err == io.ErrUnexpectedEOF {
		err = nil
	}
	if got == 0 && err == nil {
		err = io.EOF
	}
	return got, err
}

func (d *mp3Decoder) Seek(frame int) error {
	pos, err := d.d.Seek(int64(max(0, frame))*mp3FrameBytes, io.SeekStart)
	if err != nil {
		return err
	}
	d.pos = int(pos / mp3FrameBytes)
	return nil
}

func (d *mp3Decoder) Tell() int { return d.pos }

func (d *mp3Decoder) Len() int {
	if n := d.d.Length(); n >= 0 {
		return int(n / mp3FrameBytes)
	}
	return -1
}

func (d *mp3Decoder) Close() error { return d.src.Close() }
