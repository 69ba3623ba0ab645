// Package decode turns compressed or container audio into float32 frames.
// Backends are tried in priority order; each one checks the stream's magic
// bytes before handing it to its codec library.
package decode

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log"
)

var ErrUnsupported = errors.New("decode: unsupported format")

type SampleType int

const (
	SampleInt16 SampleType = iota + 1
	SampleInt24
	SampleFloat32
)

func (t SampleType) String() string {
	switch t {
	case SampleInt16:
		return "int16"
	case SampleInt24:
		return "int24"
	case SampleFloat32:
		return "float32"
	default:
		return "unknown"
	}
}

type Format struct {
	SampleRate int
	Channels   int
	SampleType SampleType
}

// Decoder yields interleaved stereo frames whatever the source layout; mono
// input is duplicated into both channels.
type Decoder interface {
	Format() Format
	// Read fills dst and returns the number of frames written. It returns
	// io.EOF once no frames remain.
	Read(dst []float32) (int, error)
	Seek(frame int) error
	Tell() int
	// Len is the total number of frames, or -1 when unknown.
	Len() int
	Close() error
}

type Backend interface {
	Name() string
	// Match reports whether header (the first bytes of the stream) looks
	// like this backend's format.
	Match(header []byte) bool
	Open(r io.ReadSeekCloser) (Decoder, error)
}

const headerSize = 12

// Registry tries its backends in order.
type Registry struct {
	backends []Backend
	log      *log.Logger
}

// NewRegistry returns the default backends: WAV, FLAC, Ogg Vorbis, MP3, and
// MIDI when a SoundFont is given.
func NewRegistry(logger *log.Logger, soundFont *SoundFont) *Registry {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	r := &Registry{log: logger}
	r.Register(wavBackend{})
	r.Register(flacBackend{})
	r.Register(oggBackend{})
	r.Register(mp3Backend{})
	if soundFont != nil {
		r.Register(midiBackend{sf: soundFont})
	}
	return r
}

func (r *Registry) Register(b Backend) { r.backends = append(r.backends, b) }

func (r *Registry) Backends() []string {
	names := make([]string, len(r.backends))
	for i, b := range r.backends {
		names[i] = b.Name()
	}
	return names
}

// Open picks the first backend that accepts src. src is rewound before
// every attempt. On failure src is left open for the caller to close.
func (r *Registry) Open(src io.ReadSeekCloser) (Decoder, error) {
	header := make([]byte, headerSize)
	n, err := io.ReadFull(src, header)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty stream", ErrUnsupported)
		}
		return nil, err
	}
	header = header[:n]
	var errs []error
	for _, b := range r.backends {
		if !b.Match(header) {
			continue
		}
		if _, err := src.Seek(0, io.SeekStart); err != nil {
			return nil, err
		}
		dec, err := b.Open(src)
		if err == nil {
			return dec, nil
		}
		r.log.Printf("decode: %s backend rejected stream: %v", b.Name(), err)
		errs = append(errs, fmt.Errorf("%s: %w", b.Name(), err))
	}
	if len(errs) == 0 {
		return nil, ErrUnsupported
	}
	return nil, fmt.Errorf("%w: %w", ErrUnsupported, errors.Join(errs...))
}

func isWAV(h []byte) bool {
	return len(h) >= 12 && bytes.Equal(h[:4], []byte("RIFF")) && bytes.Equal(h[8:12], []byte("WAVE"))
}

func isFLAC(h []byte) bool { return bytes.HasPrefix(h, []byte("fLaC")) }

func isOgg(h []byte) bool { return bytes.HasPrefix(h, []byte("OggS")) }

func isMIDI(h []byte) bool { return bytes.HasPrefix(h, []byte("MThd")) }

func isMP3(h []byte) bool {
	if bytes.HasPrefix(h, []byte("ID3")) {
		return true
	}
	return len(h) >= 2 && h[0] == 0xFF && h[1]&0xE0 == 0xE0
}
