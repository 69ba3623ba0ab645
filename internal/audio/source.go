package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"
)

var ErrFormat = errors.New("audio: unsupported sample format")

// Source produces interleaved stereo frames for one voice. It reports how
// many frames it wrote and whether it has nothing more to play.
type Source interface {
	Render(dst []float32) (frames int, eos bool)
}

// PCM is raw sample storage: interleaved frames of Channels samples, each
// BitDepth bits wide (8 unsigned, 16 signed little-endian, 32 float).
type PCM struct {
	Channels   int
	BitDepth   int
	SampleRate int
	Data       []byte
}

func NewPCM(frames, channels, bitDepth, sampleRate int) (*PCM, error) {
	if err := checkFormat(channels, bitDepth); err != nil {
		return nil, err
	}
	if frames <= 0 {
		return nil, fmt.Errorf("%w: %d frames", ErrFormat, frames)
	}
	return &PCM{
		Channels:   channels,
		BitDepth:   bitDepth,
		SampleRate: sampleRate,
		Data:       make([]byte, frames*channels*bitDepth/8),
	}, nil
}

// PCMFromFloat32 encodes interleaved float samples as 32-bit PCM.
func PCMFromFloat32(samples []float32, channels, sampleRate int) (*PCM, error) {
	if err := checkFormat(channels, 32); err != nil {
		return nil, err
	}
	data := make([]byte, len(samples)*4)
	for i, v := range samples {
		binary.LittleEndian.PutUint32(data[i*4:], math.Float32bits(v))
	}
	return &PCM{Channels: channels, BitDepth: 32, SampleRate: sampleRate, Data: data}, nil
}

func checkFormat(channels, bitDepth int) error {
	if channels != 1 && channels != 2 {
		return fmt.Errorf("%w: %d channels", ErrFormat, channels)
	}
	switch bitDepth {
	case 8, 16, 32:
		return nil
	default:
		return fmt.Errorf("%w: %d-bit", ErrFormat, bitDepth)
	}
}

// ElementSize is the byte size of one sample of one channel.
func (p *PCM) ElementSize() int { return p.BitDepth / 8 }

func (p *PCM) Frames() int {
	fs := p.Channels * p.ElementSize()
	if fs == 0 {
		return 0
	}
	return len(p.Data) / fs
}

func (p *PCM) sample(i int) float32 {
	switch p.BitDepth {
	case 8:
		return (float32(p.Data[i]) - 128) / 128
	case 16:
		return float32(int16(binary.LittleEndian.Uint16(p.Data[i*2:]))) / 32768
	default:
		return math.Float32frombits(binary.LittleEndian.Uint32(p.Data[i*4:]))
	}
}

// Frame returns the left and right samples of frame i; mono is duplicated.
func (p *PCM) Frame(i int) (l, r float32) {
	base := i * p.Channels
	l = p.sample(base)
	if p.Channels == 1 {
		return l, l
	}
	return l, p.sample(base + 1)
}

// StaticSource plays a PCM buffer from memory. The buffer is read live, so
// edits to its Data are heard on the next render.
type StaticSource struct {
	mu   sync.Mutex
	pcm  *PCM
	pos  int
	loop bool
}

func NewStaticSource(pcm *PCM) *StaticSource {
	return &StaticSource{pcm: pcm}
}

func (s *StaticSource) PCM() *PCM { return s.pcm }

func (s *StaticSource) SetLoop(loop bool) {
	s.mu.Lock()
	s.loop = loop
	s.mu.Unlock()
}

func (s *StaticSource) Looping() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loop
}

// Seek moves the play position to frame, clamped to the buffer.
func (s *StaticSource) Seek(frame int) {
	s.mu.Lock()
	s.pos = max(0, min(frame, s.pcm.Frames()))
	s.mu.Unlock()
}

func (s *StaticSource) Position() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pos
}

func (s *StaticSource) Render(dst []float32) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := s.pcm.Frames()
	want := len(dst) / 2
	n := 0
	for n < want {
		if s.pos >= total {
			if !s.loop || total == 0 {
				break
			}
			s.pos = 0
		}
		l, r := s.pcm.Frame(s.pos)
		dst[n*2] = l
		dst[n*2+1] = r
		s.pos++
		n++
	}
	clear(dst[n*2:])
	return n, n < want
}
