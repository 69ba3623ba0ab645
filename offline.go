package psgengine

import (
	"context"
	"encoding/binary"
	"math"

	intmml "github.com/cbegin/psgengine-go/internal/mml"
	"github.com/cbegin/psgengine-go/internal/psg"
	"github.com/cbegin/psgengine-go/internal/rawstream"
)

// offlineHost collects flushed audio without waiting.
type offlineHost struct {
	voice  *psg.PSG
	stream *rawstream.Stream
}

func (h *offlineHost) Flush() float64 {
	h.voice.Flush(h.stream)
	return 0
}

func (h *offlineHost) Wait(context.Context, float64) error { return nil }

// RenderMML renders text on a fresh PSG voice and returns interleaved stereo
// samples. Foreground and background modes render identically.
func RenderMML(text string, sampleRate int) ([]float32, error) {
	return RenderMMLVoices(sampleRate, text)
}

// RenderMMLVoices renders one string per voice and mixes them, clamped to
// the -1..1 range.
func RenderMMLVoices(sampleRate int, texts ...string) ([]float32, error) {
	var out []float32
	for _, text := range texts {
		samples, err := renderVoice(text, sampleRate)
		if err != nil {
			return nil, err
		}
		if len(samples) > len(out) {
			out = append(out, make([]float32, len(samples)-len(out))...)
		}
		for i, v := range samples {
			out[i] += v
		}
	}
	for i, v := range out {
		out[i] = max(-1, min(v, 1))
	}
	return out, nil
}

func renderVoice(text string, sampleRate int) ([]float32, error) {
	voice := psg.New(sampleRate, psg.DefaultParams())
	host := &offlineHost{voice: voice, stream: rawstream.New(sampleRate)}
	in := intmml.New(voice, host, intmml.DefaultConfig())
	if err := in.Play(context.Background(), text); err != nil {
		return nil, err
	}
	out := make([]float32, host.stream.RemainingFrames()*2)
	host.stream.Render(out)
	return out, nil
}

func EncodeWAVFloat32LE(samples []float32, sampleRate int, channels int) []byte {
	dataSize := len(samples) * 4
	byteRate := sampleRate * channels * 4
	blockAlign := channels * 4
	chunkSize := 36 + dataSize
	out := make([]byte, 44+dataSize)
	copy(out[0:], []byte("RIFF"))
	binary.LittleEndian.PutUint32(out[4:], uint32(chunkSize))
	copy(out[8:], []byte("WAVE"))
	copy(out[12:], []byte("fmt "))
	binary.LittleEndian.PutUint32(out[16:], 16)
	binary.LittleEndian.PutUint16(out[20:], 3)
	binary.LittleEndian.PutUint16(out[22:], uint16(channels))
	binary.LittleEndian.PutUint32(out[24:], uint32(sampleRate))
	binary.LittleEndian.PutUint32(out[28:], uint32(byteRate))
	binary.LittleEndian.PutUint16(out[32:], uint16(blockAlign))
	binary.LittleEndian.PutUint16(out[34:], 32)
	copy(out[36:], []byte("data"))
	binary.LittleEndian.PutUint32(out[40:], uint32(dataSize))
	for i, s := range samples {
		binary.LittleEndian.PutUint32(out[44+i*4:], math.Float32bits(s))
	}
	return out
}
