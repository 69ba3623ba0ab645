package audio

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
	ebitaudio "github.com/hajimehoshi/ebiten/v2/audio"
)

// Backend drives a SampleSource from a device (or a stand-in for one).
type Backend interface {
	Name() string
	Start(src SampleSource) error
	Close() error
}

const (
	BackendEbiten = "ebiten"
	BackendOto    = "oto"
	BackendNull   = "null"
	BackendManual = "manual"
)

// NewBackend returns the named backend. bufferSize is the device latency
// hint; zero selects the library default.
func NewBackend(name string, sampleRate int, bufferSize time.Duration) (Backend, error) {
	switch strings.ToLower(name) {
	case BackendEbiten, "":
		return &ebitenBackend{sampleRate: sampleRate, bufferSize: bufferSize}, nil
	case BackendOto:
		return &otoBackend{sampleRate: sampleRate, bufferSize: bufferSize}, nil
	case BackendNull:
		return &nullBackend{sampleRate: sampleRate}, nil
	case BackendManual:
		return &ManualBackend{}, nil
	default:
		return nil, fmt.Errorf("audio: unknown backend %q", name)
	}
}

var (
	audioContextOnce sync.Once
	audioContext     *ebitaudio.Context
	audioSampleRate  int
)

// ebiten allows one audio context per process.
func sharedAudioContext(sampleRate int) (*ebitaudio.Context, error) {
	audioContextOnce.Do(func() {
		audioSampleRate = sampleRate
		audioContext = ebitaudio.NewContext(sampleRate)
	})
	if audioSampleRate != sampleRate {
		return nil, fmt.Errorf("audio context already initialized at %d Hz (requested %d Hz)", audioSampleRate, sampleRate)
	}
	return audioContext, nil
}

type ebitenBackend struct {
	sampleRate int
	bufferSize time.Duration
	player     *ebitaudio.Player
}

func (b *ebitenBackend) Name() string { return BackendEbiten }

func (b *ebitenBackend) Start(src SampleSource) error {
	ctx, err := sharedAudioContext(b.sampleRate)
	if err != nil {
		return err
	}
	pl, err := ctx.NewPlayerF32(NewStreamReader(src))
	if err != nil {
		return err
	}
	if b.bufferSize > 0 {
		pl.SetBufferSize(b.bufferSize)
	}
	pl.Play()
	b.player = pl
	return nil
}

func (b *ebitenBackend) Close() error {
	if b.player == nil {
		return nil
	}
	b.player.Pause()
	err := b.player.Close()
	b.player = nil
	return err
}

var (
	otoContextOnce sync.Once
	otoContext     *oto.Context
	otoContextErr  error
	otoSampleRate  int
)

func sharedOtoContext(sampleRate int, bufferSize time.Duration) (*oto.Context, error) {
	otoContextOnce.Do(func() {
		otoSampleRate = sampleRate
		ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
			SampleRate:   sampleRate,
			ChannelCount: 2,
			Format:       oto.FormatFloat32LE,
			BufferSize:   bufferSize,
		})
		if err != nil {
			otoContextErr = err
			return
		}
		<-ready
		otoContext = ctx
	})
	if otoContextErr != nil {
		return nil, otoContextErr
	}
	if otoSampleRate != sampleRate {
		return nil, fmt.Errorf("oto context already initialized at %d Hz (requested %d Hz)", otoSampleRate, sampleRate)
	}
	return otoContext, nil
}

type otoBackend struct {
	sampleRate int
	bufferSize time.Duration
	player     *oto.Player
}

func (b *otoBackend) Name() string { return BackendOto }

func (b *otoBackend) Start(src SampleSource) error {
	ctx, err := sharedOtoContext(b.sampleRate, b.bufferSize)
	if err != nil {
		return err
	}
	b.player = ctx.NewPlayer(NewStreamReader(src))
	b.player.Play()
	return nil
}

func (b *otoBackend) Close() error {
	if b.player == nil {
		return nil
	}
	b.player.Pause()
	err := b.player.Close()
	b.player = nil
	return err
}

// nullBackend pulls from the source at real-time pace and discards the
// result, for machines without an audio device.
type nullBackend struct {
	sampleRate int
	stop       chan struct{}
	done       chan struct{}
}

func (b *nullBackend) Name() string { return BackendNull }

func (b *nullBackend) Start(src SampleSource) error {
	b.stop = make(chan struct{})
	b.done = make(chan struct{})
	go b.loop(src)
	return nil
}

func (b *nullBackend) loop(src SampleSource) {
	defer close(b.done)
	var buf [2048]float32
	period := time.Duration(float64(time.Second) * float64(len(buf)/2) / float64(b.sampleRate))
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-b.stop:
			return
		case <-ticker.C:
			src.Process(buf[:])
		}
	}
}

func (b *nullBackend) Close() error {
	if b.stop == nil {
		return nil
	}
	close(b.stop)
	<-b.done
	b.stop = nil
	return nil
}

// ManualBackend has no goroutine; the owner pulls frames with Pull.
type ManualBackend struct {
	mu  sync.Mutex
	src SampleSource
}

func (b *ManualBackend) Name() string { return BackendManual }

func (b *ManualBackend) Start(src SampleSource) error {
	b.mu.Lock()
	b.src = src
	b.mu.Unlock()
	return nil
}

// Pull renders len(dst)/2 frames into dst. It writes silence before Start.
func (b *ManualBackend) Pull(dst []float32) {
	b.mu.Lock()
	src := b.src
	b.mu.Unlock()
	if src == nil {
		clear(dst)
		return
	}
	src.Process(dst)
}

func (b *ManualBackend) Close() error {
	b.mu.Lock()
	b.src = nil
	b.mu.Unlock()
	return nil
}
