// Package psgengine is an audio engine for embedding in a language runtime:
// sound handles over decoded files and in-memory buffers, raw sample
// streams, and a programmable sound generator driven by MML.
//
// An Engine is used from a single goroutine (the caller). The only state it
// shares with the device goroutine is sample data inside raw streams and the
// voice controls of the mixer.
package psgengine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	intaudio "github.com/cbegin/psgengine-go/internal/audio"
	intbuf "github.com/cbegin/psgengine-go/internal/bufstore"
	intcfg "github.com/cbegin/psgengine-go/internal/config"
	intdec "github.com/cbegin/psgengine-go/internal/decode"
	"github.com/cbegin/psgengine-go/internal/effects"
	intmml "github.com/cbegin/psgengine-go/internal/mml"
	intvfs "github.com/cbegin/psgengine-go/internal/vfs"
)

var (
	ErrNotInitialized = errors.New("psgengine: engine not initialized")
	ErrInvalidHandle  = errors.New("psgengine: invalid handle")
	ErrTooSmall       = errors.New("psgengine: resource too small")
	ErrHandleLimit    = errors.New("psgengine: handle table full")
	ErrWrongKind      = errors.New("psgengine: operation not supported by this sound")
)

const defaultSampleRate = 48000

// Waiter blocks a foreground statement for d. It must return early when ctx
// is done.
type Waiter func(ctx context.Context, d time.Duration) error

type Option func(*engineConfig)

type engineConfig struct {
	file       *intcfg.Config
	sampleRate int
	backend    string
	logger     *log.Logger
	root       string
	soundFont  string
	maxHandles int
	waiter     Waiter
	pump       func()
}

func defaultEngineConfig() engineConfig {
	return engineConfig{file: intcfg.Default(), maxHandles: -1}
}

// WithConfig uses settings loaded by the config package. Options given after
// it override individual fields.
func WithConfig(c *intcfg.Config) Option {
	return func(cfg *engineConfig) {
		if c != nil {
			cfg.file = c
		}
	}
}

func WithSampleRate(rate int) Option {
	return func(cfg *engineConfig) {
		cfg.sampleRate = rate
	}
}

// WithBackend selects the device backend: "ebiten", "oto", "null" or
// "manual". The manual backend produces audio only through Engine.Render.
func WithBackend(name string) Option {
	return func(cfg *engineConfig) {
		cfg.backend = name
	}
}

func WithLogger(l *log.Logger) Option {
	return func(cfg *engineConfig) {
		cfg.logger = l
	}
}

// WithFileRoot sets the directory that relative file names resolve against.
func WithFileRoot(dir string) Option {
	return func(cfg *engineConfig) {
		cfg.root = dir
	}
}

// WithSoundFont enables MIDI playback using the SoundFont at path.
func WithSoundFont(path string) Option {
	return func(cfg *engineConfig) {
		cfg.soundFont = path
	}
}

// WithMaxHandles caps the number of live handles; 0 means unlimited.
func WithMaxHandles(n int) Option {
	return func(cfg *engineConfig) {
		cfg.maxHandles = n
	}
}

// WithWaiter replaces the cooperative wait used by foreground MML and Sound.
func WithWaiter(w Waiter) Option {
	return func(cfg *engineConfig) {
		cfg.waiter = w
	}
}

// WithEventPump installs a callback run on every tick of the default
// foreground wait so the host runtime can service timers and events.
func WithEventPump(pump func()) Option {
	return func(cfg *engineConfig) {
		cfg.pump = pump
	}
}

type Engine struct {
	cfg        engineConfig
	errLog     *log.Logger
	sampleRate int
	bufferSize time.Duration
	interval   time.Duration

	initialized bool
	initErr     error
	lastErr     error

	store    *intbuf.Store
	fs       *intvfs.FS
	decoders *intdec.Registry
	mixer    *intaudio.Mixer
	backend  intaudio.Backend
	handles  handleTable
	locks    lockRegistry
	segment  *intmml.Segment
	voices   []Handle
}

// New configures an engine. Nothing is opened until Initialize.
func New(opts ...Option) *Engine {
	cfg := defaultEngineConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	f := cfg.file
	if cfg.sampleRate <= 0 {
		cfg.sampleRate = f.Audio.SampleRate
	}
	if cfg.sampleRate <= 0 {
		cfg.sampleRate = defaultSampleRate
	}
	if cfg.backend == "" {
		cfg.backend = f.Audio.Backend
	}
	if cfg.root == "" {
		cfg.root = f.Files.Root
	}
	if cfg.root == "" {
		cfg.root = "."
	}
	if cfg.soundFont == "" {
		cfg.soundFont = f.Files.SoundFont
	}
	if cfg.maxHandles < 0 {
		cfg.maxHandles = f.Engine.MaxHandles
	}
	if cfg.logger == nil {
		cfg.logger = log.New(os.Stderr, "psgengine: ", log.LstdFlags)
	}
	return &Engine{
		cfg:        cfg,
		errLog:     cfg.logger,
		sampleRate: cfg.sampleRate,
		bufferSize: f.BufferSize(),
		interval:   f.UpdateInterval(),
	}
}

// Initialize opens the device and reserves handle 0 for the internal PSG. It
// does nothing when already initialized. A failure is remembered and
// returned again by every later call.
func (e *Engine) Initialize() error {
	if e.initialized {
		return nil
	}
	if e.initErr != nil {
		return e.initErr
	}
	if err := e.initialize(); err != nil {
		e.initErr = fmt.Errorf("psgengine: initialize: %w", err)
		e.errLog.Print(e.initErr)
		return e.initErr
	}
	return nil
}

func (e *Engine) initialize() error {
	e.store = intbuf.New(e.errLog)
	e.fs = intvfs.OS(e.store, e.cfg.root)
	e.decoders = intdec.NewRegistry(e.errLog, e.loadSoundFont())
	e.mixer = intaudio.NewMixer(e.sampleRate)
	if chain := e.effectChain(); len(chain) > 0 {
		e.mixer.SetPost(chain)
	}
	backend, err := intaudio.NewBackend(e.cfg.backend, e.sampleRate, e.bufferSize)
	if err != nil {
		return err
	}
	if err := backend.Start(e.mixer); err != nil {
		return err
	}
	e.backend = backend
	e.handles = handleTable{max: e.cfg.maxHandles}
	e.locks = lockRegistry{}
	e.initialized = true
	h, err := e.newPSGHandle(true)
	if err != nil {
		e.initialized = false
		_ = backend.Close()
		return err
	}
	e.voices = append(e.voices[:0], h)
	return nil
}

// effectChain builds the master bus from the [Effects] settings.
func (e *Engine) effectChain() effects.Chain {
	fx := e.cfg.file.Effects
	var chain effects.Chain
	if fx.Compressor {
		chain = append(chain, effects.NewCompressor(e.sampleRate, fx.CompressorThreshold, fx.CompressorRatio, 5, 120, 0))
	}
	if fx.EchoWet > 0 {
		chain = append(chain, effects.NewEcho(e.sampleRate, fx.EchoMs, float32(fx.EchoFeedback), 0.3, float32(fx.EchoWet)))
	}
	if fx.RoomWet > 0 {
		chain = append(chain, effects.NewRoom(e.sampleRate, float32(fx.RoomSize), float32(fx.RoomDecay), float32(fx.RoomWet)))
	}
	return chain
}

func (e *Engine) loadSoundFont() *intdec.SoundFont {
	if e.cfg.soundFont == "" {
		return nil
	}
	f, err := os.Open(e.cfg.soundFont)
	if err != nil {
		e.errLog.Printf("soundfont: %v", err)
		return nil
	}
	defer f.Close()
	sf, err := intdec.LoadSoundFont(f)
	if err != nil {
		e.errLog.Printf("soundfont %s: %v", e.cfg.soundFont, err)
		return nil
	}
	return sf
}

func (e *Engine) Initialized() bool { return e.initialized }

func (e *Engine) SampleRate() int { return e.sampleRate }

// LastError returns the most recent error swallowed by an operation that
// reports failure through a sentinel value.
func (e *Engine) LastError() error { return e.lastErr }

func (e *Engine) fail(err error) {
	e.lastErr = err
	e.errLog.Print(err)
}

// Update finalizes sounds closed while still playing and feeds streaming
// sounds from their decoders. Call it regularly (about 60 times a second).
func (e *Engine) Update() {
	if !e.initialized {
		return
	}
	for i, s := range e.handles.slots {
		if !s.inUse {
			continue
		}
		if s.kind == kindStream {
			e.pumpStream(s)
		}
		if s.autoDispose && s.done() {
			e.release(Handle(i))
		}
	}
}

// Shutdown silences and releases every handle and closes the device. Later
// calls become no-ops until Initialize is called again.
func (e *Engine) Shutdown() {
	if !e.initialized {
		return
	}
	for i, s := range e.handles.slots {
		if s.inUse {
			e.release(Handle(i))
		}
	}
	if err := e.backend.Close(); err != nil {
		e.errLog.Printf("backend close: %v", err)
	}
	for _, fd := range e.fs.Descriptors() {
		_ = e.fs.Close(fd)
	}
	e.backend = nil
	e.voices = nil
	e.initialized = false
}

// Render pulls len(dst)/2 frames from the mixer when the manual backend is
// in use and returns the number of frames written.
func (e *Engine) Render(dst []float32) int {
	if !e.initialized {
		return 0
	}
	mb, ok := e.backend.(*intaudio.ManualBackend)
	if !ok {
		return 0
	}
	mb.Pull(dst)
	return len(dst) / 2
}

func (e *Engine) wait(ctx context.Context, seconds float64) error {
	d := time.Duration(seconds * float64(time.Second))
	if d <= 0 {
		return nil
	}
	if e.cfg.waiter != nil {
		return e.cfg.waiter(ctx, d)
	}
	deadline := time.Now().Add(d)
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()
	for {
		if e.cfg.pump != nil {
			e.cfg.pump()
		}
		e.Update()
		left := time.Until(deadline)
		if left <= 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
