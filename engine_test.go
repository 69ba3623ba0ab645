package psgengine

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"log"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	intcfg "github.com/cbegin/psgengine-go/internal/config"
	intdec "github.com/cbegin/psgengine-go/internal/decode"
	intmml "github.com/cbegin/psgengine-go/internal/mml"
	"github.com/cbegin/psgengine-go/internal/psg"
	intvfs "github.com/cbegin/psgengine-go/internal/vfs"
)

const testRate = 8000

type waitRecorder struct {
	waits []time.Duration
}

func (w *waitRecorder) wait(ctx context.Context, d time.Duration) error {
	w.waits = append(w.waits, d)
	return ctx.Err()
}

func newTestEngine(t *testing.T, opts ...Option) (*Engine, *waitRecorder) {
	t.Helper()
	w := &waitRecorder{}
	base := []Option{
		WithBackend("manual"),
		WithSampleRate(testRate),
		WithFileRoot(t.TempDir()),
		WithLogger(log.New(io.Discard, "", 0)),
		WithWaiter(w.wait),
	}
	e := New(append(base, opts...)...)
	if err := e.Initialize(); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	t.Cleanup(e.Shutdown)
	return e, w
}

func wav16(rate, channels int, samples []int16) []byte {
	le := binary.LittleEndian
	data := make([]byte, 0, len(samples)*2)
	for _, s := range samples {
		data = le.AppendUint16(data, uint16(s))
	}
	var b []byte
	b = append(b, "RIFF"...)
	b = le.AppendUint32(b, uint32(36+len(data)))
	b = append(b, "WAVE"...)
	b = append(b, "fmt "...)
	b = le.AppendUint32(b, 16)
	b = le.AppendUint16(b, 1)
	b = le.AppendUint16(b, uint16(channels))
	b = le.AppendUint32(b, uint32(rate))
	b = le.AppendUint32(b, uint32(rate*channels*2))
	b = le.AppendUint16(b, uint16(channels*2))
	b = le.AppendUint16(b, 16)
	b = append(b, "data"...)
	b = le.AppendUint32(b, uint32(len(data)))
	return append(b, data...)
}

func constantWAV(frames int, v int16) []byte {
	samples := make([]int16, frames)
	for i := range samples {
		samples[i] = v
	}
	return wav16(testRate, 1, samples)
}

func writeFile(t *testing.T, e *Engine, name string, data []byte) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(e.cfg.root, name), data, 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func render(e *Engine, frames int) []float32 {
	dst := make([]float32, frames*2)
	e.Render(dst)
	return dst
}

func near(a, b, tol float64) bool { return math.Abs(a-b) <= tol }

func TestInitializeReservesHandleZero(t *testing.T) {
	e, _ := newTestEngine(t)
	if !e.Initialized() {
		t.Fatalf("engine not initialized")
	}
	if got := e.Handles(); got != 1 {
		t.Fatalf("handles = %d, want 1", got)
	}
	e.Close(0)
	if got := e.Handles(); got != 1 {
		t.Fatalf("handle 0 was closed")
	}
	if !errors.Is(e.LastError(), ErrInvalidHandle) {
		t.Fatalf("last error = %v, want ErrInvalidHandle", e.LastError())
	}
	if err := e.Initialize(); err != nil {
		t.Fatalf("second initialize: %v", err)
	}
	if got := e.Handles(); got != 1 {
		t.Fatalf("second initialize allocated again: %d handles", got)
	}
}

func TestUninitializedEngineIsNoOp(t *testing.T) {
	e := New(WithBackend("manual"), WithLogger(log.New(io.Discard, "", 0)))
	if h := e.NewRawStream(); h != InvalidHandle {
		t.Fatalf("NewRawStream = %d, want InvalidHandle", h)
	}
	if h := e.Open("x.wav"); h != InvalidHandle {
		t.Fatalf("Open = %d, want InvalidHandle", h)
	}
	if e.Play(0) {
		t.Fatalf("Play succeeded before Initialize")
	}
	if err := e.PlayMML(context.Background(), "C"); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("PlayMML err = %v, want ErrNotInitialized", err)
	}
	e.Update()
	e.Shutdown()
}

func TestInitializeFailureIsSticky(t *testing.T) {
	e := New(WithBackend("no-such-device"), WithLogger(log.New(io.Discard, "", 0)))
	err := e.Initialize()
	if err == nil {
		t.Fatalf("initialize succeeded with unknown backend")
	}
	if again := e.Initialize(); again != err {
		t.Fatalf("second initialize = %v, want the first error", again)
	}
	if e.Initialized() {
		t.Fatalf("engine reports initialized after failure")
	}
}

func TestHandleRecycling(t *testing.T) {
	e, _ := newTestEngine(t)
	var hs []Handle
	for i := 0; i < 4; i++ {
		h := e.NewBuffer(16, 2, 16)
		if h == InvalidHandle {
			t.Fatalf("NewBuffer failed: %v", e.LastError())
		}
		hs = append(hs, h)
	}
	for i, h := range hs {
		if want := Handle(i + 1); h != want {
			t.Fatalf("handle %d = %d, want %d", i, h, want)
		}
	}
	e.Close(hs[2])
	e.Close(hs[1])
	if got := e.NewBuffer(16, 2, 16); got != hs[1] {
		t.Fatalf("reused handle = %d, want %d", got, hs[1])
	}
	if got := e.NewBuffer(16, 2, 16); got != hs[2] {
		t.Fatalf("reused handle = %d, want %d", got, hs[2])
	}
	if got := e.NewBuffer(16, 2, 16); got != 5 {
		t.Fatalf("appended handle = %d, want 5", got)
	}
}

func TestHandleLimit(t *testing.T) {
	e, _ := newTestEngine(t, WithMaxHandles(2))
	if h := e.NewRawStream(); h != 1 {
		t.Fatalf("first handle = %d, want 1", h)
	}
	if h := e.NewRawStream(); h != InvalidHandle {
		t.Fatalf("handle beyond limit = %d", h)
	}
	if !errors.Is(e.LastError(), ErrHandleLimit) {
		t.Fatalf("last error = %v, want ErrHandleLimit", e.LastError())
	}
}

func TestRawStreamPlaysPushedFrames(t *testing.T) {
	e, _ := newTestEngine(t)
	h := e.NewRawStream()
	if !e.IsPlaying(h) {
		t.Fatalf("raw stream not playing")
	}
	e.PushSample(h, 0.5, -0.25)
	e.PushBatch(h, []Frame{{L: 0.2, R: 0.2}, {L: 0.4, R: 0.4}}, 1, 0.5)
	if got := e.RawRemaining(h); !near(got, 3.0/testRate, 1e-9) {
		t.Fatalf("remaining = %v, want %v", got, 3.0/testRate)
	}
	got := render(e, 4)
	want := []float32{0.5, -0.25, 0.2, 0.1, 0.4, 0.2, 0, 0}
	for i := range want {
		if !near(float64(got[i]), float64(want[i]), 1e-6) {
			t.Fatalf("render = %v, want %v", got, want)
		}
	}
	if !e.IsBufferDrained(h) {
		t.Fatalf("stream not drained")
	}
	if e.PushSample(0, 1, 1) {
		t.Fatalf("pushed onto the PSG handle")
	}
}

func TestCloseWhilePlayingDisposesAfterFinish(t *testing.T) {
	e, _ := newTestEngine(t)
	h := e.NewRawStream()
	for i := 0; i < 8; i++ {
		e.PushSample(h, 0.1, 0.1)
	}
	e.Close(h)
	if e.IsPlaying(h) {
		t.Fatalf("closed handle still reported as valid")
	}
	e.Update()
	if got := e.Handles(); got != 2 {
		t.Fatalf("handles = %d, want 2 while audio is queued", got)
	}
	render(e, 4)
	e.Update()
	if got := e.Handles(); got != 2 {
		t.Fatalf("handle released before its audio played")
	}
	render(e, 8)
	e.Update()
	if got := e.Handles(); got != 1 {
		t.Fatalf("handles = %d, want 1 after playback finished", got)
	}
	if got := e.NewRawStream(); got != h {
		t.Fatalf("released slot not reused: got %d, want %d", got, h)
	}
}

func TestVolumeAndPan(t *testing.T) {
	e, _ := newTestEngine(t)
	h := e.NewRawStream()
	e.SetVolume(h, 2)
	if got := e.Volume(h); got != 1 {
		t.Fatalf("volume = %v, want 1", got)
	}
	e.SetVolume(h, 0.5)
	e.SetPan(h, 0.5, 0, 0)
	e.PushSample(h, 1, 1)
	got := render(e, 1)
	if !near(float64(got[0]), 0.25, 1e-6) || !near(float64(got[1]), 0.5, 1e-6) {
		t.Fatalf("frame = %v, want [0.25 0.5]", got)
	}
	cases := []struct {
		x    float64
		l, r float32
	}{
		{-1, 1, 0},
		{0, 1, 1},
		{1, 0, 1},
		{-0.5, 1, 0.5},
		{3, 0, 1},
	}
	for _, tc := range cases {
		l, r := BalanceGains(tc.x)
		if l != tc.l || r != tc.r {
			t.Fatalf("BalanceGains(%v) = %v,%v, want %v,%v", tc.x, l, r, tc.l, tc.r)
		}
	}
}

func TestEffectsFromConfig(t *testing.T) {
	cfg, err := intcfg.Parse([]byte("[Effects]\nEchoWet = 1\nEchoMs = 1\nEchoFeedback = 0\n"))
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	e, _ := newTestEngine(t, WithConfig(cfg), WithSampleRate(testRate))
	h := e.NewRawStream()
	e.PushSample(h, 1, 1)
	got := render(e, 10)
	if got[0] != 0 {
		t.Fatalf("dry signal leaked through a fully wet echo: %v", got[0])
	}
	if got[16] != 1 || got[17] != 1 {
		t.Fatalf("echo at frame 8 = %v,%v, want 1", got[16], got[17])
	}
}

func TestOpenDecodesFile(t *testing.T) {
	e, _ := newTestEngine(t)
	writeFile(t, e, "tone.wav", constantWAV(100, 16384))
	h := e.Open("tone.wav")
	if h == InvalidHandle {
		t.Fatalf("open: %v", e.LastError())
	}
	if got := e.Length(h); !near(got, 100.0/testRate, 1e-9) {
		t.Fatalf("length = %v, want %v", got, 100.0/testRate)
	}
	if e.IsPlaying(h) {
		t.Fatalf("opened sound is playing")
	}
	if !e.Play(h) {
		t.Fatalf("play failed: %v", e.LastError())
	}
	got := render(e, 50)
	if !near(float64(got[0]), 0.5, 0.01) || got[0] != got[1] {
		t.Fatalf("first frame = %v,%v, want 0.5 on both channels", got[0], got[1])
	}
	if pos := e.Position(h); !near(pos, 50.0/testRate, 1e-9) {
		t.Fatalf("position = %v", pos)
	}
	render(e, 60)
	if e.IsPlaying(h) {
		t.Fatalf("sound still playing past its end")
	}
	e.Update()
	if !e.Play(h) || e.Position(h) != 0 {
		t.Fatalf("finished sound did not restart from the top")
	}
}

func TestOpenLoopingAndStop(t *testing.T) {
	e, _ := newTestEngine(t)
	writeFile(t, e, "loop.wav", constantWAV(10, 16384))
	h := e.Open("loop.wav")
	e.PlayLooping(h)
	got := render(e, 35)
	if !e.IsPlaying(h) {
		t.Fatalf("looping sound stopped")
	}
	if !near(float64(got[68]), 0.5, 0.01) {
		t.Fatalf("frame 34 = %v, want looped audio", got[68])
	}
	e.Pause(h)
	if !e.IsPaused(h) || e.IsPlaying(h) {
		t.Fatalf("pause not reported")
	}
	if got := render(e, 2); got[0] != 0 {
		t.Fatalf("paused sound produced %v", got[0])
	}
	e.Stop(h)
	if e.IsPlaying(h) || e.IsPaused(h) || e.Position(h) != 0 {
		t.Fatalf("stop did not rewind")
	}
	if !e.SetPosition(h, 5.0/testRate) || e.Position(h) != 5.0/testRate {
		t.Fatalf("set position failed")
	}
}

func TestOpenFailuresAreIsolated(t *testing.T) {
	e, _ := newTestEngine(t)
	writeFile(t, e, "notes.txt", []byte("definitely not audio"))
	cases := []struct {
		path string
		want error
	}{
		{"missing.wav", intvfs.ErrNotExist},
		{"notes.txt", intdec.ErrUnsupported},
	}
	for _, tc := range cases {
		t.Run(tc.path, func(t *testing.T) {
			if h := e.Open(tc.path); h != InvalidHandle {
				t.Fatalf("open returned %d", h)
			}
			if !errors.Is(e.LastError(), tc.want) {
				t.Fatalf("last error = %v, want %v", e.LastError(), tc.want)
			}
			if got := e.Handles(); got != 1 {
				t.Fatalf("failed open leaked a handle: %d live", got)
			}
			if fds := e.fs.Descriptors(); len(fds) != 0 {
				t.Fatalf("failed open leaked descriptors %v", fds)
			}
		})
	}
}

func TestOpenMemoryAndCopyShareBuffer(t *testing.T) {
	e, _ := newTestEngine(t)
	h := e.OpenMemory(constantWAV(20, 8192))
	if h == InvalidHandle {
		t.Fatalf("open memory: %v", e.LastError())
	}
	key := e.handles.slots[h].bufKey
	if key == 0 || e.store.Count(key) != 1 {
		t.Fatalf("buffer key %d count %d, want one reference", key, e.store.Count(key))
	}
	c := e.Copy(h)
	if c == InvalidHandle {
		t.Fatalf("copy: %v", e.LastError())
	}
	if got := e.store.Count(key); got != 2 {
		t.Fatalf("count after copy = %d, want 2", got)
	}
	if e.Length(c) != e.Length(h) {
		t.Fatalf("copy length %v, want %v", e.Length(c), e.Length(h))
	}
	e.Close(h)
	if got := e.store.Count(key); got != 1 {
		t.Fatalf("count after close = %d, want 1", got)
	}
	e.Close(c)
	if e.store.Has(key) {
		t.Fatalf("buffer still stored after last close")
	}
	if h := e.OpenMemory(nil); h != InvalidHandle || !errors.Is(e.LastError(), ErrTooSmall) {
		t.Fatalf("empty buffer: handle %d, err %v", h, e.LastError())
	}
	if c := e.Copy(e.NewRawStream()); c != InvalidHandle || !errors.Is(e.LastError(), ErrWrongKind) {
		t.Fatalf("copy of raw stream: handle %d, err %v", c, e.LastError())
	}
}

func TestNewBufferView(t *testing.T) {
	e, _ := newTestEngine(t)
	h := e.NewBuffer(4, 2, 16)
	all, ok := e.RawBufferView(h, 0)
	if !ok {
		t.Fatalf("view: %v", e.LastError())
	}
	if all.ElementSize != 2 || all.FrameSize != 4 || all.Frames != 4 || len(all.Data) != 16 {
		t.Fatalf("view = %+v", all)
	}
	right, _ := e.RawBufferView(h, 2)
	if right.Token != all.Token {
		t.Fatalf("tokens differ for one handle")
	}
	binary.LittleEndian.PutUint16(right.Data[0:], uint16(16384))
	e.Play(h)
	got := render(e, 1)
	if got[0] != 0 || !near(float64(got[1]), 0.5, 1e-6) {
		t.Fatalf("frame = %v, want [0 0.5]", got)
	}
	if !e.ValidToken(all.Token) {
		t.Fatalf("token invalid while handle is alive")
	}
	e.Stop(h)
	e.Close(h)
	if e.ValidToken(all.Token) {
		t.Fatalf("token still valid after close")
	}
	if _, ok := e.RawBufferView(h, 0); ok {
		t.Fatalf("view of closed handle")
	}
	if h := e.NewBuffer(0, 2, 16); h != InvalidHandle || !errors.Is(e.LastError(), ErrTooSmall) {
		t.Fatalf("zero-frame buffer: handle %d, err %v", h, e.LastError())
	}
	if h := e.NewBuffer(4, 3, 16); h != InvalidHandle {
		t.Fatalf("three-channel buffer accepted")
	}
}

func TestPlayMMLForegroundWaits(t *testing.T) {
	e, w := newTestEngine(t)
	if err := e.PlayMML(context.Background(), "T120L4O4C"); err != nil {
		t.Fatalf("play: %v", err)
	}
	if len(w.waits) != 1 {
		t.Fatalf("waits = %v, want one", w.waits)
	}
	want := time.Duration(intmml.ForegroundWait(0.5) * float64(time.Second))
	if d := w.waits[0] - want; d < -time.Millisecond || d > time.Millisecond {
		t.Fatalf("waited %v, want %v", w.waits[0], want)
	}
	if got := e.RawRemaining(0); !near(got, 0.5, 1e-9) {
		t.Fatalf("queued %v s, want 0.5", got)
	}
}

func TestPlayMMLBackgroundAndErrors(t *testing.T) {
	e, w := newTestEngine(t)
	if err := e.PlayMML(context.Background(), "MBT120L4C"); err != nil {
		t.Fatalf("play: %v", err)
	}
	if len(w.waits) != 0 {
		t.Fatalf("background play waited %v", w.waits)
	}
	before := e.RawRemaining(0)
	err := e.PlayMML(context.Background(), "CQ")
	if !errors.Is(err, intmml.ErrSyntax) {
		t.Fatalf("err = %v, want ErrSyntax", err)
	}
	// the C ahead of the error still plays
	if got := e.RawRemaining(0); !near(got, before+0.5, 1e-9) {
		t.Fatalf("queued %v s, want %v", got, before+0.5)
	}
	if !errors.Is(e.LastError(), intmml.ErrSyntax) {
		t.Fatalf("last error = %v", e.LastError())
	}
}

func TestPlayMMLVoicesWaitForLongest(t *testing.T) {
	e, w := newTestEngine(t)
	if err := e.PlayMMLVoices(context.Background(), "T120L4C", "T120L2E"); err != nil {
		t.Fatalf("play: %v", err)
	}
	if got := e.Handles(); got != 2 {
		t.Fatalf("handles = %d, want 2 internal voices", got)
	}
	want := time.Duration(intmml.ForegroundWait(1) * float64(time.Second))
	if len(w.waits) != 1 || w.waits[0]-want > time.Millisecond || want-w.waits[0] > time.Millisecond {
		t.Fatalf("waits = %v, want [%v]", w.waits, want)
	}
	e.Close(1)
	if got := e.Handles(); got != 2 {
		t.Fatalf("internal voice was closed")
	}
	got := render(e, 10)
	if got[0] == 0 && got[2] == 0 {
		t.Fatalf("voices rendered silence")
	}
}

func TestPlayMMLOnOwnVoice(t *testing.T) {
	e, w := newTestEngine(t)
	p := e.NewPSG()
	if err := e.PlayMMLOn(context.Background(), p, "MBL8C"); err != nil {
		t.Fatalf("play: %v", err)
	}
	if got := e.RawRemaining(p); !near(got, 0.25, 1e-9) {
		t.Fatalf("queued %v s, want 0.25", got)
	}
	if e.RawRemaining(0) != 0 || len(w.waits) != 0 {
		t.Fatalf("engine voice disturbed")
	}
	if err := e.PlayMMLOn(context.Background(), e.NewRawStream(), "C"); !errors.Is(err, ErrWrongKind) {
		t.Fatalf("err = %v, want ErrWrongKind", err)
	}
	if !e.SetCustomWaveform(p, []float32{-1, 1, 0}) {
		t.Fatalf("custom waveform: %v", e.LastError())
	}
	if e.SetCustomWaveform(p, []float32{1}) || !errors.Is(e.LastError(), psg.ErrTooSmall) {
		t.Fatalf("one-sample waveform accepted")
	}
}

func TestPlayMMLThroughSegment(t *testing.T) {
	e, _ := newTestEngine(t)
	seg := NewMMLSegment()
	riff := seg.AddString("CDE")
	tempo := seg.AddCell([]byte{240})
	e.SetMMLSegment(seg)

	text := "MBT" + MMLLiteral(MMLUint8, tempo) + "L4" + MMLIndirect(riff)
	if err := e.PlayMML(context.Background(), text); err != nil {
		t.Fatalf("play: %v", err)
	}
	// three quarter notes at 240 BPM
	if got := e.RawRemaining(0); !near(got, 0.75, 1e-9) {
		t.Fatalf("queued %v s, want 0.75", got)
	}

	// voices created after the segment is installed see it too
	p := e.NewPSG()
	if err := e.PlayMMLOn(context.Background(), p, "MBL8"+MMLIndirect(riff)); err != nil {
		t.Fatalf("play on new voice: %v", err)
	}
	if got := e.RawRemaining(p); !near(got, 0.75, 1e-9) {
		t.Fatalf("new voice queued %v s, want 0.75", got)
	}

	if err := e.PlayMML(context.Background(), MMLIndirect(seg.AddCell([]byte{1, 2}))); !errors.Is(err, intmml.ErrSyntax) {
		t.Fatalf("reference past the segment end: err = %v, want syntax error", err)
	}
}

func TestSound(t *testing.T) {
	e, w := newTestEngine(t)
	if err := e.Sound(context.Background(), 440, psg.TicksPerSecond); err != nil {
		t.Fatalf("sound: %v", err)
	}
	if got := e.RawRemaining(0); !near(got, 1, 1e-3) {
		t.Fatalf("queued %v s, want 1", got)
	}
	want := time.Duration(intmml.ForegroundWait(1) * float64(time.Second))
	if len(w.waits) != 1 || w.waits[0]-want > 2*time.Millisecond || want-w.waits[0] > 2*time.Millisecond {
		t.Fatalf("waits = %v, want [%v]", w.waits, want)
	}
	if err := e.Sound(context.Background(), 5, 1); !errors.Is(err, psg.ErrRange) {
		t.Fatalf("err = %v, want ErrRange", err)
	}
	if err := e.Beep(context.Background()); err != nil {
		t.Fatalf("beep: %v", err)
	}
}

func TestForegroundWaitHonoursContext(t *testing.T) {
	e := New(WithBackend("manual"), WithSampleRate(testRate), WithLogger(log.New(io.Discard, "", 0)))
	if err := e.Initialize(); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	defer e.Shutdown()
	pumped := 0
	e.cfg.pump = func() { pumped++ }
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := e.PlayMML(ctx, "T120L1C"); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if pumped == 0 {
		t.Fatalf("event pump never ran")
	}
}

func TestStreamPlayback(t *testing.T) {
	e, _ := newTestEngine(t)
	writeFile(t, e, "stream.wav", constantWAV(100, 16384))
	h := e.OpenStream("stream.wav")
	if h == InvalidHandle {
		t.Fatalf("open stream: %v", e.LastError())
	}
	if !near(e.Length(h), 100.0/testRate, 1e-9) {
		t.Fatalf("length = %v", e.Length(h))
	}
	e.Play(h)
	if got := e.RawRemaining(h); !near(got, 100.0/testRate, 1e-9) {
		t.Fatalf("decoded ahead %v s, want the whole file", got)
	}
	got := render(e, 120)
	if !near(float64(got[0]), 0.5, 0.01) || got[2*110] != 0 {
		t.Fatalf("stream frames wrong: %v %v", got[0], got[220])
	}
	e.Update()
	if e.IsPlaying(h) {
		t.Fatalf("stream still playing after its end")
	}
	e.PlayLooping(h)
	render(e, 150)
	e.Update()
	if !e.IsPlaying(h) {
		t.Fatalf("looping stream stopped")
	}
	e.Close(h)
	if got := e.Handles(); got != 2 {
		t.Fatalf("playing stream released immediately")
	}
	render(e, testRate)
	e.Update()
	render(e, testRate)
	e.Update()
	if got := e.Handles(); got != 1 {
		t.Fatalf("closed stream not disposed: %d handles", got)
	}
}

func TestStreamOfBufferOutlivesOwner(t *testing.T) {
	e, _ := newTestEngine(t)
	owner := e.OpenMemory(constantWAV(100, 16384))
	if owner == InvalidHandle {
		t.Fatalf("open memory: %v", e.LastError())
	}
	key := e.handles.slots[owner].bufKey
	h := e.OpenStream(strconv.FormatUint(key, 10))
	if h == InvalidHandle {
		t.Fatalf("open stream of buffer key: %v", e.LastError())
	}
	e.Close(owner)
	if !e.store.Has(key) {
		t.Fatalf("buffer freed while a stream still reads it")
	}
	e.Play(h)
	if got := e.RawRemaining(h); !near(got, 100.0/testRate, 1e-9) {
		t.Fatalf("decoded %v s after the owner closed, want the whole buffer", got)
	}
	e.Close(h)
	render(e, testRate)
	e.Update()
	render(e, testRate)
	e.Update()
	if e.store.Has(key) {
		t.Fatalf("buffer still stored after both handles are gone")
	}
}

func TestShutdownReleasesEverything(t *testing.T) {
	e, _ := newTestEngine(t)
	e.NewRawStream()
	e.OpenMemory(constantWAV(10, 1))
	e.Shutdown()
	if e.Initialized() || e.Handles() != 0 {
		t.Fatalf("engine still live after shutdown")
	}
	if h := e.NewRawStream(); h != InvalidHandle {
		t.Fatalf("allocation after shutdown = %d", h)
	}
	if e.Render(make([]float32, 4)) != 0 {
		t.Fatalf("render after shutdown produced frames")
	}
	if err := e.Initialize(); err != nil {
		t.Fatalf("reinitialize: %v", err)
	}
	if got := e.Handles(); got != 1 {
		t.Fatalf("handles after reinitialize = %d, want 1", got)
	}
}
