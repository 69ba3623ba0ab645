package psgengine

import (
	"fmt"

	intaudio "github.com/cbegin/psgengine-go/internal/audio"
	intdec "github.com/cbegin/psgengine-go/internal/decode"
	intmml "github.com/cbegin/psgengine-go/internal/mml"
	"github.com/cbegin/psgengine-go/internal/psg"
	"github.com/cbegin/psgengine-go/internal/rawstream"
)

// Handle identifies a live sound. Handle 0 is the engine's own PSG voice.
type Handle int

const InvalidHandle Handle = -1

type soundKind int

const (
	kindNone soundKind = iota
	kindStatic
	kindRaw
	kindStream
)

func (k soundKind) String() string {
	switch k {
	case kindStatic:
		return "static"
	case kindRaw:
		return "raw"
	case kindStream:
		return "stream"
	default:
		return "none"
	}
}

// sound is one handle table slot. Slots are reused in place and never
// removed, so a slot's address is stable for the life of the engine.
type sound struct {
	gen         uint32
	inUse       bool
	autoDispose bool
	internal    bool
	kind        soundKind

	voice  *intaudio.Voice
	static *intaudio.StaticSource
	raw    *rawstream.Stream
	psg    *psg.PSG
	interp *intmml.Interpreter

	dec     intdec.Decoder
	reader  *intdec.Reader
	loop    bool
	scratch []float32
	frames  []rawstream.Frame

	bufKey uint64
	token  uint64
	volume float32
	pan    float64
}

// done reports whether the sound's playback has ended.
func (s *sound) done() bool {
	if s.voice == nil {
		return true
	}
	if s.voice.Finished() {
		return true
	}
	return !s.voice.IsPlaying() && !s.voice.IsPaused()
}

type handleTable struct {
	slots      []*sound
	lowestFree int
	max        int
}

// allocate returns a fresh slot, preferring the lowest recently freed index.
func (t *handleTable) allocate() (Handle, error) {
	for i := t.lowestFree; i < len(t.slots); i++ {
		if !t.slots[i].inUse {
			return t.take(i), nil
		}
	}
	for i := 0; i < min(t.lowestFree, len(t.slots)); i++ {
		if !t.slots[i].inUse {
			return t.take(i), nil
		}
	}
	if t.max > 0 && len(t.slots) >= t.max {
		return InvalidHandle, fmt.Errorf("%w (%d handles)", ErrHandleLimit, t.max)
	}
	t.slots = append(t.slots, &sound{})
	return t.take(len(t.slots) - 1), nil
}

func (t *handleTable) take(i int) Handle {
	s := t.slots[i]
	*s = sound{gen: s.gen + 1, inUse: true, volume: 1}
	t.lowestFree = i + 1
	return Handle(i)
}

// free marks h unused. The caller has already released what the slot owned.
func (t *handleTable) free(h Handle) {
	s := t.slots[h]
	*s = sound{gen: s.gen}
	t.lowestFree = min(t.lowestFree, int(h))
}

func (t *handleTable) get(h Handle) (*sound, bool) {
	if h < 0 || int(h) >= len(t.slots) {
		return nil, false
	}
	s := t.slots[h]
	return s, s.inUse
}

// isValid requires h in range, in use, and not waiting to be auto-disposed.
func (t *handleTable) isValid(h Handle) bool {
	s, ok := t.get(h)
	return ok && !s.autoDispose
}

func (t *handleTable) live() int {
	n := 0
	for _, s := range t.slots {
		if s.inUse {
			n++
		}
	}
	return n
}

// lookup returns the sound for a valid handle and records an error otherwise.
func (e *Engine) lookup(h Handle) (*sound, bool) {
	if !e.initialized {
		e.lastErr = ErrNotInitialized
		return nil, false
	}
	if !e.handles.isValid(h) {
		e.fail(fmt.Errorf("%w: %d", ErrInvalidHandle, h))
		return nil, false
	}
	return e.handles.slots[h], true
}

// peek is lookup for queries: an invalid handle is not an error worth logging.
func (e *Engine) peek(h Handle) (*sound, bool) {
	if !e.initialized || !e.handles.isValid(h) {
		return nil, false
	}
	return e.handles.slots[h], true
}

func (e *Engine) allocate() (Handle, *sound, bool) {
	if !e.initialized {
		e.lastErr = ErrNotInitialized
		return InvalidHandle, nil, false
	}
	h, err := e.handles.allocate()
	if err != nil {
		e.fail(err)
		return InvalidHandle, nil, false
	}
	return h, e.handles.slots[h], true
}

// release frees everything h owns. Releasing a free slot does nothing.
func (e *Engine) release(h Handle) {
	s, ok := e.handles.get(h)
	if !ok {
		return
	}
	if s.voice != nil {
		s.voice.Stop()
		e.mixer.Remove(s.voice)
	}
	if s.raw != nil {
		s.raw.Stop()
		s.raw.Clear()
	}
	if s.psg != nil {
		s.psg.Reset()
	}
	if s.dec != nil {
		if err := s.dec.Close(); err != nil {
			e.errLog.Printf("handle %d: close decoder: %v", h, err)
		}
	}
	if s.bufKey != 0 {
		e.store.Release(s.bufKey)
	}
	if s.token != 0 {
		e.locks.revoke(s.token)
	}
	e.handles.free(h)
}

// Handles is the number of live handles, including internal ones.
func (e *Engine) Handles() int {
	if !e.initialized {
		return 0
	}
	return e.handles.live()
}

// lockRegistry hands out tokens that stay valid while the handle whose
// buffer they expose is alive.
type lockRegistry struct {
	next   uint64
	tokens map[uint64]lockEntry
}

type lockEntry struct {
	h   Handle
	gen uint32
}

func (r *lockRegistry) issue(h Handle, gen uint32) uint64 {
	if r.tokens == nil {
		r.tokens = make(map[uint64]lockEntry)
	}
	r.next++
	r.tokens[r.next] = lockEntry{h: h, gen: gen}
	return r.next
}

func (r *lockRegistry) revoke(token uint64) { delete(r.tokens, token) }

func (r *lockRegistry) lookup(token uint64) (lockEntry, bool) {
	ent, ok := r.tokens[token]
	return ent, ok
}
