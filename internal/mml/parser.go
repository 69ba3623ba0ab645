// Package mml interprets Music Macro Language strings on a single PSG voice.
package mml

import (
	"context"
	"math"

	"github.com/cbegin/psgengine-go/internal/psg"
)

// Voice is the synthesizer the interpreter drives. *psg.PSG implements it.
type Voice interface {
	SampleRate() int
	SetFrequency(hz float64) error
	SetAmplitude(a float64)
	SetPanPosition(pos float64)
	SetWaveformType(w psg.Waveform) error
	SetWaveformParameter(v float64)
	SetEnvelope(e psg.Envelope)
	Envelope() psg.Envelope
	GenerateNote(total, sounding int, advance bool) int
	Len() int
}

// Host receives finished render buffers.
type Host interface {
	// Flush queues the voice's render buffer for playback and returns the
	// number of seconds of audio now waiting on the output.
	Flush() float64
	// Wait suspends a foreground Play while still letting the caller's other
	// work proceed.
	Wait(ctx context.Context, seconds float64) error
}

type frame struct {
	text []byte
	pos  int
}

type Interpreter struct {
	voice Voice
	host  Host
	seg   *Segment
	cfg   Config

	tempo        int
	octave       int
	length       int
	lengthDots   int
	volume       int
	pan          int
	articulation Articulation
	background   bool

	stack    []frame
	rootLen  int
	pending  command
	num      int64
	hasNum   bool
	literal  bool
	sign     int
	dots     int
	semitone int
	playable bool
}

func New(voice Voice, host Host, cfg Config) *Interpreter {
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = DefaultConfig().MaxDepth
	}
	in := &Interpreter{voice: voice, host: host, cfg: cfg}
	in.ResetState()
	return in
}

// ResetState restores tempo, octave, length, volume, pan and modes to the
// configured defaults.
func (in *Interpreter) ResetState() {
	in.tempo = clampInt(in.cfg.Tempo, 32, 255)
	in.octave = clampInt(in.cfg.Octave, 0, 6)
	in.length = clampInt(in.cfg.Length, 1, 64)
	in.lengthDots = 0
	in.volume = clampInt(in.cfg.Volume, 0, 100)
	in.pan = 50
	in.articulation = Normal
	in.background = in.cfg.Background
	in.voice.SetAmplitude(float64(in.volume) / 100)
	in.voice.SetPanPosition(0)
}

// SetBackground switches between foreground (Play waits) and background
// mode without flushing.
func (in *Interpreter) SetBackground(bg bool) { in.background = bg }

// SetSegment selects the data area used by X and = references.
func (in *Interpreter) SetSegment(seg *Segment) { in.seg = seg }

func (in *Interpreter) Tempo() int       { return in.tempo }
func (in *Interpreter) Octave() int      { return in.octave }
func (in *Interpreter) Length() int      { return in.length }
func (in *Interpreter) Volume() int      { return in.volume }
func (in *Interpreter) Background() bool { return in.background }
func (in *Interpreter) Articulation() Articulation {
	return in.articulation
}

// Play interprets text. Notes are rendered into the voice and handed to the
// host when the string ends; in foreground mode Play then waits for most of
// the queued audio to be heard. On error the rest of the string is skipped;
// notes rendered before the error are still queued, without a wait.
func (in *Interpreter) Play(ctx context.Context, text string) error {
	in.stack = append(in.stack[:0], frame{text: []byte(text)})
	in.rootLen = len(text)
	in.clearPending()
	for {
		b, ok := in.next()
		if !ok {
			break
		}
		if err := in.step(b); err != nil {
			in.abort()
			return err
		}
	}
	if err := in.complete(true); err != nil {
		in.abort()
		return err
	}
	return in.finish(ctx)
}

// next returns the next byte, popping exhausted indirection frames.
func (in *Interpreter) next() (byte, bool) {
	for len(in.stack) > 0 {
		f := &in.stack[len(in.stack)-1]
		if f.pos < len(f.text) {
			b := f.text[f.pos]
			f.pos++
			return b, true
		}
		in.stack = in.stack[:len(in.stack)-1]
	}
	return 0, false
}

// packet reads n bytes that must all lie in the current frame.
func (in *Interpreter) packet(n int) ([]byte, bool) {
	if len(in.stack) == 0 {
		return nil, false
	}
	f := &in.stack[len(in.stack)-1]
	if f.pos+n > len(f.text) {
		f.pos = len(f.text)
		return nil, false
	}
	p := f.text[f.pos : f.pos+n]
	f.pos += n
	return p, true
}

func (in *Interpreter) fail(b byte, msg string) error {
	e := &ParseError{Char: b, Msg: msg}
	if n := len(in.stack); n > 0 {
		e.Pos = in.stack[n-1].pos - 1
		e.Depth = n - 1
	} else {
		// the end of the string terminated the pending command
		e.Pos = in.rootLen
	}
	return e
}

func (in *Interpreter) step(b byte) error {
	switch classes[b] {
	case classSpace:
		return nil
	case classDigit:
		return in.digit(b)
	case classDot:
		if !in.pending.takesDots() || (in.pending == cmdNoteNum || in.pending == cmdLength) && !in.hasNum {
			return in.fail(b, "unexpected dot")
		}
		in.dots++
		return nil
	case classSharp, classFlat:
		return in.accidental(b)
	case classComma:
		if in.pending != cmdNote && in.pending != cmdRest && in.pending != cmdNoteNum {
			return in.fail(b, "comma without note")
		}
		return in.complete(false)
	case classNote:
		if err := in.complete(true); err != nil {
			return err
		}
		in.pending = cmdNote
		in.semitone = noteOffsets[lower(b)]
		return nil
	case classCommand:
		if err := in.complete(true); err != nil {
			return err
		}
		in.pending = commandFor[b]
		return nil
	case classOctaveDown, classOctaveUp:
		if err := in.complete(true); err != nil {
			return err
		}
		if b == '<' {
			in.octave = clampInt(in.octave-1, 0, 6)
		} else {
			in.octave = clampInt(in.octave+1, 0, 6)
		}
		return nil
	case classMode:
		if err := in.complete(true); err != nil {
			return err
		}
		return in.mode()
	case classIndirect:
		if err := in.complete(true); err != nil {
			return err
		}
		return in.indirect(b)
	case classLiteral:
		return in.literalRef(b)
	default:
		return in.fail(b, "unexpected character")
	}
}

func (in *Interpreter) digit(b byte) error {
	if in.pending == cmdNone || in.literal || in.dots > 0 {
		return in.fail(b, "unexpected number")
	}
	in.num = in.num*10 + int64(b-'0')
	if in.num > math.MaxInt32 {
		return in.fail(b, "number too large")
	}
	in.hasNum = true
	return nil
}

func (in *Interpreter) accidental(b byte) error {
	switch {
	case in.pending == cmdNote && !in.hasNum && in.dots == 0:
		if b == '-' {
			in.semitone--
		} else {
			in.semitone++
		}
		return nil
	case in.pending.relative() && !in.hasNum && in.sign == 0:
		if b == '-' {
			in.sign = -1
		} else {
			in.sign = 1
		}
		return nil
	default:
		return in.fail(b, "unexpected sign")
	}
}

func (in *Interpreter) mode() error {
	p, ok := in.packet(1)
	if !ok {
		return in.fail('M', "truncated M command")
	}
	switch lower(p[0]) {
	case 'b':
		if !in.background && in.playable {
			in.host.Flush()
			in.playable = false
		}
		in.background = true
	case 'f':
		in.background = false
	case 'l':
		in.articulation = Legato
	case 'n':
		in.articulation = Normal
	case 's':
		in.articulation = Staccato
	default:
		return in.fail(p[0], "unknown M mode")
	}
	return nil
}

func (in *Interpreter) indirect(b byte) error {
	p, ok := in.packet(3)
	if !ok {
		return in.fail(b, "truncated X reference")
	}
	if Type(p[0]) != TypeString {
		return in.fail(b, "X reference is not a string")
	}
	if len(in.stack) >= in.cfg.MaxDepth {
		return in.fail(b, "X nesting too deep")
	}
	text, err := in.seg.text(int(p[1]) | int(p[2])<<8)
	if err != nil {
		return in.fail(b, err.Error())
	}
	in.stack = append(in.stack, frame{text: text})
	return nil
}

func (in *Interpreter) literalRef(b byte) error {
	if in.pending == cmdNone || in.hasNum || in.dots > 0 {
		return in.fail(b, "unexpected =")
	}
	p, ok := in.packet(3)
	if !ok {
		return in.fail(b, "truncated = reference")
	}
	v, err := in.seg.number(Type(p[0]), int(p[1])|int(p[2])<<8)
	if err != nil {
		return in.fail(b, err.Error())
	}
	if v < 0 && in.sign == 0 {
		in.sign = -1
		v = -v
	}
	if v > math.MaxInt32 || v < 0 {
		return in.fail(b, "value out of range")
	}
	in.num = v
	in.hasNum = true
	in.literal = true
	return nil
}

func (in *Interpreter) clearPending() {
	in.pending = cmdNone
	in.num = 0
	in.hasNum = false
	in.literal = false
	in.sign = 0
	in.dots = 0
	in.semitone = 0
}

func (in *Interpreter) abort() {
	in.clearPending()
	in.stack = in.stack[:0]
	if in.playable {
		in.host.Flush()
		in.playable = false
	}
}

// complete executes the pending command with whatever argument has been
// gathered. advance is false when a comma terminated a note or rest.
func (in *Interpreter) complete(advance bool) error {
	cmd := in.pending
	if cmd == cmdNone {
		return nil
	}
	defer in.clearPending()
	n := int(in.num)
	if !in.hasNum && !cmd.optionalArg() {
		return in.fail(0, "missing argument for "+cmd.String())
	}
	if in.sign != 0 && cmd.relative() {
		cur := in.volume
		if cmd == cmdPan {
			cur = in.pan
		}
		n = clampInt(cur+in.sign*n, 0, 100)
	} else if in.sign != 0 {
		return in.fail(0, "negative argument for "+cmd.String())
	}
	r := ranges[cmd]
	if in.hasNum {
		switch cmd {
		case cmdOctave:
			n = clampInt(n, r.lo, r.hi)
		case cmdTempo:
			if n == 0 {
				n = 120
			}
			n = clampInt(n, r.lo, r.hi)
		default:
			if n < r.lo || n > r.hi {
				return in.fail(0, "argument out of range for "+cmd.String())
			}
		}
	}
	switch cmd {
	case cmdNote:
		length := in.length
		dots := in.lengthDots
		if in.hasNum {
			length, dots = n, 0
		}
		idx := clampInt(in.octave*12+in.semitone, 0, 83)
		return in.note(idx, length, dots+in.dots, advance)
	case cmdNoteNum:
		if n == 0 {
			return in.rest(in.length, in.lengthDots+in.dots, advance)
		}
		return in.note(n-1, in.length, in.lengthDots+in.dots, advance)
	case cmdRest:
		length := in.length
		dots := in.lengthDots
		if in.hasNum {
			length, dots = n, 0
		}
		return in.rest(length, dots+in.dots, advance)
	case cmdLength:
		in.length = n
		in.lengthDots = in.dots
	case cmdOctave:
		in.octave = n
	case cmdTempo:
		in.tempo = n
	case cmdVolume:
		in.volume = n
		in.voice.SetAmplitude(float64(n) / 100)
	case cmdWave:
		if err := in.voice.SetWaveformType(psg.Waveform(n)); err != nil {
			return in.fail(0, err.Error())
		}
	case cmdQuick:
		in.voice.SetEnvelope(psg.Ramp(float64(n) / 100))
	case cmdAttack, cmdDecay, cmdSustain, cmdRelease:
		env := in.voice.Envelope()
		v := float64(n) / 100
		switch cmd {
		case cmdAttack:
			env.Attack = v
		case cmdDecay:
			env.Decay = v
		case cmdSustain:
			env.Sustain = v
		default:
			env.Release = v
		}
		in.voice.SetEnvelope(env)
	case cmdParam:
		in.voice.SetWaveformParameter(float64(n) / 100)
	case cmdPan:
		in.pan = n
		in.voice.SetPanPosition(float64(n)/50 - 1)
	}
	return nil
}

// NoteFrequency returns the pitch of note index idx (octave*12+semitone);
// index 45 is A at 440 Hz.
func NoteFrequency(idx int) float64 {
	return 440 * math.Pow(2, float64(idx-45)/12)
}

// Duration is the length in seconds of a 1/length note at tempo with dots.
func Duration(tempo, length, dots int) float64 {
	base := (60 / float64(tempo)) * (4 / float64(length))
	dur, term := base, base
	for k := 0; k < dots; k++ {
		term /= 2
		dur += term
	}
	return dur
}

func (in *Interpreter) frames(length, dots int) int {
	return int(math.Round(Duration(in.tempo, length, dots) * float64(in.voice.SampleRate())))
}

func (in *Interpreter) note(idx, length, dots int, advance bool) error {
	if err := in.voice.SetFrequency(NoteFrequency(idx)); err != nil {
		return in.fail(0, err.Error())
	}
	total := in.frames(length, dots)
	sounding := int(math.Round(float64(total) * in.articulation.fraction()))
	in.voice.GenerateNote(total, sounding, advance)
	in.playable = true
	return nil
}

func (in *Interpreter) rest(length, dots int, advance bool) error {
	in.voice.GenerateNote(in.frames(length, dots), 0, advance)
	in.playable = true
	return nil
}

// finish hands the buffer to the host and, in foreground mode, waits.
func (in *Interpreter) finish(ctx context.Context) error {
	if !in.playable {
		return nil
	}
	in.playable = false
	remaining := in.host.Flush()
	if in.background {
		return nil
	}
	if wait := ForegroundWait(remaining); wait > 0 {
		return in.host.Wait(ctx, wait)
	}
	return nil
}

// ForegroundWait is how long a foreground statement blocks given the seconds
// of audio still queued: 95% of it less a quarter second, never negative.
func ForegroundWait(remaining float64) float64 {
	return max(0, 0.95*remaining-0.25)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func lower(b byte) byte {
	if b >= 'A' && b <= 'Z' {
		return b + 32
	}
	return b
}
