package mml

import (
	"errors"
	"fmt"
)

// ErrSyntax is wrapped by every ParseError.
var ErrSyntax = errors.New("mml: syntax error")

// ParseError reports where in a string the interpreter gave up. Depth is the
// indirection depth (0 for the string passed to Play).
type ParseError struct {
	Pos   int
	Depth int
	Char  byte
	Msg   string
}

func (e *ParseError) Error() string {
	if e.Char != 0 {
		return fmt.Sprintf("mml: %s at %d (%q)", e.Msg, e.Pos, e.Char)
	}
	return fmt.Sprintf("mml: %s at %d", e.Msg, e.Pos)
}

func (e *ParseError) Unwrap() error { return ErrSyntax }

type Articulation int

const (
	Normal Articulation = iota
	Legato
	Staccato
)

// fraction of the note length that actually sounds
func (a Articulation) fraction() float64 {
	switch a {
	case Legato:
		return 1
	case Staccato:
		return 3.0 / 4.0
	default:
		return 7.0 / 8.0
	}
}

type Config struct {
	Tempo      int
	Octave     int
	Length     int
	Volume     int
	Background bool
	// MaxDepth bounds X indirection nesting.
	MaxDepth int
}

func DefaultConfig() Config {
	return Config{
		Tempo:    120,
		Octave:   4,
		Length:   4,
		Volume:   50,
		MaxDepth: 32,
	}
}

type command int

const (
	cmdNone command = iota
	cmdNote
	cmdLength
	cmdOctave
	cmdNoteNum
	cmdTempo
	cmdRest
	cmdVolume
	cmdWave
	cmdQuick
	cmdAttack
	cmdDecay
	cmdSustain
	cmdRelease
	cmdParam
	cmdPan
)

type argRange struct{ lo, hi int }

// numeric argument bounds per command
var ranges = [...]argRange{
	cmdNote:    {1, 64},
	cmdLength:  {1, 64},
	cmdOctave:  {0, 6},
	cmdNoteNum: {0, 84},
	cmdTempo:   {32, 255},
	cmdRest:    {1, 64},
	cmdVolume:  {0, 100},
	cmdWave:    {1, 10},
	cmdQuick:   {0, 100},
	cmdAttack:  {0, 100},
	cmdDecay:   {0, 100},
	cmdSustain: {0, 100},
	cmdRelease: {0, 100},
	cmdParam:   {0, 100},
	cmdPan:     {0, 100},
}

func (c command) String() string {
	switch c {
	case cmdNote:
		return "note"
	case cmdLength:
		return "L"
	case cmdOctave:
		return "O"
	case cmdNoteNum:
		return "N"
	case cmdTempo:
		return "T"
	case cmdRest:
		return "rest"
	case cmdVolume:
		return "V"
	case cmdWave:
		return "@"
	case cmdQuick:
		return "Q"
	case cmdAttack:
		return "/"
	case cmdDecay:
		return "\\"
	case cmdSustain:
		return "^"
	case cmdRelease:
		return "_"
	case cmdParam:
		return "Y"
	case cmdPan:
		return "S"
	default:
		return "none"
	}
}

// takesDots reports whether '.' may follow the command's argument.
func (c command) takesDots() bool {
	return c == cmdNote || c == cmdRest || c == cmdNoteNum || c == cmdLength
}

// optionalArg reports whether the command may complete without a number.
func (c command) optionalArg() bool {
	return c == cmdNote || c == cmdRest
}

func (c command) relative() bool { return c == cmdVolume || c == cmdPan }

type charClass uint8

const (
	classInvalid charClass = iota
	classSpace
	classDigit
	classDot
	classSharp
	classFlat
	classComma
	classNote
	classCommand
	classOctaveDown
	classOctaveUp
	classMode
	classIndirect
	classLiteral
)

var (
	classes     [256]charClass
	commandFor  [256]command
	noteOffsets = map[byte]int{
		'c': 0, 'd': 2, 'e': 4, 'f': 5, 'g': 7, 'a': 9, 'b': 11,
	}
)

func init() {
	for _, b := range []byte(" \t\r\n;") {
		classes[b] = classSpace
	}
	for b := '0'; b <= '9'; b++ {
		classes[b] = classDigit
	}
	classes['.'] = classDot
	classes['+'] = classSharp
	classes['#'] = classSharp
	classes['-'] = classFlat
	classes[','] = classComma
	classes['<'] = classOctaveDown
	classes['>'] = classOctaveUp
	for b := range noteOffsets {
		classes[b] = classNote
		classes[b-32] = classNote
	}
	set := func(c command, bs ...byte) {
		for _, b := range bs {
			classes[b] = classCommand
			commandFor[b] = c
			if b >= 'a' && b <= 'z' {
				classes[b-32] = classCommand
				commandFor[b-32] = c
			}
		}
	}
	set(cmdLength, 'l')
	set(cmdOctave, 'o')
	set(cmdNoteNum, 'n')
	set(cmdTempo, 't')
	set(cmdRest, 'p', 'r')
	set(cmdVolume, 'v')
	set(cmdWave, 'w', '@')
	set(cmdQuick, 'q')
	set(cmdAttack, '/')
	set(cmdDecay, '\\')
	set(cmdSustain, '^')
	set(cmdRelease, '_')
	set(cmdParam, 'y')
	set(cmdPan, 's')
	classes['m'], classes['M'] = classMode, classMode
	classes['x'], classes['X'] = classIndirect, classIndirect
	classes['='] = classLiteral
}
