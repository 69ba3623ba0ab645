package mml

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Type identifies the layout of a cell addressed by X or = references.
type Type byte

const (
	TypeInt8     Type = 1
	TypeInt16    Type = 2
	TypeString   Type = 3
	TypeSingle   Type = 4
	TypeInt64    Type = 5
	TypeUint8    Type = 6
	TypeUint16   Type = 7
	TypeDouble   Type = 8
	TypeUint32   Type = 9
	TypeExtended Type = 10
	TypeUint64   Type = 11
	TypeInt32    Type = 20

	bitFieldSigned   Type = 0x80
	bitFieldUnsigned Type = 0xC0
	bitFieldWidth         = 0x3F
	maxBitField           = 56
)

// BitField returns the type byte of a bit-field cell of the given width.
func BitField(width int, signed bool) Type {
	w := Type(clampInt(width, 1, maxBitField))
	if signed {
		return bitFieldSigned | w
	}
	return bitFieldUnsigned | w
}

// Segment is the data area that indirection references point into.
// Strings are stored as a 4-byte descriptor: uint16 length and uint16 offset
// of the text, both little-endian.
type Segment struct {
	data []byte
}

func NewSegment(data []byte) *Segment { return &Segment{data: data} }

func (s *Segment) Bytes() []byte { return s.data }

// AddString stores text and returns the offset of its descriptor.
func (s *Segment) AddString(text string) uint16 {
	textOff := len(s.data)
	s.data = append(s.data, text...)
	descOff := len(s.data)
	s.data = binary.LittleEndian.AppendUint16(s.data, uint16(len(text)))
	s.data = binary.LittleEndian.AppendUint16(s.data, uint16(textOff))
	return uint16(descOff)
}

// AddCell stores raw little-endian cell bytes and returns their offset.
func (s *Segment) AddCell(raw []byte) uint16 {
	off := len(s.data)
	s.data = append(s.data, raw...)
	return uint16(off)
}

// Ref builds the 4-byte reference packet that follows X or = in MML text.
func Ref(cmd byte, typ Type, off uint16) string {
	return string([]byte{cmd, byte(typ), byte(off), byte(off >> 8)})
}

func (s *Segment) slice(off, n int) ([]byte, error) {
	if s == nil || off < 0 || n < 0 || off+n > len(s.data) {
		return nil, fmt.Errorf("reference %d+%d outside data segment", off, n)
	}
	return s.data[off : off+n], nil
}

func (s *Segment) text(off int) ([]byte, error) {
	desc, err := s.slice(off, 4)
	if err != nil {
		return nil, err
	}
	n := int(binary.LittleEndian.Uint16(desc))
	at := int(binary.LittleEndian.Uint16(desc[2:]))
	return s.slice(at, n)
}

// number decodes the cell at off and rounds it to an integer.
func (s *Segment) number(typ Type, off int) (int64, error) {
	if typ&bitFieldSigned != 0 {
		width := int(typ & bitFieldWidth)
		if width < 1 || width > maxBitField {
			return 0, fmt.Errorf("bit-field width %d", width)
		}
		raw, err := s.slice(off, (width+7)/8)
		if err != nil {
			return 0, err
		}
		var buf [8]byte
		copy(buf[:], raw)
		v := binary.LittleEndian.Uint64(buf[:]) & (1<<uint(width) - 1)
		if typ&bitFieldUnsigned == bitFieldUnsigned {
			return int64(v), nil
		}
		shift := uint(64 - width)
		return int64(v<<shift) >> shift, nil
	}
	size := map[Type]int{
		TypeInt8: 1, TypeUint8: 1,
		TypeInt16: 2, TypeUint16: 2,
		TypeInt32: 4, TypeUint32: 4, TypeSingle: 4,
		TypeInt64: 8, TypeUint64: 8, TypeDouble: 8,
		TypeExtended: 10,
	}[typ]
	if size == 0 {
		return 0, fmt.Errorf("type %d is not numeric", typ)
	}
	raw, err := s.slice(off, size)
	if err != nil {
		return 0, err
	}
	le := binary.LittleEndian
	switch typ {
	case TypeInt8:
		return int64(int8(raw[0])), nil
	case TypeUint8:
		return int64(raw[0]), nil
	case TypeInt16:
		return int64(int16(le.Uint16(raw))), nil
	case TypeUint16:
		return int64(le.Uint16(raw)), nil
	case TypeInt32:
		return int64(int32(le.Uint32(raw))), nil
	case TypeUint32:
		return int64(le.Uint32(raw)), nil
	case TypeInt64:
		return int64(le.Uint64(raw)), nil
	case TypeUint64:
		u := le.Uint64(raw)
		if u > math.MaxInt64 {
			return math.MaxInt64, nil
		}
		return int64(u), nil
	case TypeSingle:
		return roundFloat(float64(math.Float32frombits(le.Uint32(raw))))
	case TypeDouble:
		return roundFloat(math.Float64frombits(le.Uint64(raw)))
	default:
		return roundFloat(extended(raw))
	}
}

// extended decodes an x87 80-bit float: 64-bit mantissa with explicit integer
// bit, then 15-bit exponent and sign.
func extended(raw []byte) float64 {
	mant := binary.LittleEndian.Uint64(raw)
	se := binary.LittleEndian.Uint16(raw[8:])
	exp := int(se & 0x7FFF)
	if exp == 0 && mant == 0 {
		return 0
	}
	if exp == 0x7FFF {
		return math.NaN()
	}
	v := math.Ldexp(float64(mant), exp-16383-63)
	if se&0x8000 != 0 {
		v = -v
	}
	return v
}

func roundFloat(f float64) (int64, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || math.Abs(f) > math.MaxInt64 {
		return 0, fmt.Errorf("value %v is not representable", f)
	}
	return int64(math.RoundToEven(f)), nil
}
