package parcel

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
)

// Parcel is one cell of the world grid.
type Parcel struct {
	X int16
	Y int16
}

// New returns the parcel (x, y).
func New(x, y int16) Parcel {
	return Parcel{X: x, Y: y}
}

// Checked returns the parcel (x, y), failing when it lies outside the
// world boundaries.
func Checked(x, y int) (Parcel, error) {
	if x < MinCoord || x > MaxCoord || y < MinCoord || y > MaxCoord {
		return Parcel{}, fmt.Errorf("parcel %d,%d outside the world bounds [%d, %d]", x, y, MinCoord, MaxCoord)
	}
	return Parcel{X: int16(x), Y: int16(y)}, nil
}

// Valid reports whether the parcel lies inside the world boundaries.
func (p Parcel) Valid() bool {
	return p.X >= MinCoord && p.X <= MaxCoord && p.Y >= MinCoord && p.Y <= MaxCoord
}

// String returns the pointer form "x,y".
func (p Parcel) String() string {
	return strconv.Itoa(int(p.X)) + "," + strconv.Itoa(int(p.Y))
}

// Parse parses the pointer form "x,y".
func Parse(s string) (Parcel, error) {
	xs, ys, ok := strings.Cut(strings.TrimSpace(s), ",")
	if !ok {
		return Parcel{}, fmt.Errorf("parsing parcel %q: missing comma", s)
	}
	x, err := strconv.ParseInt(strings.TrimSpace(xs), 10, 16)
	if err != nil {
		return Parcel{}, fmt.Errorf("parsing parcel %q: %w", s, err)
	}
	y, err := strconv.ParseInt(strings.TrimSpace(ys), 10, 16)
	if err != nil {
		return Parcel{}, fmt.Errorf("parsing parcel %q: %w", s, err)
	}
	return Parcel{X: int16(x), Y: int16(y)}, nil
}

// ParseAll parses a list of pointers, failing on the first malformed one.
func ParseAll(pointers []string) ([]Parcel, error) {
	out := make([]Parcel, 0, len(pointers))
	for _, s := range pointers {
		p, err := Parse(s)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// Pointers returns the "x,y" form of every parcel.
func Pointers(parcels []Parcel) []string {
	out := make([]string, len(parcels))
	for i, p := range parcels {
		out[i] = p.String()
	}
	return out
}

// MarshalText implements encoding.TextMarshaler.
func (p Parcel) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Parcel) UnmarshalText(b []byte) error {
	v, err := Parse(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

var (
	_ msgpack.CustomEncoder = Parcel{}
	_ msgpack.CustomDecoder = (*Parcel)(nil)
)

// EncodeMsgpack writes the parcel as its "x,y" string.
func (p Parcel) EncodeMsgpack(enc *msgpack.Encoder) error {
	return enc.EncodeString(p.String())
}

// DecodeMsgpack reads a parcel from its "x,y" string.
func (p *Parcel) DecodeMsgpack(dec *msgpack.Decoder) error {
	s, err := dec.DecodeString()
	if err != nil {
		return err
	}
	return p.UnmarshalText([]byte(s))
}
