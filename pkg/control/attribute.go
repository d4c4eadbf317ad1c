package control

import (
	"encoding/binary"
	"fmt"

	"github.com/kevmo314/go-uvc-gadget/pkg/requests"
)

// Attribute is a stored integer control such as brightness. SET_CUR stores
// the host's bytes, GET_CUR returns them and the range requests return the
// attribute's constants.
type Attribute struct {
	Size int
	Min  int32
	Max  int32
	Def  int32
	Res  int32
	// NoRange attributes answer only GET_CUR, GET_DEF and GET_INFO.
	NoRange bool
	// OnSet, if set, is called with the stored value after each SET_CUR.
	OnSet func(value uint32)

	cur []byte
}

// NewAttribute returns an attribute of size bytes holding its default.
func NewAttribute(size int, min, max, def, res int32) *Attribute {
	a := &Attribute{Size: size, Min: min, Max: max, Def: def, Res: res}
	a.cur = a.encode(def)
	return a
}

func (a *Attribute) encode(v int32) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(v))
	out := make([]byte, a.Size)
	copy(out, b[:])
	return out
}

// Value returns the stored value zero-extended to 32 bits.
func (a *Attribute) Value() uint32 {
	var b [4]byte
	copy(b[:], a.cur)
	return binary.LittleEndian.Uint32(b[:])
}

func (a *Attribute) Request(code requests.RequestCode, length uint16) ([]byte, error) {
	switch code {
	case requests.RequestCodeSetCur:
		return nil, nil
	case requests.RequestCodeGetCur:
		return append([]byte(nil), a.cur...), nil
	case requests.RequestCodeGetDef:
		return a.encode(a.Def), nil
	case requests.RequestCodeGetInfo:
		return []byte{requests.InfoSupportsGet | requests.InfoSupportsSet}, nil
	}
	if a.NoRange {
		return nil, ErrStall
	}
	switch code {
	case requests.RequestCodeGetMin:
		return a.encode(a.Min), nil
	case requests.RequestCodeGetMax:
		return a.encode(a.Max), nil
	case requests.RequestCodeGetRes:
		return a.encode(a.Res), nil
	}
	return nil, ErrStall
}

func (a *Attribute) Data(b []byte) error {
	if len(b) > a.Size {
		return fmt.Errorf("%d bytes for a %d byte attribute", len(b), a.Size)
	}
	cur := make([]byte, a.Size)
	copy(cur, b)
	a.cur = cur
	if a.OnSet != nil {
		a.OnSet(a.Value())
	}
	return nil
}

// Fixed answers every supported request with a canned value, zero padded to
// the host's length. When Settable, SET_CUR data replaces the GET_CUR value.
type Fixed struct {
	Responses map[requests.RequestCode][]byte
	Settable  bool
}

func (f *Fixed) Request(code requests.RequestCode, length uint16) ([]byte, error) {
	if code == requests.RequestCodeSetCur {
		if !f.Settable {
			return nil, ErrStall
		}
		return nil, nil
	}
	v, ok := f.Responses[code]
	if !ok {
		return nil, ErrStall
	}
	out := make([]byte, max(int(length), len(v)))
	copy(out, v)
	return out, nil
}

func (f *Fixed) Data(b []byte) error {
	if f.Responses == nil {
		f.Responses = make(map[requests.RequestCode][]byte)
	}
	f.Responses[requests.RequestCodeGetCur] = append([]byte(nil), b...)
	return nil
}
