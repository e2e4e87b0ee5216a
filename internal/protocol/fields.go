package protocol

import "bytes"

// FieldKind is the decode rule applied to a field.
type FieldKind int

const (
	U8 FieldKind = iota + 1
	U16
	U32
	String
	Bytes
)

func (k FieldKind) String() string {
	switch k {
	case U8:
		return "u8"
	case U16:
		return "u16"
	case U32:
		return "u32"
	case String:
		return "string"
	case Bytes:
		return "bytes"
	default:
		return "unknown"
	}
}

// Field locates one value inside a datagram. A zero Width marks a field the
// revision does not carry; reading it yields the zero value.
type Field struct {
	Name   string
	Offset int
	Width  int
	Kind   FieldKind
}

func u8(name string, off int) Field  { return Field{Name: name, Offset: off, Width: 1, Kind: U8} }
func u16(name string, off int) Field { return Field{Name: name, Offset: off, Width: 2, Kind: U16} }
func u32(name string, off int) Field { return Field{Name: name, Offset: off, Width: 4, Kind: U32} }

func str(name string, off, width int) Field {
	return Field{Name: name, Offset: off, Width: width, Kind: String}
}

func raw(name string, off, width int) Field {
	return Field{Name: name, Offset: off, Width: width, Kind: Bytes}
}

func absent(name string, kind FieldKind) Field { return Field{Name: name, Kind: kind} }

// Present reports whether the revision carries the field.
func (f Field) Present() bool { return f.Width > 0 }

func (f Field) end() int { return f.Offset + f.Width }

func (f Field) validate(limit int) error {
	if !f.Present() {
		return nil
	}
	if f.Offset < 0 || f.end() > limit {
		return layoutErr(f, "out of range")
	}
	switch f.Kind {
	case U8:
		if f.Width != 1 {
			return layoutErr(f, "width mismatch")
		}
	case U16:
		if f.Width != 2 {
			return layoutErr(f, "width mismatch")
		}
	case U32:
		if f.Width != 4 {
			return layoutErr(f, "width mismatch")
		}
	case String, Bytes:
	default:
		return layoutErr(f, "unknown kind")
	}
	return nil
}

// The readers below assume the caller checked the datagram length against
// the layout's minimum length.

func readU8(b []byte, f Field) uint8 {
	if !f.Present() {
		return 0
	}
	return b[f.Offset]
}

func readU16(b []byte, f Field) uint16 {
	if !f.Present() {
		return 0
	}
	o := f.Offset
	return uint16(b[o]) + uint16(b[o+1])*256
}

func readU32(b []byte, f Field) uint32 {
	if !f.Present() {
		return 0
	}
	o := f.Offset
	return uint32(b[o]) + uint32(b[o+1])<<8 + uint32(b[o+2])<<16 + uint32(b[o+3])<<24
}

// readString returns the bytes up to the first NUL, or the whole field.
func readString(b []byte, f Field) string {
	if !f.Present() {
		return ""
	}
	w := b[f.Offset:f.end()]
	if i := bytes.IndexByte(w, 0); i >= 0 {
		w = w[:i]
	}
	return string(w)
}

func readBytes(b []byte, f Field) []byte {
	if !f.Present() {
		return nil
	}
	return b[f.Offset:f.end()]
}
