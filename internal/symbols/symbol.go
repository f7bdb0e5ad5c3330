package symbols

import "fmt"

// Symbol is a named, typed view over a byte range of its DataArea.
//
// The layout is fixed when the symbol is added; only the bytes it denotes
// change afterwards.
type Symbol struct {
	Name        string
	Offset      uint32
	Type        DataType
	ArrayLength uint32
	Comment     string

	area *DataArea
}

// Area returns the data area owning the symbol.
func (s *Symbol) Area() *DataArea {
	return s.area
}

func (s *Symbol) IndexGroup() uint32 {
	return s.area.IndexGroup
}

func (s *Symbol) ElementSize() uint32 {
	return s.Type.ElementSize()
}

// Size is the total byte size: element size times array length.
func (s *Symbol) Size() uint32 {
	return s.Type.ElementSize() * s.ArrayLength
}

// TypeName renders the declared type the way a PLC project spells it, e.g.
// DINT, STRING(80) or ARRAY [0..9] OF REAL.
func (s *Symbol) TypeName() string {
	if s.Type == DataTypeString {
		return fmt.Sprintf("STRING(%d)", s.ArrayLength)
	}
	if s.ArrayLength > 1 {
		return fmt.Sprintf("ARRAY [0..%d] OF %s", s.ArrayLength-1, s.Type)
	}
	return s.Type.String()
}

// ReadBytes returns a copy of the symbol's memory image.
func (s *Symbol) ReadBytes() ([]byte, error) {
	return s.area.ReadAt(s.Offset, s.Size())
}

// Read decodes the symbol's memory image. Scalars decode to the Go type of
// the data type (bool, int8 ... uint64, float32, float64), arrays to a slice
// of it, and strings to their full []byte image.
func (s *Symbol) Read() (any, error) {
	raw, err := s.ReadBytes()
	if err != nil {
		return nil, err
	}
	return codecs[s.Type].decode(raw, s.ArrayLength), nil
}

// Write stores v. A []byte must be exactly Size bytes and is stored verbatim;
// any other value must match the data type and array length.
func (s *Symbol) Write(v any) error {
	data, err := s.Encode(v)
	if err != nil {
		return err
	}
	return s.area.WriteAt(s.Offset, data)
}

// Encode serializes v to the symbol's memory image without storing it.
func (s *Symbol) Encode(v any) ([]byte, error) {
	if raw, ok := v.([]byte); ok {
		if uint32(len(raw)) != s.Size() {
			return nil, s.mismatch(v)
		}
		return raw, nil
	}
	data, ok := codecs[s.Type].encode(v, s.ArrayLength)
	if !ok {
		return nil, s.mismatch(v)
	}
	return data, nil
}

func (s *Symbol) mismatch(v any) error {
	return &TypeMismatchError{
		Symbol:      s.Name,
		Type:        s.Type,
		ArrayLength: s.ArrayLength,
		Value:       describe(v),
	}
}

func (s *Symbol) String() string {
	return fmt.Sprintf("%s (%s @ 0x%X+%d)", s.Name, s.TypeName(), s.area.IndexGroup, s.Offset)
}

func describe(v any) string {
	switch x := v.(type) {
	case []byte:
		return fmt.Sprintf("%d raw bytes", len(x))
	case []any:
		return fmt.Sprintf("%d values", len(x))
	case nil:
		return "nil"
	default:
		return fmt.Sprintf("%T", v)
	}
}
