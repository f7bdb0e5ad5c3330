package symbols

import "fmt"

// BoundsError reports a memory range that does not fit its block.
type BoundsError struct {
	Offset uint64
	Size   uint64
	Limit  uint64
}

func (e *BoundsError) Error() string {
	return fmt.Sprintf("symbols: range [%d, %d) outside memory of %d bytes", e.Offset, e.Offset+e.Size, e.Limit)
}

// TypeMismatchError reports a value whose shape disagrees with a symbol's
// data type or array length.
type TypeMismatchError struct {
	Symbol      string
	Type        DataType
	ArrayLength uint32
	Value       string
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("symbols: %s is %s[%d], cannot store %s", e.Symbol, e.Type, e.ArrayLength, e.Value)
}

// AlignmentError is returned for an imported symbol whose bit offset is not
// a whole byte.
type AlignmentError struct {
	Symbol    string
	BitOffset uint64
}

func (e *AlignmentError) Error() string {
	return fmt.Sprintf("symbols: %s: bit offset %d is not byte aligned", e.Symbol, e.BitOffset)
}

// UnsupportedTypeError is returned for an imported symbol whose type name has
// no data type, typically a structure or function block.
type UnsupportedTypeError struct {
	Symbol   string
	TypeName string
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("symbols: %s: unsupported type %q", e.Symbol, e.TypeName)
}

type SymbolNotFoundError struct {
	Name string
}

func (e *SymbolNotFoundError) Error() string {
	return fmt.Sprintf("symbols: symbol %q not found", e.Name)
}

type UnknownAddressSpaceError struct {
	IndexGroup uint32
}

func (e *UnknownAddressSpaceError) Error() string {
	return fmt.Sprintf("symbols: no data area for index group 0x%X", e.IndexGroup)
}
