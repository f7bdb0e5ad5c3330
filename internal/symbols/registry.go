package symbols

import (
	"sort"
	"strconv"
	"strings"
	"sync"
)

// TypeRegistry maps PLC type names to data types.
type TypeRegistry struct {
	mu    sync.RWMutex
	types map[string]DataType
}

// NewTypeRegistry creates a registry holding the elementary IEC 61131 type
// names.
func NewTypeRegistry() *TypeRegistry {
	return &TypeRegistry{
		types: map[string]DataType{
			"BOOL":   DataTypeBit,
			"BYTE":   DataTypeUInt8,
			"SINT":   DataTypeInt8,
			"USINT":  DataTypeUInt8,
			"WORD":   DataTypeUInt16,
			"INT":    DataTypeInt16,
			"UINT":   DataTypeUInt16,
			"DWORD":  DataTypeUInt32,
			"DINT":   DataTypeInt32,
			"UDINT":  DataTypeUInt32,
			"ENUM":   DataTypeUInt32,
			"LWORD":  DataTypeUInt64,
			"LINT":   DataTypeInt64,
			"ULINT":  DataTypeUInt64,
			"REAL":   DataTypeReal32,
			"LREAL":  DataTypeReal64,
			"STRING": DataTypeString,
		},
	}
}

// Register adds or replaces an alias, e.g. a project-specific enum name.
func (r *TypeRegistry) Register(typeName string, dt DataType) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types[strings.ToUpper(typeName)] = dt
}

// Get looks up a plain type name.
func (r *TypeRegistry) Get(typeName string) (DataType, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	dt, ok := r.types[strings.ToUpper(typeName)]
	return dt, ok
}

func (r *TypeRegistry) Has(typeName string) bool {
	_, ok := r.Get(typeName)
	return ok
}

// List returns the registered type names, sorted.
func (r *TypeRegistry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.types))
	for name := range r.types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve decodes a declared type name into a data type and array length.
// STRING(n) overrides arrayLength with its capacity n. Names with no data
// type fail with *UnsupportedTypeError.
func (r *TypeRegistry) Resolve(symbol, typeName string, arrayLength uint32) (DataType, uint32, error) {
	name := strings.TrimSpace(typeName)
	if open := strings.IndexByte(name, '('); open > 0 && strings.HasPrefix(strings.ToUpper(name), "STRING") {
		capacity, err := strconv.ParseUint(strings.TrimSuffix(name[open+1:], ")"), 10, 32)
		if err != nil || capacity == 0 {
			return 0, 0, &UnsupportedTypeError{Symbol: symbol, TypeName: typeName}
		}
		return DataTypeString, uint32(capacity), nil
	}

	dt, ok := r.Get(name)
	if !ok {
		return 0, 0, &UnsupportedTypeError{Symbol: symbol, TypeName: typeName}
	}
	if arrayLength == 0 {
		arrayLength = 1
	}
	return dt, arrayLength, nil
}

// Description is a symbol as declared by an external project description.
type Description struct {
	Name        string
	BitOffset   uint64
	TypeName    string
	ArrayLength uint32
	Comment     string
}

// AddDescribed places a described symbol in area. The bit offset must be byte
// aligned (*AlignmentError) and the type name known to r
// (*UnsupportedTypeError).
func (r *TypeRegistry) AddDescribed(area *DataArea, d Description) (*Symbol, error) {
	if d.BitOffset%8 != 0 {
		return nil, &AlignmentError{Symbol: d.Name, BitOffset: d.BitOffset}
	}
	dt, n, err := r.Resolve(d.Name, d.TypeName, d.ArrayLength)
	if err != nil {
		return nil, err
	}
	offset := d.BitOffset / 8
	if offset > uint64(^uint32(0)) {
		return nil, &BoundsError{Offset: offset, Size: uint64(dt.ElementSize()) * uint64(n), Limit: uint64(area.Size())}
	}
	sym, err := area.AddSymbol(d.Name, uint32(offset), dt, n)
	if err != nil {
		return nil, err
	}
	sym.Comment = d.Comment
	return sym, nil
}
