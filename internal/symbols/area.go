package symbols

import (
	"fmt"
	"sort"
	"sync"
)

// Area kinds used by importers and configuration.
const (
	KindInternal  = "Internal"
	KindInputDst  = "InputDst"
	KindOutputSrc = "OutputSrc"
	KindPLCMemory = "PLC_MEMORY_AREA"
)

// DataArea is an address space selected by an index group. It owns one
// Memory block and the symbols placed in it.
//
// All memory access goes through the area's lock, so no reader observes a
// partially written range and overlapping writes never interleave.
type DataArea struct {
	IndexGroup uint32
	Kind       string

	mu      sync.RWMutex
	mem     *Memory
	symbols map[string]*Symbol
}

func NewDataArea(indexGroup uint32, kind string, size uint32) *DataArea {
	return &DataArea{
		IndexGroup: indexGroup,
		Kind:       kind,
		mem:        NewMemory(size),
		symbols:    make(map[string]*Symbol),
	}
}

func (a *DataArea) Size() uint32 {
	return a.mem.Size()
}

// AddSymbol places a symbol at offset, replacing any symbol of the same name.
func (a *DataArea) AddSymbol(name string, offset uint32, dt DataType, arrayLength uint32) (*Symbol, error) {
	if name == "" {
		return nil, fmt.Errorf("symbols: empty symbol name")
	}
	if !dt.Valid() {
		return nil, &UnsupportedTypeError{Symbol: name, TypeName: dt.String()}
	}
	if arrayLength == 0 {
		arrayLength = 1
	}

	sym := &Symbol{
		Name:        name,
		Offset:      offset,
		Type:        dt,
		ArrayLength: arrayLength,
		area:        a,
	}
	if err := a.mem.check(offset, uint64(dt.ElementSize())*uint64(arrayLength)); err != nil {
		return nil, fmt.Errorf("symbols: place %s: %w", name, err)
	}

	a.mu.Lock()
	a.symbols[name] = sym
	a.mu.Unlock()
	return sym, nil
}

// Symbol returns the symbol registered under name.
func (a *DataArea) Symbol(name string) (*Symbol, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	sym, ok := a.symbols[name]
	return sym, ok
}

// Symbols returns the area's symbols ordered by offset, then name.
func (a *DataArea) Symbols() []*Symbol {
	a.mu.RLock()
	syms := make([]*Symbol, 0, len(a.symbols))
	for _, sym := range a.symbols {
		syms = append(syms, sym)
	}
	a.mu.RUnlock()

	sort.Slice(syms, func(i, j int) bool {
		if syms[i].Offset != syms[j].Offset {
			return syms[i].Offset < syms[j].Offset
		}
		return syms[i].Name < syms[j].Name
	})
	return syms
}

func (a *DataArea) SymbolCount() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.symbols)
}

// ReadAt returns a copy of size bytes at offset.
func (a *DataArea) ReadAt(offset, size uint32) ([]byte, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	view, err := a.mem.Read(offset, size)
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), view...), nil
}

func (a *DataArea) WriteAt(offset uint32, data []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.mem.Write(offset, data)
}

// Snapshot copies the whole memory block.
func (a *DataArea) Snapshot() []byte {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]byte(nil), a.mem.buf...)
}

// Restore overwrites the whole memory block. The image must match the block
// size exactly.
func (a *DataArea) Restore(image []byte) error {
	if uint32(len(image)) != a.mem.Size() {
		return fmt.Errorf("symbols: area 0x%X holds %d bytes, image has %d", a.IndexGroup, a.mem.Size(), len(image))
	}
	return a.WriteAt(0, image)
}

func (a *DataArea) String() string {
	return fmt.Sprintf("%s (0x%X, %d bytes)", a.Kind, a.IndexGroup, a.mem.Size())
}
