// Package symbols implements the device memory model: memory blocks, typed
// symbols, data areas and the database resolving them by name or address.
package symbols

import (
	"fmt"
	"strings"
	"sync"

	"github.com/mrpasztoradam/goadsdev/internal/ads"
)

const (
	// DefaultAreaIndexGroup selects the catch-all PLC memory area.
	DefaultAreaIndexGroup = ads.IndexGroupPLCMemory
	DefaultAreaSize       = 100_000
)

// Database is an ordered collection of data areas.
//
// Name resolution scans areas in registration order, so an earlier area
// shadows a later one holding the same name. A default PLC memory area is
// always present and stays last unless its index group is registered
// explicitly.
type Database struct {
	mu       sync.RWMutex
	areas    []*DataArea
	byGroup  map[uint32]*DataArea
	fallback *DataArea
}

func NewDatabase() *Database {
	fallback := NewDataArea(DefaultAreaIndexGroup, KindPLCMemory, DefaultAreaSize)
	return &Database{
		areas:    []*DataArea{fallback},
		byGroup:  map[uint32]*DataArea{DefaultAreaIndexGroup: fallback},
		fallback: fallback,
	}
}

// AddArea registers area. Registering the default index group replaces the
// default area; any other duplicate index group is an error.
func (db *Database) AddArea(area *DataArea) (*DataArea, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if existing, ok := db.byGroup[area.IndexGroup]; ok {
		if existing != db.fallback {
			return nil, fmt.Errorf("symbols: index group 0x%X already registered", area.IndexGroup)
		}
		db.areas = db.areas[:len(db.areas)-1]
		db.fallback = nil
	}

	if db.fallback != nil {
		last := len(db.areas) - 1
		db.areas = append(db.areas[:last], area, db.fallback)
	} else {
		db.areas = append(db.areas, area)
	}
	db.byGroup[area.IndexGroup] = area
	return area, nil
}

// Areas returns the data areas in resolution order.
func (db *Database) Areas() []*DataArea {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return append([]*DataArea(nil), db.areas...)
}

// Area returns the data area registered for indexGroup.
func (db *Database) Area(indexGroup uint32) (*DataArea, bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	area, ok := db.byGroup[indexGroup]
	return area, ok
}

// ResolveByName returns the first symbol called name, scanning areas in
// registration order.
func (db *Database) ResolveByName(name string) (*Symbol, error) {
	for _, area := range db.Areas() {
		if sym, ok := area.Symbol(name); ok {
			return sym, nil
		}
	}
	return nil, &SymbolNotFoundError{Name: name}
}

// Range is a bounds-checked byte range within a data area.
type Range struct {
	Area   *DataArea
	Offset uint32
	Size   uint32
}

func (r Range) Read() ([]byte, error) {
	return r.Area.ReadAt(r.Offset, r.Size)
}

// Write stores data at the start of the range; data must not exceed it.
func (r Range) Write(data []byte) error {
	if uint32(len(data)) > r.Size {
		return &BoundsError{Offset: uint64(r.Offset), Size: uint64(len(data)), Limit: uint64(r.Offset) + uint64(r.Size)}
	}
	return r.Area.WriteAt(r.Offset, data)
}

// ResolveByAddress validates [offset, offset+size) within the area selected
// by indexGroup.
func (db *Database) ResolveByAddress(indexGroup, offset, size uint32) (Range, error) {
	area, ok := db.Area(indexGroup)
	if !ok {
		return Range{}, &UnknownAddressSpaceError{IndexGroup: indexGroup}
	}
	if err := area.mem.check(offset, uint64(size)); err != nil {
		return Range{}, err
	}
	return Range{Area: area, Offset: offset, Size: size}, nil
}

// Symbols returns every symbol that resolves by name, in resolution order.
// Shadowed symbols are left out.
func (db *Database) Symbols() []*Symbol {
	seen := make(map[string]struct{})
	var out []*Symbol
	for _, area := range db.Areas() {
		for _, sym := range area.Symbols() {
			if _, dup := seen[sym.Name]; dup {
				continue
			}
			seen[sym.Name] = struct{}{}
			out = append(out, sym)
		}
	}
	return out
}

// Find returns the resolvable symbols whose name contains pattern,
// ignoring case.
func (db *Database) Find(pattern string) []*Symbol {
	pattern = strings.ToLower(pattern)
	var matches []*Symbol
	for _, sym := range db.Symbols() {
		if strings.Contains(strings.ToLower(sym.Name), pattern) {
			matches = append(matches, sym)
		}
	}
	return matches
}

// Snapshot copies the memory of every area, keyed by index group.
func (db *Database) Snapshot() map[uint32][]byte {
	out := make(map[uint32][]byte)
	for _, area := range db.Areas() {
		out[area.IndexGroup] = area.Snapshot()
	}
	return out
}
