// Package retain persists data area memory across restarts.
package retain

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/mrpasztoradam/goadsdev/internal/symbols"
)

// FormatVersion is the current version of the retain file format.
const FormatVersion = 1

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encOpts := cbor.EncOptions{
		Sort:        cbor.SortCanonical,
		IndefLength: cbor.IndefLengthForbidden,
		Time:        cbor.TimeRFC3339Nano,
	}
	if encMode, err = encOpts.EncMode(); err != nil {
		panic(fmt.Sprintf("retain: cbor encoder mode: %v", err))
	}
	decOpts := cbor.DecOptions{
		DupMapKey: cbor.DupMapKeyEnforcedAPF,
	}
	if decMode, err = decOpts.DecMode(); err != nil {
		panic(fmt.Sprintf("retain: cbor decoder mode: %v", err))
	}
}

// Snapshot is the memory image of every data area at one point in time.
type Snapshot struct {
	Version int         `cbor:"1,keyasint"`
	SavedAt time.Time   `cbor:"2,keyasint"`
	Device  string      `cbor:"3,keyasint,omitempty"`
	Areas   []AreaImage `cbor:"4,keyasint"`
}

type AreaImage struct {
	IndexGroup uint32 `cbor:"1,keyasint"`
	Kind       string `cbor:"2,keyasint"`
	Data       []byte `cbor:"3,keyasint"`
}

// Capture copies the memory of every area of db.
func Capture(device string, db *symbols.Database) *Snapshot {
	snap := &Snapshot{Version: FormatVersion, SavedAt: time.Now().UTC(), Device: device}
	for _, area := range db.Areas() {
		snap.Areas = append(snap.Areas, AreaImage{
			IndexGroup: area.IndexGroup,
			Kind:       area.Kind,
			Data:       area.Snapshot(),
		})
	}
	return snap
}

// Apply restores the images into the matching areas of db. Images for unknown
// index groups or of the wrong size are skipped and reported in the returned
// error; the others are still applied.
func (s *Snapshot) Apply(db *symbols.Database) (int, error) {
	var (
		applied int
		errs    []error
	)
	for _, img := range s.Areas {
		area, ok := db.Area(img.IndexGroup)
		if !ok {
			errs = append(errs, &symbols.UnknownAddressSpaceError{IndexGroup: img.IndexGroup})
			continue
		}
		if err := area.Restore(img.Data); err != nil {
			errs = append(errs, err)
			continue
		}
		applied++
	}
	return applied, errors.Join(errs...)
}

// Store reads and writes snapshots to a single file.
type Store struct {
	mu   sync.Mutex
	path string
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

func (s *Store) Path() string {
	return s.path
}

// Save writes snap atomically by renaming a temporary file over the target.
func (s *Store) Save(snap *Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("retain: %w", err)
	}
	data, err := encMode.Marshal(snap)
	if err != nil {
		return fmt.Errorf("retain: encode: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("retain: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("retain: %w", err)
	}
	return nil
}

// Load reads the snapshot. It returns nil, nil if the file does not exist.
func (s *Store) Load() (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("retain: %w", err)
	}

	var snap Snapshot
	if err := decMode.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("retain: decode %s: %w", s.path, err)
	}
	if snap.Version != FormatVersion {
		return nil, fmt.Errorf("retain: unsupported format version %d", snap.Version)
	}
	return &snap, nil
}

// Clear removes the retain file.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
