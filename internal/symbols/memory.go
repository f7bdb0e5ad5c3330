package symbols

// Memory is a fixed-size block of device memory.
//
// Memory itself is not synchronized; the owning DataArea serializes access.
type Memory struct {
	buf []byte
}

func NewMemory(size uint32) *Memory {
	return &Memory{buf: make([]byte, size)}
}

func (m *Memory) Size() uint32 {
	return uint32(len(m.buf))
}

// Read returns a view of size bytes at offset. The view aliases the block and
// observes later writes.
func (m *Memory) Read(offset, size uint32) ([]byte, error) {
	if err := m.check(offset, uint64(size)); err != nil {
		return nil, err
	}
	return m.buf[offset : offset+size : offset+size], nil
}

// Write copies data into the block at offset. Nothing is written when the
// range is out of bounds.
func (m *Memory) Write(offset uint32, data []byte) error {
	if err := m.check(offset, uint64(len(data))); err != nil {
		return err
	}
	copy(m.buf[offset:], data)
	return nil
}

func (m *Memory) check(offset uint32, size uint64) error {
	if uint64(offset)+size > uint64(len(m.buf)) {
		return &BoundsError{Offset: uint64(offset), Size: size, Limit: uint64(len(m.buf))}
	}
	return nil
}
