package symbols

import (
	"bytes"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRoundTrip(t *testing.T) {
	m := NewMemory(64)
	for offset := uint32(0); offset < 64; offset += 7 {
		for size := uint32(0); offset+size <= 64; size += 5 {
			data := bytes.Repeat([]byte{byte(offset + size + 1)}, int(size))
			require.NoError(t, m.Write(offset, data))
			got, err := m.Read(offset, size)
			require.NoError(t, err)
			assert.Equal(t, data, []byte(got), "offset %d size %d", offset, size)
		}
	}
}

func TestMemoryOutOfBounds(t *testing.T) {
	tests := []struct {
		name   string
		offset uint32
		size   uint32
	}{
		{"past end", 60, 5},
		{"offset at end", 64, 1},
		{"offset beyond", 100, 0},
		{"overflowing sum", 0xFFFFFFFF, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMemory(64)
			before := append([]byte(nil), m.buf...)

			_, err := m.Read(tt.offset, tt.size)
			var be *BoundsError
			require.ErrorAs(t, err, &be)

			err = m.Write(tt.offset, make([]byte, tt.size))
			require.ErrorAs(t, err, &be)
			assert.Equal(t, before, m.buf)
		})
	}
}

func TestMemoryReadIsView(t *testing.T) {
	m := NewMemory(8)
	view, err := m.Read(2, 2)
	require.NoError(t, err)
	require.NoError(t, m.Write(2, []byte{9, 8}))
	assert.Equal(t, []byte{9, 8}, []byte(view))
}

func TestDataAreaWritesDoNotTear(t *testing.T) {
	area := NewDataArea(0x4040, KindInternal, 256)
	a := bytes.Repeat([]byte{0xAA}, 256)
	b := bytes.Repeat([]byte{0x55}, 256)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				if (i+j)%2 == 0 {
					_ = area.WriteAt(0, a)
				} else {
					_ = area.WriteAt(0, b)
				}
			}
		}(i)
	}

	for j := 0; j < 200; j++ {
		got, err := area.ReadAt(0, 256)
		require.NoError(t, err)
		if got[0] != 0 {
			assert.True(t, bytes.Equal(got, a) || bytes.Equal(got, b), "torn read")
		}
	}
	wg.Wait()
}
