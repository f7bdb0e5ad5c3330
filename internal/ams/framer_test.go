package ams

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func frame(t *testing.T, invokeID uint32, data []byte) []byte {
	t.Helper()
	buf, err := NewRequestPacket(deviceAddr, clientAddr, 2, invokeID, data).MarshalBinary()
	require.NoError(t, err)
	return buf
}

func TestFramerByteAtATime(t *testing.T) {
	stream := append(frame(t, 1, []byte{0xAA}), frame(t, 2, []byte{0xBB, 0xCC})...)

	f := NewFramer(0)
	var got []*Packet
	for _, b := range stream {
		pkts, err := f.Feed([]byte{b})
		require.NoError(t, err)
		got = append(got, pkts...)
	}

	require.Len(t, got, 2)
	assert.Equal(t, uint32(1), got[0].Header.InvokeID)
	assert.Equal(t, uint32(2), got[1].Header.InvokeID)
	assert.Equal(t, []byte{0xBB, 0xCC}, got[1].Data)
	assert.Zero(t, f.Buffered())
}

func TestFramerSeveralFramesInOneRead(t *testing.T) {
	var stream []byte
	for i := uint32(1); i <= 5; i++ {
		stream = append(stream, frame(t, i, nil)...)
	}
	partial := frame(t, 6, []byte{1, 2, 3})
	stream = append(stream, partial[:10]...)

	f := NewFramer(0)
	pkts, err := f.Feed(stream)
	require.NoError(t, err)
	require.Len(t, pkts, 5)
	for i, p := range pkts {
		assert.Equal(t, uint32(i+1), p.Header.InvokeID)
	}
	assert.Equal(t, 10, f.Buffered())

	pkts, err = f.Feed(partial[10:])
	require.NoError(t, err)
	require.Len(t, pkts, 1)
	assert.Equal(t, uint32(6), pkts[0].Header.InvokeID)
}

func TestFramerErrorIsSticky(t *testing.T) {
	f := NewFramer(0)
	_, err := f.Feed([]byte{0, 0, 1, 0, 0, 0})
	require.Error(t, err)
	assert.True(t, IsFramingError(err))

	pkts, err := f.Feed(frame(t, 1, nil))
	assert.True(t, IsFramingError(err))
	assert.Empty(t, pkts)
}
