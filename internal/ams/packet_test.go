package ams

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	clientAddr = Addr{NetID: NetID{1, 2, 3, 4, 5, 6}, Port: 32905}
	deviceAddr = Addr{NetID: NetID{5, 4, 3, 2, 1, 7}, Port: PortPLCRuntime1}
)

func TestParseNetID(t *testing.T) {
	tests := []struct {
		input   string
		want    NetID
		wantErr bool
	}{
		{"192.168.1.100.1.1", NetID{192, 168, 1, 100, 1, 1}, false},
		{"0.0.0.0.0.0", NetID{}, false},
		{" 10.0.10.20.1.1 ", NetID{10, 0, 10, 20, 1, 1}, false},
		{"192.168.1.100", NetID{}, true},
		{"1.2.3.4.5.6.7", NetID{}, true},
		{"256.0.0.0.0.0", NetID{}, true},
		{"a.b.c.d.e.f", NetID{}, true},
		{"", NetID{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseNetID(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHeaderLayout(t *testing.T) {
	h := Header{
		Target:     deviceAddr,
		Source:     clientAddr,
		CommandID:  0x0009,
		StateFlags: StateFlagsTCPRequest,
		DataLength: 0x11,
		ErrorCode:  0,
		InvokeID:   0xDEADBEEF,
	}
	buf, err := h.MarshalBinary()
	require.NoError(t, err)
	require.Len(t, buf, HeaderSize)

	assert.Equal(t, deviceAddr.NetID[:], buf[0:6])
	assert.Equal(t, uint16(851), binary.LittleEndian.Uint16(buf[6:8]))
	assert.Equal(t, clientAddr.NetID[:], buf[8:14])
	assert.Equal(t, uint16(32905), binary.LittleEndian.Uint16(buf[14:16]))
	assert.Equal(t, uint16(9), binary.LittleEndian.Uint16(buf[16:18]))
	assert.Equal(t, uint16(4), binary.LittleEndian.Uint16(buf[18:20]))
	assert.Equal(t, uint32(0x11), binary.LittleEndian.Uint32(buf[20:24]))
	assert.Equal(t, uint32(0xDEADBEEF), binary.LittleEndian.Uint32(buf[28:32]))

	var back Header
	require.NoError(t, back.UnmarshalBinary(buf))
	assert.Equal(t, h, back)
	assert.True(t, back.IsRequest())
}

func TestReplySwapsAddresses(t *testing.T) {
	req := Header{Target: deviceAddr, Source: clientAddr, CommandID: 4, StateFlags: StateFlagsTCPRequest, InvokeID: 77}
	resp := req.Reply(8)

	assert.Equal(t, clientAddr, resp.Target)
	assert.Equal(t, deviceAddr, resp.Source)
	assert.Equal(t, uint32(77), resp.InvokeID)
	assert.Equal(t, uint32(8), resp.DataLength)
	assert.True(t, resp.IsResponse())
	assert.Equal(t, StateFlagsTCPResponse, resp.StateFlags)

	udp := Header{StateFlags: StateFlagsUDPRequest}
	assert.Equal(t, StateFlagsUDPResponse, udp.Reply(0).StateFlags)
}

func TestTransportLengthMatchesFollowingBytes(t *testing.T) {
	for _, size := range []int{0, 1, 4, 12, 300} {
		p := NewRequestPacket(deviceAddr, clientAddr, 2, 1, make([]byte, size))
		buf, err := p.MarshalBinary()
		require.NoError(t, err)
		assert.Equal(t, uint32(len(buf)-TCPHeaderSize), binary.LittleEndian.Uint32(buf[2:6]))
		assert.Equal(t, uint32(size), binary.LittleEndian.Uint32(buf[TCPHeaderSize+20:TCPHeaderSize+24]))
	}
}

func TestDecode(t *testing.T) {
	p := NewRequestPacket(deviceAddr, clientAddr, 3, 42, []byte{1, 2, 3, 4})
	buf, err := p.MarshalBinary()
	require.NoError(t, err)

	t.Run("complete", func(t *testing.T) {
		got, n, err := Decode(buf, 0)
		require.NoError(t, err)
		assert.Equal(t, len(buf), n)
		assert.Equal(t, p.Data, got.Data)
		assert.Equal(t, uint32(42), got.Header.InvokeID)
	})

	t.Run("idempotent", func(t *testing.T) {
		a, _, err := Decode(buf, 0)
		require.NoError(t, err)
		b, _, err := Decode(buf, 0)
		require.NoError(t, err)
		assert.Equal(t, a, b)
	})

	t.Run("incomplete", func(t *testing.T) {
		for i := 0; i < len(buf); i++ {
			got, n, err := Decode(buf[:i], 0)
			require.NoError(t, err)
			assert.Nil(t, got)
			assert.Zero(t, n)
		}
	})

	t.Run("trailing bytes ignored", func(t *testing.T) {
		got, n, err := Decode(append(append([]byte{}, buf...), 0xAA, 0xBB), 0)
		require.NoError(t, err)
		assert.Equal(t, len(buf), n)
		assert.Equal(t, p.Data, got.Data)
	})

	t.Run("does not read past data length", func(t *testing.T) {
		padded := append([]byte{}, buf...)
		padded = append(padded, 9, 9)
		binary.LittleEndian.PutUint32(padded[2:6], uint32(HeaderSize+6))
		got, n, err := Decode(padded, 0)
		require.NoError(t, err)
		assert.Equal(t, len(padded), n)
		assert.Equal(t, []byte{1, 2, 3, 4}, got.Data)
	})

	t.Run("short length is framing error", func(t *testing.T) {
		bad := append([]byte{}, buf...)
		binary.LittleEndian.PutUint32(bad[2:6], 10)
		_, _, err := Decode(bad, 0)
		assert.True(t, IsFramingError(err))
	})

	t.Run("oversized length is framing error", func(t *testing.T) {
		_, _, err := Decode(buf, 16)
		assert.True(t, IsFramingError(err))
	})

	t.Run("data length beyond frame is framing error", func(t *testing.T) {
		bad := append([]byte{}, buf...)
		binary.LittleEndian.PutUint32(bad[TCPHeaderSize+20:], 100)
		_, _, err := Decode(bad, 0)
		assert.True(t, IsFramingError(err))
	})
}

func TestReadWritePacket(t *testing.T) {
	p := NewRequestPacket(deviceAddr, clientAddr, 1, 5, nil)
	var buf bytes.Buffer
	require.NoError(t, WritePacket(&buf, p))

	got, err := ReadPacket(&buf)
	require.NoError(t, err)
	assert.Equal(t, uint16(1), got.Header.CommandID)
	assert.Empty(t, got.Data)
}
