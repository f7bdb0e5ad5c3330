package goadsdev

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrpasztoradam/goadsdev/internal/ads"
	"github.com/mrpasztoradam/goadsdev/internal/ams"
	"github.com/mrpasztoradam/goadsdev/internal/symbols"
)

var (
	deviceAddr = ams.Addr{NetID: ams.NetID{10, 0, 0, 1, 1, 1}, Port: ams.PortPLCRuntime1}
	clientAddr = ams.Addr{NetID: ams.NetID{10, 0, 0, 2, 1, 1}, Port: 32905}
)

// testClient drives a session through its byte-level entry point.
type testClient struct {
	t        *testing.T
	session  *Session
	invokeID uint32
}

func newTestDevice(t *testing.T, opts ...Option) *Device {
	t.Helper()
	db := symbols.NewDatabase()
	area := symbols.NewDataArea(ads.IndexGroupPLCDataArea, symbols.KindInternal, 64)
	_, err := db.AddArea(area)
	require.NoError(t, err)
	_, err = area.AddSymbol("X", 0, symbols.DataTypeInt32, 1)
	require.NoError(t, err)
	_, err = area.AddSymbol("MAIN.fTemp", 4, symbols.DataTypeReal64, 1)
	require.NoError(t, err)
	_, err = area.AddSymbol("MAIN.aValues", 12, symbols.DataTypeUInt16, 4)
	require.NoError(t, err)
	_, err = area.AddSymbol("MAIN.sName", 20, symbols.DataTypeString, 10)
	require.NoError(t, err)

	opts = append([]Option{
		WithName("TestPLC"),
		WithVersion(DeviceVersion{Major: 3, Minor: 1, Build: 4024}),
		WithAddress(deviceAddr),
		WithDatabase(db),
	}, opts...)
	d, err := New(opts...)
	require.NoError(t, err)
	return d
}

func newTestClient(t *testing.T, d *Device) *testClient {
	t.Helper()
	s := d.NewSession(deviceAddr, clientAddr)
	t.Cleanup(func() { s.Close() })
	return &testClient{t: t, session: s}
}

// roundTrip sends one request and returns the decoded response packet.
func (c *testClient) roundTrip(cmd ads.CommandID, req interface{ MarshalBinary() ([]byte, error) }) *ams.Packet {
	c.t.Helper()
	c.invokeID++

	var data []byte
	if req != nil {
		var err error
		data, err = req.MarshalBinary()
		require.NoError(c.t, err)
	}
	frame, err := ams.NewRequestPacket(deviceAddr, clientAddr, uint16(cmd), c.invokeID, data).MarshalBinary()
	require.NoError(c.t, err)

	out, err := c.session.Handle(frame)
	require.NoError(c.t, err)

	var resp ams.Packet
	require.NoError(c.t, resp.UnmarshalBinary(out))
	require.Equal(c.t, c.invokeID, resp.Header.InvokeID)
	require.True(c.t, resp.Header.IsResponse())
	require.Equal(c.t, uint16(cmd), resp.Header.CommandID)
	return &resp
}

func (c *testClient) readWrite(group, offset, readLen uint32, data []byte) *ads.ReadWriteResponse {
	c.t.Helper()
	pkt := c.roundTrip(ads.CmdReadWrite, &ads.ReadWriteRequest{IndexGroup: group, IndexOffset: offset, ReadLength: readLen, Data: data})
	var resp ads.ReadWriteResponse
	require.NoError(c.t, resp.UnmarshalBinary(pkt.Data))
	return &resp
}

func (c *testClient) read(group, offset, length uint32) *ads.ReadResponse {
	c.t.Helper()
	pkt := c.roundTrip(ads.CmdRead, &ads.ReadRequest{IndexGroup: group, IndexOffset: offset, Length: length})
	var resp ads.ReadResponse
	require.NoError(c.t, resp.UnmarshalBinary(pkt.Data))
	return &resp
}

func (c *testClient) write(group, offset uint32, data []byte) ads.Error {
	c.t.Helper()
	pkt := c.roundTrip(ads.CmdWrite, &ads.WriteRequest{IndexGroup: group, IndexOffset: offset, Data: data})
	var resp ads.WriteResponse
	require.NoError(c.t, resp.UnmarshalBinary(pkt.Data))
	return resp.Result
}

func (c *testClient) handle(name string) (uint32, ads.Error) {
	c.t.Helper()
	resp := c.readWrite(ads.IndexGroupSymbolHandleByName, 0, 4, append([]byte(name), 0))
	if resp.Result.IsError() {
		assert.Empty(c.t, resp.Data)
		return 0, resp.Result
	}
	require.Len(c.t, resp.Data, 4)
	return binary.LittleEndian.Uint32(resp.Data), resp.Result
}

func TestHandleWriteReadScenario(t *testing.T) {
	d := newTestDevice(t)
	c := newTestClient(t, d)

	h, res := c.handle("X")
	require.Equal(t, ads.ErrNoError, res)
	require.NotZero(t, h)

	assert.Equal(t, ads.ErrNoError, c.write(ads.IndexGroupSymbolValueByHandle, h, []byte{0x45, 0x23, 0x00, 0x00}))

	resp := c.read(ads.IndexGroupSymbolValueByHandle, h, 4)
	require.Equal(t, ads.ErrNoError, resp.Result)
	assert.Equal(t, int32(8997), int32(binary.LittleEndian.Uint32(resp.Data)))

	sym, err := d.Database().ResolveByName("X")
	require.NoError(t, err)
	v, err := sym.Read()
	require.NoError(t, err)
	assert.Equal(t, int32(0x2345), v)
}

func TestReadStateReturnsBootState(t *testing.T) {
	for _, state := range []ads.ADSState{ads.StateRun, ads.StateConfig, ads.StateStop} {
		t.Run(state.String(), func(t *testing.T) {
			d := newTestDevice(t, WithBootState(state))
			c := newTestClient(t, d)

			pkt := c.roundTrip(ads.CmdReadState, nil)
			var resp ads.ReadStateResponse
			require.NoError(t, resp.UnmarshalBinary(pkt.Data))
			assert.Equal(t, ads.ErrNoError, resp.Result)
			assert.Equal(t, state, resp.ADSState)
			assert.Equal(t, uint16(0), resp.DeviceState)
		})
	}
}

func TestReadDeviceInfo(t *testing.T) {
	d := newTestDevice(t)
	c := newTestClient(t, d)

	pkt := c.roundTrip(ads.CmdReadDeviceInfo, nil)
	require.Len(t, pkt.Data, 8+ads.DeviceNameSize)

	var resp ads.ReadDeviceInfoResponse
	require.NoError(t, resp.UnmarshalBinary(pkt.Data))
	assert.Equal(t, ads.ErrNoError, resp.Result)
	assert.Equal(t, "TestPLC", resp.DeviceName)
	assert.Equal(t, uint8(3), resp.MajorVersion)
	assert.Equal(t, uint8(1), resp.MinorVersion)
	assert.Equal(t, uint16(4024), resp.VersionBuild)
}

func TestHandleForUnknownName(t *testing.T) {
	d := newTestDevice(t)
	c := newTestClient(t, d)

	before := c.session.HandleCount()
	h, res := c.handle("DoesNotExist")
	assert.Equal(t, ads.ErrDeviceSymbolNotFound, res)
	assert.Zero(t, h)
	assert.Equal(t, before, c.session.HandleCount())
}

func TestResponseFramingIsSelfConsistent(t *testing.T) {
	d := newTestDevice(t)
	c := newTestClient(t, d)
	h, _ := c.handle("X")

	requests := []struct {
		cmd ads.CommandID
		req interface{ MarshalBinary() ([]byte, error) }
	}{
		{ads.CmdReadDeviceInfo, nil},
		{ads.CmdReadState, nil},
		{ads.CmdRead, &ads.ReadRequest{IndexGroup: ads.IndexGroupSymbolValueByHandle, IndexOffset: h, Length: 4}},
		{ads.CmdRead, &ads.ReadRequest{IndexGroup: 0x1234, Length: 4}},
		{ads.CmdWrite, &ads.WriteRequest{IndexGroup: ads.IndexGroupSymbolValueByHandle, IndexOffset: h, Data: []byte{1, 2, 3, 4}}},
		{ads.CmdReadWrite, &ads.ReadWriteRequest{IndexGroup: ads.IndexGroupSymbolHandleByName, ReadLength: 4, Data: []byte("X\x00")}},
		{ads.CmdWriteControl, &ads.WriteControlRequest{ADSState: ads.StateRun}},
		{ads.CmdAddDeviceNotification, nil},
	}

	for i, r := range requests {
		var data []byte
		if r.req != nil {
			var err error
			data, err = r.req.MarshalBinary()
			require.NoError(t, err)
		}
		frame, err := ams.NewRequestPacket(deviceAddr, clientAddr, uint16(r.cmd), uint32(100+i), data).MarshalBinary()
		require.NoError(t, err)

		out, err := c.session.Handle(frame)
		require.NoError(t, err)
		require.GreaterOrEqual(t, len(out), ams.TCPHeaderSize+ams.HeaderSize)

		length := binary.LittleEndian.Uint32(out[2:6])
		assert.Equal(t, uint32(len(out)-ams.TCPHeaderSize), length, "command %s", r.cmd)
		dataLength := binary.LittleEndian.Uint32(out[ams.TCPHeaderSize+20 : ams.TCPHeaderSize+24])
		assert.Equal(t, uint32(len(out)-ams.TCPHeaderSize-ams.HeaderSize), dataLength, "command %s", r.cmd)
	}
}

func TestResponseHeaderAddressing(t *testing.T) {
	d := newTestDevice(t)
	c := newTestClient(t, d)

	pkt := c.roundTrip(ads.CmdReadState, nil)
	assert.Equal(t, clientAddr, pkt.Header.Target)
	assert.Equal(t, deviceAddr, pkt.Header.Source)
	assert.Equal(t, ams.StateFlagsTCPResponse, pkt.Header.StateFlags)
	assert.Zero(t, pkt.Header.ErrorCode)
}

func TestUnknownCommand(t *testing.T) {
	d := newTestDevice(t)
	c := newTestClient(t, d)

	pkt := c.roundTrip(ads.CmdAddDeviceNotification, nil)
	require.Len(t, pkt.Data, 4)
	assert.Equal(t, ads.ErrDeviceServiceNotSupported, ads.Error(binary.LittleEndian.Uint32(pkt.Data)))
	assert.False(t, c.session.Closed())
}

func TestInvalidHandles(t *testing.T) {
	d := newTestDevice(t)
	c := newTestClient(t, d)

	resp := c.read(ads.IndexGroupSymbolValueByHandle, 999, 4)
	assert.Equal(t, ads.ErrDeviceInvalidIndexOffset, resp.Result)
	assert.Empty(t, resp.Data)
	assert.Equal(t, ads.ErrDeviceInvalidIndexOffset, c.write(ads.IndexGroupSymbolValueByHandle, 999, []byte{1, 2, 3, 4}))

	// A handle issued by another session is not valid here, open or closed.
	other := newTestClient(t, d)
	h, res := other.handle("X")
	require.Equal(t, ads.ErrNoError, res)
	require.NoError(t, other.session.Close())

	assert.Equal(t, ads.ErrDeviceInvalidIndexOffset, c.read(ads.IndexGroupSymbolValueByHandle, h, 4).Result)
	mine, res := c.handle("X")
	require.Equal(t, ads.ErrNoError, res)
	require.NoError(t, c.session.releaseHandle(mine))
	assert.Equal(t, ads.ErrDeviceInvalidIndexOffset, c.read(ads.IndexGroupSymbolValueByHandle, mine, 4).Result)
}

func TestHandlesAreDistinctAndReleasable(t *testing.T) {
	metrics := NewInMemoryMetrics()
	d := newTestDevice(t, WithMetrics(metrics))
	c := newTestClient(t, d)

	h1, _ := c.handle("X")
	h2, _ := c.handle("X")
	h3, _ := c.handle("MAIN.fTemp")
	assert.NotEqual(t, h1, h2)
	assert.NotEqual(t, h2, h3)
	assert.Equal(t, 3, c.session.HandleCount())

	release := make([]byte, 4)
	binary.LittleEndian.PutUint32(release, h2)
	assert.Equal(t, ads.ErrNoError, c.write(ads.IndexGroupReleaseSymbolHandle, 0, release))
	assert.Equal(t, 2, c.session.HandleCount())
	assert.Equal(t, ads.ErrDeviceInvalidIndexOffset, c.write(ads.IndexGroupReleaseSymbolHandle, 0, release))
	assert.Equal(t, ads.ErrDeviceInvalidSize, c.write(ads.IndexGroupReleaseSymbolHandle, 0, []byte{1}))

	// Released values are not handed out again.
	h4, _ := c.handle("X")
	assert.NotEqual(t, h2, h4)

	require.NoError(t, c.session.Close())
	assert.Zero(t, c.session.HandleCount())
	snap := metrics.Snapshot()
	assert.Equal(t, int64(4), snap.HandlesAllocated)
	assert.Equal(t, int64(0), snap.HandlesActive)
}

func TestHandleAllocationSkipsZeroAndLiveValues(t *testing.T) {
	d := newTestDevice(t)
	s := d.NewSession(deviceAddr, clientAddr)
	defer s.Close()
	sym, err := d.Database().ResolveByName("X")
	require.NoError(t, err)

	d.lastHandle.Store(^uint32(0) - 1)
	h1, err := s.allocHandle(sym)
	require.NoError(t, err)
	assert.Equal(t, ^uint32(0), h1)

	s.handles[1] = sym
	h2, err := s.allocHandle(sym)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), h2)
}

func TestReadByHandleReturnsFullSymbolSize(t *testing.T) {
	d := newTestDevice(t)
	c := newTestClient(t, d)

	h, _ := c.handle("MAIN.aValues")
	resp := c.read(ads.IndexGroupSymbolValueByHandle, h, 2)
	require.Equal(t, ads.ErrNoError, resp.Result)
	assert.Len(t, resp.Data, 8)

	resp = c.read(ads.IndexGroupSymbolValueByHandle, h, 100)
	assert.Len(t, resp.Data, 8)
}

func TestWriteByHandleSizeMismatch(t *testing.T) {
	d := newTestDevice(t)
	c := newTestClient(t, d)

	h, _ := c.handle("X")
	assert.Equal(t, ads.ErrDeviceInvalidData, c.write(ads.IndexGroupSymbolValueByHandle, h, []byte{1, 2}))

	sym, err := d.Database().ResolveByName("MAIN.sName")
	require.NoError(t, err)
	require.NoError(t, sym.Write("keep me"))

	hs, _ := c.handle("MAIN.sName")
	assert.Equal(t, ads.ErrDeviceInvalidData, c.write(ads.IndexGroupSymbolValueByHandle, hs, []byte("ab")))
	resp := c.read(ads.IndexGroupSymbolValueByHandle, hs, 10)
	require.Equal(t, ads.ErrNoError, resp.Result)
	assert.Equal(t, "keep me", ads.CString(resp.Data))
}

func TestHandleRequestNeedsRoomForHandle(t *testing.T) {
	d := newTestDevice(t)
	c := newTestClient(t, d)

	resp := c.readWrite(ads.IndexGroupSymbolHandleByName, 0, 2, []byte("X\x00"))
	assert.Equal(t, ads.ErrDeviceInvalidSize, resp.Result)
	assert.Empty(t, resp.Data)
	assert.Zero(t, c.session.HandleCount())
}

func TestHandleFromClosedSessionIsInvalid(t *testing.T) {
	d := newTestDevice(t)
	a := newTestClient(t, d)
	b := newTestClient(t, d)

	ha, res := a.handle("X")
	require.Equal(t, ads.ErrNoError, res)
	hb, res := b.handle("MAIN.fTemp")
	require.Equal(t, ads.ErrNoError, res)
	assert.NotEqual(t, ha, hb)
	require.NoError(t, b.session.Close())

	resp := a.read(ads.IndexGroupSymbolValueByHandle, hb, 8)
	assert.Equal(t, ads.ErrDeviceInvalidIndexOffset, resp.Result)
	assert.Empty(t, resp.Data)
	assert.Equal(t, ads.ErrDeviceInvalidIndexOffset, a.write(ads.IndexGroupSymbolValueByHandle, hb, make([]byte, 8)))

	resp = a.read(ads.IndexGroupSymbolValueByHandle, ha, 4)
	assert.Equal(t, ads.ErrNoError, resp.Result)
}

func TestValueByName(t *testing.T) {
	d := newTestDevice(t)
	c := newTestClient(t, d)

	sym, err := d.Database().ResolveByName("MAIN.sName")
	require.NoError(t, err)
	require.NoError(t, sym.Write("hello"))

	resp := c.readWrite(ads.IndexGroupSymbolValueByName, 0, 10, []byte("MAIN.sName\x00"))
	require.Equal(t, ads.ErrNoError, resp.Result)
	assert.Equal(t, "hello", ads.CString(resp.Data))
	assert.Len(t, resp.Data, 10)

	resp = c.readWrite(ads.IndexGroupSymbolValueByName, 0, 4, []byte("missing\x00"))
	assert.Equal(t, ads.ErrDeviceSymbolNotFound, resp.Result)

	resp = c.readWrite(ads.IndexGroupPLCDataArea, 0, 4, []byte{1, 2, 3, 4})
	assert.Equal(t, ads.ErrDeviceServiceNotSupported, resp.Result)
}

func TestRawAreaAccess(t *testing.T) {
	d := newTestDevice(t)
	c := newTestClient(t, d)

	assert.Equal(t, ads.ErrNoError, c.write(ads.IndexGroupPLCDataArea, 0, []byte{0x45, 0x23, 0, 0}))
	sym, err := d.Database().ResolveByName("X")
	require.NoError(t, err)
	v, err := sym.Read()
	require.NoError(t, err)
	assert.Equal(t, int32(8997), v)

	resp := c.read(ads.IndexGroupPLCDataArea, 0, 2)
	require.Equal(t, ads.ErrNoError, resp.Result)
	assert.Equal(t, []byte{0x45, 0x23}, resp.Data)

	// Default PLC memory area is always addressable.
	assert.Equal(t, ads.ErrNoError, c.write(ads.IndexGroupPLCMemory, 1000, []byte{7}))
	assert.Equal(t, []byte{7}, c.read(ads.IndexGroupPLCMemory, 1000, 1).Data)

	assert.Equal(t, ads.ErrDeviceInvalidSize, c.read(ads.IndexGroupPLCDataArea, 60, 8).Result)
	assert.Equal(t, ads.ErrDeviceInvalidSize, c.write(ads.IndexGroupPLCDataArea, 63, []byte{1, 2}))
	assert.Equal(t, ads.ErrDeviceInvalidIndexGroup, c.read(0x1234, 0, 4).Result)
	assert.Equal(t, ads.ErrDeviceInvalidIndexGroup, c.write(0x1234, 0, []byte{1}))
	assert.Equal(t, ads.ErrDeviceServiceNotSupported, c.read(ads.IndexGroupSymbolInfoByName, 0, 4).Result)
}

func TestSymbolUpload(t *testing.T) {
	d := newTestDevice(t)
	c := newTestClient(t, d)

	info := c.read(ads.IndexGroupSymbolUploadInfo, 0, 8)
	require.Equal(t, ads.ErrNoError, info.Result)
	require.Len(t, info.Data, 8)
	count := binary.LittleEndian.Uint32(info.Data[0:4])
	length := binary.LittleEndian.Uint32(info.Data[4:8])
	assert.Equal(t, uint32(4), count)

	table := c.read(ads.IndexGroupSymbolUpload, 0, length)
	require.Equal(t, ads.ErrNoError, table.Result)
	require.Len(t, table.Data, int(length))

	entries, err := symbols.ParseSymbolTable(table.Data)
	require.NoError(t, err)
	require.Len(t, entries, 4)

	byName := make(map[string]symbols.SymbolInfo)
	for _, e := range entries {
		byName[e.Name] = e
	}
	x := byName["X"]
	assert.Equal(t, ads.IndexGroupPLCDataArea, x.IndexGroup)
	assert.Equal(t, uint32(0), x.IndexOffset)
	assert.Equal(t, uint32(4), x.Size)
	assert.Equal(t, "DINT", x.TypeName)

	assert.Equal(t, ads.ErrDeviceInvalidSize, c.read(ads.IndexGroupSymbolUpload, 0, length-1).Result)

	version := c.read(ads.IndexGroupSymbolVersion, 0, 1)
	assert.Equal(t, []byte{symbolVersion}, version.Data)
}

func TestWriteControl(t *testing.T) {
	d := newTestDevice(t)
	c := newTestClient(t, d)

	pkt := c.roundTrip(ads.CmdWriteControl, &ads.WriteControlRequest{ADSState: ads.StateStop, DeviceState: 7})
	require.Len(t, pkt.Data, 4)
	assert.Equal(t, ads.ErrNoError, ads.Error(binary.LittleEndian.Uint32(pkt.Data)))
	assert.Equal(t, DeviceState{ADSState: ads.StateStop, DeviceState: 7}, d.State())

	pkt = c.roundTrip(ads.CmdWriteControl, &ads.WriteControlRequest{ADSState: ads.StateInvalid})
	assert.Equal(t, ads.ErrDeviceInvalidParam, ads.Error(binary.LittleEndian.Uint32(pkt.Data)))
	assert.Equal(t, ads.StateStop, d.State().ADSState)
}

func TestShortPayloadYieldsResultCode(t *testing.T) {
	d := newTestDevice(t)
	c := newTestClient(t, d)

	frame, err := ams.NewRequestPacket(deviceAddr, clientAddr, uint16(ads.CmdRead), 9, []byte{1, 2}).MarshalBinary()
	require.NoError(t, err)
	out, err := c.session.Handle(frame)
	require.NoError(t, err)

	var pkt ams.Packet
	require.NoError(t, pkt.UnmarshalBinary(out))
	var resp ads.ReadResponse
	require.NoError(t, resp.UnmarshalBinary(pkt.Data))
	assert.Equal(t, ads.ErrDeviceInvalidSize, resp.Result)
}

func TestSessionHandlesSplitAndBatchedFrames(t *testing.T) {
	d := newTestDevice(t)
	s := d.NewSession(deviceAddr, clientAddr)
	defer s.Close()

	var stream []byte
	for i := uint32(1); i <= 3; i++ {
		frame, err := ams.NewRequestPacket(deviceAddr, clientAddr, uint16(ads.CmdReadState), i, nil).MarshalBinary()
		require.NoError(t, err)
		stream = append(stream, frame...)
	}

	out, err := s.Handle(stream[:10])
	require.NoError(t, err)
	assert.Empty(t, out)

	out, err = s.Handle(stream[10:])
	require.NoError(t, err)

	f := ams.NewFramer(0)
	packets, err := f.Feed(out)
	require.NoError(t, err)
	require.Len(t, packets, 3)
	for i, p := range packets {
		assert.Equal(t, uint32(i+1), p.Header.InvokeID)
	}
}

func TestSessionFramingErrorIsFatal(t *testing.T) {
	metrics := NewInMemoryMetrics()
	d := newTestDevice(t, WithMetrics(metrics))
	s := d.NewSession(deviceAddr, clientAddr)
	defer s.Close()

	bad := []byte{0, 0, 4, 0, 0, 0}
	_, err := s.Handle(bad)
	require.Error(t, err)
	assert.True(t, ams.IsFramingError(err))
	assert.Equal(t, ErrorCategoryFraming, ClassifyError(err, "receive").Category)
	assert.True(t, ClassifyError(err, "receive").Fatal)

	_, err = s.Handle(nil)
	assert.True(t, ams.IsFramingError(err))
	assert.Equal(t, int64(2), metrics.Snapshot().ErrorsByCategory["framing"])
}

func TestResponsePacketsAreIgnored(t *testing.T) {
	d := newTestDevice(t)
	s := d.NewSession(deviceAddr, clientAddr)
	defer s.Close()

	pkt := ams.NewRequestPacket(deviceAddr, clientAddr, uint16(ads.CmdReadState), 1, nil)
	pkt.Header.StateFlags = ams.StateFlagsTCPResponse
	assert.Nil(t, s.Dispatch(pkt))
}

func TestSessionLearnsRemoteAddress(t *testing.T) {
	d := newTestDevice(t)
	s := d.NewSession(deviceAddr, ams.Addr{})
	defer s.Close()

	assert.Equal(t, ams.Addr{}, s.Remote())
	s.Dispatch(ams.NewRequestPacket(deviceAddr, clientAddr, uint16(ads.CmdReadState), 1, nil))
	assert.Equal(t, clientAddr, s.Remote())
}

func TestDeviceSessionsRegistry(t *testing.T) {
	d := newTestDevice(t)
	a := d.NewSession(deviceAddr, clientAddr)
	b := d.NewSession(deviceAddr, clientAddr)

	infos := d.Sessions()
	require.Len(t, infos, 2)
	_, ok := d.Session(a.ID())
	assert.True(t, ok)

	require.NoError(t, a.Close())
	require.NoError(t, a.Close())
	assert.Len(t, d.Sessions(), 1)
	_, err := a.Receive([]byte{1})
	assert.ErrorIs(t, err, ErrSessionClosed)
	_, err = a.allocHandle(nil)
	assert.ErrorIs(t, err, ErrSessionClosed)

	d.CloseSessions()
	assert.True(t, b.Closed())
	assert.Empty(t, d.Sessions())
}

func TestNewOptions(t *testing.T) {
	d, err := New()
	require.NoError(t, err)
	assert.Equal(t, DefaultDeviceName, d.Name())
	assert.Equal(t, ads.StateRun, d.State().ADSState)
	assert.Equal(t, ams.PortPLCRuntime1, d.Address().Port)
	_, ok := d.Database().Area(symbols.DefaultAreaIndexGroup)
	assert.True(t, ok)

	tests := []struct {
		name string
		opt  Option
	}{
		{"empty name", WithName("")},
		{"invalid boot state", WithBootState(ads.StateInvalid)},
		{"nil database", WithDatabase(nil)},
		{"tiny frame", WithMaxFrameSize(8)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.opt)
			require.Error(t, err)
			var ce *ClassifiedError
			require.True(t, errors.As(err, &ce))
			assert.Equal(t, ErrorCategoryConfiguration, ce.Category)
		})
	}
}

func TestMaxFrameSizeOption(t *testing.T) {
	d := newTestDevice(t, WithMaxFrameSize(64))
	s := d.NewSession(deviceAddr, clientAddr)
	defer s.Close()

	frame, err := ams.NewRequestPacket(deviceAddr, clientAddr, uint16(ads.CmdWrite), 1, make([]byte, 100)).MarshalBinary()
	require.NoError(t, err)
	_, err = s.Handle(frame)
	assert.True(t, ams.IsFramingError(err))
}

func TestDispatchLogsWithContext(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(&buf, "debug", "text")
	require.NoError(t, err)

	d := newTestDevice(t, WithLogger(logger))
	c := newTestClient(t, d)
	c.handle("nope")

	out := buf.String()
	assert.Contains(t, out, "command failed")
	assert.Contains(t, out, "command=read_write")
	assert.Contains(t, out, "session="+c.session.ID())
}

func TestServeOverTCP(t *testing.T) {
	metrics := NewInMemoryMetrics()
	d := newTestDevice(t, WithMetrics(metrics))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- d.Serve(ctx, ln, ServeConfig{ReadTimeout: 5 * time.Second}) }()

	conn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetDeadline(time.Now().Add(5*time.Second)))

	req, err := (&ads.ReadWriteRequest{IndexGroup: ads.IndexGroupSymbolHandleByName, ReadLength: 4, Data: []byte("X\x00")}).MarshalBinary()
	require.NoError(t, err)
	require.NoError(t, ams.WritePacket(conn, ams.NewRequestPacket(deviceAddr, clientAddr, uint16(ads.CmdReadWrite), 42, req)))

	resp, err := ams.ReadPacket(conn)
	require.NoError(t, err)
	assert.Equal(t, uint32(42), resp.Header.InvokeID)
	var rw ads.ReadWriteResponse
	require.NoError(t, rw.UnmarshalBinary(resp.Data))
	assert.Equal(t, ads.ErrNoError, rw.Result)

	require.Eventually(t, func() bool { return len(d.Sessions()) == 1 }, time.Second, 10*time.Millisecond)
	info := d.Sessions()[0]
	assert.Equal(t, clientAddr.String(), info.Remote)
	assert.Equal(t, 1, info.Handles)
	assert.True(t, strings.HasPrefix(info.Peer, "127.0.0.1:"))

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return")
	}
	assert.Empty(t, d.Sessions())
	snap := metrics.Snapshot()
	assert.Equal(t, int64(1), snap.ConnectionsAccepted)
	assert.Equal(t, int64(1), snap.ConnectionsClosed)
	assert.Equal(t, int64(0), snap.HandlesActive)
}
