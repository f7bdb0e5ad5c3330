package goadsdev

import (
	"encoding/binary"
	"time"

	"github.com/mrpasztoradam/goadsdev/internal/ads"
	"github.com/mrpasztoradam/goadsdev/internal/ams"
	"github.com/mrpasztoradam/goadsdev/internal/symbols"
)

// symbolVersion is reported for the symbol version index group. The symbol
// table never changes while a device runs.
const symbolVersion = 1

// Dispatch serves one request packet and returns its response. Responses
// arriving from the peer are dropped and yield nil. Every failure while
// serving a command becomes a non-zero result code; Dispatch never fails the
// session.
func (s *Session) Dispatch(pkt *ams.Packet) *ams.Packet {
	if pkt.Header.IsResponse() {
		s.logger.Debug("ignoring response packet", "invoke_id", pkt.Header.InvokeID, "command", ads.CommandID(pkt.Header.CommandID).String())
		return nil
	}

	s.mu.Lock()
	if s.remote == (ams.Addr{}) {
		s.remote = pkt.Header.Source
	}
	s.mu.Unlock()

	cmd := ads.CommandID(pkt.Header.CommandID)
	name := cmd.String()
	metrics := s.device.metrics

	s.requests.Add(1)
	s.lastSeen.Store(time.Now().UnixNano())
	metrics.CommandStarted(name)
	start := time.Now()

	resp, err := s.serve(cmd, pkt.Data)
	if err != nil {
		resp = failure(cmd, ResultCode(err))
		s.failures.Add(1)

		ce := ClassifyError(err, name)
		metrics.ErrorOccurred(ce.Category, ce.Operation)
		s.logger.Debug("command failed",
			"invoke_id", pkt.Header.InvokeID,
			"command", name,
			"result", uint32(ce.ADSError),
			"category", ce.Category.String(),
			"error", err,
		)
	} else {
		s.logger.Debug("command served", "invoke_id", pkt.Header.InvokeID, "command", name)
	}
	metrics.CommandCompleted(name, time.Since(start), resp.ResultCode())

	data, err := resp.MarshalBinary()
	if err != nil {
		data, _ = failure(cmd, ads.ErrInternal).MarshalBinary()
	}
	return ams.NewResponsePacket(&pkt.Header, data)
}

func (s *Session) serve(cmd ads.CommandID, data []byte) (ads.Response, error) {
	req, err := ads.DecodeRequest(cmd, data)
	if err != nil {
		return nil, err
	}

	switch r := req.(type) {
	case *ads.ReadDeviceInfoRequest:
		return s.readDeviceInfo(), nil
	case *ads.ReadStateRequest:
		return s.readState(), nil
	case *ads.ReadRequest:
		out, err := s.read(r)
		if err != nil {
			return nil, err
		}
		return &ads.ReadResponse{Data: out}, nil
	case *ads.WriteRequest:
		if err := s.write(r); err != nil {
			return nil, err
		}
		return &ads.WriteResponse{}, nil
	case *ads.ReadWriteRequest:
		out, err := s.readWrite(r)
		if err != nil {
			return nil, err
		}
		return &ads.ReadWriteResponse{Data: out}, nil
	case *ads.WriteControlRequest:
		if err := s.device.SetState(r.ADSState, r.DeviceState); err != nil {
			return nil, err
		}
		return &ads.ResultResponse{}, nil
	default:
		return nil, &ads.UnknownCommandError{ID: cmd}
	}
}

// failure builds the error response in the shape the command expects.
func failure(cmd ads.CommandID, code ads.Error) ads.Response {
	switch cmd {
	case ads.CmdReadDeviceInfo:
		return &ads.ReadDeviceInfoResponse{Result: code}
	case ads.CmdReadState:
		return &ads.ReadStateResponse{Result: code}
	case ads.CmdRead:
		return &ads.ReadResponse{Result: code}
	case ads.CmdReadWrite:
		return &ads.ReadWriteResponse{Result: code}
	default:
		return &ads.ResultResponse{Result: code}
	}
}

func (s *Session) readDeviceInfo() *ads.ReadDeviceInfoResponse {
	v := s.device.version
	return &ads.ReadDeviceInfoResponse{
		MajorVersion: v.Major,
		MinorVersion: v.Minor,
		VersionBuild: v.Build,
		DeviceName:   s.device.name,
	}
}

func (s *Session) readState() *ads.ReadStateResponse {
	st := s.device.State()
	return &ads.ReadStateResponse{ADSState: st.ADSState, DeviceState: st.DeviceState}
}

// read serves READ. Reads by handle return the symbol's full size whatever
// length was requested.
func (s *Session) read(r *ads.ReadRequest) ([]byte, error) {
	db := s.device.db

	switch r.IndexGroup {
	case ads.IndexGroupSymbolValueByHandle:
		sym, err := s.lookupHandle(r.IndexOffset)
		if err != nil {
			return nil, err
		}
		return sym.ReadBytes()

	case ads.IndexGroupSymbolUploadInfo:
		all := db.Symbols()
		return symbols.UploadInfo{
			Count:  uint32(len(all)),
			Length: uint32(len(symbols.EncodeSymbolTable(all))),
		}.MarshalBinary()

	case ads.IndexGroupSymbolUpload:
		table := symbols.EncodeSymbolTable(db.Symbols())
		if r.Length < uint32(len(table)) {
			return nil, &symbols.BoundsError{Offset: 0, Size: uint64(len(table)), Limit: uint64(r.Length)}
		}
		return table, nil

	case ads.IndexGroupSymbolVersion:
		return []byte{symbolVersion}, nil
	}

	if ads.IsSymbolService(r.IndexGroup) {
		return nil, ads.ErrDeviceServiceNotSupported
	}

	rng, err := db.ResolveByAddress(r.IndexGroup, r.IndexOffset, r.Length)
	if err != nil {
		return nil, err
	}
	return rng.Read()
}

func (s *Session) write(r *ads.WriteRequest) error {
	switch r.IndexGroup {
	case ads.IndexGroupSymbolValueByHandle:
		sym, err := s.lookupHandle(r.IndexOffset)
		if err != nil {
			return err
		}
		return sym.Write(r.Data)

	case ads.IndexGroupReleaseSymbolHandle:
		if len(r.Data) < 4 {
			return &ads.PayloadError{Command: ads.CmdWrite, Need: 4, Got: len(r.Data)}
		}
		return s.releaseHandle(binary.LittleEndian.Uint32(r.Data))
	}

	if ads.IsSymbolService(r.IndexGroup) {
		return ads.ErrDeviceServiceNotSupported
	}

	rng, err := s.device.db.ResolveByAddress(r.IndexGroup, r.IndexOffset, uint32(len(r.Data)))
	if err != nil {
		return err
	}
	return rng.Write(r.Data)
}

func (s *Session) readWrite(r *ads.ReadWriteRequest) ([]byte, error) {
	switch r.IndexGroup {
	case ads.IndexGroupSymbolHandleByName:
		if r.ReadLength < 4 {
			return nil, ads.ErrDeviceInvalidSize
		}
		sym, err := s.device.db.ResolveByName(ads.CString(r.Data))
		if err != nil {
			return nil, err
		}
		h, err := s.allocHandle(sym)
		if err != nil {
			return nil, err
		}
		s.logger.Debug("handle allocated", "symbol", sym.Name, "handle", h)
		out := make([]byte, 4)
		binary.LittleEndian.PutUint32(out, h)
		return out, nil

	case ads.IndexGroupSymbolValueByName:
		sym, err := s.device.db.ResolveByName(ads.CString(r.Data))
		if err != nil {
			return nil, err
		}
		return sym.ReadBytes()
	}
	return nil, ads.ErrDeviceServiceNotSupported
}
