// Package ads implements ADS (Automation Device Specification) command payloads.
package ads

import (
	"encoding"
	"encoding/binary"
	"fmt"
)

type CommandID uint16

const (
	CmdInvalid               CommandID = 0x0000
	CmdReadDeviceInfo        CommandID = 0x0001
	CmdRead                  CommandID = 0x0002
	CmdWrite                 CommandID = 0x0003
	CmdReadState             CommandID = 0x0004
	CmdWriteControl          CommandID = 0x0005
	CmdAddDeviceNotification CommandID = 0x0006
	CmdDelDeviceNotification CommandID = 0x0007
	CmdDeviceNotification    CommandID = 0x0008
	CmdReadWrite             CommandID = 0x0009
)

func (c CommandID) String() string {
	switch c {
	case CmdReadDeviceInfo:
		return "read_device_info"
	case CmdRead:
		return "read"
	case CmdWrite:
		return "write"
	case CmdReadState:
		return "read_state"
	case CmdWriteControl:
		return "write_control"
	case CmdAddDeviceNotification:
		return "add_device_notification"
	case CmdDelDeviceNotification:
		return "del_device_notification"
	case CmdDeviceNotification:
		return "device_notification"
	case CmdReadWrite:
		return "read_write"
	default:
		return fmt.Sprintf("command_0x%04X", uint16(c))
	}
}

// DeviceNameSize is the fixed capacity of the name in a device info response.
const DeviceNameSize = 16

// Request is a decoded request payload.
type Request interface {
	Command() CommandID
}

// Response is an encodable response payload. Every response starts with the
// 4-byte result code.
type Response interface {
	encoding.BinaryMarshaler
	ResultCode() Error
}

// DecodeRequest selects the payload shape by command id and decodes data.
// Commands outside the served set fail with *UnknownCommandError.
func DecodeRequest(cmd CommandID, data []byte) (Request, error) {
	var req interface {
		Request
		encoding.BinaryUnmarshaler
	}
	switch cmd {
	case CmdReadDeviceInfo:
		req = &ReadDeviceInfoRequest{}
	case CmdReadState:
		req = &ReadStateRequest{}
	case CmdRead:
		req = &ReadRequest{}
	case CmdWrite:
		req = &WriteRequest{}
	case CmdReadWrite:
		req = &ReadWriteRequest{}
	case CmdWriteControl:
		req = &WriteControlRequest{}
	default:
		return nil, &UnknownCommandError{ID: cmd}
	}
	if err := req.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return req, nil
}

func need(cmd CommandID, data []byte, n int) error {
	if len(data) < n {
		return &PayloadError{Command: cmd, Need: n, Got: len(data)}
	}
	return nil
}

type ReadDeviceInfoRequest struct{}

func (r *ReadDeviceInfoRequest) Command() CommandID { return CmdReadDeviceInfo }

func (r *ReadDeviceInfoRequest) MarshalBinary() ([]byte, error) { return []byte{}, nil }

func (r *ReadDeviceInfoRequest) UnmarshalBinary(data []byte) error { return nil }

type ReadDeviceInfoResponse struct {
	Result       Error
	MajorVersion uint8
	MinorVersion uint8
	VersionBuild uint16
	DeviceName   string
}

func (r *ReadDeviceInfoResponse) ResultCode() Error { return r.Result }

// MarshalBinary writes the name into its fixed 16-byte field, truncating and
// zero padding as needed.
func (r *ReadDeviceInfoResponse) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 8+DeviceNameSize)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(r.Result))
	buf[4] = r.MajorVersion
	buf[5] = r.MinorVersion
	binary.LittleEndian.PutUint16(buf[6:8], r.VersionBuild)
	copy(buf[8:], r.DeviceName)
	return buf, nil
}

func (r *ReadDeviceInfoResponse) UnmarshalBinary(data []byte) error {
	if err := need(CmdReadDeviceInfo, data, 8+DeviceNameSize); err != nil {
		return err
	}
	r.Result = Error(binary.LittleEndian.Uint32(data[0:4]))
	r.MajorVersion = data[4]
	r.MinorVersion = data[5]
	r.VersionBuild = binary.LittleEndian.Uint16(data[6:8])
	r.DeviceName = CString(data[8 : 8+DeviceNameSize])
	return nil
}

type ReadStateRequest struct{}

func (r *ReadStateRequest) Command() CommandID { return CmdReadState }

func (r *ReadStateRequest) MarshalBinary() ([]byte, error) { return []byte{}, nil }

func (r *ReadStateRequest) UnmarshalBinary(data []byte) error { return nil }

type ReadStateResponse struct {
	Result      Error
	ADSState    ADSState
	DeviceState uint16
}

func (r *ReadStateResponse) ResultCode() Error { return r.Result }

func (r *ReadStateResponse) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(r.Result))
	binary.LittleEndian.PutUint16(buf[4:6], uint16(r.ADSState))
	binary.LittleEndian.PutUint16(buf[6:8], r.DeviceState)
	return buf, nil
}

func (r *ReadStateResponse) UnmarshalBinary(data []byte) error {
	if err := need(CmdReadState, data, 8); err != nil {
		return err
	}
	r.Result = Error(binary.LittleEndian.Uint32(data[0:4]))
	r.ADSState = ADSState(binary.LittleEndian.Uint16(data[4:6]))
	r.DeviceState = binary.LittleEndian.Uint16(data[6:8])
	return nil
}

type ReadRequest struct {
	IndexGroup  uint32
	IndexOffset uint32
	Length      uint32
}

func (r *ReadRequest) Command() CommandID { return CmdRead }

func (r *ReadRequest) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 12)
	binary.LittleEndian.PutUint32(buf[0:4], r.IndexGroup)
	binary.LittleEndian.PutUint32(buf[4:8], r.IndexOffset)
	binary.LittleEndian.PutUint32(buf[8:12], r.Length)
	return buf, nil
}

func (r *ReadRequest) UnmarshalBinary(data []byte) error {
	if err := need(CmdRead, data, 12); err != nil {
		return err
	}
	r.IndexGroup = binary.LittleEndian.Uint32(data[0:4])
	r.IndexOffset = binary.LittleEndian.Uint32(data[4:8])
	r.Length = binary.LittleEndian.Uint32(data[8:12])
	return nil
}

// ReadResponse carries a result code, a length and the value bytes.
type ReadResponse struct {
	Result Error
	Data   []byte
}

func (r *ReadResponse) ResultCode() Error { return r.Result }

func (r *ReadResponse) MarshalBinary() ([]byte, error) {
	return marshalResultData(r.Result, r.Data), nil
}

func (r *ReadResponse) UnmarshalBinary(data []byte) error {
	res, payload, err := unmarshalResultData(CmdRead, data)
	if err != nil {
		return err
	}
	r.Result, r.Data = res, payload
	return nil
}

type WriteRequest struct {
	IndexGroup  uint32
	IndexOffset uint32
	Data        []byte
}

func (w *WriteRequest) Command() CommandID { return CmdWrite }

func (w *WriteRequest) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 12+len(w.Data))
	binary.LittleEndian.PutUint32(buf[0:4], w.IndexGroup)
	binary.LittleEndian.PutUint32(buf[4:8], w.IndexOffset)
	binary.LittleEndian.PutUint32(buf[8:12], uint32(len(w.Data)))
	copy(buf[12:], w.Data)
	return buf, nil
}

func (w *WriteRequest) UnmarshalBinary(data []byte) error {
	if err := need(CmdWrite, data, 12); err != nil {
		return err
	}
	w.IndexGroup = binary.LittleEndian.Uint32(data[0:4])
	w.IndexOffset = binary.LittleEndian.Uint32(data[4:8])
	length := binary.LittleEndian.Uint32(data[8:12])
	if uint64(length) > uint64(len(data)-12) {
		return &PayloadError{Command: CmdWrite, Need: 12 + int(length), Got: len(data)}
	}
	w.Data = append([]byte(nil), data[12:12+length]...)
	return nil
}

// WriteResponse carries only the result code.
type WriteResponse struct {
	Result Error
}

func (w *WriteResponse) ResultCode() Error { return w.Result }

func (w *WriteResponse) MarshalBinary() ([]byte, error) {
	return marshalResult(w.Result), nil
}

func (w *WriteResponse) UnmarshalBinary(data []byte) error {
	if err := need(CmdWrite, data, 4); err != nil {
		return err
	}
	w.Result = Error(binary.LittleEndian.Uint32(data[0:4]))
	return nil
}

type ReadWriteRequest struct {
	IndexGroup  uint32
	IndexOffset uint32
	ReadLength  uint32
	Data        []byte
}

func (r *ReadWriteRequest) Command() CommandID { return CmdReadWrite }

func (r *ReadWriteRequest) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 16+len(r.Data))
	binary.LittleEndian.PutUint32(buf[0:4], r.IndexGroup)
	binary.LittleEndian.PutUint32(buf[4:8], r.IndexOffset)
	binary.LittleEndian.PutUint32(buf[8:12], r.ReadLength)
	binary.LittleEndian.PutUint32(buf[12:16], uint32(len(r.Data)))
	copy(buf[16:], r.Data)
	return buf, nil
}

func (r *ReadWriteRequest) UnmarshalBinary(data []byte) error {
	if err := need(CmdReadWrite, data, 16); err != nil {
		return err
	}
	r.IndexGroup = binary.LittleEndian.Uint32(data[0:4])
	r.IndexOffset = binary.LittleEndian.Uint32(data[4:8])
	r.ReadLength = binary.LittleEndian.Uint32(data[8:12])
	length := binary.LittleEndian.Uint32(data[12:16])
	if uint64(length) > uint64(len(data)-16) {
		return &PayloadError{Command: CmdReadWrite, Need: 16 + int(length), Got: len(data)}
	}
	r.Data = append([]byte(nil), data[16:16+length]...)
	return nil
}

type ReadWriteResponse struct {
	Result Error
	Data   []byte
}

func (r *ReadWriteResponse) ResultCode() Error { return r.Result }

func (r *ReadWriteResponse) MarshalBinary() ([]byte, error) {
	return marshalResultData(r.Result, r.Data), nil
}

func (r *ReadWriteResponse) UnmarshalBinary(data []byte) error {
	res, payload, err := unmarshalResultData(CmdReadWrite, data)
	if err != nil {
		return err
	}
	r.Result, r.Data = res, payload
	return nil
}

type WriteControlRequest struct {
	ADSState    ADSState
	DeviceState uint16
	Data        []byte
}

func (w *WriteControlRequest) Command() CommandID { return CmdWriteControl }

func (w *WriteControlRequest) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 8+len(w.Data))
	binary.LittleEndian.PutUint16(buf[0:2], uint16(w.ADSState))
	binary.LittleEndian.PutUint16(buf[2:4], w.DeviceState)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(len(w.Data)))
	copy(buf[8:], w.Data)
	return buf, nil
}

func (w *WriteControlRequest) UnmarshalBinary(data []byte) error {
	if err := need(CmdWriteControl, data, 8); err != nil {
		return err
	}
	w.ADSState = ADSState(binary.LittleEndian.Uint16(data[0:2]))
	w.DeviceState = binary.LittleEndian.Uint16(data[2:4])
	length := binary.LittleEndian.Uint32(data[4:8])
	if uint64(length) > uint64(len(data)-8) {
		return &PayloadError{Command: CmdWriteControl, Need: 8 + int(length), Got: len(data)}
	}
	w.Data = append([]byte(nil), data[8:8+length]...)
	return nil
}

// ResultResponse is the bare result-code payload used by write, write control
// and every rejected command.
type ResultResponse struct {
	Result Error
}

func (r *ResultResponse) ResultCode() Error { return r.Result }

func (r *ResultResponse) MarshalBinary() ([]byte, error) {
	return marshalResult(r.Result), nil
}

func marshalResult(res Error) []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, uint32(res))
	return buf
}

func marshalResultData(res Error, data []byte) []byte {
	buf := make([]byte, 8+len(data))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(res))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(len(data)))
	copy(buf[8:], data)
	return buf
}

func unmarshalResultData(cmd CommandID, data []byte) (Error, []byte, error) {
	if err := need(cmd, data, 8); err != nil {
		return 0, nil, err
	}
	res := Error(binary.LittleEndian.Uint32(data[0:4]))
	length := binary.LittleEndian.Uint32(data[4:8])
	if uint64(length) > uint64(len(data)-8) {
		return 0, nil, &PayloadError{Command: cmd, Need: 8 + int(length), Got: len(data)}
	}
	return res, append([]byte(nil), data[8:8+length]...), nil
}

// CString returns the bytes of b up to the first NUL.
func CString(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
