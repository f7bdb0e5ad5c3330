package ads

import "fmt"

// Error is an ADS result code. Zero means success.
type Error uint32

const (
	ErrNoError                   Error = 0x0000
	ErrInternal                  Error = 0x0001
	ErrTargetPortNotFound        Error = 0x0006
	ErrTargetMachineNotFound     Error = 0x0007
	ErrDeviceError               Error = 0x0700
	ErrDeviceServiceNotSupported Error = 0x0701
	ErrDeviceInvalidIndexGroup   Error = 0x0702
	ErrDeviceInvalidIndexOffset  Error = 0x0703
	ErrDeviceInvalidAccess       Error = 0x0704
	ErrDeviceInvalidSize         Error = 0x0705
	ErrDeviceInvalidData         Error = 0x0706
	ErrDeviceNotReady            Error = 0x0707
	ErrDeviceBusy                Error = 0x0708
	ErrDeviceInvalidParam        Error = 0x070B
	ErrDeviceNotFound            Error = 0x070C
	ErrDeviceInvalidState        Error = 0x0712
	ErrDeviceSymbolNotFound      Error = 0x0710
)

func (e Error) Error() string {
	switch e {
	case ErrNoError:
		return "no error"
	case ErrInternal:
		return "internal error"
	case ErrTargetPortNotFound:
		return "target port not found"
	case ErrTargetMachineNotFound:
		return "target machine not found"
	case ErrDeviceError:
		return "device error"
	case ErrDeviceServiceNotSupported:
		return "service not supported"
	case ErrDeviceInvalidIndexGroup:
		return "invalid index group"
	case ErrDeviceInvalidIndexOffset:
		return "invalid index offset"
	case ErrDeviceInvalidAccess:
		return "invalid access"
	case ErrDeviceInvalidSize:
		return "invalid size"
	case ErrDeviceInvalidData:
		return "invalid data"
	case ErrDeviceNotReady:
		return "device not ready"
	case ErrDeviceBusy:
		return "device busy"
	case ErrDeviceInvalidParam:
		return "invalid parameter"
	case ErrDeviceNotFound:
		return "not found"
	case ErrDeviceInvalidState:
		return "invalid state"
	case ErrDeviceSymbolNotFound:
		return "symbol not found"
	default:
		return fmt.Sprintf("ADS error 0x%04X", uint32(e))
	}
}

func (e Error) IsError() bool {
	return e != ErrNoError
}

// UnknownCommandError is returned when a command id has no payload shape in
// the served command set.
type UnknownCommandError struct {
	ID CommandID
}

func (e *UnknownCommandError) Error() string {
	return fmt.Sprintf("ads: unknown command 0x%04X", uint16(e.ID))
}

// PayloadError reports a request payload shorter than its declared layout.
type PayloadError struct {
	Command CommandID
	Need    int
	Got     int
}

func (e *PayloadError) Error() string {
	return fmt.Sprintf("ads: %s payload requires %d bytes, got %d", e.Command, e.Need, e.Got)
}
