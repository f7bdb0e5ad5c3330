// Package ams implements AMS (Automation Message Specification) framing for the device side.
package ams

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
)

// Wire sizes of the fixed headers.
const (
	TCPHeaderSize = 6
	HeaderSize    = 32
)

// NetID represents a 6-byte AMS NetID address (e.g., 192.168.1.100.1.1).
// Each byte is stored separately and has no direct relation to IP addresses.
type NetID [6]byte

// String returns the dot-separated string representation of the NetID.
func (n NetID) String() string {
	return fmt.Sprintf("%d.%d.%d.%d.%d.%d", n[0], n[1], n[2], n[3], n[4], n[5])
}

// ParseNetID parses a dotted NetID such as "10.0.10.20.1.1".
func ParseNetID(s string) (NetID, error) {
	var id NetID
	parts := strings.Split(strings.TrimSpace(s), ".")
	if len(parts) != len(id) {
		return NetID{}, fmt.Errorf("ams: invalid NetID %q: expected 6 octets, got %d", s, len(parts))
	}
	for i, p := range parts {
		v, err := strconv.ParseUint(p, 10, 8)
		if err != nil {
			return NetID{}, fmt.Errorf("ams: invalid NetID %q: octet %d: %w", s, i, err)
		}
		id[i] = byte(v)
	}
	return id, nil
}

// Port represents a 2-byte AMS port identifier.
type Port uint16

// Addr is the AMS addressing unit: a NetID plus a port.
type Addr struct {
	NetID NetID
	Port  Port
}

func (a Addr) String() string {
	return fmt.Sprintf("%s:%d", a.NetID, a.Port)
}

// TCPHeader represents the 6-byte AMS/TCP packet header that precedes the AMS header.
// Length counts every byte that follows it (AMS header + ADS data).
type TCPHeader struct {
	Reserved uint16
	Length   uint32
}

// MarshalBinary encodes the TCPHeader into a 6-byte slice (little-endian).
func (h *TCPHeader) MarshalBinary() ([]byte, error) {
	buf := make([]byte, TCPHeaderSize)
	binary.LittleEndian.PutUint16(buf[0:2], h.Reserved)
	binary.LittleEndian.PutUint32(buf[2:6], h.Length)
	return buf, nil
}

// UnmarshalBinary decodes a 6-byte slice into the TCPHeader (little-endian).
func (h *TCPHeader) UnmarshalBinary(data []byte) error {
	if len(data) < TCPHeaderSize {
		return fmt.Errorf("ams: TCP header requires %d bytes, got %d", TCPHeaderSize, len(data))
	}
	h.Reserved = binary.LittleEndian.Uint16(data[0:2])
	h.Length = binary.LittleEndian.Uint32(data[2:6])
	return nil
}

// Header represents the 32-byte AMS header that follows the AMS/TCP header.
type Header struct {
	Target     Addr   // offset 0 (NetID) and 6 (port)
	Source     Addr   // offset 8 (NetID) and 14 (port)
	CommandID  uint16 // offset 16
	StateFlags uint16 // offset 18
	DataLength uint32 // offset 20, size of ADS data
	ErrorCode  uint32 // offset 24, AMS error number
	InvokeID   uint32 // offset 28, echoed verbatim in the response
}

// MarshalBinary encodes the AMS Header into a 32-byte slice (little-endian).
func (h *Header) MarshalBinary() ([]byte, error) {
	buf := make([]byte, HeaderSize)
	h.put(buf)
	return buf, nil
}

func (h *Header) put(buf []byte) {
	copy(buf[0:6], h.Target.NetID[:])
	binary.LittleEndian.PutUint16(buf[6:8], uint16(h.Target.Port))
	copy(buf[8:14], h.Source.NetID[:])
	binary.LittleEndian.PutUint16(buf[14:16], uint16(h.Source.Port))
	binary.LittleEndian.PutUint16(buf[16:18], h.CommandID)
	binary.LittleEndian.PutUint16(buf[18:20], h.StateFlags)
	binary.LittleEndian.PutUint32(buf[20:24], h.DataLength)
	binary.LittleEndian.PutUint32(buf[24:28], h.ErrorCode)
	binary.LittleEndian.PutUint32(buf[28:32], h.InvokeID)
}

// UnmarshalBinary decodes a 32-byte slice into the AMS Header (little-endian).
func (h *Header) UnmarshalBinary(data []byte) error {
	if len(data) < HeaderSize {
		return fmt.Errorf("ams: header requires %d bytes, got %d", HeaderSize, len(data))
	}
	copy(h.Target.NetID[:], data[0:6])
	h.Target.Port = Port(binary.LittleEndian.Uint16(data[6:8]))
	copy(h.Source.NetID[:], data[8:14])
	h.Source.Port = Port(binary.LittleEndian.Uint16(data[14:16]))
	h.CommandID = binary.LittleEndian.Uint16(data[16:18])
	h.StateFlags = binary.LittleEndian.Uint16(data[18:20])
	h.DataLength = binary.LittleEndian.Uint32(data[20:24])
	h.ErrorCode = binary.LittleEndian.Uint32(data[24:28])
	h.InvokeID = binary.LittleEndian.Uint32(data[28:32])
	return nil
}

// IsRequest returns true if the StateFlags indicate this is a request packet.
func (h *Header) IsRequest() bool {
	return (h.StateFlags & StateFlagResponse) == 0
}

// IsResponse returns true if the StateFlags indicate this is a response packet.
func (h *Header) IsResponse() bool {
	return (h.StateFlags & StateFlagResponse) != 0
}

// Reply builds the response header for a request: addresses swapped, the
// response flag set, the invoke id echoed.
func (h *Header) Reply(dataLength int) Header {
	flags := StateFlagsTCPResponse
	if h.StateFlags&StateFlagUDP != 0 {
		flags = StateFlagsUDPResponse
	}
	return Header{
		Target:     h.Source,
		Source:     h.Target,
		CommandID:  h.CommandID,
		StateFlags: flags,
		DataLength: uint32(dataLength),
		InvokeID:   h.InvokeID,
	}
}
