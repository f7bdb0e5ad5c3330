package ams

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Packet is one complete AMS frame: AMS header plus ADS data. The AMS/TCP
// header is derived on marshal and validated on decode.
type Packet struct {
	Header Header
	Data   []byte
}

// NewResponsePacket builds the reply to req carrying data.
func NewResponsePacket(req *Header, data []byte) *Packet {
	return &Packet{
		Header: req.Reply(len(data)),
		Data:   data,
	}
}

// NewRequestPacket builds a TCP request packet.
func NewRequestPacket(target, source Addr, commandID uint16, invokeID uint32, data []byte) *Packet {
	return &Packet{
		Header: Header{
			Target:     target,
			Source:     source,
			CommandID:  commandID,
			StateFlags: StateFlagsTCPRequest,
			DataLength: uint32(len(data)),
			InvokeID:   invokeID,
		},
		Data: data,
	}
}

// Size returns the number of bytes MarshalBinary produces.
func (p *Packet) Size() int {
	return TCPHeaderSize + HeaderSize + len(p.Data)
}

// MarshalBinary encodes the complete packet (TCP header + AMS header + data).
// DataLength and the TCP length are always taken from len(p.Data).
func (p *Packet) MarshalBinary() ([]byte, error) {
	if uint64(len(p.Data)) > uint64(^uint32(0))-HeaderSize {
		return nil, fmt.Errorf("ams: data too large: %d bytes", len(p.Data))
	}
	buf := make([]byte, p.Size())

	binary.LittleEndian.PutUint16(buf[0:2], 0)
	binary.LittleEndian.PutUint32(buf[2:6], uint32(HeaderSize+len(p.Data)))

	h := p.Header
	h.DataLength = uint32(len(p.Data))
	h.put(buf[TCPHeaderSize : TCPHeaderSize+HeaderSize])

	copy(buf[TCPHeaderSize+HeaderSize:], p.Data)
	return buf, nil
}

// Decode parses one packet from the front of data. It returns the packet and
// the number of bytes consumed. When data holds an incomplete frame it returns
// (nil, 0, nil). A frame whose boundaries cannot be trusted yields a
// *FramingError. maxFrame bounds the TCP length field; zero means
// DefaultMaxFrameSize.
func Decode(data []byte, maxFrame uint32) (*Packet, int, error) {
	if maxFrame == 0 {
		maxFrame = DefaultMaxFrameSize
	}
	if len(data) < TCPHeaderSize {
		return nil, 0, nil
	}

	var tcp TCPHeader
	if err := tcp.UnmarshalBinary(data); err != nil {
		return nil, 0, err
	}
	if tcp.Length < HeaderSize {
		return nil, 0, &FramingError{Reason: fmt.Sprintf("length %d shorter than AMS header", tcp.Length)}
	}
	if tcp.Length > maxFrame {
		return nil, 0, &FramingError{Reason: fmt.Sprintf("length %d exceeds limit %d", tcp.Length, maxFrame)}
	}

	total := TCPHeaderSize + int(tcp.Length)
	if len(data) < total {
		return nil, 0, nil
	}

	var h Header
	if err := h.UnmarshalBinary(data[TCPHeaderSize:]); err != nil {
		return nil, 0, err
	}
	if h.DataLength > tcp.Length-HeaderSize {
		return nil, 0, &FramingError{Reason: fmt.Sprintf("data length %d exceeds frame payload %d", h.DataLength, tcp.Length-HeaderSize)}
	}

	start := TCPHeaderSize + HeaderSize
	payload := make([]byte, h.DataLength)
	copy(payload, data[start:start+int(h.DataLength)])

	return &Packet{Header: h, Data: payload}, total, nil
}

// UnmarshalBinary decodes a complete packet from a byte slice.
func (p *Packet) UnmarshalBinary(data []byte) error {
	pkt, n, err := Decode(data, 0)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("ams: incomplete packet: %d bytes", len(data))
	}
	*p = *pkt
	return nil
}

// ReadPacket reads a complete AMS packet from an io.Reader.
// It first reads the TCP header to determine the packet size, then reads the rest.
func ReadPacket(r io.Reader) (*Packet, error) {
	tcpBuf := make([]byte, TCPHeaderSize)
	if _, err := io.ReadFull(r, tcpBuf); err != nil {
		return nil, fmt.Errorf("ams: read TCP header: %w", err)
	}

	var tcpHeader TCPHeader
	if err := tcpHeader.UnmarshalBinary(tcpBuf); err != nil {
		return nil, err
	}
	if tcpHeader.Length < HeaderSize || tcpHeader.Length > DefaultMaxFrameSize {
		return nil, &FramingError{Reason: fmt.Sprintf("invalid length %d", tcpHeader.Length)}
	}

	frame := make([]byte, TCPHeaderSize+int(tcpHeader.Length))
	copy(frame, tcpBuf)
	if _, err := io.ReadFull(r, frame[TCPHeaderSize:]); err != nil {
		return nil, fmt.Errorf("ams: read AMS payload: %w", err)
	}

	pkt, _, err := Decode(frame, 0)
	return pkt, err
}

// WritePacket writes a complete AMS packet to an io.Writer.
func WritePacket(w io.Writer, p *Packet) error {
	buf, err := p.MarshalBinary()
	if err != nil {
		return fmt.Errorf("ams: marshal packet: %w", err)
	}

	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("ams: write packet: %w", err)
	}

	return nil
}
