package ams

import (
	"errors"
	"fmt"
)

// FramingError reports a byte stream that cannot be split into AMS frames.
// It is fatal for the connection carrying the stream.
type FramingError struct {
	Reason string
}

func (e *FramingError) Error() string {
	return fmt.Sprintf("ams: framing error: %s", e.Reason)
}

// IsFramingError reports whether err is or wraps a *FramingError.
func IsFramingError(err error) bool {
	var fe *FramingError
	return errors.As(err, &fe)
}

// Framer accumulates stream bytes and emits complete packets in arrival order.
// A Framer is not safe for concurrent use; one connection owns one Framer.
type Framer struct {
	buf      []byte
	maxFrame uint32
	err      error
}

// NewFramer creates a Framer. maxFrame bounds the TCP length field; zero
// means DefaultMaxFrameSize.
func NewFramer(maxFrame uint32) *Framer {
	return &Framer{maxFrame: maxFrame}
}

// Feed appends data and returns every packet completed by it. Once a framing
// error has occurred every later call returns that error.
func (f *Framer) Feed(data []byte) ([]*Packet, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.buf = append(f.buf, data...)

	var packets []*Packet
	for {
		pkt, n, err := Decode(f.buf, f.maxFrame)
		if err != nil {
			f.err = err
			f.buf = nil
			return packets, err
		}
		if n == 0 {
			break
		}
		packets = append(packets, pkt)
		f.buf = f.buf[n:]
	}

	// Release the consumed prefix once the buffer drains.
	if len(f.buf) == 0 {
		f.buf = nil
	}
	return packets, nil
}

// Buffered returns the number of bytes waiting for the rest of their frame.
func (f *Framer) Buffered() int {
	return len(f.buf)
}
