// Package transport implements the TCP side of an AMS/ADS device: accepting
// connections and pumping their byte streams through a Session.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync/atomic"
	"time"

	"github.com/mrpasztoradam/goadsdev/internal/ams"
)

// Session consumes the byte stream of one connection. Handle returns the
// bytes to send back; an error from Handle ends the connection.
type Session interface {
	Handle(data []byte) ([]byte, error)
	Close() error
}

// SessionFactory creates the session serving a freshly accepted connection.
type SessionFactory func(conn net.Conn) Session

// Logger is the subset of structured logging the transport needs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// ConnectionState represents the lifecycle of a served connection.
type ConnectionState int32

const (
	StateConnected ConnectionState = iota
	StateClosing
	StateClosed
)

func (s ConnectionState) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

const defaultReadBufferSize = 64 * 1024

// Conn is one accepted connection bound to its session.
type Conn struct {
	conn         net.Conn
	session      Session
	logger       Logger
	readTimeout  time.Duration
	writeTimeout time.Duration
	bufSize      int
	state        atomic.Int32
}

func newConn(conn net.Conn, session Session, cfg Config) *Conn {
	c := &Conn{
		conn:         conn,
		session:      session,
		logger:       cfg.Logger,
		readTimeout:  cfg.ReadTimeout,
		writeTimeout: cfg.WriteTimeout,
		bufSize:      cfg.ReadBufferSize,
	}
	if c.bufSize <= 0 {
		c.bufSize = defaultReadBufferSize
	}
	c.state.Store(int32(StateConnected))
	return c
}

func (c *Conn) getState() ConnectionState {
	return ConnectionState(c.state.Load())
}

func (c *Conn) compareAndSwapState(from, to ConnectionState) bool {
	return c.state.CompareAndSwap(int32(from), int32(to))
}

// State returns the connection's lifecycle state.
func (c *Conn) State() ConnectionState {
	return c.getState()
}

func (c *Conn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// Close closes the socket and the session. It is safe to call more than once.
func (c *Conn) Close() error {
	if !c.compareAndSwapState(StateConnected, StateClosing) {
		return nil
	}
	err := c.conn.Close()
	if serr := c.session.Close(); err == nil {
		err = serr
	}
	c.state.Store(int32(StateClosed))
	return err
}

// serve runs the read/handle/write loop until the peer disconnects, the
// session fails or ctx is cancelled. Requests are handled strictly one read at
// a time, so responses leave in request order.
func (c *Conn) serve(ctx context.Context) error {
	defer c.Close()
	stop := context.AfterFunc(ctx, func() { c.Close() })
	defer stop()

	buf := make([]byte, c.bufSize)
	for {
		if c.readTimeout > 0 {
			if err := c.conn.SetReadDeadline(time.Now().Add(c.readTimeout)); err != nil {
				return err
			}
		}

		n, rerr := c.conn.Read(buf)
		if n > 0 {
			out, herr := c.session.Handle(buf[:n])
			if len(out) > 0 {
				if err := c.write(out); err != nil {
					return err
				}
			}
			if herr != nil {
				return herr
			}
		}
		if rerr != nil {
			if c.getState() != StateConnected || errors.Is(rerr, io.EOF) || errors.Is(rerr, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("transport: read: %w", rerr)
		}
	}
}

func (c *Conn) write(data []byte) error {
	if c.writeTimeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return err
		}
	}
	if _, err := c.conn.Write(data); err != nil {
		return fmt.Errorf("transport: write: %w", err)
	}
	return nil
}

// isFatal separates connection-level failures worth a warning from ordinary
// disconnects.
func isFatal(err error) bool {
	return err != nil && ams.IsFramingError(err)
}
