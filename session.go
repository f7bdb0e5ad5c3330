package goadsdev

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/mrpasztoradam/goadsdev/internal/ams"
	"github.com/mrpasztoradam/goadsdev/internal/symbols"
)

// Session serves the command stream of one connection. Frames are dispatched
// strictly in arrival order; the handle table is private to the session and
// discarded on Close.
//
// Receive, Dispatch and Handle must be called from one goroutine at a time.
// Info, HandleCount and Close are safe to call concurrently with them.
type Session struct {
	id      string
	device  *Device
	local   ams.Addr
	peer    string
	framer  *ams.Framer
	logger  Logger
	created time.Time

	mu      sync.RWMutex
	remote  ams.Addr
	handles map[uint32]*symbols.Symbol

	closed   atomic.Bool
	requests atomic.Uint64
	failures atomic.Uint64
	lastSeen atomic.Int64
}

// SessionInfo is a point-in-time description of a session.
type SessionInfo struct {
	ID       string    `json:"id"`
	Local    string    `json:"local"`
	Remote   string    `json:"remote"`
	Peer     string    `json:"peer,omitempty"`
	Created  time.Time `json:"created"`
	LastSeen time.Time `json:"last_seen,omitempty"`
	Requests uint64    `json:"requests"`
	Failures uint64    `json:"failures"`
	Handles  int       `json:"handles"`
}

func newSession(d *Device, local, remote ams.Addr, peer string) *Session {
	id := uuid.NewString()
	logger := d.logger.With("session", id)
	if peer != "" {
		logger = logger.With("peer", peer)
	}
	return &Session{
		id:      id,
		device:  d,
		local:   local,
		remote:  remote,
		peer:    peer,
		framer:  ams.NewFramer(d.maxFrameSize),
		logger:  logger,
		created: time.Now(),
		handles: make(map[uint32]*symbols.Symbol),
	}
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) Local() ams.Addr {
	return s.local
}

// Remote returns the peer's AMS address; zero until the first request when it
// was not given at creation.
func (s *Session) Remote() ams.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.remote
}

// Receive feeds stream bytes and returns the packets they complete, in
// arrival order. A *ams.FramingError is fatal: the session must be closed.
func (s *Session) Receive(data []byte) ([]*ams.Packet, error) {
	if s.closed.Load() {
		return nil, ErrSessionClosed
	}
	s.device.metrics.BytesReceived(int64(len(data)))
	return s.framer.Feed(data)
}

// Handle is the transport entry point: it frames data, dispatches every
// complete request and returns the encoded responses back to back. Responses
// for packets completed before a framing error are returned with the error.
func (s *Session) Handle(data []byte) ([]byte, error) {
	packets, ferr := s.Receive(data)

	var out []byte
	for _, pkt := range packets {
		resp := s.Dispatch(pkt)
		if resp == nil {
			continue
		}
		buf, err := resp.MarshalBinary()
		if err != nil {
			s.logger.Error("failed to encode response", "invoke_id", pkt.Header.InvokeID, "error", err)
			continue
		}
		out = append(out, buf...)
	}
	if len(out) > 0 {
		s.device.metrics.BytesSent(int64(len(out)))
	}

	if ferr != nil {
		ce := ClassifyError(ferr, "receive")
		s.device.metrics.ErrorOccurred(ce.Category, ce.Operation)
		if !errors.Is(ferr, ErrSessionClosed) {
			s.logger.Warn("closing session after framing error", "error", ferr)
		}
		return out, ferr
	}
	return out, nil
}

// allocHandle records sym under a fresh handle. Values come from the device,
// so a handle issued to one session is never live in another; after
// wraparound any value still live here is skipped.
func (s *Session) allocHandle(sym *symbols.Symbol) (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed.Load() {
		return 0, ErrSessionClosed
	}
	for {
		h := s.device.nextHandle()
		if _, live := s.handles[h]; live {
			continue
		}
		s.handles[h] = sym
		s.device.metrics.HandleAllocated()
		return h, nil
	}
}

func (s *Session) lookupHandle(h uint32) (*symbols.Symbol, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sym, ok := s.handles[h]
	if !ok {
		return nil, &InvalidHandleError{Handle: h}
	}
	return sym, nil
}

func (s *Session) releaseHandle(h uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.handles[h]; !ok {
		return &InvalidHandleError{Handle: h}
	}
	delete(s.handles, h)
	s.device.metrics.HandleReleased(1)
	return nil
}

// HandleCount returns the number of live handles.
func (s *Session) HandleCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.handles)
}

// Info describes the session.
func (s *Session) Info() SessionInfo {
	info := SessionInfo{
		ID:       s.id,
		Local:    s.local.String(),
		Remote:   s.Remote().String(),
		Peer:     s.peer,
		Created:  s.created,
		Requests: s.requests.Load(),
		Failures: s.failures.Load(),
		Handles:  s.HandleCount(),
	}
	if ns := s.lastSeen.Load(); ns != 0 {
		info.LastSeen = time.Unix(0, ns)
	}
	return info
}

// Closed reports whether Close has been called.
func (s *Session) Closed() bool {
	return s.closed.Load()
}

// Close discards the handle table and removes the session from its device.
// Closing twice is a no-op.
func (s *Session) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}

	s.mu.Lock()
	n := len(s.handles)
	s.handles = make(map[uint32]*symbols.Symbol)
	s.mu.Unlock()

	if n > 0 {
		s.device.metrics.HandleReleased(n)
	}
	s.device.removeSession(s)
	if s.peer != "" {
		s.device.metrics.ConnectionClosed()
	}
	s.logger.Debug("session closed", "released_handles", n, "requests", s.requests.Load())
	return nil
}

func (s *Session) String() string {
	return fmt.Sprintf("session %s (%s <- %s)", s.id, s.local, s.Remote())
}
