// Package goadsdev implements the device side of TwinCAT ADS/AMS: a TCP
// server answering ADS commands out of an in-memory symbol database.
package goadsdev

import (
	"context"
	"fmt"
	"net"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mrpasztoradam/goadsdev/internal/ads"
	"github.com/mrpasztoradam/goadsdev/internal/ams"
	"github.com/mrpasztoradam/goadsdev/internal/symbols"
	"github.com/mrpasztoradam/goadsdev/internal/transport"
)

// DefaultDeviceName is reported when no name is configured.
const DefaultDeviceName = "goadsdev"

// Device holds the global device state and the symbol database shared by all
// of its sessions.
type Device struct {
	name         string
	version      DeviceVersion
	address      ams.Addr
	db           *symbols.Database
	maxFrameSize uint32
	logger       Logger
	metrics      Metrics
	started      time.Time

	// ADS state in the high 16 bits, device state in the low 16 bits.
	state atomic.Uint32

	// Last handle value issued by any session.
	lastHandle atomic.Uint32

	sessionsMu sync.RWMutex
	sessions   map[string]*Session
}

// DeviceInfo represents the answer to READ_DEVICE_INFO.
type DeviceInfo struct {
	Name    string        `json:"name"`
	Version DeviceVersion `json:"version"`
}

// DeviceState represents the answer to READ_STATE.
type DeviceState struct {
	ADSState    ads.ADSState `json:"ads_state"`
	DeviceState uint16       `json:"device_state"`
}

// New creates a device with the given options.
func New(opts ...Option) (*Device, error) {
	cfg := &deviceConfig{
		name:    DefaultDeviceName,
		version: DefaultDeviceVersion(),
		state:   ads.StateRun,
		address: ams.Addr{Port: ams.PortPLCRuntime1},
		logger:  DefaultLogger,
		metrics: DefaultMetrics,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, NewConfigurationError("new device", err)
		}
	}

	if cfg.database == nil {
		cfg.database = symbols.NewDatabase()
	}

	d := &Device{
		name:         cfg.name,
		version:      cfg.version,
		address:      cfg.address,
		db:           cfg.database,
		maxFrameSize: cfg.maxFrameSize,
		logger:       cfg.logger,
		metrics:      cfg.metrics,
		started:      time.Now(),
		sessions:     make(map[string]*Session),
	}
	d.state.Store(packState(cfg.state, 0))
	return d, nil
}

func packState(state ads.ADSState, devState uint16) uint32 {
	return uint32(state)<<16 | uint32(devState)
}

func (d *Device) Name() string {
	return d.name
}

func (d *Device) Version() DeviceVersion {
	return d.version
}

// Address returns the device's own AMS address.
func (d *Device) Address() ams.Addr {
	return d.address
}

func (d *Device) Database() *symbols.Database {
	return d.db
}

func (d *Device) Logger() Logger {
	return d.logger
}

func (d *Device) Metrics() Metrics {
	return d.metrics
}

// Uptime returns the time since the device was created.
func (d *Device) Uptime() time.Duration {
	return time.Since(d.started)
}

// Info returns the name and version reported by READ_DEVICE_INFO.
func (d *Device) Info() DeviceInfo {
	return DeviceInfo{Name: d.name, Version: d.version}
}

// State returns the current ADS and device state.
func (d *Device) State() DeviceState {
	v := d.state.Load()
	return DeviceState{ADSState: ads.ADSState(v >> 16), DeviceState: uint16(v)}
}

// SetState changes the ADS state. The invalid state is rejected.
func (d *Device) SetState(state ads.ADSState, devState uint16) error {
	if !state.Valid() {
		return ads.ErrDeviceInvalidParam
	}
	prev := d.State()
	d.state.Store(packState(state, devState))
	if prev.ADSState != state {
		d.logger.Info("ADS state changed", "from", prev.ADSState.String(), "to", state.String())
	}
	return nil
}

// NewSession opens a session between the device at local and the peer at
// remote. A zero remote is learned from the first request.
func (d *Device) NewSession(local, remote ams.Addr) *Session {
	return d.newSession(local, remote, "")
}

func (d *Device) newSession(local, remote ams.Addr, peer string) *Session {
	s := newSession(d, local, remote, peer)

	d.sessionsMu.Lock()
	d.sessions[s.id] = s
	n := len(d.sessions)
	d.sessionsMu.Unlock()

	d.metrics.SessionsActive(n)
	s.logger.Debug("session opened", "local", local.String(), "remote", remote.String())
	return s
}

// nextHandle returns a device-wide handle value, never zero.
func (d *Device) nextHandle() uint32 {
	for {
		if h := d.lastHandle.Add(1); h != 0 {
			return h
		}
	}
}

func (d *Device) removeSession(s *Session) {
	d.sessionsMu.Lock()
	delete(d.sessions, s.id)
	n := len(d.sessions)
	d.sessionsMu.Unlock()

	d.metrics.SessionsActive(n)
}

// Session returns the open session with the given id.
func (d *Device) Session(id string) (*Session, bool) {
	d.sessionsMu.RLock()
	defer d.sessionsMu.RUnlock()
	s, ok := d.sessions[id]
	return s, ok
}

// Sessions describes every open session, oldest first.
func (d *Device) Sessions() []SessionInfo {
	d.sessionsMu.RLock()
	infos := make([]SessionInfo, 0, len(d.sessions))
	for _, s := range d.sessions {
		infos = append(infos, s.Info())
	}
	d.sessionsMu.RUnlock()

	sort.Slice(infos, func(i, j int) bool {
		if infos[i].Created.Equal(infos[j].Created) {
			return infos[i].ID < infos[j].ID
		}
		return infos[i].Created.Before(infos[j].Created)
	})
	return infos
}

// CloseSessions closes every open session.
func (d *Device) CloseSessions() {
	d.sessionsMu.RLock()
	open := make([]*Session, 0, len(d.sessions))
	for _, s := range d.sessions {
		open = append(open, s)
	}
	d.sessionsMu.RUnlock()

	for _, s := range open {
		s.Close()
	}
}

// ServeConfig tunes the TCP side of Serve.
type ServeConfig struct {
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxConnections int
}

// Serve accepts AMS/TCP connections on ln until ctx is cancelled, running one
// session per connection.
func (d *Device) Serve(ctx context.Context, ln net.Listener, cfg ServeConfig) error {
	logger := LoggerFromContext(ctx, d.logger)

	srv := transport.NewServer(func(conn net.Conn) transport.Session {
		d.metrics.ConnectionAccepted()
		return d.newSession(d.address, ams.Addr{}, conn.RemoteAddr().String())
	}, transport.Config{
		ReadTimeout:    cfg.ReadTimeout,
		WriteTimeout:   cfg.WriteTimeout,
		MaxConnections: cfg.MaxConnections,
		Logger:         logger,
		OnReject: func(addr net.Addr) {
			d.metrics.ConnectionRejected()
		},
	})

	logger.Info("ADS device listening", "addr", ln.Addr().String(), "ams", d.address.String(), "name", d.name)
	if err := srv.Serve(ctx, ln); err != nil {
		return fmt.Errorf("goadsdev: serve: %w", err)
	}
	return nil
}

// ListenAndServe listens on the TCP address addr and calls Serve.
func (d *Device) ListenAndServe(ctx context.Context, addr string, cfg ServeConfig) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("goadsdev: listen %s: %w", addr, err)
	}
	return d.Serve(ctx, ln, cfg)
}
