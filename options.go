package goadsdev

import (
	"fmt"

	"github.com/mrpasztoradam/goadsdev/internal/ads"
	"github.com/mrpasztoradam/goadsdev/internal/ams"
	"github.com/mrpasztoradam/goadsdev/internal/symbols"
)

// DeviceVersion is the version triple reported by READ_DEVICE_INFO.
type DeviceVersion struct {
	Major uint8  `json:"major" yaml:"major" toml:"major"`
	Minor uint8  `json:"minor" yaml:"minor" toml:"minor"`
	Build uint16 `json:"build" yaml:"build" toml:"build"`
}

func (v DeviceVersion) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Build)
}

// Option is a functional option for configuring a Device.
type Option func(*deviceConfig) error

type deviceConfig struct {
	name         string
	version      DeviceVersion
	state        ads.ADSState
	address      ams.Addr
	database     *symbols.Database
	maxFrameSize uint32
	logger       Logger
	metrics      Metrics
}

// WithName sets the device name (optional, at most 16 bytes are reported).
func WithName(name string) Option {
	return func(c *deviceConfig) error {
		if name == "" {
			return fmt.Errorf("goadsdev: device name cannot be empty")
		}
		c.name = name
		return nil
	}
}

// WithVersion sets the reported device version (optional).
func WithVersion(v DeviceVersion) Option {
	return func(c *deviceConfig) error {
		c.version = v
		return nil
	}
}

// WithBootState sets the ADS state the device starts in (optional, defaults to run).
func WithBootState(state ads.ADSState) Option {
	return func(c *deviceConfig) error {
		if !state.Valid() {
			return fmt.Errorf("goadsdev: invalid boot state %d", state)
		}
		c.state = state
		return nil
	}
}

// WithAddress sets the device's own AMS address (optional).
func WithAddress(addr ams.Addr) Option {
	return func(c *deviceConfig) error {
		c.address = addr
		return nil
	}
}

// WithDatabase sets the symbol database (optional, defaults to an empty
// database holding only the default PLC memory area).
func WithDatabase(db *symbols.Database) Option {
	return func(c *deviceConfig) error {
		if db == nil {
			return fmt.Errorf("goadsdev: database cannot be nil")
		}
		c.database = db
		return nil
	}
}

// WithMaxFrameSize bounds the AMS/TCP length a session accepts (optional).
func WithMaxFrameSize(n uint32) Option {
	return func(c *deviceConfig) error {
		if n < ams.HeaderSize {
			return fmt.Errorf("goadsdev: max frame size must be at least %d", ams.HeaderSize)
		}
		c.maxFrameSize = n
		return nil
	}
}

// WithLogger sets the logger for the device and its sessions.
func WithLogger(logger Logger) Option {
	return func(c *deviceConfig) error {
		if logger == nil {
			logger = DefaultLogger
		}
		c.logger = logger
		return nil
	}
}

// WithMetrics sets the metrics collector for the device and its sessions.
func WithMetrics(metrics Metrics) Option {
	return func(c *deviceConfig) error {
		if metrics == nil {
			metrics = DefaultMetrics
		}
		c.metrics = metrics
		return nil
	}
}
