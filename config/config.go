// Package config loads the device server configuration from YAML or TOML.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/mrpasztoradam/goadsdev/internal/ads"
	"github.com/mrpasztoradam/goadsdev/internal/ams"
)

// Config represents the device server configuration
type Config struct {
	Server   ServerConfig   `yaml:"server" toml:"server"`
	Device   DeviceConfig   `yaml:"device" toml:"device"`
	API      APIConfig      `yaml:"api" toml:"api"`
	Logging  LoggingConfig  `yaml:"logging" toml:"logging"`
	Retain   RetainConfig   `yaml:"retain" toml:"retain"`
	Database DatabaseConfig `yaml:"database" toml:"database"`
}

// ServerConfig contains the AMS/TCP listener configuration
type ServerConfig struct {
	Listen              string `yaml:"listen" toml:"listen"`
	ReadTimeoutSeconds  int    `yaml:"read_timeout_seconds" toml:"read_timeout_seconds"`   // 0 disables the idle timeout
	WriteTimeoutSeconds int    `yaml:"write_timeout_seconds" toml:"write_timeout_seconds"` // 0 disables the write deadline
	MaxConnections      int    `yaml:"max_connections" toml:"max_connections"`             // 0 means unlimited
	MaxFrameSize        uint32 `yaml:"max_frame_size" toml:"max_frame_size"`
}

// DeviceConfig contains what the device reports about itself
type DeviceConfig struct {
	Name         string `yaml:"name" toml:"name"`
	VersionMajor uint8  `yaml:"version_major" toml:"version_major"`
	VersionMinor uint8  `yaml:"version_minor" toml:"version_minor"`
	VersionBuild uint16 `yaml:"version_build" toml:"version_build"`
	BootState    string `yaml:"boot_state" toml:"boot_state"`
	AMSNetID     string `yaml:"ams_net_id" toml:"ams_net_id"`
	AMSPort      uint16 `yaml:"ams_port" toml:"ams_port"`
}

// APIConfig contains the admin HTTP API configuration
type APIConfig struct {
	Enabled         bool       `yaml:"enabled" toml:"enabled"`
	Host            string     `yaml:"host" toml:"host"`
	Port            int        `yaml:"port" toml:"port"`
	CORS            CORSConfig `yaml:"cors" toml:"cors"`
	WatchIntervalMs int        `yaml:"watch_interval_ms" toml:"watch_interval_ms"`
	MaxWatches      int        `yaml:"max_watches" toml:"max_watches"`
}

// CORSConfig contains CORS configuration
type CORSConfig struct {
	Enabled          bool     `yaml:"enabled" toml:"enabled"`
	AllowedOrigins   []string `yaml:"allowed_origins" toml:"allowed_origins"`
	AllowedMethods   []string `yaml:"allowed_methods" toml:"allowed_methods"`
	AllowedHeaders   []string `yaml:"allowed_headers" toml:"allowed_headers"`
	AllowCredentials bool     `yaml:"allow_credentials" toml:"allow_credentials"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`   // debug, info, warn, error
	Format string `yaml:"format" toml:"format"` // json, text
}

// RetainConfig controls persistence of data area memory.
// An empty path disables retain.
type RetainConfig struct {
	Path            string `yaml:"path" toml:"path"`
	IntervalSeconds int    `yaml:"interval_seconds" toml:"interval_seconds"` // 0 saves on shutdown only
}

// DatabaseConfig describes where the symbol database comes from.
type DatabaseConfig struct {
	TMC   string       `yaml:"tmc" toml:"tmc"`
	Areas []AreaConfig `yaml:"areas" toml:"areas"`
}

// AreaConfig declares a data area inline. An area whose index group already
// exists (e.g. imported from the TMC file) with size 0 only adds symbols.
type AreaConfig struct {
	IndexGroup uint32         `yaml:"index_group" toml:"index_group"`
	Kind       string         `yaml:"kind" toml:"kind"`
	Size       uint32         `yaml:"size" toml:"size"`
	Symbols    []SymbolConfig `yaml:"symbols" toml:"symbols"`
}

type SymbolConfig struct {
	Name        string `yaml:"name" toml:"name"`
	Offset      uint32 `yaml:"offset" toml:"offset"`
	Type        string `yaml:"type" toml:"type"`
	ArrayLength uint32 `yaml:"array_length,omitempty" toml:"array_length,omitempty"`
	Comment     string `yaml:"comment,omitempty" toml:"comment,omitempty"`
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Listen:              fmt.Sprintf("0.0.0.0:%d", ams.DefaultTCPPort),
			ReadTimeoutSeconds:  0,
			WriteTimeoutSeconds: 10,
			MaxConnections:      64,
			MaxFrameSize:        ams.DefaultMaxFrameSize,
		},
		Device: DeviceConfig{
			Name:         "goadsdev",
			VersionMajor: 3,
			VersionMinor: 1,
			VersionBuild: 4024,
			BootState:    "run",
			AMSNetID:     "127.0.0.1.1.1",
			AMSPort:      uint16(ams.PortPLCRuntime1),
		},
		API: APIConfig{
			Enabled: false,
			Host:    "127.0.0.1",
			Port:    8080,
			CORS: CORSConfig{
				Enabled:          true,
				AllowedOrigins:   []string{"*"},
				AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
				AllowedHeaders:   []string{"Content-Type", "Authorization"},
				AllowCredentials: false,
			},
			WatchIntervalMs: 500,
			MaxWatches:      100,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from a YAML or TOML file, chosen by extension.
// Fields missing from the file keep their defaults.
func Load(filename string) (*Config, error) {
	config := DefaultConfig()

	if isTOML(filename) {
		meta, err := toml.DecodeFile(filename, config)
		if err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("unknown config key %q", undecoded[0].String())
		}
	} else {
		data, err := os.ReadFile(filename)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(config); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	config.resolvePaths(filepath.Dir(filename))
	return config, nil
}

func isTOML(filename string) bool {
	return strings.EqualFold(filepath.Ext(filename), ".toml")
}

// resolvePaths makes file references relative to the config file's directory.
func (c *Config) resolvePaths(dir string) {
	if c.Database.TMC != "" && !filepath.IsAbs(c.Database.TMC) {
		c.Database.TMC = filepath.Join(dir, c.Database.TMC)
	}
	if c.Retain.Path != "" && !filepath.IsAbs(c.Retain.Path) {
		c.Retain.Path = filepath.Join(dir, c.Retain.Path)
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Listen == "" {
		return fmt.Errorf("server listen address is required")
	}
	if _, _, err := net.SplitHostPort(c.Server.Listen); err != nil {
		return fmt.Errorf("invalid server listen address %q: %w", c.Server.Listen, err)
	}
	if c.Server.ReadTimeoutSeconds < 0 || c.Server.WriteTimeoutSeconds < 0 {
		return fmt.Errorf("server timeouts cannot be negative")
	}
	if c.Server.MaxConnections < 0 {
		return fmt.Errorf("max connections cannot be negative")
	}
	if c.Server.MaxFrameSize != 0 && c.Server.MaxFrameSize < ams.HeaderSize {
		return fmt.Errorf("max frame size must be at least %d", ams.HeaderSize)
	}

	if c.Device.Name == "" {
		return fmt.Errorf("device name is required")
	}
	if len(c.Device.Name) > ads.DeviceNameSize {
		return fmt.Errorf("device name %q longer than %d bytes", c.Device.Name, ads.DeviceNameSize)
	}
	if _, err := c.BootState(); err != nil {
		return err
	}
	if _, err := c.Address(); err != nil {
		return err
	}

	if c.API.Enabled {
		if c.API.Port < 1 || c.API.Port > 65535 {
			return fmt.Errorf("invalid api port: %d", c.API.Port)
		}
		if c.API.WatchIntervalMs < 10 {
			return fmt.Errorf("api watch interval must be at least 10ms")
		}
		if c.API.MaxWatches < 1 {
			return fmt.Errorf("api max watches must be at least 1")
		}
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s (must be json or text)", c.Logging.Format)
	}

	if c.Retain.IntervalSeconds < 0 {
		return fmt.Errorf("retain interval cannot be negative")
	}

	return c.Database.validate()
}

func (d *DatabaseConfig) validate() error {
	seen := make(map[uint32]bool)
	for i, area := range d.Areas {
		if seen[area.IndexGroup] {
			return fmt.Errorf("database area %d: index group 0x%X declared twice", i, area.IndexGroup)
		}
		seen[area.IndexGroup] = true
		if ads.IsSymbolService(area.IndexGroup) {
			return fmt.Errorf("database area %d: index group 0x%X is reserved for symbol services", i, area.IndexGroup)
		}
		for j, sym := range area.Symbols {
			if sym.Name == "" {
				return fmt.Errorf("database area 0x%X symbol %d: name is required", area.IndexGroup, j)
			}
			if sym.Type == "" {
				return fmt.Errorf("database area 0x%X symbol %q: type is required", area.IndexGroup, sym.Name)
			}
		}
	}
	return nil
}

// BootState returns the configured boot state.
func (c *Config) BootState() (ads.ADSState, error) {
	state, ok := ads.ParseADSState(c.Device.BootState)
	if !ok || !state.Valid() {
		return 0, fmt.Errorf("invalid boot state: %q", c.Device.BootState)
	}
	return state, nil
}

// Address returns the device's AMS address.
func (c *Config) Address() (ams.Addr, error) {
	netID, err := ams.ParseNetID(c.Device.AMSNetID)
	if err != nil {
		return ams.Addr{}, err
	}
	return ams.Addr{NetID: netID, Port: ams.Port(c.Device.AMSPort)}, nil
}

// APIAddress returns the admin API address (host:port)
func (c *Config) APIAddress() string {
	return net.JoinHostPort(c.API.Host, strconv.Itoa(c.API.Port))
}

func (c *Config) ReadTimeout() time.Duration {
	return time.Duration(c.Server.ReadTimeoutSeconds) * time.Second
}

func (c *Config) WriteTimeout() time.Duration {
	return time.Duration(c.Server.WriteTimeoutSeconds) * time.Second
}

func (c *Config) WatchInterval() time.Duration {
	return time.Duration(c.API.WatchIntervalMs) * time.Millisecond
}

func (c *Config) RetainInterval() time.Duration {
	return time.Duration(c.Retain.IntervalSeconds) * time.Second
}

// SaveExample saves an example configuration file, YAML or TOML by extension
func SaveExample(filename string) error {
	config := DefaultConfig()
	config.Database.Areas = []AreaConfig{{
		IndexGroup: ads.IndexGroupPLCDataArea,
		Kind:       "Internal",
		Size:       1024,
		Symbols: []SymbolConfig{
			{Name: "MAIN.nCounter", Offset: 0, Type: "DINT"},
			{Name: "MAIN.fTemperature", Offset: 4, Type: "LREAL", Comment: "degrees Celsius"},
			{Name: "MAIN.bEnable", Offset: 12, Type: "BOOL"},
			{Name: "MAIN.aSetpoints", Offset: 16, Type: "REAL", ArrayLength: 8},
			{Name: "MAIN.sName", Offset: 48, Type: "STRING(80)"},
		},
	}}

	var data []byte
	if isTOML(filename) {
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(config); err != nil {
			return fmt.Errorf("failed to marshal config: %w", err)
		}
		data = buf.Bytes()
	} else {
		var err error
		data, err = yaml.Marshal(config)
		if err != nil {
			return fmt.Errorf("failed to marshal config: %w", err)
		}
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
