package config

import (
	"fmt"

	"github.com/mrpasztoradam/goadsdev"
	"github.com/mrpasztoradam/goadsdev/internal/symbols"
	"github.com/mrpasztoradam/goadsdev/internal/tmc"
)

// BuildDatabase assembles the symbol database: the TMC import first, then the
// inline areas in declaration order. Inline symbols use the type names known
// to the registry, including enumerations registered by the import.
func (c *Config) BuildDatabase(logger goadsdev.Logger) (*symbols.Database, error) {
	if logger == nil {
		logger = goadsdev.DefaultLogger
	}
	reg := symbols.NewTypeRegistry()

	db := symbols.NewDatabase()
	if c.Database.TMC != "" {
		var (
			res tmc.Result
			err error
		)
		db, res, err = tmc.Load(c.Database.TMC, reg, logger)
		if err != nil {
			return nil, fmt.Errorf("import %s: %w", c.Database.TMC, err)
		}
		logger.Info("TMC imported", "file", c.Database.TMC, "areas", res.Areas, "symbols", res.Symbols, "skipped", len(res.Skipped))
	}

	for _, ac := range c.Database.Areas {
		area, ok := db.Area(ac.IndexGroup)
		if !ok || ac.Size != 0 {
			kind := ac.Kind
			if kind == "" {
				kind = symbols.KindInternal
			}
			var err error
			area, err = db.AddArea(symbols.NewDataArea(ac.IndexGroup, kind, ac.Size))
			if err != nil {
				return nil, err
			}
		}

		for _, sc := range ac.Symbols {
			dt, n, err := reg.Resolve(sc.Name, sc.Type, sc.ArrayLength)
			if err != nil {
				return nil, fmt.Errorf("area 0x%X: %w", ac.IndexGroup, err)
			}
			sym, err := area.AddSymbol(sc.Name, sc.Offset, dt, n)
			if err != nil {
				return nil, fmt.Errorf("area 0x%X: %w", ac.IndexGroup, err)
			}
			sym.Comment = sc.Comment
		}
		logger.Debug("data area configured", "index_group", fmt.Sprintf("0x%X", ac.IndexGroup), "size", area.Size(), "symbols", len(ac.Symbols))
	}

	return db, nil
}

// DeviceOptions translates the device section into device options.
func (c *Config) DeviceOptions() ([]goadsdev.Option, error) {
	state, err := c.BootState()
	if err != nil {
		return nil, err
	}
	addr, err := c.Address()
	if err != nil {
		return nil, err
	}

	opts := []goadsdev.Option{
		goadsdev.WithName(c.Device.Name),
		goadsdev.WithVersion(goadsdev.DeviceVersion{
			Major: c.Device.VersionMajor,
			Minor: c.Device.VersionMinor,
			Build: c.Device.VersionBuild,
		}),
		goadsdev.WithBootState(state),
		goadsdev.WithAddress(addr),
	}
	if c.Server.MaxFrameSize != 0 {
		opts = append(opts, goadsdev.WithMaxFrameSize(c.Server.MaxFrameSize))
	}
	return opts, nil
}

// ServeConfig returns the TCP tuning for the device listener.
func (c *Config) ServeConfig() goadsdev.ServeConfig {
	return goadsdev.ServeConfig{
		ReadTimeout:    c.ReadTimeout(),
		WriteTimeout:   c.WriteTimeout(),
		MaxConnections: c.Server.MaxConnections,
	}
}
