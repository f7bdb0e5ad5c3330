package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/mrpasztoradam/goadsdev"
	"github.com/mrpasztoradam/goadsdev/api"
	"github.com/mrpasztoradam/goadsdev/config"
	"github.com/mrpasztoradam/goadsdev/internal/retain"
)

type serveOptions struct {
	listen      string
	apiAddr     string
	logLevel    string
	interactive bool
	noRetain    bool
}

func newServeCmd(configPath *string) *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the ADS device",
		Long: `Run the ADS device until interrupted.

The AMS/TCP listener, the optional HTTP API and the periodic retain save run
side by side; the first one to fail stops the others. On shutdown the data
area memory is saved to the retain file, if one is configured, and restored
from it on the next start.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, *configPath)
			if err != nil {
				return err
			}
			if err := opts.apply(cfg); err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg, opts.interactive, cmd.ErrOrStderr())
		},
	}

	cmd.Flags().StringVarP(&opts.listen, "listen", "l", "", "AMS/TCP listen address (overrides server.listen)")
	cmd.Flags().StringVar(&opts.apiAddr, "api", "", "Enable the HTTP API on this address (overrides api.host/api.port)")
	cmd.Flags().StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn or error")
	cmd.Flags().BoolVarP(&opts.interactive, "interactive", "i", false, "Start the interactive console")
	cmd.Flags().BoolVar(&opts.noRetain, "no-retain", false, "Neither restore nor save retained memory")
	return cmd
}

// apply folds command line overrides into cfg.
func (o *serveOptions) apply(cfg *config.Config) error {
	if o.listen != "" {
		cfg.Server.Listen = o.listen
	}
	if o.apiAddr != "" {
		host, port, err := net.SplitHostPort(o.apiAddr)
		if err != nil {
			return fmt.Errorf("invalid --api address %q: %w", o.apiAddr, err)
		}
		p, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("invalid --api port %q", port)
		}
		cfg.API.Enabled = true
		cfg.API.Host = host
		cfg.API.Port = p
	}
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}
	if o.noRetain {
		cfg.Retain.Path = ""
	}
	return cfg.Validate()
}

func apiConfig(cfg *config.Config, logger goadsdev.Logger) api.Config {
	return api.Config{
		Addr: cfg.APIAddress(),
		CORS: api.CORSOptions{
			Enabled:          cfg.API.CORS.Enabled,
			AllowedOrigins:   cfg.API.CORS.AllowedOrigins,
			AllowedMethods:   cfg.API.CORS.AllowedMethods,
			AllowedHeaders:   cfg.API.CORS.AllowedHeaders,
			AllowCredentials: cfg.API.CORS.AllowCredentials,
		},
		WatchInterval: cfg.WatchInterval(),
		MaxWatches:    cfg.API.MaxWatches,
		Logger:        logger,
	}
}

func runServe(parent context.Context, cfg *config.Config, interactive bool, logOut io.Writer) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var console *Console
	if interactive {
		var err error
		console, err = NewConsole()
		if err != nil {
			return err
		}
		logOut = console.Stderr()
	}

	logger, err := goadsdev.NewLogger(logOut, cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return err
	}

	db, err := cfg.BuildDatabase(logger)
	if err != nil {
		return fmt.Errorf("build database: %w", err)
	}

	opts, err := cfg.DeviceOptions()
	if err != nil {
		return err
	}
	metrics := goadsdev.NewInMemoryMetrics()
	opts = append(opts,
		goadsdev.WithDatabase(db),
		goadsdev.WithLogger(logger),
		goadsdev.WithMetrics(metrics),
	)
	device, err := goadsdev.New(opts...)
	if err != nil {
		return err
	}

	var store *retain.Store
	if cfg.Retain.Path != "" {
		store = retain.NewStore(cfg.Retain.Path)
		restoreRetained(store, device, logger)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return device.ListenAndServe(gctx, cfg.Server.Listen, cfg.ServeConfig())
	})

	if cfg.API.Enabled {
		srv := api.NewServer(device, apiConfig(cfg, logger))
		g.Go(func() error {
			return srv.ListenAndServe(gctx)
		})
	}

	if store != nil && cfg.RetainInterval() > 0 {
		g.Go(func() error {
			ticker := time.NewTicker(cfg.RetainInterval())
			defer ticker.Stop()
			for {
				select {
				case <-gctx.Done():
					return nil
				case <-ticker.C:
					saveRetained(store, device, logger)
				}
			}
		})
	}

	if console != nil {
		console.Attach(device)
		g.Go(func() error {
			stopConsole := context.AfterFunc(gctx, func() { console.Close() })
			defer stopConsole()
			console.Run(gctx, cancel)
			return nil
		})
	}

	err = g.Wait()
	if store != nil {
		saveRetained(store, device, logger)
	}
	logger.Info("ADS device stopped", "uptime", device.Uptime().Truncate(time.Second).String())
	return err
}

func restoreRetained(store *retain.Store, device *goadsdev.Device, logger goadsdev.Logger) {
	snap, err := store.Load()
	if err != nil {
		logger.Warn("retain file unreadable, starting with zeroed memory", "path", store.Path(), "error", err)
		return
	}
	if snap == nil {
		logger.Debug("no retain file", "path", store.Path())
		return
	}
	n, err := snap.Apply(device.Database())
	if err != nil {
		logger.Warn("retain file partially applied", "path", store.Path(), "error", err)
	}
	logger.Info("retained memory restored", "path", store.Path(), "areas", n, "saved_at", snap.SavedAt)
}

func saveRetained(store *retain.Store, device *goadsdev.Device, logger goadsdev.Logger) {
	if err := store.Save(retain.Capture(device.Name(), device.Database())); err != nil {
		logger.Error("retain save failed", "path", store.Path(), "error", err)
		return
	}
	logger.Debug("retained memory saved", "path", store.Path())
}
