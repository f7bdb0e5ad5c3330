package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/mrpasztoradam/goadsdev/internal/tasks"
)

// Config tunes a Server. Zero values mean no deadline, no connection limit and
// the default read buffer.
type Config struct {
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxConnections int
	ReadBufferSize int
	Logger         Logger

	// OnReject is called for every connection refused by MaxConnections.
	OnReject func(addr net.Addr)
}

// Server accepts connections and serves each one in its own task.
type Server struct {
	factory SessionFactory
	cfg     Config
	logger  Logger
	conns   *tasks.Group
}

func NewServer(factory SessionFactory, cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = nopLogger{}
	}
	cfg.Logger = logger
	return &Server{
		factory: factory,
		cfg:     cfg,
		logger:  logger,
		conns:   tasks.NewGroup(context.Background()),
	}
}

// ActiveConnections returns the number of connections being served.
func (s *Server) ActiveConnections() int {
	return s.conns.Len()
}

// Serve accepts on ln until ctx is cancelled or the listener fails. On return
// the listener and every served connection are closed.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	defer s.conns.CancelAll(true)
	defer ln.Close()

	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()

	var tempDelay time.Duration
	for {
		nc, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				if tempDelay == 0 {
					tempDelay = 5 * time.Millisecond
				} else if tempDelay *= 2; tempDelay > time.Second {
					tempDelay = time.Second
				}
				s.logger.Warn("accept failed, retrying", "error", err, "delay", tempDelay)
				time.Sleep(tempDelay)
				continue
			}
			return fmt.Errorf("transport: accept: %w", err)
		}
		tempDelay = 0

		if s.cfg.MaxConnections > 0 && s.conns.Len() >= s.cfg.MaxConnections {
			s.logger.Warn("connection limit reached, rejecting connection", "remote", nc.RemoteAddr().String(), "limit", s.cfg.MaxConnections)
			nc.Close()
			if s.cfg.OnReject != nil {
				s.cfg.OnReject(nc.RemoteAddr())
			}
			continue
		}

		if tcp, ok := nc.(*net.TCPConn); ok {
			tcp.SetKeepAlive(true)
			tcp.SetKeepAlivePeriod(30 * time.Second)
			tcp.SetNoDelay(true)
		}

		c := newConn(nc, s.factory(nc), s.cfg)
		s.conns.Go(func(ctx context.Context) error {
			remote := c.RemoteAddr().String()
			s.logger.Debug("connection accepted", "remote", remote)
			err := c.serve(ctx)
			switch {
			case isFatal(err):
				s.logger.Warn("connection closed", "remote", remote, "error", err)
			case err != nil:
				s.logger.Debug("connection closed", "remote", remote, "error", err)
			default:
				s.logger.Debug("connection closed", "remote", remote)
			}
			return err
		})
	}
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
