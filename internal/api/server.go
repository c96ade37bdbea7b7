package api

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/nerrad567/divoom-bridge/internal/bridge"
	"github.com/nerrad567/divoom-bridge/internal/divoom"
	"github.com/nerrad567/divoom-bridge/internal/history"
	"github.com/nerrad567/divoom-bridge/internal/infrastructure/config"
	"github.com/nerrad567/divoom-bridge/internal/infrastructure/logging"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Commander runs commands against the device. *bridge.Bridge implements it.
type Commander interface {
	Execute(ctx context.Context, cmd bridge.CommandMessage) (divoom.State, error)
	Health() bridge.HealthMessage
	DeviceID() string
}

// StateReader exposes the session snapshot. *divoom.Session implements it.
type StateReader interface {
	State() divoom.State
	Stats() divoom.Stats
}

// HistoryReader lists recorded state changes. *history.Repository implements it.
type HistoryReader interface {
	List(ctx context.Context, deviceID string, limit int) ([]history.Entry, error)
}

// HealthChecker is implemented by the MQTT client.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Database is implemented by *database.DB.
type Database interface {
	HealthChecker
	Stats() sql.DBStats
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config  config.APIConfig
	Logger  *logging.Logger
	Bridge  Commander
	Device  StateReader
	History HistoryReader // optional
	DB      Database      // optional
	MQTT    HealthChecker // optional
	Metrics http.Handler  // optional; served at /metrics
	Version string
}

// Server is the HTTP API server for the bridge.
type Server struct {
	cfg     config.APIConfig
	logger  *logging.Logger
	bridge  Commander
	device  StateReader
	history HistoryReader
	db      Database
	mqtt    HealthChecker
	metrics http.Handler
	version string

	startTime time.Time

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If the logger, bridge or device is missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Bridge == nil {
		return nil, fmt.Errorf("bridge is required")
	}
	if deps.Device == nil {
		return nil, fmt.Errorf("device is required")
	}

	return &Server{
		cfg:       deps.Config,
		logger:    deps.Logger,
		bridge:    deps.Bridge,
		device:    deps.Device,
		history:   deps.History,
		db:        deps.DB,
		mqtt:      deps.MQTT,
		metrics:   deps.Metrics,
		version:   deps.Version,
		startTime: time.Now(),
	}, nil
}

// Start binds the listener and serves in a background goroutine.
// The server can be stopped with Close().
//
// Returns:
//   - error: If the listener cannot be bound (port in use, etc.)
func (s *Server) Start(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server != nil {
		return fmt.Errorf("api server already started")
	}

	addr := net.JoinHostPort(s.cfg.Host, fmt.Sprintf("%d", s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	s.listener = ln
	s.server = &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       s.cfg.ReadTimeout(),
		ReadHeaderTimeout: s.cfg.ReadTimeout(),
		WriteTimeout:      s.cfg.WriteTimeout(),
		IdleTimeout:       s.cfg.IdleTimeout(),
	}

	s.logger.Info("API server starting", "address", ln.Addr().String())

	srv := s.server
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Addr returns the bound listener address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()

	if srv == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}
