package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/nerrad567/eqiva-core/internal/bridges/eqiva"
	"github.com/nerrad567/eqiva-core/internal/infrastructure/config"
	"github.com/nerrad567/eqiva-core/internal/infrastructure/logging"
	"github.com/nerrad567/eqiva-core/internal/thermostat"
)

// gracefulShutdownTimeout bounds how long Close waits for in-flight requests.
const gracefulShutdownTimeout = 10 * time.Second

// Executor runs thermostat commands. *eqiva.Controller implements it.
type Executor interface {
	Execute(ctx context.Context, req eqiva.Request) (eqiva.Outcome, error)
	OnState(fn func(eqiva.DeviceState))
	Stats() eqiva.ControllerStats
}

// CommandLister pages through the command log. *thermostat.CommandLog
// implements it.
type CommandLister interface {
	List(ctx context.Context, filter thermostat.CommandFilter) (*thermostat.CommandListResult, error)
}

// BrokerStatus reports the MQTT connection state for health and metrics.
type BrokerStatus interface {
	IsConnected() bool
}

// TemperatureLimits bounds set points requested through the compatibility
// routes.
type TemperatureLimits struct {
	Min float64
	Max float64
}

// Deps are the collaborators handed to New.
type Deps struct {
	Config     config.APIConfig
	WS         config.WebSocketConfig
	Security   config.SecurityConfig
	Limits     TemperatureLimits
	Logger     *logging.Logger
	Registry   *thermostat.Registry
	Controller Executor
	CommandLog CommandLister // optional; /api/v1/commands answers 503 without it
	MQTT       BrokerStatus  // optional
	Version    string
}

// Server serves the REST routes, the HomeKit compatibility routes, the
// metrics endpoint and the WebSocket state feed.
type Server struct {
	cfg        config.APIConfig
	wsCfg      config.WebSocketConfig
	secCfg     config.SecurityConfig
	limits     TemperatureLimits
	logger     *logging.Logger
	registry   *thermostat.Registry
	controller Executor
	commandLog CommandLister
	mqtt       BrokerStatus
	version    string
	startTime  time.Time
	server     *http.Server
	addr       string
	hub        *Hub
	cancel     context.CancelFunc
}

// New wires the server to its dependencies. Every DeviceState the
// controller produces is fanned out to WebSocket subscribers of
// thermostat.state.
//
// Parameters:
//   - deps: Logger, Registry and Controller are required; the rest are optional
//
// Returns:
//   - *Server: Server that listens once Start is called
//   - error: If a required dependency is nil
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, errors.New("api: logger is required")
	}
	if deps.Registry == nil {
		return nil, errors.New("api: thermostat registry is required")
	}
	if deps.Controller == nil {
		return nil, errors.New("api: controller is required")
	}
	if deps.Limits.Min == 0 && deps.Limits.Max == 0 {
		deps.Limits = TemperatureLimits{Min: 5, Max: eqiva.MaxSetpoint} //nolint:mnd // HomeKit default range
	}

	s := &Server{
		cfg:        deps.Config,
		wsCfg:      deps.WS,
		secCfg:     deps.Security,
		limits:     deps.Limits,
		logger:     deps.Logger,
		registry:   deps.Registry,
		controller: deps.Controller,
		commandLog: deps.CommandLog,
		mqtt:       deps.MQTT,
		version:    deps.Version,
		startTime:  time.Now(),
		hub:        NewHub(deps.WS, deps.Logger),
	}
	s.controller.OnState(s.broadcastState)
	return s, nil
}

// Handler returns the router. It is exposed for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start binds the listener and serves in the background. A port that is
// already taken fails here rather than in the log.
func (s *Server) Start(ctx context.Context) error {
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("api listen %s: %w", addr, err)
	}

	var hubCtx context.Context
	hubCtx, s.cancel = context.WithCancel(ctx)
	go s.hub.Run(hubCtx)

	s.server = &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       s.cfg.Timeouts.ReadTimeout(),
		ReadHeaderTimeout: s.cfg.Timeouts.ReadTimeout(),
		WriteTimeout:      s.cfg.Timeouts.WriteTimeout(),
		IdleTimeout:       s.cfg.Timeouts.IdleTimeout(),
	}
	s.addr = ln.Addr().String()

	go s.serve(ln)
	return nil
}

func (s *Server) serve(ln net.Listener) {
	s.logger.Info("API server listening",
		"address", s.addr,
		"tls", s.cfg.TLS.Enabled,
		"auth", s.authEnabled(),
	)
	var err error
	if s.cfg.TLS.Enabled {
		err = s.server.ServeTLS(ln, s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
	} else {
		err = s.server.Serve(ln)
	}
	if !errors.Is(err, http.ErrServerClosed) {
		s.logger.Error("API server stopped", "error", err)
	}
}

// Addr is the bound listen address, empty before Start.
func (s *Server) Addr() string {
	return s.addr
}

// Close stops the hub and drains in-flight requests for up to
// gracefulShutdownTimeout. WebSocket connections are hijacked, so the hub
// closes those itself.
func (s *Server) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("api shutdown: %w", err)
	}
	return nil
}

// HealthCheck fails until Start has bound the listener.
func (s *Server) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("api health check: %w", err)
	}
	if s.server == nil {
		return errors.New("api server not started")
	}
	return nil
}

// broadcastState relays one controller state to WebSocket subscribers.
func (s *Server) broadcastState(st eqiva.DeviceState) {
	s.hub.BroadcastState(st)
}
