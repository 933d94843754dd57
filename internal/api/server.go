package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/flora-iot/flora-core/internal/audit"
	"github.com/flora-iot/flora-core/internal/auth"
	"github.com/flora-iot/flora-core/internal/device"
	"github.com/flora-iot/flora-core/internal/infrastructure/config"
	"github.com/flora-iot/flora-core/internal/infrastructure/database"
	"github.com/flora-iot/flora-core/internal/infrastructure/influxdb"
	"github.com/flora-iot/flora-core/internal/infrastructure/logging"
	"github.com/flora-iot/flora-core/internal/infrastructure/mqtt"
	"github.com/flora-iot/flora-core/internal/query"
	"github.com/flora-iot/flora-core/internal/reading"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// ReadingFetcher serves paginated reading queries. *query.Engine implements it.
type ReadingFetcher interface {
	FetchReadings(ctx context.Context, f query.Filter) (*query.Result, error)
}

// Forecaster returns an hourly forecast document for a location key.
type Forecaster interface {
	HourlyForecast(ctx context.Context, locationKey string) (json.RawMessage, error)
}

// SpeciesSource returns a plant species document.
type SpeciesSource interface {
	SpeciesDetails(ctx context.Context, id int) (json.RawMessage, error)
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Logger   *logging.Logger
	Auth     *auth.Service
	Registry *device.Registry
	Readings ReadingFetcher
	// Authorizer gates live reading subscriptions.
	Authorizer query.Authorizer
	Weather    Forecaster
	Plants     SpeciesSource
	// Audit records account activity when set.
	Audit      audit.Repository

	// Optional; reported by /metrics when set.
	MQTT   *mqtt.Client
	Influx *influxdb.Client
	DB     *database.DB

	Version string
}

// Server is the HTTP API server for Flora.
type Server struct {
	cfg      config.APIConfig
	wsCfg    config.WebSocketConfig
	logger   *logging.Logger
	auth     *auth.Service
	registry *device.Registry
	readings ReadingFetcher
	weather  Forecaster
	plants   SpeciesSource
	audit    audit.Repository
	mqtt     *mqtt.Client
	influx   *influxdb.Client
	db       *database.DB
	version  string

	server    *http.Server
	hub       *Hub
	tickets   *ttlcache.Cache[string, auth.Identity]
	startTime time.Time
	cancel    context.CancelFunc
}

// New creates a new API server with the given dependencies.
// The hub exists from construction so readings can be broadcast before
// Start is called.
func New(deps Deps) (*Server, error) {
	switch {
	case deps.Logger == nil:
		return nil, errors.New("logger is required")
	case deps.Auth == nil:
		return nil, errors.New("auth service is required")
	case deps.Registry == nil:
		return nil, errors.New("device registry is required")
	case deps.Readings == nil:
		return nil, errors.New("reading fetcher is required")
	case deps.Authorizer == nil:
		return nil, errors.New("authorizer is required")
	}

	s := &Server{
		cfg:       deps.Config,
		wsCfg:     deps.WS,
		logger:    deps.Logger,
		auth:      deps.Auth,
		registry:  deps.Registry,
		readings:  deps.Readings,
		weather:   deps.Weather,
		plants:    deps.Plants,
		audit:     deps.Audit,
		mqtt:      deps.MQTT,
		influx:    deps.Influx,
		db:        deps.DB,
		version:   deps.Version,
		hub:       NewHub(deps.WS, deps.Logger, deps.Authorizer),
		tickets:   newTicketStore(),
		startTime: time.Now(),
	}
	return s, nil
}

// Hub returns the server's WebSocket hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// ReadingObserver returns a function that pushes each stored reading to
// WebSocket clients subscribed to its device channel.
func (s *Server) ReadingObserver() func(reading.SensorReading) {
	return func(r reading.SensorReading) {
		s.hub.Broadcast(ReadingChannel(r.DeviceID), r)
	}
}

// Start launches the HTTP listener in a background goroutine. The
// hub and ticket expiry run until Close or until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	go s.hub.Run(srvCtx)
	go s.tickets.Start()

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS", "address", s.server.Addr, "cert", s.cfg.TLS.CertFile)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", s.server.Addr)
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close waits up to 10 seconds for in-flight requests, then closes the
// remaining connections and stops background work.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	if s.cancel != nil {
		s.cancel()
	}
	s.tickets.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server has been started.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return errors.New("api server not started")
	}
	return nil
}
