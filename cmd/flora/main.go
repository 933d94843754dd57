// Flora Core - plant monitoring backend.
//
// Flora ingests sensor uploads from field devices over MQTT, stores them
// per device, and serves them to each device's owner over a REST API and
// a live WebSocket stream. Device registration, plant species details and
// weather forecasts are served alongside.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/flora-iot/flora-core/migrations"

	"github.com/flora-iot/flora-core/internal/api"
	"github.com/flora-iot/flora-core/internal/audit"
	"github.com/flora-iot/flora-core/internal/auth"
	"github.com/flora-iot/flora-core/internal/device"
	"github.com/flora-iot/flora-core/internal/infrastructure/config"
	"github.com/flora-iot/flora-core/internal/infrastructure/database"
	"github.com/flora-iot/flora-core/internal/infrastructure/influxdb"
	"github.com/flora-iot/flora-core/internal/infrastructure/logging"
	"github.com/flora-iot/flora-core/internal/infrastructure/mqtt"
	"github.com/flora-iot/flora-core/internal/plant"
	"github.com/flora-iot/flora-core/internal/query"
	"github.com/flora-iot/flora-core/internal/reading"
	"github.com/flora-iot/flora-core/internal/secrets"
	"github.com/flora-iot/flora-core/internal/weather"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// tokenPruneInterval is how often expired refresh tokens are deleted.
const tokenPruneInterval = time.Hour

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting Flora Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	authService, err := auth.NewService(auth.NewUserRepository(db.DB), auth.NewTokenRepository(db.DB), auth.ServiceConfig{
		Secret:      cfg.Security.JWT.Secret,
		AccessTTL:   time.Duration(cfg.Security.JWT.AccessTokenTTL) * time.Minute,
		RefreshTTL:  time.Duration(cfg.Security.JWT.RefreshTokenTTL) * time.Minute,
		AllowSignup: cfg.Security.AllowSignup,
	})
	if err != nil {
		return fmt.Errorf("creating auth service: %w", err)
	}

	secretProvider := newSecretProvider(cfg.Secrets)
	defer secretProvider.Close()

	httpClient := &http.Client{Timeout: time.Duration(cfg.External.Timeout) * time.Second}
	weatherClient := weather.NewClient(secretProvider,
		weather.WithBaseURL(cfg.External.AccuWeather.BaseURL),
		weather.WithAPIKeyID(cfg.External.AccuWeather.APIKeySecretID),
		weather.WithRateLimit(cfg.External.AccuWeather.RequestsPerSecond),
		weather.WithHTTPClient(httpClient),
	)
	plantClient := plant.NewClient(secretProvider,
		plant.WithBaseURL(cfg.External.Perenual.BaseURL),
		plant.WithAPIKeyID(cfg.External.Perenual.APIKeySecretID),
		plant.WithRateLimit(cfg.External.Perenual.RequestsPerSecond),
		plant.WithHTTPClient(httpClient),
	)

	registry := device.NewRegistry(device.NewSQLiteRepository(db.DB), weatherClient)
	registry.SetLogger(log)

	store := reading.NewSQLiteStore(db.DB, cfg.Readings.MaxPageSize)
	ingestor := reading.NewIngestor(store, registry,
		reading.WithRetention(cfg.Readings.Retention()),
		reading.WithLogger(log),
	)

	var lookup query.DeviceLookup = query.LocalLookup{Registry: registry}
	if cfg.Authorization.Mode == config.AuthorizationModeHTTP {
		lookup = query.NewHTTPLookup(cfg.Authorization.RegistryURL, httpClient)
	}
	checker := query.NewChecker(lookup, cfg.Authorization.Timeout())
	engine := query.NewEngine(checker, store,
		query.WithLookback(cfg.Readings.LookbackSeconds),
		query.WithLogger(log),
	)

	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetLogger(log)
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	influxClient, err := connectInflux(cfg.InfluxDB, log)
	if err != nil {
		return err
	}
	if influxClient != nil {
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		ingestor.Observe(influxClient.Observer())
	}

	apiServer, err := api.New(api.Deps{
		Config:     cfg.API,
		WS:         cfg.WebSocket,
		Logger:     log,
		Auth:       authService,
		Registry:   registry,
		Readings:   engine,
		Authorizer: checker,
		Weather:    weatherClient,
		Plants:     plantClient,
		Audit:      audit.NewSQLiteRepository(db.DB),
		MQTT:       mqttClient,
		Influx:     influxClient,
		DB:         db,
		Version:    version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	ingestor.Observe(apiServer.ReadingObserver())

	deviceFromTopic, err := mqtt.DeviceExtractor(cfg.MQTT.Topics.SensorData)
	if err != nil {
		return fmt.Errorf("sensor data topic: %w", err)
	}
	// #nosec G115 -- QoS validated to 0..2 by config
	if subErr := mqttClient.Subscribe(cfg.MQTT.Topics.SensorData, byte(cfg.MQTT.QoS), ingestor.HandleUpload(deviceFromTopic)); subErr != nil {
		return fmt.Errorf("subscribing to sensor data: %w", subErr)
	}
	log.Info("subscribed to sensor uploads", "filter", cfg.MQTT.Topics.SensorData)
	defer func() {
		if unsubErr := mqttClient.Unsubscribe(cfg.MQTT.Topics.SensorData); unsubErr != nil {
			log.Warn("error unsubscribing from sensor uploads", "error", unsubErr)
		}
	}()

	sweeper := reading.NewSweeper(store, time.Duration(cfg.Readings.SweepInterval)*time.Second, log)
	go sweeper.Run(ctx)
	go pruneTokens(ctx, authService, log)

	if startErr := apiServer.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	// Deferred closes run in reverse: API server, upload subscription, InfluxDB, MQTT, secrets, database.

	log.Info("Flora Core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses FLORA_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("FLORA_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// newSecretProvider builds the configured secret source behind a TTL cache.
func newSecretProvider(cfg config.SecretsConfig) *secrets.Cached {
	var provider secrets.Provider = secrets.NewEnvProvider()
	if cfg.Provider == config.SecretsProviderExtension {
		provider = secrets.NewExtensionProvider(cfg.ExtensionPort, cfg.SessionToken, nil)
	}
	return secrets.NewCached(provider, time.Duration(cfg.CacheTTL)*time.Second)
}

// connectInflux connects the optional InfluxDB mirror. It returns a nil
// client when the integration is disabled.
func connectInflux(cfg config.InfluxDBConfig, log *logging.Logger) (*influxdb.Client, error) {
	client, err := influxdb.Connect(cfg)
	if errors.Is(err, influxdb.ErrDisabled) {
		log.Info("InfluxDB disabled")
		return nil, nil //nolint:nilnil // disabled is not an error
	}
	if err != nil {
		return nil, fmt.Errorf("connecting to InfluxDB: %w", err)
	}

	client.SetOnError(func(err error) {
		log.Error("InfluxDB write error", "error", err)
	})
	log.Info("InfluxDB connected",
		"url", cfg.URL,
		"org", cfg.Org,
		"bucket", cfg.Bucket,
	)
	return client, nil
}

// pruneTokens deletes expired refresh tokens until ctx is cancelled.
func pruneTokens(ctx context.Context, svc *auth.Service, log *logging.Logger) {
	ticker := time.NewTicker(tokenPruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := svc.PruneExpiredTokens(ctx)
			if err != nil {
				log.Warn("pruning refresh tokens failed", "error", err)
				continue
			}
			if n > 0 {
				log.Debug("pruned expired refresh tokens", "count", n)
			}
		}
	}
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - mqttClient: MQTT client to check
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}
