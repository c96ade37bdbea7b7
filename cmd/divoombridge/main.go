// Divoom Bridge - Bluetooth pixel display bridge
//
// This is the long-running service. It owns one Bluetooth session to a
// Divoom display and exposes it over:
//   - MQTT (commands in, acknowledgements, retained state and health out)
//   - an HTTP API (state, commands, history, Prometheus metrics)
//
// State changes are recorded in SQLite and, optionally, InfluxDB.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/nerrad567/divoom-bridge/migrations"

	"github.com/nerrad567/divoom-bridge/internal/api"
	"github.com/nerrad567/divoom-bridge/internal/bridge"
	"github.com/nerrad567/divoom-bridge/internal/device"
	"github.com/nerrad567/divoom-bridge/internal/divoom"
	"github.com/nerrad567/divoom-bridge/internal/history"
	"github.com/nerrad567/divoom-bridge/internal/infrastructure/config"
	"github.com/nerrad567/divoom-bridge/internal/infrastructure/database"
	"github.com/nerrad567/divoom-bridge/internal/infrastructure/influxdb"
	"github.com/nerrad567/divoom-bridge/internal/infrastructure/logging"
	"github.com/nerrad567/divoom-bridge/internal/infrastructure/metrics"
	"github.com/nerrad567/divoom-bridge/internal/infrastructure/mqtt"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting Divoom bridge",
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

	db, err := database.Open(cfg.Database)
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

	topics := mqtt.NewTopics(cfg.Bridge.TopicPrefix)
	mqttClient, err := mqtt.Connect(cfg.MQTT, topics)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetLogger(log.Component("mqtt"))
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

	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(ctx, cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	recorder := metrics.New()
	historyRepo := history.NewRepository(db.DB)

	// The session reports changes to the bridge, and the bridge drives the
	// session, so the callback is bound after both exist.
	var b *bridge.Bridge
	sess, err := device.Open(cfg.Device, device.Hooks{
		Logger:   log.Component("session"),
		Recorder: recorder,
		OnChange: func(s divoom.State) {
			if b != nil {
				b.HandleStateChange(s)
			}
		},
	})
	if err != nil {
		return fmt.Errorf("creating device session: %w", err)
	}
	log.Info("device session created",
		"device_id", cfg.Device.ID,
		"address", cfg.Device.Address,
		"transport", cfg.Device.Transport,
	)

	opts := bridge.Options{
		DeviceID: cfg.Device.ID,
		Version:  version,
		Config:   cfg.Bridge,
		Topics:   topics,
		MQTT:     mqttClient,
		Device:   sess,
		History:  historyRepo,
		Metrics:  recorder,
		Logger:   log.Component("bridge"),
	}
	if influxClient != nil {
		opts.Telemetry = influxClient
	}
	b, err = bridge.New(opts)
	if err != nil {
		return fmt.Errorf("creating bridge: %w", err)
	}
	if err := b.Start(ctx); err != nil {
		return fmt.Errorf("starting bridge: %w", err)
	}
	defer func() {
		log.Info("stopping bridge")
		b.Stop()
	}()

	if cfg.API.Enabled {
		srv, err := api.New(api.Deps{
			Config:  cfg.API,
			Logger:  log.Component("api"),
			Bridge:  b,
			Device:  sess,
			History: historyRepo,
			DB:      db,
			MQTT:    mqttClient,
			Metrics: recorder.Handler(),
			Version: version,
		})
		if err != nil {
			return fmt.Errorf("creating API server: %w", err)
		}
		if err := srv.Start(ctx); err != nil {
			return fmt.Errorf("starting API server: %w", err)
		}
		defer func() {
			if closeErr := srv.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	} else {
		log.Info("API disabled")
	}

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse order: API, bridge (disconnects the
	// device), InfluxDB, MQTT, database.
	log.Info("Divoom bridge stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses DIVOOM_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("DIVOOM_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthChecker is implemented by every infrastructure client.
type healthChecker interface {
	HealthCheck(ctx context.Context) error
}

// healthCheck verifies all infrastructure connections are healthy.
// influxClient may be nil when InfluxDB is disabled.
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db, mqttClient healthChecker, influxClient *influxdb.Client) error {
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

	// The Bluetooth link is not checked here: the display may be off, and
	// the session connects on demand.
	return nil
}
