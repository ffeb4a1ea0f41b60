// eqivad - Eqiva BLE thermostat daemon
//
// eqivad owns the Bluetooth adapter and exposes the thermostat fleet over:
//   - MQTT (commands on eqiva/command/{target}, retained state, health)
//   - HTTP (HomeKit-compatible routes, /api/v1, WebSocket, /metrics)
//
// A poller refreshes the state of every known thermostat periodically.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/nerrad567/eqiva-core/migrations"

	"github.com/nerrad567/eqiva-core/internal/alias"
	"github.com/nerrad567/eqiva-core/internal/api"
	"github.com/nerrad567/eqiva-core/internal/bridges/eqiva"
	"github.com/nerrad567/eqiva-core/internal/infrastructure/ble"
	"github.com/nerrad567/eqiva-core/internal/infrastructure/config"
	"github.com/nerrad567/eqiva-core/internal/infrastructure/database"
	"github.com/nerrad567/eqiva-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/eqiva-core/internal/infrastructure/logging"
	"github.com/nerrad567/eqiva-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/eqiva-core/internal/thermostat"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const healthCheckTimeout = 5 * time.Second

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the daemon, separated from main for testability.
//
// Parameters:
//   - ctx: Cancelled on SIGINT or SIGTERM
//
// Returns:
//   - error: nil on clean shutdown, or error describing the startup failure
func run(ctx context.Context) error { //nolint:gocognit,gocyclo,funlen // sequential startup wiring
	log := logging.Default()
	log.Info("starting eqivad",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := config.Path()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded", "path", configPath, "level", cfg.Logging.Level)

	// Database
	db, err := database.Open(database.Config{
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

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database ready", "path", cfg.Database.Path)

	// Thermostat registry, seeded from the alias file
	registry := thermostat.NewRegistry(thermostat.NewSQLiteRepository(db.DB))
	registry.SetLogger(log.Component("registry"))
	if refreshErr := registry.RefreshCache(ctx); refreshErr != nil {
		return fmt.Errorf("loading thermostat registry: %w", refreshErr)
	}

	aliases, err := loadAliases(ctx, cfg.Eqiva.AliasFile, registry)
	if err != nil {
		return err
	}
	log.Info("thermostat registry loaded",
		"thermostats", len(registry.List(ctx)),
		"aliases", len(aliases.Entries()),
	)

	commandLog := thermostat.NewCommandLog(db.DB)
	recorders := []eqiva.StateRecorder{registry}
	loggers := eqiva.CommandLoggers{commandLog}

	// InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to influxdb: %w", err)
		}
		defer func() {
			log.Info("closing influxdb")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing influxdb", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(writeErr error) {
			log.Warn("influxdb write failed", "error", writeErr)
		})
		recorders = append(recorders, influxClient)
		loggers = append(loggers, influxClient)
		log.Info("influxdb connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	}

	// Bluetooth
	adapter, err := ble.Open(log.Component("ble"))
	if err != nil {
		return fmt.Errorf("opening bluetooth adapter: %w", err)
	}
	log.Info("bluetooth adapter enabled")

	runner := eqiva.NewRunner(eqiva.RunnerOptions{
		Radio:             adapter,
		ScanTimeout:       cfg.Eqiva.ScanTimeoutDuration(),
		SettleDelay:       cfg.Eqiva.SettleDelayDuration(),
		DisconnectTimeout: cfg.Eqiva.DisconnectTimeoutDuration(),
		Logger:            log.Component("runner"),
	})
	controller, err := eqiva.NewController(eqiva.ControllerOptions{
		Runner:         runner,
		Resolver:       aliases,
		Recorders:      recorders,
		CommandLog:     loggers,
		CommandTimeout: cfg.Eqiva.CommandTimeoutDuration(),
		Logger:         log.Component("controller"),
	})
	if err != nil {
		return fmt.Errorf("creating controller: %w", err)
	}

	// MQTT bridge (optional)
	var broker api.BrokerStatus
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = connectMQTT(cfg, log)
		if err != nil {
			return err
		}
		defer func() {
			log.Info("closing mqtt connection")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing mqtt", "error", closeErr)
			}
		}()
		broker = mqttClient

		bridge, bridgeErr := startBridge(ctx, cfg, mqttClient, controller, log)
		if bridgeErr != nil {
			return bridgeErr
		}
		defer func() {
			log.Info("stopping mqtt bridge")
			bridge.Stop()
		}()
	}

	// Poller
	if cfg.Eqiva.PollInterval > 0 {
		poller, pollerErr := eqiva.NewPoller(eqiva.PollerOptions{
			Controller: controller,
			Sources: []eqiva.AddressSource{
				registry,
				eqiva.StaticAddresses(cfg.Eqiva.Devices),
				eqiva.StaticAddresses(aliases.Addresses()),
			},
			Interval: cfg.Eqiva.PollIntervalDuration(),
			Logger:   log.Component("poller"),
		})
		if pollerErr != nil {
			return fmt.Errorf("creating poller: %w", pollerErr)
		}
		poller.Start(ctx)
		defer func() {
			log.Info("stopping poller")
			poller.Stop()
		}()
		log.Info("poller started", "interval", cfg.Eqiva.PollIntervalDuration())
	}

	// HTTP API
	apiServer, err := api.New(api.Deps{
		Config:   cfg.API,
		WS:       cfg.WebSocket,
		Security: cfg.Security,
		Limits: api.TemperatureLimits{
			Min: cfg.Eqiva.MinTemperature,
			Max: cfg.Eqiva.MaxTemperature,
		},
		Logger:     log.Component("api"),
		Registry:   registry,
		Controller: controller,
		CommandLog: commandLog,
		MQTT:       broker,
		Version:    version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := apiServer.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		log.Info("stopping API server")
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error stopping API server", "error", closeErr)
		}
	}()
	log.Info("API server started",
		"address", fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port),
		"auth", cfg.AuthEnabled(),
	)

	if healthErr := healthCheck(ctx, db, mqttClient, influxClient); healthErr != nil {
		log.Warn("initial health check failed", "error", healthErr)
	}

	log.Info("eqivad started, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, stopping services")

	return nil
}

// loadAliases reads the alias file and registers every entry. An empty path
// means ~/.known_eqivas.
func loadAliases(ctx context.Context, path string, registry *thermostat.Registry) (*alias.File, error) {
	if path == "" {
		var err error
		if path, err = alias.DefaultPath(); err != nil {
			return nil, err
		}
	}
	aliases, err := alias.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading aliases: %w", err)
	}
	for _, e := range aliases.Entries() {
		if _, err := registry.Register(ctx, e.Address, e.Alias); err != nil {
			return nil, fmt.Errorf("registering %s: %w", e.Address, err)
		}
	}
	return aliases, nil
}

// connectMQTT connects with the bridge's offline message as Last Will.
func connectMQTT(cfg *config.Config, log *logging.Logger) (*mqtt.Client, error) {
	lwt, err := json.Marshal(eqiva.NewLWTMessage(cfg.Eqiva.BridgeID))
	if err != nil {
		return nil, fmt.Errorf("encoding last will: %w", err)
	}

	client, err := mqtt.Connect(cfg.MQTT, &mqtt.Will{
		Topic:    eqiva.HealthTopic(),
		Payload:  lwt,
		QoS:      cfg.MQTT.QoSLevel(),
		Retained: true,
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to mqtt: %w", err)
	}
	client.SetLogger(log.Component("mqtt"))
	client.SetOnDisconnect(func(connErr error) {
		log.Warn("mqtt connection lost", "error", connErr)
	})
	client.SetOnConnect(func() {
		log.Info("mqtt connected")
	})
	log.Info("mqtt connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
	)
	return client, nil
}

// startBridge creates and starts the MQTT bridge.
func startBridge(ctx context.Context, cfg *config.Config, client *mqtt.Client, controller *eqiva.Controller, log *logging.Logger) (*eqiva.Bridge, error) {
	bridge, err := eqiva.NewBridge(eqiva.BridgeOptions{
		ID:             cfg.Eqiva.BridgeID,
		Version:        version,
		HealthInterval: cfg.Eqiva.HealthIntervalDuration(),
		MQTTClient:     &mqttBridgeAdapter{client: client, qos: cfg.MQTT.QoSLevel()},
		Controller:     controller,
		Logger:         log.Component("bridge"),
	})
	if err != nil {
		return nil, fmt.Errorf("creating mqtt bridge: %w", err)
	}
	if err := bridge.Start(ctx); err != nil {
		return nil, fmt.Errorf("starting mqtt bridge: %w", err)
	}
	log.Info("mqtt bridge started", "bridge_id", cfg.Eqiva.BridgeID)
	return bridge, nil
}

// healthCheck verifies the connected services respond.
//
// Parameters:
//   - ctx: Parent context
//   - db: Database (required)
//   - mqttClient: MQTT client (nil when MQTT is disabled)
//   - influxClient: InfluxDB client (nil when disabled)
//
// Returns:
//   - error: The first failing check
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	return nil
}

// mqttBridgeAdapter adapts the infrastructure MQTT client to
// eqiva.MQTTClient. The bridge's handlers do not return errors, and every
// publish and subscription uses mqtt.qos from config.yaml.
type mqttBridgeAdapter struct {
	client *mqtt.Client
	qos    byte
}

// Publish implements eqiva.MQTTClient.
func (a *mqttBridgeAdapter) Publish(topic string, payload []byte, _ byte, retained bool) error {
	return a.client.Publish(topic, payload, a.qos, retained)
}

// Subscribe implements eqiva.MQTTClient.
func (a *mqttBridgeAdapter) Subscribe(topic string, _ byte, handler func(topic string, payload []byte)) error {
	return a.client.Subscribe(topic, a.qos, func(t string, p []byte) error {
		handler(t, p)
		return nil
	})
}

// Unsubscribe implements eqiva.MQTTClient.
func (a *mqttBridgeAdapter) Unsubscribe(topic string) error {
	return a.client.Unsubscribe(topic)
}

// IsConnected implements eqiva.MQTTClient.
func (a *mqttBridgeAdapter) IsConnected() bool {
	return a.client.IsConnected()
}
