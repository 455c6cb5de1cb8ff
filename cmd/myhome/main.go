// MyHOME Bridge
//
// This is the main entry point for the MyHOME bridge. It connects one
// BTicino/Legrand MyHOME gateway to:
//   - MQTT (device state, commands, bus events, gateway services, health)
//   - an HTTP/WebSocket API
//   - a SQLite bus journal and, optionally, InfluxDB state history
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/myhome-bridge/internal/api"
	"github.com/nerrad567/myhome-bridge/internal/audit"
	"github.com/nerrad567/myhome-bridge/internal/bridges/myhome"
	"github.com/nerrad567/myhome-bridge/internal/device"
	"github.com/nerrad567/myhome-bridge/internal/discovery"
	"github.com/nerrad567/myhome-bridge/internal/infrastructure/config"
	"github.com/nerrad567/myhome-bridge/internal/infrastructure/database"
	"github.com/nerrad567/myhome-bridge/internal/infrastructure/influxdb"
	"github.com/nerrad567/myhome-bridge/internal/infrastructure/logging"
	"github.com/nerrad567/myhome-bridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/myhome-bridge/migrations"
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

// ErrNoGateway is returned when discovery finds no usable gateway.
var ErrNoGateway = errors.New("no gateway found")

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
// Returns:
//   - error: nil on clean shutdown, or the failure that stopped the bridge
func run(ctx context.Context) error { //nolint:gocognit,gocyclo // linear startup sequence
	log := logging.Default()
	log.Info("starting MyHOME bridge",
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

	// Open database
	db, err := database.Open(ctx, database.FromConfig(cfg.Database))
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

	if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	applied, _, err := db.GetMigrationStatus(ctx, migrations.FS)
	if err != nil {
		return fmt.Errorf("reading migration status: %w", err)
	}
	schema := "none"
	if len(applied) > 0 {
		schema = applied[len(applied)-1].Version
	}
	log.Info("database migrations complete", "schema_version", schema)
	journalRepo := audit.NewSQLiteRepository(db.DB)

	// Resolve the gateway before anything is published under its MAC
	disc := discovery.New(discovery.Config{
		Timeout: time.Duration(cfg.Gateway.Discovery.Timeout) * time.Second,
		Port:    cfg.Gateway.Port,
	})
	disc.SetLogger(log.Component("discovery"))

	identity, err := resolveIdentity(ctx, cfg.Gateway, disc)
	if err != nil {
		return fmt.Errorf("resolving gateway: %w", err)
	}
	log.Info("gateway resolved",
		"host", identity.Host,
		"port", identity.Port,
		"mac", identity.MAC,
		"model", identity.Model,
	)

	// Connect to MQTT broker
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
	mqttClient.SetLogger(log.Component("mqtt"))
	mqttClient.SetAvailabilityHandler(func(up bool, err error) {
		if up {
			log.Info("MQTT reconnected")
			return
		}
		log.Warn("MQTT disconnected", "error", err)
	})
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	// Connect to InfluxDB (optional)
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

	journal := audit.NewJournal(journalRepo, identity.MAC)
	journal.SetLogger(log.Component("journal"))

	hub := api.NewHub(cfg.WebSocket, log.Component("api"))

	mqttBus := myhome.NewMQTTEventBus(mqttClient, identity.MAC, byte(cfg.MQTT.QoS))
	mqttBus.SetLogger(log.Component("events"))

	registry := myhome.NewRegistry()
	gateway, err := myhome.New(myhome.Config{
		Identity: identity,
		Registry: registry,
		Bus:      myhome.Buses{mqttBus, journal, hub.EventBus(identity.MAC)},
		Workers:  cfg.Gateway.Workers,
		QueueCap: cfg.Gateway.QueueCap,
		SendRate: cfg.Gateway.SendRate,
		Reconnect: myhome.Backoff{
			InitialDelay: time.Duration(cfg.Gateway.Reconnect.InitialDelay) * time.Second,
			MaxDelay:     time.Duration(cfg.Gateway.Reconnect.MaxDelay) * time.Second,
		},
		TestTimeout:    time.Duration(cfg.Gateway.TestTimeout) * time.Second,
		GenerateEvents: cfg.Gateway.GenerateEvents,
		Metrics:        myhome.NewMetrics(prometheus.DefaultRegisterer),
		Observer:       journal,
	})
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}
	gateway.SetLogger(log.Component("gateway"))

	// Device handlers
	devices, err := loadDevices(cfg.Gateway.DevicesFile, identity.MAC)
	if err != nil {
		return fmt.Errorf("loading devices: %w", err)
	}
	sinks := device.Sinks{
		Publisher: mqttClient,
		Recorder:  journal,
		OnState:   hub.PublishState,
	}
	if influxClient != nil {
		sinks.Metrics = influxClient
	}
	manager := device.NewManager(identity.MAC, gateway, registry, sinks)
	manager.SetLogger(log.Component("device"))
	if loadErr := manager.Load(devices); loadErr != nil {
		log.Warn("some devices could not be loaded", "error", loadErr)
	}

	// Health reporting
	healthCfg := myhome.HealthReporterConfig{
		Gateway:   gateway,
		Publisher: mqttClient,
		Version:   version,
		Interval:  time.Duration(cfg.Health.Interval) * time.Second,
	}
	if influxClient != nil {
		healthCfg.Telemetry = influxClient
	}
	health := myhome.NewHealthReporter(healthCfg)
	health.SetLogger(log.Component("health"))
	if pubErr := health.PublishStarting(); pubErr != nil {
		log.Warn("failed to publish starting status", "error", pubErr)
	}

	// Inbound MQTT
	qos := byte(cfg.MQTT.QoS)
	topics := mqtt.Topics{}
	commandTopic, serviceTopic := topics.AllCommands(identity.MAC), topics.AllServices(identity.MAC)
	if subErr := mqttClient.Subscribe(commandTopic, qos, manager.CommandHandler()); subErr != nil {
		return fmt.Errorf("subscribing to commands: %w", subErr)
	}
	if subErr := mqttClient.Subscribe(serviceTopic, qos, gateway.ServiceHandler()); subErr != nil {
		return fmt.Errorf("subscribing to services: %w", subErr)
	}
	// Inbound routes go first on shutdown.
	defer func() {
		for _, topic := range []string{commandTopic, serviceTopic} {
			if unsubErr := mqttClient.Unsubscribe(topic); unsubErr != nil {
				log.Warn("failed to unsubscribe", "topic", topic, "error", unsubErr)
			}
		}
	}()

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	// Start the gateway run
	if err := gateway.StartListening(ctx); err != nil {
		return fmt.Errorf("starting gateway listener: %w", err)
	}
	manager.RefreshAll()
	defer health.Stop()

	// HTTP API
	var srv *api.Server
	if cfg.API.Enabled {
		var apiErr error
		srv, apiErr = api.New(api.Deps{
			Config:    cfg.API,
			WS:        cfg.WebSocket,
			Logger:    log.Component("api"),
			Gateway:   gateway,
			Devices:   manager,
			Journal:   journalRepo,
			Discovery: disc,
			Health:    health,
			Gatherer:  prometheus.DefaultGatherer,
			Hub:       hub,
			Version:   version,
		})
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if startErr := srv.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			if closeErr := srv.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
		log.Info("API server started", "address", srv.Addr())
	} else {
		log.Info("API server disabled")
	}

	log.Info("initialisation complete, waiting for shutdown signal")

	// A failing member cancels the others.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return superviseGateway(gctx, gateway)
	})
	g.Go(func() error {
		return health.Run(gctx)
	})
	if srv != nil {
		g.Go(func() error {
			return srv.Serve(gctx)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	log.Info("MyHOME bridge stopped")
	return nil
}

// superviseGateway blocks until ctx is cancelled or the gateway run stops
// on its own. The only self-inflicted stop is an authentication failure,
// which is returned.
func superviseGateway(ctx context.Context, gateway *myhome.Gateway) error {
	select {
	case <-ctx.Done():
		gateway.CloseListener()
		gateway.Wait()
		return nil
	case <-gateway.Done():
		if err := gateway.AuthError(); err != nil {
			return fmt.Errorf("gateway stopped: %w", err)
		}
		return nil
	}
}

// Discoverer finds gateways on the local network.
type Discoverer interface {
	Discover(ctx context.Context) ([]myhome.Identity, error)
}

// resolveIdentity builds the gateway identity from configuration. When no
// host is configured the gateway is discovered over SSDP; a configured MAC
// then selects among several gateways.
func resolveIdentity(ctx context.Context, cfg config.GatewayConfig, disc Discoverer) (myhome.Identity, error) {
	identity := myhome.Identity{
		Host:         cfg.Host,
		Port:         cfg.Port,
		Password:     cfg.Password,
		Name:         cfg.Name,
		Model:        cfg.Model,
		Firmware:     cfg.Firmware,
		Manufacturer: cfg.Manufacturer,
	}
	if cfg.MAC != "" {
		mac, err := device.NormalizeMAC(cfg.MAC)
		if err != nil {
			return myhome.Identity{}, fmt.Errorf("gateway.mac: %w", err)
		}
		identity.MAC = mac
	}

	if identity.Host != "" {
		if identity.MAC == "" {
			return myhome.Identity{}, errors.New("gateway.mac is required when gateway.host is set")
		}
		return identity, nil
	}

	found, err := disc.Discover(ctx)
	if err != nil {
		return myhome.Identity{}, fmt.Errorf("discovering gateway: %w", err)
	}
	for _, candidate := range found {
		if identity.MAC != "" && candidate.MAC != identity.MAC {
			continue
		}
		candidate.Password = identity.Password
		if identity.Name != "" {
			candidate.Name = identity.Name
		}
		return candidate, nil
	}
	if identity.MAC != "" {
		return myhome.Identity{}, fmt.Errorf("%w: %s not among %d discovered", ErrNoGateway, identity.MAC, len(found))
	}
	return myhome.Identity{}, ErrNoGateway
}

// loadDevices reads the device file and returns the entries for mac. A
// missing file means no devices.
func loadDevices(path, mac string) ([]device.Config, error) {
	file, err := device.LoadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return file.Devices(mac), nil
}

// getConfigPath returns the configuration file path.
// Uses MYHOME_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("MYHOME_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
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
