// Observatory Core - control actor for the observatory.
//
// This is the main entry point for the Observatory Core daemon. It owns
// the macro engine (goto-field, expose, dome-flat sequences), the
// two-spectrograph exposure reconciliation, the auto-pilot observing loop
// and the overhead recorder, and speaks MQTT to the instrument subsystems
// and to operators.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/calderwood-obs/observatory-core/migrations"

	"github.com/calderwood-obs/observatory-core/internal/autopilot"
	"github.com/calderwood-obs/observatory-core/internal/control"
	"github.com/calderwood-obs/observatory-core/internal/device"
	"github.com/calderwood-obs/observatory-core/internal/infrastructure/config"
	"github.com/calderwood-obs/observatory-core/internal/infrastructure/database"
	"github.com/calderwood-obs/observatory-core/internal/infrastructure/influxdb"
	"github.com/calderwood-obs/observatory-core/internal/infrastructure/logging"
	"github.com/calderwood-obs/observatory-core/internal/infrastructure/mqtt"
	"github.com/calderwood-obs/observatory-core/internal/macro"
	"github.com/calderwood-obs/observatory-core/internal/observing"
	"github.com/calderwood-obs/observatory-core/internal/overhead"
	"github.com/calderwood-obs/observatory-core/internal/telemetry"
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

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
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
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Observatory Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
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
	log.Info("database connected", "path", cfg.Database.Path)

	// Run migrations
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

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
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
	} else {
		log.Info("InfluxDB disabled")
	}

	qos := byte(cfg.MQTT.QoS)

	// Device command bus over MQTT
	bus := device.NewBus(mqttClient, cfg.DeviceTimeout, qos, log)
	if err := bus.Start(); err != nil {
		return fmt.Errorf("starting device bus: %w", err)
	}
	log.Info("device bus started")

	// Macro engine, graphs and registry
	engine := macro.NewEngine(cfg.StageTimeout(), log)
	graphs := observing.NewGraphs(bus, cfg)
	registry := macro.NewRegistry(engine, log)
	for name, factory := range map[string]macro.GraphFactory{
		observing.MacroGotoField: graphs.GotoField(),
		observing.MacroExpose:    graphs.Expose(),
		observing.MacroDomeFlat:  graphs.DomeFlat(),
	} {
		if err := registry.Register(name, factory); err != nil {
			return fmt.Errorf("registering macro %s: %w", name, err)
		}
	}
	log.Info("macros registered", "names", registry.Names())

	// Overhead recorder
	recorder := overhead.NewRecorder(overhead.NewSQLiteStore(db.DB), log)
	engine.AddObserver(recorder)

	// Telemetry reporter (keyword stream + optional InfluxDB mirror)
	var durations telemetry.DurationWriter
	if influxClient != nil {
		durations = influxClient
	}
	reporter := telemetry.NewReporter(mqttClient, durations, graphs, qos, log)
	engine.AddObserver(reporter)
	go reporter.Run(ctx)

	// Auto-pilot and operator control surface
	queue := autopilot.NewMemoryQueue()
	pilot := autopilot.NewPilot(cfg, queue, registry, graphs, reporter, log)
	controller := control.NewController(ctx, mqttClient, registry, pilot, queue, reporter, qos, log)
	if err := controller.Start(); err != nil {
		return fmt.Errorf("starting control surface: %w", err)
	}
	log.Info("control surface subscribed")

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// A running pilot loop is cancelled with the in-flight macro; the
	// macro's cleanup tier still runs via its detached context.
	if pilot.Running() {
		if stopErr := pilot.Stop(macro.CancelImmediate); stopErr != nil {
			log.Warn("stopping auto-pilot", "error", stopErr)
		}
	}

	log.Info("Observatory Core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses OBSCORE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("OBSCORE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
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
