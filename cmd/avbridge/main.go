// AV Bridge - scenario orchestration core
//
// This is the main entry point for the AV Bridge orchestrator. It loads the
// device, room and scenario definitions, connects to the MQTT bus the
// protocol bridges listen on, and drives scenario transitions requested on
// the scenario request topic.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	_ "github.com/nerrad567/avbridge/migrations"

	"github.com/nerrad567/avbridge/internal/condition"
	"github.com/nerrad567/avbridge/internal/device"
	"github.com/nerrad567/avbridge/internal/infrastructure/config"
	"github.com/nerrad567/avbridge/internal/infrastructure/database"
	"github.com/nerrad567/avbridge/internal/infrastructure/influxdb"
	"github.com/nerrad567/avbridge/internal/infrastructure/logging"
	"github.com/nerrad567/avbridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/avbridge/internal/location"
	"github.com/nerrad567/avbridge/internal/scenario"
	"github.com/nerrad567/avbridge/internal/statestore"
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

// errInvalidScenarios is returned by check when any scenario fails validation.
var errInvalidScenarios = errors.New("scenario validation failed")

type options struct {
	configPath  string
	check       bool
	showVersion bool
}

func main() {
	opts, err := parseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		os.Exit(2)
	}

	if opts.showVersion {
		fmt.Printf("avbridge %s (commit %s, built %s)\n", version, commit, date)
		return
	}

	if opts.check {
		if err := check(opts.configPath, os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// Cancel on Ctrl+C or SIGTERM for graceful shutdown.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, opts.configPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		cancel()
		os.Exit(1) //nolint:gocritic // cancel called explicitly above
	}
}

// parseFlags reads the command line. The config path falls back to
// AVBRIDGE_CONFIG, then defaultConfigPath.
func parseFlags(args []string, stderr io.Writer) (options, error) {
	var opts options
	fs := pflag.NewFlagSet("avbridge", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVarP(&opts.configPath, "config", "c", getConfigPath(), "path to the configuration file")
	fs.BoolVar(&opts.check, "check", false, "load and validate all definitions, print every error and exit")
	fs.BoolVarP(&opts.showVersion, "version", "v", false, "print version information and exit")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	return opts, nil
}

func getConfigPath() string {
	if path := os.Getenv("AVBRIDGE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// definitions is the declarative half of the system.
type definitions struct {
	devices   *device.Registry
	rooms     *location.Registry
	scenarios *scenario.Registry
}

// newConditionEvaluator creates the step condition evaluator, logging
// fail-closed diagnostics under the condition component.
func newConditionEvaluator(log *logging.Logger) *condition.Evaluator {
	conditions := condition.NewEvaluator()
	conditions.SetLogger(log.Component("condition"))
	return conditions
}

// loadDefinitions builds the device, room and scenario registries. The
// device registry sends commands through transport; nil is fine when no
// command will be sent.
func loadDefinitions(ctx context.Context, cfg *config.Config, transport device.Transport, log *logging.Logger) (*definitions, error) {
	deviceDefs, err := device.LoadDefinitions(cfg.Definitions.DevicesFile)
	if err != nil {
		return nil, fmt.Errorf("loading devices: %w", err)
	}
	devices := device.NewRegistry(transport, cfg.Orchestrator.CommandTimeout)
	devices.SetLogger(log.Component("device"))
	if err := devices.Load(deviceDefs); err != nil {
		return nil, fmt.Errorf("loading device registry: %w", err)
	}
	log.Info("device registry initialised", "devices", devices.Count())

	defs := &definitions{devices: devices}

	// Rooms are optional; a nil room lookup skips room checks.
	var roomLookup scenario.RoomLookup
	if cfg.Definitions.RoomsFile != "" {
		rooms, err := location.LoadRooms(cfg.Definitions.RoomsFile)
		if err != nil {
			return nil, fmt.Errorf("loading rooms: %w", err)
		}
		defs.rooms = location.NewRegistry()
		if err := defs.rooms.Load(rooms, devices); err != nil {
			return nil, fmt.Errorf("loading room registry: %w", err)
		}
		roomLookup = defs.rooms
		log.Info("room registry initialised", "rooms", defs.rooms.Count())
	}

	defs.scenarios = scenario.NewRegistry(scenario.NewLoader(cfg.Definitions.ScenariosDir), devices, roomLookup)
	defs.scenarios.SetLogger(log.Component("scenario"))
	if err := defs.scenarios.Load(ctx); err != nil {
		return nil, fmt.Errorf("scenario registry: %w", err)
	}
	log.Info("scenario registry initialised", "scenarios", defs.scenarios.Count())

	return defs, nil
}

// check validates every definition without connecting to anything and
// writes a report to out.
func check(configPath string, out io.Writer) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Only errors matter here; keep the report readable.
	cfg.Logging.Level = "error"
	log := logging.NewWithWriter(cfg.Logging, version, io.Discard)

	defs, err := loadDefinitions(context.Background(), cfg, nil, log)
	if err != nil {
		return err
	}

	all := defs.scenarios.List()
	invalid := 0
	for _, def := range all {
		errs := defs.scenarios.Validation(def.ID)
		if len(errs) == 0 {
			fmt.Fprintf(out, "ok      %s (%s)\n", def.ID, def.Source)
			continue
		}
		invalid++
		fmt.Fprintf(out, "INVALID %s (%s)\n", def.ID, def.Source)
		for _, e := range errs {
			fmt.Fprintf(out, "        - %s\n", e.Error())
		}
	}
	fmt.Fprintf(out, "%d devices, %d scenarios, %d invalid\n", defs.devices.Count(), len(all), invalid)

	if invalid > 0 {
		return fmt.Errorf("%w: %d of %d scenarios", errInvalidScenarios, invalid, len(all))
	}
	return nil
}

// run is the actual application logic, separated from main for testability.
// It returns nil on clean shutdown.
func run(ctx context.Context, configPath string) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting AV Bridge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

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

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

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
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", mqttClient.ClientID(),
	)

	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

	topics := mqttClient.Topics()
	defs, err := loadDefinitions(ctx, cfg, device.NewMQTTTransport(mqttClient, topics), log)
	if err != nil {
		return err
	}
	defs.devices.SetTopics(topics)

	// #nosec G115 -- qos validated to 0..2 by config
	qos := byte(cfg.MQTT.QoS)
	if subErr := mqttClient.Subscribe(topics.AllDeviceStates(), qos, defs.devices.HandleStateMessage); subErr != nil {
		return fmt.Errorf("subscribing to device state: %w", subErr)
	}

	store, err := statestore.New(ctx, cfg.State, cfg.Valkey, db)
	if err != nil {
		return fmt.Errorf("opening state store: %w", err)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			log.Error("error closing state store", "error", closeErr)
		}
	}()
	log.Info("state store ready", "backend", cfg.State.Backend)

	var influxClient *influxdb.Client
	var recorder scenario.Recorder
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
		recorder = scenario.NewInfluxRecorder(influxClient)
	} else {
		log.Info("InfluxDB disabled")
	}

	broadcaster := scenario.NewMQTTBroadcaster(mqttClient, topics)
	broadcaster.SetLogger(log.Component("events"))

	manager, err := scenario.NewManager(scenario.ManagerDeps{
		Scenarios:   defs.scenarios,
		Devices:     defs.devices,
		Roles:       defs.devices,
		Conditions:  newConditionEvaluator(log),
		Store:       store,
		History:     scenario.NewSQLiteHistory(db),
		Broadcaster: broadcaster,
		Recorder:    recorder,
		Logger:      log.Component("manager"),
	}, scenario.Options{
		RejectWhenBusy: cfg.Orchestrator.RejectWhenBusy,
	})
	if err != nil {
		return fmt.Errorf("creating scenario manager: %w", err)
	}

	if cfg.Orchestrator.RestoreOnStartup {
		if restoreErr := manager.Restore(ctx); restoreErr != nil {
			log.Warn("restoring last scenario failed", "error", restoreErr)
		} else {
			log.Info("last scenario restored", "scenario_id", manager.Active())
		}
	}

	controller := scenario.NewController(ctx, manager, cfg.Orchestrator.DefaultGraceful)
	controller.SetLogger(log.Component("control"))
	if subErr := mqttClient.Subscribe(topics.CoreScenarioRequest(), qos, controller.HandleMessage); subErr != nil {
		return fmt.Errorf("subscribing to scenario requests: %w", subErr)
	}
	defer controller.Close()

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal",
		"request_topic", topics.CoreScenarioRequest(),
	)

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	if unsubErr := mqttClient.Unsubscribe(topics.CoreScenarioRequest()); unsubErr != nil {
		log.Warn("unsubscribing from scenario requests", "error", unsubErr)
	}

	log.Info("AV Bridge stopped")
	return nil
}

// healthCheck verifies all infrastructure is responsive.
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
