package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	_ "github.com/mofcat/labmill-core/migrations"

	"github.com/mofcat/labmill-core/internal/executor"
	"github.com/mofcat/labmill-core/internal/gantry"
	"github.com/mofcat/labmill-core/internal/geometry"
	"github.com/mofcat/labmill-core/internal/infrastructure/config"
	"github.com/mofcat/labmill-core/internal/infrastructure/database"
	"github.com/mofcat/labmill-core/internal/infrastructure/influxdb"
	"github.com/mofcat/labmill-core/internal/infrastructure/logging"
	"github.com/mofcat/labmill-core/internal/infrastructure/mqtt"
	"github.com/mofcat/labmill-core/internal/instruments"
	"github.com/mofcat/labmill-core/internal/machine"
	"github.com/mofcat/labmill-core/internal/protocol"
	"github.com/mofcat/labmill-core/internal/runstore"
	"github.com/mofcat/labmill-core/internal/telemetry"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Validate the setup, then execute the protocol",
	Long: `Runs the full validation gate, connects to the gantry controller and
instruments, executes the compiled protocol, and records the run with
its step results and volume ledger in the run store. Progress is
published over MQTT while the run is in flight.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		paths := pathsFromFlags(cmd)
		plannerKind, _ := cmd.Flags().GetString("planner")
		configPath, _ := cmd.Flags().GetString("config")
		simulate, _ := cmd.Flags().GetBool("simulate")

		return runProtocol(ctx, paths, plannerKind, configPath, simulate)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().String("config", "", "Service config path (default "+defaultConfigPath+", or LABMILL_CONFIG)")
	runCmd.Flags().Bool("simulate", false, "Run against the built-in controller simulator")
}

func runProtocol(ctx context.Context, paths docPaths, plannerKind, configPath string, simulate bool) error {
	log := logging.Default()
	log.Info("starting labmill run",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load service configuration
	if configPath == "" {
		configPath = getConfigPath()
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded", "path", configPath)

	if simulate {
		cfg.Gantry.Simulate = true
	}

	// Validation gate: a setup that fails validation never moves hardware
	s, _, err := runValidation(paths, plannerKind)
	if err != nil {
		return err
	}

	// Service config overrides the machine document's connection
	// settings when set, so one machine file can serve several rigs.
	mcfg := s.machine
	if cfg.Gantry.Address != "" {
		mcfg.Address = cfg.Gantry.Address
	}
	if cfg.Gantry.CommandTimeout > 0 {
		mcfg.CommandTimeout = cfg.GetCommandTimeout()
	}

	// Open database and run migrations
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	repo := runstore.NewSQLiteRepository(db.DB)
	log.Info("run store ready", "path", cfg.Database.Path)

	// Connect to MQTT. The bus is telemetry only, so an unreachable
	// broker degrades to a silent run rather than blocking it.
	var mqttClient *mqtt.Client
	if mc, mqttErr := mqtt.Connect(cfg.MQTT); mqttErr != nil {
		log.Warn("MQTT unavailable, run telemetry disabled", "error", mqttErr)
	} else {
		mqttClient = mc
		mqttClient.SetLogger(log)
		defer func() {
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
	}

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	}

	// Run telemetry: either sink alone is enough to carry it, so the
	// observer is built whenever MQTT or InfluxDB came up.
	var obs *telemetry.Observer
	if mqttClient != nil || influxClient != nil {
		obs = telemetry.NewObserver(publisherFor(mqttClient), metricsFor(influxClient), byte(cfg.MQTT.QoS))
		obs.SetLogger(log)
	}

	// Connect and home the gantry
	driver := gantry.NewDriver(mcfg)
	driver.SetLogger(log)
	var sim *gantry.Simulator
	if cfg.Gantry.Simulate {
		sim = gantry.NewSimulator()
		driver.SetDialer(sim.Dial)
		log.Info("gantry simulation enabled")
	}
	if err := driver.Connect(ctx); err != nil {
		return fmt.Errorf("connecting to gantry: %w", err)
	}
	defer func() {
		if discErr := driver.Disconnect(); discErr != nil {
			log.Error("error disconnecting gantry", "error", discErr)
		}
		if obs != nil {
			obs.GantryState(string(driver.State()))
		}
	}()
	if err := driver.Home(ctx); err != nil {
		return fmt.Errorf("homing gantry: %w", err)
	}
	log.Info("gantry homed", "address", mcfg.Address)
	if obs != nil {
		obs.GantryState(string(driver.State()))
	}

	// The validation gate dry-compiles from the machine origin; the
	// executed plan starts from wherever homing actually left the
	// gantry.
	start, err := driver.CurrentCoordinates()
	if err != nil {
		return fmt.Errorf("reading gantry position after homing: %w", err)
	}
	steps, err := compileForRun(s, mcfg, plannerKind, start)
	if err != nil {
		return fmt.Errorf("compiling protocol from %s: %w", start, err)
	}

	// Bring up the instrument set
	set, err := instruments.NewSimulatedSet(s.board)
	if err != nil {
		return fmt.Errorf("building instrument set: %w", err)
	}
	if err := set.ConnectAll(ctx); err != nil {
		return fmt.Errorf("connecting instruments: %w", err)
	}
	defer func() {
		if discErr := set.DisconnectAll(); discErr != nil {
			log.Error("error disconnecting instruments", "error", discErr)
		}
	}()
	if obs != nil {
		for _, name := range set.Names() {
			inst, getErr := set.Get(name)
			if getErr != nil {
				continue
			}
			obs.InstrumentHealth(name, inst.HealthCheck(ctx))
		}
	}

	// Execute
	runID := uuid.NewString()
	run := runstore.Run{ID: runID, Protocol: s.protocol.Name, Started: time.Now().UTC()}
	if err := repo.CreateRun(ctx, &run); err != nil {
		return fmt.Errorf("creating run record: %w", err)
	}

	exec := executor.New(driver, set)
	exec.SetLogger(log)
	if obs != nil {
		exec.SetObserver(obs)
	}

	fmt.Printf("run %s: %d step(s)\n", runID, len(steps))
	result := exec.Run(ctx, runID, steps)

	if saveErr := repo.SaveResult(ctx, steps, result); saveErr != nil {
		log.Error("saving run result", "run_id", runID, "error", saveErr)
	}

	elapsed := result.Finished.Sub(result.Started).Round(time.Millisecond)
	if result.Err != nil {
		red.Printf("run %s failed after %d step(s) in %s: %v\n",
			runID, len(result.Results), elapsed, result.Err)
		return fmt.Errorf("run %s: %w", runID, result.Err)
	}
	green.Printf("run %s completed: %d step(s) in %s\n", runID, len(result.Results), elapsed)
	return nil
}

// compileForRun compiles the executable step list from the gantry's
// actual position. The validation gate compiles the same documents
// from the machine origin, which only matches the executed plan when
// homing parks the gantry exactly there.
func compileForRun(s *setup, mcfg machine.Config, plannerKind string, start geometry.Point3D) ([]protocol.Step, error) {
	policy, err := plannerPolicy(plannerKind)
	if err != nil {
		return nil, err
	}
	return protocol.Compile(s.protocol, s.deck, s.board, mcfg, policy, start)
}

// metricsFor avoids handing the observer a typed nil when InfluxDB is
// disabled.
func metricsFor(c *influxdb.Client) telemetry.Metrics {
	if c == nil {
		return nil
	}
	return c
}

// publisherFor avoids handing the observer a typed nil when MQTT is
// unreachable.
func publisherFor(c *mqtt.Client) telemetry.Publisher {
	if c == nil {
		return nil
	}
	return c
}

// getConfigPath returns the configuration file path.
// Uses LABMILL_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("LABMILL_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
