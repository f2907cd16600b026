package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mofcat/labmill-core/internal/geometry"
	"github.com/mofcat/labmill-core/internal/protocol"
)

const testMachineDoc = `
connection:
  address: "192.168.4.21:23"
  command_timeout_s: 5
homing:
  strategy: switch
working_volume:
  x_min: -300
  x_max: 0
  y_min: -200
  y_max: 0
  z_min: -80
  z_max: 0
motion:
  safe_height_mm: -5
  safe_side: above
  feed_rate: 1500
  homing_feed_rate: 500
`

const testDeckDoc = `
labware:
  plate_1:
    type: well_plate
    model: generic-96
    rows: 2
    columns: 3
    calibration:
      a1: {x: -200, y: -100, z: -40}
      a2: {x: -182, y: -100, z: -40}
    pitch_mm: 9
    capacity_ul: 360
    fill_ul: 0
  vial_rinse:
    type: vial
    model: vial-20ml
    location: {x: -50, y: -50, z: -40}
    capacity_ul: 20000
    fill_ul: 18000
`

const testBoardDoc = `
instruments:
  camera_1:
    type: camera
    offset: {dx: 0, dy: 0, dz: 0}
  pipette_1:
    type: pipette
    offset: {dx: 10, dy: 0, dz: -5}
`

const testProtocolDoc = `
protocol:
  name: rinse_series
  actions:
    - action: move
      target: plate_1.A1
    - action: aspirate
      target: vial_rinse
      instrument: pipette_1
      params:
        volume_ul: 100
    - action: dispense
      target: plate_1.A1
      instrument: pipette_1
      params:
        volume_ul: 100
    - action: capture
      instrument: camera_1
`

// writeDoc writes one document into dir and returns its path.
func writeDoc(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
	return path
}

func testPaths(t *testing.T) docPaths {
	t.Helper()
	dir := t.TempDir()
	return docPaths{
		machine:  writeDoc(t, dir, "machine.yaml", testMachineDoc),
		deck:     writeDoc(t, dir, "deck.yaml", testDeckDoc),
		board:    writeDoc(t, dir, "board.yaml", testBoardDoc),
		protocol: writeDoc(t, dir, "protocol.yaml", testProtocolDoc),
	}
}

func TestRunValidation_Pass(t *testing.T) {
	s, steps, err := runValidation(testPaths(t), "optimized")
	if err != nil {
		t.Fatalf("runValidation() error = %v", err)
	}
	if s == nil {
		t.Fatal("runValidation() returned nil setup")
	}
	if len(steps) == 0 {
		t.Fatal("runValidation() compiled no steps")
	}
	if s.protocol.Name != "rinse_series" {
		t.Errorf("protocol name = %q, want rinse_series", s.protocol.Name)
	}
}

func TestCompileForRun_StartsFromGantryPosition(t *testing.T) {
	s, err := loadSetup(testPaths(t))
	if err != nil {
		t.Fatalf("loadSetup() error = %v", err)
	}

	fromOrigin, err := compileForRun(s, s.machine, "naive", geometry.Point3D{})
	if err != nil {
		t.Fatalf("compile from origin: %v", err)
	}

	start := geometry.Point3D{X: -50, Y: -50, Z: -40}
	fromStart, err := compileForRun(s, s.machine, "naive", start)
	if err != nil {
		t.Fatalf("compile from %s: %v", start, err)
	}

	// The naive route lifts to the safe height at the current XY
	// before travelling, so the first move is anchored to where the
	// gantry actually is, not to the origin used by the dry compile.
	first := fromStart[0]
	if first.Kind != protocol.StepMove {
		t.Fatalf("first step kind = %s, want %s", first.Kind, protocol.StepMove)
	}
	wantLift := geometry.Point3D{X: -50, Y: -50, Z: -5}
	if first.Target != wantLift {
		t.Errorf("first move target = %s, want %s", first.Target, wantLift)
	}
	if fromOrigin[0].Target == fromStart[0].Target {
		t.Error("plans from different starts share the same first move")
	}
}

func TestRunValidation_BoundsViolation(t *testing.T) {
	paths := testPaths(t)

	// Place the vial outside the working volume in x.
	badDeck := `
labware:
  vial_far:
    type: vial
    model: vial-20ml
    location: {x: -500, y: -50, z: -40}
    capacity_ul: 20000
    fill_ul: 18000
`
	paths.deck = writeDoc(t, t.TempDir(), "deck.yaml", badDeck)

	_, _, err := runValidation(paths, "optimized")
	if err == nil {
		t.Fatal("runValidation() should fail for out-of-bounds labware")
	}
	if !errors.Is(err, errValidationFailed) {
		t.Errorf("error = %v, want errValidationFailed", err)
	}
}

func TestRunValidation_MissingDocument(t *testing.T) {
	paths := testPaths(t)
	paths.machine = filepath.Join(t.TempDir(), "missing.yaml")

	if _, _, err := runValidation(paths, "optimized"); err == nil {
		t.Fatal("runValidation() should fail for a missing machine document")
	}
}

func TestRunValidation_UnknownPlanner(t *testing.T) {
	if _, _, err := runValidation(testPaths(t), "heuristic"); err == nil {
		t.Fatal("runValidation() should reject an unknown planner kind")
	}
}

func TestGetConfigPath(t *testing.T) {
	originalEnv := os.Getenv("LABMILL_CONFIG")
	defer os.Setenv("LABMILL_CONFIG", originalEnv)

	os.Setenv("LABMILL_CONFIG", "")
	if got := getConfigPath(); got != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", got, defaultConfigPath)
	}

	os.Setenv("LABMILL_CONFIG", "/etc/labmill/config.yaml")
	if got := getConfigPath(); got != "/etc/labmill/config.yaml" {
		t.Errorf("getConfigPath() = %q, want env override", got)
	}
}

// TestRunProtocol_Simulated exercises the full run path against the
// controller simulator: validate, migrate, home, execute, persist.
// MQTT is unreachable, which must degrade to a run without telemetry.
func TestRunProtocol_Simulated(t *testing.T) {
	if testing.Short() {
		t.Skip("full simulated run waits out the MQTT connect timeout")
	}

	dir := t.TempDir()
	paths := testPaths(t)

	configDoc := `
lab:
  id: lab-test
  name: Test Lab
  timezone: UTC

database:
  path: "` + filepath.Join(dir, "labmill.db") + `"
  wal_mode: true
  busy_timeout: 5

mqtt:
  broker:
    host: "127.0.0.1"
    port: 59999
    client_id: "labmill-test"
    tls: false
  qos: 1
  reconnect:
    initial_delay: 1
    max_delay: 60

influxdb:
  enabled: false

logging:
  level: error
  format: json
  output: stdout

gantry:
  simulate: true
`
	configPath := writeDoc(t, dir, "config.yaml", configDoc)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	if err := runProtocol(ctx, paths, "optimized", configPath, true); err != nil {
		t.Fatalf("runProtocol() error = %v", err)
	}

	// The run store must hold the completed run.
	if _, err := os.Stat(filepath.Join(dir, "labmill.db")); err != nil {
		t.Errorf("run database was not created: %v", err)
	}
}
