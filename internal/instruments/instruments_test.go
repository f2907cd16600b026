package instruments

import (
	"context"
	"errors"
	"testing"

	"github.com/mofcat/labmill-core/internal/geometry"
)

const sampleBoardYAML = `
instruments:
  camera_1:
    type: camera
    offset: {dx: 0.0, dy: 0.0, dz: 0.0}
  pipette_1:
    type: pipette
    offset: {dx: -42.5, dy: 0.0, dz: 25.0}
`

func TestParseBoard(t *testing.T) {
	b, err := ParseBoard([]byte(sampleBoardYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	names := b.Names()
	if len(names) != 2 || names[0] != "camera_1" || names[1] != "pipette_1" {
		t.Errorf("Names() = %v, want document order [camera_1 pipette_1]", names)
	}

	m, err := b.Mount("pipette_1")
	if err != nil {
		t.Fatalf("Mount(pipette_1): %v", err)
	}
	want := geometry.Vector3D{DX: -42.5, DY: 0, DZ: 25}
	if m.Type != "pipette" || m.Offset != want {
		t.Errorf("mount = %+v, want type pipette offset %v", m, want)
	}

	offsets := b.Offsets()
	if len(offsets) != 2 || offsets["pipette_1"] != want {
		t.Errorf("Offsets() = %v", offsets)
	}

	if _, err := b.Mount("laser"); !errors.Is(err, ErrUnknownInstrument) {
		t.Errorf("Mount(laser) error = %v, want ErrUnknownInstrument", err)
	}
}

func TestParseBoardRejectsBadDocuments(t *testing.T) {
	cases := []struct {
		name string
		doc  string
	}{
		{name: "unknown field", doc: `
instruments:
  camera_1:
    type: camera
    offset: {dx: 0.0, dy: 0.0, dz: 0.0}
    exposure: 12
`},
		{name: "missing type", doc: `
instruments:
  camera_1:
    offset: {dx: 0.0, dy: 0.0, dz: 0.0}
`},
		{name: "root not a mapping", doc: `
instruments:
  - camera_1
`},
		{name: "empty board", doc: `
instruments: {}
`},
		{name: "unknown offset axis", doc: `
instruments:
  camera_1:
    type: camera
    offset: {dx: 0.0, dy: 0.0, dw: 1.0}
`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ParseBoard([]byte(tc.doc)); !errors.Is(err, ErrInvalidBoard) {
				t.Errorf("error = %v, want ErrInvalidBoard", err)
			}
		})
	}
}

func TestSimulatedCameraLifecycle(t *testing.T) {
	ctx := context.Background()
	cam := NewSimulatedCamera("camera_1")

	if _, err := cam.Capture(ctx, nil); !errors.Is(err, ErrNotConnected) {
		t.Errorf("capture before connect: error = %v, want ErrNotConnected", err)
	}
	if err := cam.HealthCheck(ctx); !errors.Is(err, ErrNotConnected) {
		t.Errorf("health before connect: error = %v, want ErrNotConnected", err)
	}

	if err := cam.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := cam.HealthCheck(ctx); err != nil {
		t.Errorf("health after connect: %v", err)
	}

	res, err := cam.Capture(ctx, Params{"exposure_ms": 30})
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	if res.Instrument != "camera_1" || res.Kind != "image" {
		t.Errorf("result = %+v", res)
	}
	if res.Fields["frame"] != 1 || res.Fields["exposure_ms"] != 30.0 {
		t.Errorf("fields = %v", res.Fields)
	}

	if _, err := cam.Capture(ctx, Params{"exposure_ms": "long"}); !errors.Is(err, ErrBadParams) {
		t.Errorf("non-numeric exposure: error = %v, want ErrBadParams", err)
	}

	if err := cam.Disconnect(); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	if _, err := cam.Capture(ctx, nil); !errors.Is(err, ErrNotConnected) {
		t.Errorf("capture after disconnect: error = %v, want ErrNotConnected", err)
	}
}

func TestSimulatedPipetteVolumes(t *testing.T) {
	ctx := context.Background()
	pip := NewSimulatedPipette("pipette_1")
	if err := pip.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}

	if _, err := pip.Capture(ctx, Params{}); !errors.Is(err, ErrBadParams) {
		t.Errorf("missing volume: error = %v, want ErrBadParams", err)
	}
	if _, err := pip.Capture(ctx, Params{"volume_ul": -5}); !errors.Is(err, ErrBadParams) {
		t.Errorf("negative volume: error = %v, want ErrBadParams", err)
	}

	for _, v := range []float64{100, 50.5} {
		if _, err := pip.Capture(ctx, Params{"volume_ul": v}); err != nil {
			t.Fatalf("capture %v: %v", v, err)
		}
	}
	if got := pip.TotalUL(); got != 150.5 {
		t.Errorf("TotalUL() = %v, want 150.5", got)
	}
}

func TestNewSimulatedSet(t *testing.T) {
	board, err := ParseBoard([]byte(sampleBoardYAML))
	if err != nil {
		t.Fatalf("parse board: %v", err)
	}

	set, err := NewSimulatedSet(board)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx := context.Background()
	if err := set.ConnectAll(ctx); err != nil {
		t.Fatalf("connect all: %v", err)
	}
	defer set.DisconnectAll()

	in, err := set.Get("camera_1")
	if err != nil {
		t.Fatalf("get camera_1: %v", err)
	}
	if err := in.HealthCheck(ctx); err != nil {
		t.Errorf("health: %v", err)
	}

	if _, err := set.Get("spectrometer"); !errors.Is(err, ErrUnknownInstrument) {
		t.Errorf("Get(spectrometer) error = %v, want ErrUnknownInstrument", err)
	}
}

func TestNewSimulatedSetRejectsUnknownType(t *testing.T) {
	board, err := ParseBoard([]byte(`
instruments:
  laser_1:
    type: laser
    offset: {dx: 0.0, dy: 0.0, dz: 0.0}
`))
	if err != nil {
		t.Fatalf("parse board: %v", err)
	}
	if _, err := NewSimulatedSet(board); !errors.Is(err, ErrUnknownInstrument) {
		t.Errorf("error = %v, want ErrUnknownInstrument", err)
	}
}
