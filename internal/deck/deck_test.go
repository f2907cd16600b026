package deck

import (
	"errors"
	"testing"

	"github.com/mofcat/labmill-core/internal/geometry"
)

const sampleDeckYAML = `
labware:
  plate_1:
    type: well_plate
    model: sbs_96
    rows: 8
    columns: 12
    calibration:
      a1: {x: -30.0, y: -40.0, z: -35.0}
      a2: {x: -30.0, y: -103.0, z: -35.0}
    pitch_mm: -9.0
    capacity_ul: 360
    fill_ul: 0
  vial_rinse:
    type: vial
    model: scint_20ml
    location: {x: -150.0, y: -60.0, z: -30.0}
    capacity_ul: 20000
    fill_ul: 15000
`

func loadSampleDeck(t *testing.T) *Deck {
	t.Helper()
	d, err := Parse([]byte(sampleDeckYAML))
	if err != nil {
		t.Fatalf("parsing sample deck: %v", err)
	}
	return d
}

func TestParse_PreservesDocumentOrder(t *testing.T) {
	d := loadSampleDeck(t)

	names := d.Names()
	if len(names) != 2 || names[0] != "plate_1" || names[1] != "vial_rinse" {
		t.Errorf("Names() = %v, want [plate_1 vial_rinse]", names)
	}
}

func TestResolve(t *testing.T) {
	d := loadSampleDeck(t)

	tests := []struct {
		name    string
		target  string
		want    geometry.Point3D
		wantErr error
	}{
		{
			name:   "plate well",
			target: "plate_1.A1",
			want:   geometry.Point3D{X: -30, Y: -40, Z: -35},
		},
		{
			name:   "plate second row",
			target: "plate_1.B1",
			want:   geometry.Point3D{X: -30, Y: -49, Z: -35},
		},
		{
			name:   "bare vial",
			target: "vial_rinse",
			want:   geometry.Point3D{X: -150, Y: -60, Z: -30},
		},
		{
			name:   "bare plate resolves to anchor",
			target: "plate_1",
			want:   geometry.Point3D{X: -30, Y: -40, Z: -35},
		},
		{
			name:    "unknown labware",
			target:  "plate_9.A1",
			wantErr: ErrUnknownLabware,
		},
		{
			name:    "unknown cell",
			target:  "plate_1.Q99",
			wantErr: ErrUnknownCell,
		},
		{
			name:    "empty target",
			target:  "",
			wantErr: ErrMalformedTarget,
		},
		{
			name:    "trailing dot",
			target:  "plate_1.",
			wantErr: ErrMalformedTarget,
		},
		{
			name:    "vial with foreign cell",
			target:  "vial_rinse.A1",
			wantErr: ErrUnknownCell,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := d.Resolve(tt.target)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Resolve(%q) err = %v, want %v", tt.target, err, tt.wantErr)
				}
				var resErr *ResolutionError
				if !errors.As(err, &resErr) || resErr.Target != tt.target {
					t.Errorf("error should carry the target string, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Resolve(%q): %v", tt.target, err)
			}
			if got != tt.want {
				t.Errorf("Resolve(%q) = %v, want %v", tt.target, got, tt.want)
			}
		})
	}
}

func TestParse_RejectsUnknownField(t *testing.T) {
	doc := `
labware:
  plate_1:
    type: well_plate
    model: sbs_96
    rows: 8
    columns: 12
    calibration:
      a1: {x: 0, y: 0, z: 0}
      a2: {x: 63, y: 0, z: 0}
    pitch_mm: 9.0
    capacity_ul: 360
    fill_ul: 0
    wells_per_row: 12
`
	if _, err := Parse([]byte(doc)); !errors.Is(err, ErrInvalidDocument) {
		t.Errorf("unknown field accepted, err = %v", err)
	}
}

func TestParse_RejectsMissingModel(t *testing.T) {
	doc := `
labware:
  vial_1:
    type: vial
    location: {x: 0, y: 0, z: 0}
    capacity_ul: 100
    fill_ul: 10
`
	if _, err := Parse([]byte(doc)); !errors.Is(err, ErrInvalidDocument) {
		t.Errorf("missing model accepted, err = %v", err)
	}
}

func TestParse_RejectsUnknownRootKey(t *testing.T) {
	if _, err := Parse([]byte("labware: {}\nextras: []\n")); !errors.Is(err, ErrInvalidDocument) {
		t.Errorf("unknown root key accepted, err = %v", err)
	}
}

func TestWellPlate_Cells(t *testing.T) {
	d := loadSampleDeck(t)
	lw, _ := d.Labware("plate_1")
	cells := lw.Cells()
	if len(cells) != 96 {
		t.Fatalf("got %d cells, want 96", len(cells))
	}
	if cells[0] != "A1" || cells[11] != "A12" || cells[12] != "B1" {
		t.Errorf("cells not row-major: %v", cells[:14])
	}
}
