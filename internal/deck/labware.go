package deck

import (
	"fmt"

	"github.com/mofcat/labmill-core/internal/geometry"
)

// Kind identifies a labware variant. The set is closed: code that
// switches on Kind handles every variant.
type Kind string

// Labware variants.
const (
	KindWellPlate Kind = "well_plate"
	KindVial      Kind = "vial"
)

// Labware is the shared capability of every fixture on the deck: mapping
// a logical cell ID to an absolute machine coordinate. The interface is
// sealed; WellPlate and Vial are the only implementations.
type Labware interface {
	// Name returns the unique labware name on the deck.
	Name() string

	// Kind returns the variant tag.
	Kind() Kind

	// Location returns the absolute centre for a cell ID. For a Vial the
	// cell ID is empty. Returns ErrUnknownCell (wrapped) for IDs that do
	// not exist on this labware.
	Location(cell string) (geometry.Point3D, error)

	// AnchorLocation returns the labware's reference position: well A1
	// for a plate, the configured centre for a vial.
	AnchorLocation() geometry.Point3D

	// Cells returns every cell ID in deterministic (row-major) order.
	// A vial reports a single empty cell ID.
	Cells() []string

	sealed()
}

// Volume holds the consumable-tracking attributes carried by every
// labware entry. The planning core never reads these; the run store
// consults them when recording aspirate/dispense deltas.
type Volume struct {
	// CapacityUL is the capacity per cell in microlitres.
	CapacityUL float64

	// FillUL is the configured initial fill per cell in microlitres.
	FillUL float64
}

// WellPlate is a rows x columns grid of wells with centres derived from
// two-point calibration. Instances are built by the deck loader and are
// immutable afterwards.
type WellPlate struct {
	name    string
	model   string
	rows    int
	columns int
	volume  Volume

	wells map[string]geometry.Point3D
	order []string
}

// Name returns the unique labware name.
func (p *WellPlate) Name() string { return p.name }

// Model returns the plate model identifier from the deck document.
func (p *WellPlate) Model() string { return p.model }

// Kind returns KindWellPlate.
func (p *WellPlate) Kind() Kind { return KindWellPlate }

// Rows returns the declared row count.
func (p *WellPlate) Rows() int { return p.rows }

// Columns returns the declared column count.
func (p *WellPlate) Columns() int { return p.columns }

// Volume returns the per-well volume attributes.
func (p *WellPlate) Volume() Volume { return p.volume }

// Location returns the centre of the named well.
func (p *WellPlate) Location(cell string) (geometry.Point3D, error) {
	if cell == "" {
		return geometry.Point3D{}, fmt.Errorf("%w: well plate %q requires a cell ID", ErrUnknownCell, p.name)
	}
	point, ok := p.wells[cell]
	if !ok {
		return geometry.Point3D{}, fmt.Errorf("%w: no well %q on plate %q", ErrUnknownCell, cell, p.name)
	}
	return point, nil
}

// AnchorLocation returns the A1 well centre. A1 always exists by
// construction.
func (p *WellPlate) AnchorLocation() geometry.Point3D {
	return p.wells["A1"]
}

// Cells returns all well IDs in row-major order (A1, A2, ..., B1, ...).
func (p *WellPlate) Cells() []string {
	out := make([]string, len(p.order))
	copy(out, p.order)
	return out
}

func (*WellPlate) sealed() {}

// Vial is a single consumable at a fixed absolute location.
type Vial struct {
	name     string
	model    string
	location geometry.Point3D
	volume   Volume
}

// Name returns the unique labware name.
func (v *Vial) Name() string { return v.name }

// Model returns the vial model identifier from the deck document.
func (v *Vial) Model() string { return v.model }

// Kind returns KindVial.
func (v *Vial) Kind() Kind { return KindVial }

// Volume returns the vial volume attributes.
func (v *Vial) Volume() Volume { return v.volume }

// Location returns the vial centre. The cell ID must be empty or the
// vial's own name; anything else is an unknown cell.
func (v *Vial) Location(cell string) (geometry.Point3D, error) {
	if cell == "" || cell == v.name {
		return v.location, nil
	}
	return geometry.Point3D{}, fmt.Errorf("%w: vial %q has no cell %q", ErrUnknownCell, v.name, cell)
}

// AnchorLocation returns the vial centre.
func (v *Vial) AnchorLocation() geometry.Point3D { return v.location }

// Cells returns a single empty cell ID: a vial has one implicit location.
func (v *Vial) Cells() []string { return []string{""} }

func (*Vial) sealed() {}
