package bounds

import (
	"fmt"
	"sort"

	"github.com/mofcat/labmill-core/internal/deck"
	"github.com/mofcat/labmill-core/internal/geometry"
)

// Space tags which coordinate space a violation was detected in.
type Space string

const (
	// SpaceDeck marks a raw resolved deck coordinate.
	SpaceDeck Space = "deck"

	// SpaceGantry marks an instrument-offset-adjusted gantry position.
	SpaceGantry Space = "gantry"
)

// Violation reports one coordinate exceeding one working-volume bound.
// A point outside the volume on two axes produces two violations.
type Violation struct {
	// Labware and Cell identify the position on the deck. Cell is empty
	// for a vial.
	Labware string
	Cell    string

	// Instrument is the offending instrument for gantry-space
	// violations, empty for deck-space ones.
	Instrument string

	// Space is the coordinate space the point was checked in.
	Space Space

	// Point is the checked coordinate.
	Point geometry.Point3D

	// Axis is "x", "y", or "z"; Bound is the violated bound name
	// ("x_min", "x_max", ...); Limit is its configured value.
	Axis  string
	Bound string
	Limit float64
}

// String renders the violation for CLI reports.
func (v Violation) String() string {
	position := v.Labware
	if v.Cell != "" {
		position += "." + v.Cell
	}
	if v.Instrument != "" {
		return fmt.Sprintf("%s -> %s: gantry %v violates %s=%v", v.Instrument, position, v.Point, v.Bound, v.Limit)
	}
	return fmt.Sprintf("%s: deck %v violates %s=%v", position, v.Point, v.Bound, v.Limit)
}

// ValidateDeck checks every resolved coordinate of every labware
// cell/location against the volume. Returns an empty slice iff all
// points are contained (bounds inclusive). Never fails.
func ValidateDeck(volume geometry.WorkingVolume, d *deck.Deck) []Violation {
	var out []Violation
	forEachPosition(d, func(labware, cell string, p geometry.Point3D) {
		for _, ex := range exceedances(volume, p) {
			out = append(out, Violation{
				Labware: labware,
				Cell:    cell,
				Space:   SpaceDeck,
				Point:   p,
				Axis:    ex.axis,
				Bound:   ex.bound,
				Limit:   ex.limit,
			})
		}
	})
	return out
}

// ValidateInstrumentPositions computes, for each (instrument, deck
// position) pair, the gantry-space position target - offset and checks
// it against the volume. Like ValidateDeck it only reports, never fails.
//
// Every mounted instrument is checked against every deck position. This
// is a superset of the pairs any one protocol references, so passing
// this gate clears every protocol against the current deck and board.
func ValidateInstrumentPositions(volume geometry.WorkingVolume, d *deck.Deck, offsets map[string]geometry.Vector3D) []Violation {
	var out []Violation
	for _, name := range sortedKeys(offsets) {
		offset := offsets[name]
		forEachPosition(d, func(labware, cell string, p geometry.Point3D) {
			gantryPoint := p.Sub(offset)
			for _, ex := range exceedances(volume, gantryPoint) {
				out = append(out, Violation{
					Labware:    labware,
					Cell:       cell,
					Instrument: name,
					Space:      SpaceGantry,
					Point:      gantryPoint,
					Axis:       ex.axis,
					Bound:      ex.bound,
					Limit:      ex.limit,
				})
			}
		})
	}
	return out
}

type exceedance struct {
	axis  string
	bound string
	limit float64
}

// exceedances lists every violated bound for a point. Bounds are
// inclusive, so only strict overshoot is reported.
func exceedances(v geometry.WorkingVolume, p geometry.Point3D) []exceedance {
	var out []exceedance
	if p.X < v.XMin {
		out = append(out, exceedance{"x", "x_min", v.XMin})
	}
	if p.X > v.XMax {
		out = append(out, exceedance{"x", "x_max", v.XMax})
	}
	if p.Y < v.YMin {
		out = append(out, exceedance{"y", "y_min", v.YMin})
	}
	if p.Y > v.YMax {
		out = append(out, exceedance{"y", "y_max", v.YMax})
	}
	if p.Z < v.ZMin {
		out = append(out, exceedance{"z", "z_min", v.ZMin})
	}
	if p.Z > v.ZMax {
		out = append(out, exceedance{"z", "z_max", v.ZMax})
	}
	return out
}

// forEachPosition visits every resolvable position on the deck in
// deterministic order: labware in document order, cells row-major.
func forEachPosition(d *deck.Deck, visit func(labware, cell string, p geometry.Point3D)) {
	for _, name := range d.Names() {
		lw, _ := d.Labware(name)
		for _, cell := range lw.Cells() {
			p, err := lw.Location(cell)
			if err != nil {
				continue // Cells() only reports existing cells.
			}
			visit(name, cell, p)
		}
	}
}

// sortedKeys returns map keys sorted for deterministic, diffable CLI
// reports.
func sortedKeys(m map[string]geometry.Vector3D) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
