package deck

import (
	"fmt"
	"strings"

	"github.com/mofcat/labmill-core/internal/geometry"
)

// Deck is the loaded deck layout: labware by name, preserving document
// order. A Deck is immutable after construction and safe for concurrent
// readers.
type Deck struct {
	labware map[string]Labware
	order   []string
}

// NewDeck builds a Deck from labware in the given order. Duplicate names
// are a configuration error.
func NewDeck(items []Labware) (*Deck, error) {
	d := &Deck{
		labware: make(map[string]Labware, len(items)),
		order:   make([]string, 0, len(items)),
	}
	for _, lw := range items {
		if _, exists := d.labware[lw.Name()]; exists {
			return nil, fmt.Errorf("deck: duplicate labware name %q", lw.Name())
		}
		d.labware[lw.Name()] = lw
		d.order = append(d.order, lw.Name())
	}
	return d, nil
}

// Resolve translates a target string into an absolute machine coordinate.
//
// Formats:
//
//	"plate_1.A1" - well A1 on plate_1
//	"vial_1"     - vial centre
//	"plate_1"    - plate anchor (well A1)
//
// Failures wrap ErrUnknownLabware, ErrUnknownCell, or ErrMalformedTarget
// inside a *ResolutionError.
func (d *Deck) Resolve(target string) (geometry.Point3D, error) {
	name, cell, err := splitTarget(target)
	if err != nil {
		return geometry.Point3D{}, &ResolutionError{Target: target, Reason: err}
	}

	lw, ok := d.labware[name]
	if !ok {
		return geometry.Point3D{}, &ResolutionError{
			Target: target,
			Reason: fmt.Errorf("%w: %q is not on the deck", ErrUnknownLabware, name),
		}
	}

	if cell == "" {
		return lw.AnchorLocation(), nil
	}
	point, err := lw.Location(cell)
	if err != nil {
		return geometry.Point3D{}, &ResolutionError{Target: target, Reason: err}
	}
	return point, nil
}

// Labware returns the named labware, or false if absent.
func (d *Deck) Labware(name string) (Labware, bool) {
	lw, ok := d.labware[name]
	return lw, ok
}

// Names returns labware names in document order.
func (d *Deck) Names() []string {
	out := make([]string, len(d.order))
	copy(out, d.order)
	return out
}

// Len returns the number of labware entries.
func (d *Deck) Len() int { return len(d.order) }

// splitTarget parses "<labware>" or "<labware>.<cell>". Empty components
// and empty targets are malformed.
func splitTarget(target string) (name, cell string, err error) {
	if target == "" {
		return "", "", fmt.Errorf("%w: empty target", ErrMalformedTarget)
	}
	name, cell, found := strings.Cut(target, ".")
	if name == "" || (found && cell == "") {
		return "", "", fmt.Errorf("%w: %q does not parse as labware or labware.cell", ErrMalformedTarget, target)
	}
	return name, cell, nil
}
