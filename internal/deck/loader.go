package deck

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/mofcat/labmill-core/internal/geometry"
)

// ErrInvalidDocument is returned for any structural problem in a deck
// document: unknown fields, missing required fields, or a malformed
// root. Unknown fields are rejected rather than ignored because a typo
// in a calibration field would otherwise silently move hardware.
var ErrInvalidDocument = errors.New("deck: invalid deck document")

// documentRoot is the strict root shape of a deck document: a single
// `labware` mapping. The mapping is kept as a yaml.Node so entry order
// in the document is preserved on the Deck.
type documentRoot struct {
	Labware yaml.Node `yaml:"labware"`
}

type pointEntry struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
	Z float64 `yaml:"z"`
}

func (p pointEntry) point() geometry.Point3D {
	return geometry.Point3D{X: p.X, Y: p.Y, Z: p.Z}
}

type calibrationEntry struct {
	A1 pointEntry `yaml:"a1"`
	A2 pointEntry `yaml:"a2"`
}

type wellPlateEntry struct {
	Type        string           `yaml:"type"`
	Model       string           `yaml:"model"`
	Rows        int              `yaml:"rows"`
	Columns     int              `yaml:"columns"`
	Calibration calibrationEntry `yaml:"calibration"`
	PitchMM     float64          `yaml:"pitch_mm"`
	CapacityUL  float64          `yaml:"capacity_ul"`
	FillUL      float64          `yaml:"fill_ul"`
}

type vialEntry struct {
	Type       string     `yaml:"type"`
	Model      string     `yaml:"model"`
	Location   pointEntry `yaml:"location"`
	CapacityUL float64    `yaml:"capacity_ul"`
	FillUL     float64    `yaml:"fill_ul"`
}

// typeProbe reads only the discriminator so the entry can then be
// strict-decoded with the matching schema.
type typeProbe struct {
	Type string `yaml:"type"`
}

// Load reads and validates a deck document from disk.
func Load(path string) (*Deck, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading deck document: %w", err)
	}
	d, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return d, nil
}

// Parse validates deck document bytes and builds the Deck. The document
// schema is strict: unknown fields and missing required fields are both
// configuration errors.
func Parse(data []byte) (*Deck, error) {
	var root documentRoot
	if err := strictUnmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	if root.Labware.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: `labware` must be a mapping of name to entry", ErrInvalidDocument)
	}

	var items []Labware
	// Mapping node content alternates key, value.
	for i := 0; i+1 < len(root.Labware.Content); i += 2 {
		name := root.Labware.Content[i].Value
		entry := root.Labware.Content[i+1]

		lw, err := buildLabware(name, entry)
		if err != nil {
			return nil, err
		}
		items = append(items, lw)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: deck defines no labware", ErrInvalidDocument)
	}
	return NewDeck(items)
}

func buildLabware(name string, node *yaml.Node) (Labware, error) {
	var probe typeProbe
	if err := node.Decode(&probe); err != nil {
		return nil, fmt.Errorf("%w: labware %q: %v", ErrInvalidDocument, name, err)
	}

	raw, err := yaml.Marshal(node)
	if err != nil {
		return nil, fmt.Errorf("%w: labware %q: %v", ErrInvalidDocument, name, err)
	}

	switch Kind(probe.Type) {
	case KindWellPlate:
		var entry wellPlateEntry
		if err := strictUnmarshal(raw, &entry); err != nil {
			return nil, fmt.Errorf("%w: labware %q: %v", ErrInvalidDocument, name, err)
		}
		return buildWellPlate(name, entry)
	case KindVial:
		var entry vialEntry
		if err := strictUnmarshal(raw, &entry); err != nil {
			return nil, fmt.Errorf("%w: labware %q: %v", ErrInvalidDocument, name, err)
		}
		return buildVial(name, entry)
	default:
		return nil, fmt.Errorf("%w: labware %q: unknown type %q (want well_plate or vial)", ErrInvalidDocument, name, probe.Type)
	}
}

func buildWellPlate(name string, entry wellPlateEntry) (*WellPlate, error) {
	if err := validateCommon(name, entry.Model, Volume{CapacityUL: entry.CapacityUL, FillUL: entry.FillUL}); err != nil {
		return nil, err
	}
	if entry.Rows <= 0 || entry.Columns <= 0 {
		return nil, fmt.Errorf("%w: labware %q: rows and columns must be positive", ErrInvalidDocument, name)
	}

	wells, order, err := deriveWells(calibration{
		a1:      entry.Calibration.A1.point(),
		a2:      entry.Calibration.A2.point(),
		rows:    entry.Rows,
		columns: entry.Columns,
		pitchMM: entry.PitchMM,
	})
	if err != nil {
		return nil, fmt.Errorf("labware %q: %w", name, err)
	}

	return &WellPlate{
		name:    name,
		model:   entry.Model,
		rows:    entry.Rows,
		columns: entry.Columns,
		volume:  Volume{CapacityUL: entry.CapacityUL, FillUL: entry.FillUL},
		wells:   wells,
		order:   order,
	}, nil
}

func buildVial(name string, entry vialEntry) (*Vial, error) {
	if err := validateCommon(name, entry.Model, Volume{CapacityUL: entry.CapacityUL, FillUL: entry.FillUL}); err != nil {
		return nil, err
	}
	return &Vial{
		name:     name,
		model:    entry.Model,
		location: entry.Location.point(),
		volume:   Volume{CapacityUL: entry.CapacityUL, FillUL: entry.FillUL},
	}, nil
}

func validateCommon(name, model string, vol Volume) error {
	if name == "" {
		return fmt.Errorf("%w: labware name must be non-empty", ErrInvalidDocument)
	}
	if model == "" {
		return fmt.Errorf("%w: labware %q: model is required", ErrInvalidDocument, name)
	}
	if vol.CapacityUL <= 0 {
		return fmt.Errorf("%w: labware %q: capacity_ul must be positive", ErrInvalidDocument, name)
	}
	if vol.FillUL < 0 || vol.FillUL > vol.CapacityUL {
		return fmt.Errorf("%w: labware %q: fill_ul must be within [0, capacity_ul]", ErrInvalidDocument, name)
	}
	return nil
}

// strictUnmarshal decodes YAML rejecting unknown fields.
func strictUnmarshal(data []byte, out any) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	return dec.Decode(out)
}
