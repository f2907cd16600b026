package instruments

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/mofcat/labmill-core/internal/geometry"
)

// ErrInvalidBoard is returned for any structural problem in a board
// document. As with the deck, unknown fields are rejected because a
// mistyped offset field would silently shift every gantry position for
// that instrument.
var ErrInvalidBoard = errors.New("instruments: invalid board document")

// Mount describes one instrument position on the gantry head.
type Mount struct {
	// Name is the mount name protocols reference.
	Name string

	// Type identifies the device family, e.g. "camera" or "pipette".
	Type string

	// Offset is the displacement from the gantry reference point to the
	// instrument's working point. The gantry position for a target is
	// target.Sub(Offset).
	Offset geometry.Vector3D
}

// Board is the validated board document: the instruments mounted on the
// head, in document order.
type Board struct {
	mounts map[string]Mount
	order  []string
}

// Mount returns the mount registered under name.
func (b *Board) Mount(name string) (Mount, error) {
	m, ok := b.mounts[name]
	if !ok {
		return Mount{}, fmt.Errorf("%w: %q", ErrUnknownInstrument, name)
	}
	return m, nil
}

// Offsets returns each mount's offset keyed by mount name, in the shape
// the bounds validator consumes.
func (b *Board) Offsets() map[string]geometry.Vector3D {
	out := make(map[string]geometry.Vector3D, len(b.mounts))
	for name, m := range b.mounts {
		out[name] = m.Offset
	}
	return out
}

// Names returns the mount names in document order.
func (b *Board) Names() []string {
	out := make([]string, len(b.order))
	copy(out, b.order)
	return out
}

// boardRoot is the strict root shape of a board document: a single
// `instruments` mapping, kept as a yaml.Node to preserve order.
type boardRoot struct {
	Instruments yaml.Node `yaml:"instruments"`
}

type offsetEntry struct {
	DX float64 `yaml:"dx"`
	DY float64 `yaml:"dy"`
	DZ float64 `yaml:"dz"`
}

type mountEntry struct {
	Type   string      `yaml:"type"`
	Offset offsetEntry `yaml:"offset"`
}

// LoadBoard reads and validates a board document from disk.
func LoadBoard(path string) (*Board, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading board document: %w", err)
	}
	b, err := ParseBoard(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return b, nil
}

// ParseBoard validates board document bytes and builds the Board.
func ParseBoard(data []byte) (*Board, error) {
	var root boardRoot
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&root); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBoard, err)
	}
	if root.Instruments.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: `instruments` must be a mapping of name to entry", ErrInvalidBoard)
	}

	b := &Board{mounts: make(map[string]Mount)}
	// Mapping node content alternates key, value.
	for i := 0; i+1 < len(root.Instruments.Content); i += 2 {
		name := root.Instruments.Content[i].Value
		node := root.Instruments.Content[i+1]

		raw, err := yaml.Marshal(node)
		if err != nil {
			return nil, fmt.Errorf("%w: instrument %q: %v", ErrInvalidBoard, name, err)
		}
		var entry mountEntry
		strict := yaml.NewDecoder(bytes.NewReader(raw))
		strict.KnownFields(true)
		if err := strict.Decode(&entry); err != nil {
			return nil, fmt.Errorf("%w: instrument %q: %v", ErrInvalidBoard, name, err)
		}

		if name == "" {
			return nil, fmt.Errorf("%w: instrument name must be non-empty", ErrInvalidBoard)
		}
		if entry.Type == "" {
			return nil, fmt.Errorf("%w: instrument %q: type is required", ErrInvalidBoard, name)
		}
		if _, dup := b.mounts[name]; dup {
			return nil, fmt.Errorf("%w: duplicate instrument %q", ErrInvalidBoard, name)
		}

		b.mounts[name] = Mount{
			Name: name,
			Type: entry.Type,
			Offset: geometry.Vector3D{
				DX: entry.Offset.DX,
				DY: entry.Offset.DY,
				DZ: entry.Offset.DZ,
			},
		}
		b.order = append(b.order, name)
	}
	if len(b.order) == 0 {
		return nil, fmt.Errorf("%w: board defines no instruments", ErrInvalidBoard)
	}
	return b, nil
}
