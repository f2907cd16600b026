package machine

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mofcat/labmill-core/internal/geometry"
)

// ErrInvalidDocument is returned for structural problems in a machine
// document: unknown fields, missing sections, or unparseable YAML.
var ErrInvalidDocument = errors.New("machine: invalid machine document")

type document struct {
	Connection struct {
		Address         string `yaml:"address"`
		CommandTimeoutS int    `yaml:"command_timeout_s"`
	} `yaml:"connection"`
	Homing struct {
		Strategy string `yaml:"strategy"`
	} `yaml:"homing"`
	WorkingVolume struct {
		XMin float64 `yaml:"x_min"`
		XMax float64 `yaml:"x_max"`
		YMin float64 `yaml:"y_min"`
		YMax float64 `yaml:"y_max"`
		ZMin float64 `yaml:"z_min"`
		ZMax float64 `yaml:"z_max"`
	} `yaml:"working_volume"`
	Motion struct {
		SafeHeightMM   float64 `yaml:"safe_height_mm"`
		SafeSide       string  `yaml:"safe_side"`
		FeedRate       int     `yaml:"feed_rate"`
		HomingFeedRate int     `yaml:"homing_feed_rate"`
	} `yaml:"motion"`
}

// Load reads and validates a machine document from disk.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading machine document: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse validates machine document bytes. The schema is strict: unknown
// fields are rejected, and the assembled Config must pass Validate.
func Parse(data []byte) (Config, error) {
	var doc document
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}

	cfg := Config{
		Address:        doc.Connection.Address,
		CommandTimeout: time.Duration(doc.Connection.CommandTimeoutS) * time.Second,
		Homing:         HomingStrategy(doc.Homing.Strategy),
		WorkingVolume: geometry.WorkingVolume{
			XMin: doc.WorkingVolume.XMin,
			XMax: doc.WorkingVolume.XMax,
			YMin: doc.WorkingVolume.YMin,
			YMax: doc.WorkingVolume.YMax,
			ZMin: doc.WorkingVolume.ZMin,
			ZMax: doc.WorkingVolume.ZMax,
		},
		SafeHeight:     doc.Motion.SafeHeightMM,
		SafeSide:       SafeSide(doc.Motion.SafeSide),
		FeedRate:       doc.Motion.FeedRate,
		HomingFeedRate: doc.Motion.HomingFeedRate,
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	return cfg, nil
}
