package geometry

import "fmt"

// WorkingVolume is the axis-aligned box within which gantry motion is
// permitted, in millimetres. CNC-convention machines typically place the
// origin at the homed position with the working area extending into
// negative space, so bounds may be negative.
type WorkingVolume struct {
	XMin float64
	XMax float64
	YMin float64
	YMax float64
	ZMin float64
	ZMax float64
}

// Validate checks the min <= max invariant on every axis.
func (v WorkingVolume) Validate() error {
	type axis struct {
		name     string
		min, max float64
	}
	for _, a := range []axis{
		{"x", v.XMin, v.XMax},
		{"y", v.YMin, v.YMax},
		{"z", v.ZMin, v.ZMax},
	} {
		if a.min > a.max {
			return fmt.Errorf("working volume: %s_min (%v) must be <= %s_max (%v)", a.name, a.min, a.name, a.max)
		}
	}
	return nil
}

// Contains reports whether the point lies within the volume. All bounds
// are inclusive: a point exactly on a face is contained.
func (v WorkingVolume) Contains(p Point3D) bool {
	return v.XMin <= p.X && p.X <= v.XMax &&
		v.YMin <= p.Y && p.Y <= v.YMax &&
		v.ZMin <= p.Z && p.Z <= v.ZMax
}
