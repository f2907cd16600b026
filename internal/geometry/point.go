package geometry

import (
	"fmt"
	"math"
)

// Point3D is an absolute position in machine coordinates (millimetres).
type Point3D struct {
	X float64
	Y float64
	Z float64
}

// Vector3D is a displacement between two machine-space positions.
// Instrument mounting offsets are expressed as vectors.
type Vector3D struct {
	DX float64
	DY float64
	DZ float64
}

// Sub returns the point translated by the negated vector. The physical
// gantry position required to place an instrument's working point at a
// target is target.Sub(offset).
func (p Point3D) Sub(v Vector3D) Point3D {
	return Point3D{X: p.X - v.DX, Y: p.Y - v.DY, Z: p.Z - v.DZ}
}

// Add returns the point translated by the vector.
func (p Point3D) Add(v Vector3D) Point3D {
	return Point3D{X: p.X + v.DX, Y: p.Y + v.DY, Z: p.Z + v.DZ}
}

// WithZ returns a copy of the point with its Z coordinate replaced.
func (p Point3D) WithZ(z float64) Point3D {
	return Point3D{X: p.X, Y: p.Y, Z: z}
}

// SameXY reports whether two points share X and Y exactly.
func (p Point3D) SameXY(q Point3D) bool {
	return p.X == q.X && p.Y == q.Y
}

// DistanceXY returns the Euclidean distance between the XY projections
// of two points.
func (p Point3D) DistanceXY(q Point3D) float64 {
	dx := p.X - q.X
	dy := p.Y - q.Y
	return math.Hypot(dx, dy)
}

// String formats the point as "(x, y, z)" with three decimal places,
// matching controller coordinate precision.
func (p Point3D) String() string {
	return fmt.Sprintf("(%.3f, %.3f, %.3f)", p.X, p.Y, p.Z)
}
