// Package geometry provides the shared spatial primitives for the motion
// planning core: absolute machine-space points, offset vectors, and the
// machine working volume.
//
// All values are in millimetres in absolute machine coordinates. Types in
// this package are immutable value types and safe to share freely.
package geometry
