// Package deck models the physical deck layout: labware fixtures (well
// plates and vials) and the resolution of logical targets such as
// "plate_1.A1" into absolute machine coordinates.
//
// Labware is a closed set of variants. Well-plate cell centres are not
// configured individually; they are derived from a two-point calibration
// (a taught reference cell and a second taught cell along one grid axis)
// plus an explicit pitch for the other axis. The calibration must be
// axis-aligned - the two points share exactly one of x or y - and any
// other arrangement is rejected at load time rather than corrected.
//
// The Deck and all labware are immutable once loaded and may be shared
// freely for the lifetime of a run.
package deck
