package deck

import (
	"fmt"
	"math"

	"github.com/mofcat/labmill-core/internal/geometry"
)

// axisEpsilon is the tolerance for treating two calibration coordinates
// as equal on an axis. Taught points come back from the controller with
// three decimal places, so anything tighter than a micron is noise.
const axisEpsilon = 1e-9

// coordinateDecimals matches the controller's reported precision.
const coordinateDecimals = 3

// calibration describes a taught two-point plate calibration: the A1
// reference well plus a second taught point at the far end of one grid
// axis. The rows of the plate run along the A1->A2 direction; column
// spacing on the orthogonal axis comes from the configured pitch.
type calibration struct {
	a1      geometry.Point3D
	a2      geometry.Point3D
	rows    int
	columns int
	pitchMM float64
}

// gridSteps are the signed per-cell displacements resolved from a
// calibration: rowStep along the calibrated axis, colStep along the
// orthogonal axis.
type gridSteps struct {
	rowDX, rowDY float64
	colDX, colDY float64
}

// resolveSteps validates the calibration and computes the signed grid
// steps. The two taught points must be axis-aligned (share exactly one
// of x or y); spacing along the calibrated axis is the taught distance
// divided by (rows - 1), so a single row on that axis is undefined and
// rejected.
func (c calibration) resolveSteps() (gridSteps, error) {
	sameX := math.Abs(c.a1.X-c.a2.X) < axisEpsilon
	sameY := math.Abs(c.a1.Y-c.a2.Y) < axisEpsilon

	switch {
	case sameX && sameY:
		return gridSteps{}, fmt.Errorf("%w: calibration points A1 %v and A2 %v are identical", ErrInvalidCalibration, c.a1, c.a2)
	case !sameX && !sameY:
		return gridSteps{}, fmt.Errorf("%w: A2 %v is diagonal to A1 %v; the points must share exactly one of x or y", ErrInvalidCalibration, c.a2, c.a1)
	}

	if c.rows < 2 {
		return gridSteps{}, fmt.Errorf("%w: %d row(s) along the calibrated axis leaves the spacing undefined", ErrInvalidCalibration, c.rows)
	}
	if c.columns > 1 && c.pitchMM == 0 {
		return gridSteps{}, fmt.Errorf("%w: pitch_mm must be non-zero for a %d-column plate", ErrInvalidCalibration, c.columns)
	}

	steps := gridSteps{}
	if sameY {
		// Rows run along x; columns are pitched along y.
		steps.rowDX = (c.a2.X - c.a1.X) / float64(c.rows-1)
		steps.colDY = c.pitchMM
	} else {
		// Rows run along y; columns are pitched along x.
		steps.rowDY = (c.a2.Y - c.a1.Y) / float64(c.rows-1)
		steps.colDX = c.pitchMM
	}
	return steps, nil
}

// deriveWells builds the full well map from a calibration. Well IDs are
// <row letter(s)><column number> with rows labelled A, B, ..., Z, AA,
// and wells listed in row-major order. Coordinates are rounded to the
// controller's three-decimal precision; Z is taken from the A1 point.
func deriveWells(c calibration) (map[string]geometry.Point3D, []string, error) {
	steps, err := c.resolveSteps()
	if err != nil {
		return nil, nil, err
	}

	wells := make(map[string]geometry.Point3D, c.rows*c.columns)
	order := make([]string, 0, c.rows*c.columns)

	for rowIdx, rowLabel := range rowLabels(c.rows) {
		for colIdx := 0; colIdx < c.columns; colIdx++ {
			id := fmt.Sprintf("%s%d", rowLabel, colIdx+1)
			x := c.a1.X + steps.rowDX*float64(rowIdx) + steps.colDX*float64(colIdx)
			y := c.a1.Y + steps.rowDY*float64(rowIdx) + steps.colDY*float64(colIdx)
			wells[id] = geometry.Point3D{
				X: roundCoord(x),
				Y: roundCoord(y),
				Z: roundCoord(c.a1.Z),
			}
			order = append(order, id)
		}
	}
	return wells, order, nil
}

// rowLabels generates n spreadsheet-style row labels: A..Z, AA, AB, ...
func rowLabels(n int) []string {
	labels := make([]string, 0, n)
	for i := 0; i < n; i++ {
		label := ""
		value := i + 1
		for value > 0 {
			value--
			label = string(rune('A'+value%26)) + label
			value /= 26
		}
		labels = append(labels, label)
	}
	return labels
}

func roundCoord(v float64) float64 {
	shift := math.Pow10(coordinateDecimals)
	return math.Round(v*shift) / shift
}
