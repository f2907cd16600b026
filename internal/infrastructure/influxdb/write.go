package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteCapture writes an instrument capture result to InfluxDB.
//
// This is the primary method for recording instrument telemetry.
// The write is non-blocking; data is batched and sent asynchronously.
//
// Parameters:
//   - instrument: Mounted instrument name (e.g., "pipette_1")
//   - kind: Capture kind (e.g., "liquid_transfer", "image")
//   - fields: Captured values as reported by the instrument
//   - captured: When the capture completed
//
// Example:
//
//	client.WriteCapture("pipette_1", "liquid_transfer",
//	    map[string]interface{}{"volume_ul": 100.0}, result.Captured)
func (c *Client) WriteCapture(instrument string, kind string, fields map[string]interface{}, captured time.Time) {
	if !c.IsConnected() || len(fields) == 0 {
		return
	}

	point := write.NewPoint(
		"instrument_capture",
		map[string]string{
			"instrument": instrument,
			"kind":       kind,
		},
		fields,
		captured,
	)

	c.writeAPI.WritePoint(point)
}

// WriteStepDuration writes the execution duration of a single run step.
//
// Used for tracking throughput and spotting slow motions or captures.
//
// Parameters:
//   - runID: Run identifier
//   - index: Step index within the run
//   - kind: Step kind ("move" or "capture")
//   - seconds: Wall-clock duration of the step
func (c *Client) WriteStepDuration(runID string, index int, kind string, seconds float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"step_duration",
		map[string]string{
			"run_id": runID,
			"kind":   kind,
		},
		map[string]interface{}{
			"step_index": index,
			"seconds":    seconds,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteGantryPosition writes a gantry position report.
//
// Parameters:
//   - x, y, z: Work coordinates in millimetres
func (c *Client) WriteGantryPosition(x, y, z float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"gantry_position",
		nil,
		map[string]interface{}{
			"x": x,
			"y": y,
			"z": z,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteVolumeDelta writes a labware volume change from the run ledger.
//
// Parameters:
//   - labware: Labware identifier (e.g., "plate_1")
//   - cell: Well label, empty for single-position labware
//   - deltaUL: Signed volume change in microlitres
func (c *Client) WriteVolumeDelta(labware, cell string, deltaUL float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"volume_delta",
		map[string]string{
			"labware": labware,
			"cell":    cell,
		},
		map[string]interface{}{
			"delta_ul": deltaUL,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for custom measurements that don't fit the helper methods.
//
// Parameters:
//   - measurement: The measurement name (table)
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
//
// Example:
//
//	client.WritePoint("system_stats",
//	    map[string]string{"host": "labmill-01"},
//	    map[string]interface{}{"cpu_percent": 45.2, "memory_mb": 512})
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// WritePointWithTime writes a custom point with a specific timestamp.
//
// Use this when the timestamp is not "now" (e.g., delayed data).
//
// Parameters:
//   - measurement: The measurement name
//   - tags: Key-value pairs for indexing
//   - fields: Key-value pairs for the data
//   - timestamp: The exact time for this data point
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}
