package mqtt

import "fmt"

// Topic prefixes for the Labmill message bus.
//
// All topics use the flat scheme: labmill/{category}/{id}/{facet}
const (
	// TopicPrefix is the base for all Labmill topics.
	TopicPrefix = "labmill"

	// TopicPrefixRun is the base for protocol run topics.
	TopicPrefixRun = "labmill/run"

	// TopicPrefixGantry is the base for gantry driver topics.
	TopicPrefixGantry = "labmill/gantry"

	// TopicPrefixInstrument is the base for instrument topics.
	TopicPrefixInstrument = "labmill/instrument"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "labmill/system"
)

// Topics provides builders for Labmill MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	statusTopic := topics.RunStatus("f3b9...")
//	// Returns: "labmill/run/f3b9.../status"
type Topics struct{}

// =============================================================================
// Run Topics
// =============================================================================

// RunStatus returns the topic for run lifecycle status updates.
// Published retained so late subscribers see the current state.
//
// Example: labmill/run/f3b9c2/status
func (Topics) RunStatus(runID string) string {
	return fmt.Sprintf("%s/%s/status", TopicPrefixRun, runID)
}

// RunStep returns the topic for per-step progress events of a run.
//
// Example: labmill/run/f3b9c2/step/4
func (Topics) RunStep(runID string, index int) string {
	return fmt.Sprintf("%s/%s/step/%d", TopicPrefixRun, runID, index)
}

// =============================================================================
// Gantry Topics
// =============================================================================

// GantryState returns the topic for gantry driver state changes.
//
// Example: labmill/gantry/state
func (Topics) GantryState() string {
	return fmt.Sprintf("%s/state", TopicPrefixGantry)
}

// GantryPosition returns the topic for gantry position reports.
//
// Example: labmill/gantry/position
func (Topics) GantryPosition() string {
	return fmt.Sprintf("%s/position", TopicPrefixGantry)
}

// =============================================================================
// Instrument Topics
// =============================================================================

// InstrumentCapture returns the topic for capture results from a
// mounted instrument.
//
// Example: labmill/instrument/camera_1/capture
func (Topics) InstrumentCapture(name string) string {
	return fmt.Sprintf("%s/%s/capture", TopicPrefixInstrument, name)
}

// InstrumentHealth returns the topic for instrument health status.
//
// Example: labmill/instrument/pipette_1/health
func (Topics) InstrumentHealth(name string) string {
	return fmt.Sprintf("%s/%s/health", TopicPrefixInstrument, name)
}

// =============================================================================
// System Topics
// =============================================================================

// SystemStatus returns the service status topic. Also used for the
// Last Will message on unexpected disconnect.
//
// Example: labmill/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// =============================================================================
// Wildcard Patterns for Subscriptions
// =============================================================================

// AllRunStatuses returns a pattern matching status updates of all runs.
//
// Pattern: labmill/run/+/status
func (Topics) AllRunStatuses() string {
	return fmt.Sprintf("%s/+/status", TopicPrefixRun)
}

// AllRunSteps returns a pattern matching step events of all runs.
//
// Pattern: labmill/run/+/step/+
func (Topics) AllRunSteps() string {
	return fmt.Sprintf("%s/+/step/+", TopicPrefixRun)
}

// AllInstrumentCaptures returns a pattern matching captures from all
// instruments.
//
// Pattern: labmill/instrument/+/capture
func (Topics) AllInstrumentCaptures() string {
	return fmt.Sprintf("%s/+/capture", TopicPrefixInstrument)
}

// AllTopics returns a pattern matching all Labmill topics.
// Use with caution - this receives ALL traffic.
//
// Pattern: labmill/#
func (Topics) AllTopics() string {
	return "labmill/#"
}
