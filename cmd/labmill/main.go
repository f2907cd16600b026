// Labmill Core - Lab Gantry Automation
//
// This is the main entry point for the Labmill command line tool. It
// validates a lab setup (machine, deck, instrument board, protocol) and
// executes protocols against a GRBL-style gantry controller, with run
// history persisted to SQLite and progress published over MQTT.
package main

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

func main() {
	Execute()
}
