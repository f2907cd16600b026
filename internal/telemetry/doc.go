// Package telemetry bridges run execution onto the message bus and the
// time-series store.
//
// The Observer implements executor.Observer. It publishes run lifecycle
// and per-step progress to the labmill/run/... topics, instrument
// captures to labmill/instrument/... topics, and records step durations
// and capture fields to InfluxDB when a metrics client is attached.
//
// Telemetry is strictly best-effort: a failed publish or write is
// logged and never interrupts a run. Dashboards reading the retained
// run status topic always see the latest known state after reconnect.
package telemetry
