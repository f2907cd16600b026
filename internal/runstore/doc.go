// Package runstore persists run history to SQLite.
//
// A run is one execution of a compiled protocol. The store keeps three
// related records: the run itself (identity, status, timing), one row
// per executed step, and the labware volume ledger built from aspirate
// and dispense captures. The ledger is append-only; current well
// volumes are derived by summing deltas.
//
// The Repository interface abstracts storage so callers can swap in
// mocks. SQLiteRepository is the production implementation and expects
// the schema installed by the migrations package.
package runstore
