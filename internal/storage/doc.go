// Package storage keeps the play history: one record per dispatched trigger.
//
// Drivers:
//   - "file": JSON Lines, compacted when it grows past a bound
//   - "sqlite": a SQLite database (pure Go driver)
package storage
