// Package storage persists reminders and per-user timezone preferences.
//
// Drivers:
//   - "memory": process-local, lost on restart (tests and dry runs)
//   - "file": snapshot + fsynced JSON Lines journal
//   - "sqlite": SQLite database file (modernc.org/sqlite, no cgo)
//   - "redis": two hashes of JSON values
//   - "firestore": two Firestore collections
//
// Every driver persists a write before returning from it.
package storage
