// Package storage keeps an optional record of what the bot did:
//   - audit entries for operator commands that changed configuration
//   - delivery records for every notification attempt made by the fanout
//
// Two drivers exist: "file" (JSON Lines next to the configured path) and
// "sqlite" (modernc.org/sqlite, pure Go). Storage is off when no driver is set.
package storage
