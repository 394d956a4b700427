// Package logx configures hydrobot's structured logging.
//
// This repo uses a small wrapper (logx.Logger) on top of zerolog to keep:
//   - Console output readable (short timestamp + short caller + category)
//   - File output JSON-structured, optionally one file per day
//   - Optional chat sink (min-level + rate limiting) to an admin group
package logx
