// Package schedule turns monitor cadence strings into cron schedules.
//
// A cadence may be a fixed interval ("5m", "45s", "00:05") or a cron
// expression ("*/5 * * * *", "@every 5m", "@hourly"). Both forms produce a
// cron.Schedule so monitor loops only ever ask "when is the next tick".
package schedule
