// Package monitor is the polling-and-notification engine.
//
// A Loop drives one Monitor through
//
//	Idle -> Fetching -> Diffing -> Notifying -> Sleeping -> Idle
//
// until its context is cancelled. Two monitors exist: FeedMonitor (novel
// feed entries, tracked by a SeenSet) and PresenceMonitor (Steam status and
// game changes, tracked by a PresenceTracker). Start runs each loop as a
// named goroutine on a shared supervisor.
package monitor
