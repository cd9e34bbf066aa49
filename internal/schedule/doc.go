// Package schedule runs periodic maintenance for a session: an incremental
// reconcile pass that catches changes the watcher missed, and a vector
// store health probe. Jobs use five field cron specs or descriptors such
// as "@every 10m".
package schedule
