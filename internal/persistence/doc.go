// Package persistence runs the pool of contexts on top of the store.
//
// A Context is an isolated object graph with its own serial queue. Reads
// fault rows in from the store, writes are tracked per field, and Save
// commits them in one transaction. Every committed change set is handed
// to the other open contexts, which merge it on their own queue in commit
// order, field by field, according to their MergePolicy.
//
// The Controller owns the store, the long-lived view, parse and background
// view contexts, and the administrative operations: ingestion, retention
// sweeps, statistics, destroy and reset.
package persistence
