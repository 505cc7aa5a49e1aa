// Package stats folds engagement events into campaign counters.
//
// This is the concurrency-sensitive heart of the system: many unordered,
// at-least-once-delivered events mutate one shared campaign record through
// a store with no transactions. Every update is a full read-modify-write
// cycle conditioned on the record's version token, retried with bounded
// exponential backoff and finally dropped with a log line. Counts are
// best-effort lower bounds, never an availability risk.
package stats
