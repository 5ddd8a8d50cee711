// Package queue provides Redis-backed distribution of scan jobs to
// enrichment workers.
//
// Scans are pushed onto per-plugin lists and popped by workers with
// blocking reads; results flow back over job-specific pub/sub channels so
// the submitting process can collect them without polling. Plugin
// metadata and worker counts live in Redis hashes for discovery.
//
// Key layout:
//
//	scan:{plugin}:queue    list of pending ScanItems
//	scan:{job_id}:results  pub/sub channel for ScanResults
//	plugin:{name}:meta     hash of plugin metadata
//	plugin:{name}:health   worker heartbeat key with TTL
//	plugin:{name}:workers  active worker count
//	plugins:available      set of registered plugin names
package queue
