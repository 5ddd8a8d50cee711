// Package flowsint provides the enrichment pipeline at the core of the
// flowsint OSINT platform.
//
// The pipeline ingests free-form identifiers (emails, domains, IPs,
// usernames, organizations) supplied by an analyst, runs them through
// pluggable enrichment units, and persists the resulting nodes and
// relationships into a property graph scoped to an investigation
// ("sketch").
//
// # Core Concepts
//
// The module is organized around several key concepts:
//
//   - Entities: typed, validated records representing real-world
//     observables (entity package)
//   - Plugins: named units implementing the normalize/execute/enrich
//     lifecycle over a fixed input/output entity kind pair (plugin package)
//   - Template plugins: enrichers built purely from declarative YAML
//     HTTP-call definitions (template package)
//   - Graph materialization: idempotent MERGE of nodes and relationships
//     keyed by sketch id and natural key (graph package)
//   - Scan jobs: one plugin invocation against a batch of inputs, tracked
//     through pending/running/finished/error (scan package)
//
// # Architecture
//
// Control flow for one invocation:
//
//	caller -> plugin registry lookup
//	       -> normalize: entity coercion, invalid elements dropped
//	       -> execute:   subprocess/HTTP/pure work, failures structured
//	       -> enrich:    project payload to entities, materialize graph
//	       -> scan job records terminal status and payload
//
// Scan jobs are dispatched to workers through the Redis-backed queue
// package; workers announce themselves through the etcd-backed registry
// package. Both transports are boundaries: the pipeline itself never
// assumes ordering between two distinct scan jobs.
//
// # Getting Started
//
// Assemble a pipeline and run a plugin:
//
//	import "github.com/reconurge/flowsint/pipeline"
//
//	pipe, err := pipeline.New(
//		pipeline.WithTemplateDir("plugins.d"),
//		pipeline.WithGraphStore(store),
//	)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	outcome, err := pipe.Run(ctx, "email_to_domain", []any{"alice@example.com"}, sketchID)
//	fmt.Println(outcome.Job.Status)
//
// This package itself holds the shared error taxonomy used across every
// subpackage: structured errors carrying an operation, a kind, and a
// wrapped cause, matchable with errors.Is and errors.As.
package flowsint
