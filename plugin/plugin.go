// Package plugin defines the contract every scanner/enricher implements and
// the registry of named plugin instances.
//
// A plugin transforms entities of one kind into related entities of another
// (or the same) kind through a three-stage lifecycle:
//
//  1. Normalize - coerce raw inputs to typed entities, dropping invalid ones
//  2. Execute   - perform the actual work (subprocess, HTTP call, pure
//     computation), returning a structured RawResult
//  3. Enrich    - project the raw payload into typed output entities, each
//     paired with the input it derives from
//
// Plugins come in two variants: code plugins built with the Config builder,
// and template plugins built at load time from declarative YAML definitions
// (see the template package). Both register under a unique name; duplicate
// names are a load-time error.
package plugin

import (
	"context"

	"github.com/reconurge/flowsint/entity"
	"github.com/reconurge/flowsint/schema"
)

// Plugin is the interface for enrichment plugins.
//
// A plugin declares a fixed input and output entity kind and is invoked
// through the three lifecycle stages in order. Stages are strictly
// sequential within one invocation: Normalize fully completes before
// Execute begins, and Execute before Enrich.
type Plugin interface {
	// Name returns the unique identifier for the plugin.
	Name() string

	// Category returns the plugin category (e.g., "domains", "social").
	Category() string

	// Description returns a human-readable description of the plugin's purpose.
	Description() string

	// InputKind returns the entity kind the plugin consumes.
	InputKind() string

	// OutputKind returns the entity kind the plugin produces.
	// It may equal InputKind.
	OutputKind() string

	// RelationshipType returns the relationship type materialized between
	// each input entity and the output entities derived from it
	// (e.g., "HAS_DOMAIN", "RESOLVES_TO").
	RelationshipType() string

	// Params returns the schema for externally supplied secrets/config the
	// plugin needs (API keys, endpoints). The zero schema means the plugin
	// takes no parameters.
	Params() schema.JSON

	// Normalize applies entity coercion to each raw input, silently
	// discarding invalid elements, and may apply plugin-specific filtering.
	// It returns only validated, typed entities.
	Normalize(ctx context.Context, raws []any) ([]entity.Entity, error)

	// Execute performs the actual work against the normalized entities.
	//
	// Execute must not return an error for expected failure modes (no
	// results, upstream timeout); it reports them through the RawResult.
	// It is the single place responsible for turning unstructured failures
	// into a structured result, and the only stage expected to block on
	// external I/O. Implementations honor ctx cancellation and deadlines.
	Execute(ctx context.Context, entities []entity.Entity) RawResult

	// Enrich projects the raw payload into typed output entities, each
	// paired with the input entity it was derived from. Enrich is
	// idempotent: it performs no writes itself; graph materialization of
	// its derivations is the scan runner's job.
	Enrich(ctx context.Context, res RawResult, inputs []entity.Entity) ([]Derivation, error)
}

// Derivation pairs an output entity with the input entity it derives from.
// The scan runner materializes one relationship of the plugin's declared
// type per derivation.
type Derivation struct {
	// Input is the normalized entity the plugin was invoked with.
	Input entity.Entity

	// Output is the entity produced from Input.
	Output entity.Entity
}

// Outputs extracts the output entities from a derivation list,
// preserving order.
func Outputs(derivations []Derivation) []entity.Entity {
	if len(derivations) == 0 {
		return nil
	}
	out := make([]entity.Entity, 0, len(derivations))
	for _, d := range derivations {
		out = append(out, d.Output)
	}
	return out
}
