// Package graph provides the idempotent materialization layer between the
// enrichment pipeline and the property graph store.
//
// A node is keyed by (sketch_id, entity_kind, natural_key); a relationship
// is keyed by (sketch_id, from_node_key, to_node_key, relationship_type).
// Both are upserted with MERGE semantics: materializing the same key twice
// updates properties but creates no new record. The store's unique-key
// constraint is the sole serialization point; no client-side locking is
// held over graph keys.
//
// The Materializer is the sole writer. Plugins only declare intent through
// the entities and derivations they return.
package graph

import "time"

// Node represents a graph node pending or resulting from materialization.
type Node struct {
	// Key is the deterministic node key derived from the entity kind and
	// natural key. Stable across invocations.
	Key string `json:"key"`

	// SketchID scopes the node to one investigation.
	SketchID string `json:"sketch_id"`

	// Kind is the entity kind, used as the node label in the store.
	Kind string `json:"kind"`

	// Label is the human-readable display label.
	Label string `json:"label"`

	// Properties contains the entity's properties.
	Properties map[string]any `json:"properties,omitempty"`

	// UpdatedAt is the timestamp of the last upsert.
	UpdatedAt time.Time `json:"updated_at"`
}

// Relationship represents a typed edge between two nodes in one sketch.
type Relationship struct {
	// SketchID scopes the relationship to one investigation.
	SketchID string `json:"sketch_id"`

	// FromKey is the source node key.
	FromKey string `json:"from_key"`

	// ToKey is the target node key.
	ToKey string `json:"to_key"`

	// Type describes the relationship type (e.g., "HAS_DOMAIN", "RESOLVES_TO").
	Type string `json:"type"`

	// Properties contains optional relationship metadata.
	Properties map[string]any `json:"properties,omitempty"`
}

// NodeRef is the stable reference returned by an upsert. It carries enough
// information to create relationships without re-deriving the key.
type NodeRef struct {
	// Kind is the entity kind of the referenced node.
	Kind string `json:"kind"`

	// Key is the deterministic node key.
	Key string `json:"key"`

	// Label is the display label at upsert time.
	Label string `json:"label"`
}

// EdgeRef is the stable reference returned by a relationship upsert.
type EdgeRef struct {
	// FromKey is the source node key.
	FromKey string `json:"from_key"`

	// ToKey is the target node key.
	ToKey string `json:"to_key"`

	// Type is the relationship type.
	Type string `json:"type"`
}
