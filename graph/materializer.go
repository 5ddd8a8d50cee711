package graph

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/reconurge/flowsint"
	"github.com/reconurge/flowsint/entity"
)

// Store is the boundary to the external graph-database driver. Each call
// runs a single atomic write query with MERGE-on-key semantics.
//
// Upserts for distinct keys may run concurrently across scan jobs; the
// store's uniqueness constraint is the only serialization point.
type Store interface {
	// Run executes one write query with the given parameters.
	Run(ctx context.Context, query string, params map[string]any) error
}

// Materializer performs idempotent upserts of entities as nodes and of
// plugin-declared derivations as relationships, scoped by sketch id.
//
// Store failures (connectivity loss) degrade to a logged, non-fatal skip:
// the locally computed reference is still returned together with a
// store-kind error, so callers can keep their scan output while knowing
// the write did not land.
type Materializer struct {
	store  Store
	logger *slog.Logger
}

// NewMaterializer creates a Materializer writing through the given store.
// If logger is nil, slog.Default() is used.
func NewMaterializer(store Store, logger *slog.Logger) *Materializer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Materializer{
		store:  store,
		logger: logger,
	}
}

// UpsertNode computes the entity's deterministic node key and issues a
// MERGE-semantics write: create if absent, else update properties.
// The returned NodeRef is stable across repeated calls with the same
// (sketch_id, kind, natural_key).
func (m *Materializer) UpsertNode(ctx context.Context, sketchID string, ent entity.Entity) (NodeRef, error) {
	key, err := NodeKey(ent.Kind(), ent.NaturalKey())
	if err != nil {
		return NodeRef{}, flowsint.NewInternalError("Materializer.UpsertNode",
			fmt.Errorf("entity kind %q: %w", ent.Kind(), err))
	}

	ref := NodeRef{
		Kind:  ent.Kind(),
		Key:   key,
		Label: ent.Label(),
	}

	node := Node{
		Key:        key,
		SketchID:   sketchID,
		Kind:       ent.Kind(),
		Label:      ent.Label(),
		Properties: ent.Properties(),
		UpdatedAt:  time.Now(),
	}

	query, params, err := BuildMergeNode(node)
	if err != nil {
		return NodeRef{}, flowsint.NewInternalError("Materializer.UpsertNode", err)
	}

	if err := m.store.Run(ctx, query, params); err != nil {
		m.logger.Warn("skipping graph node write",
			"sketch_id", sketchID,
			"kind", ent.Kind(),
			"key", key,
			"error", err)
		return ref, flowsint.NewStoreError("Materializer.UpsertNode",
			fmt.Errorf("%w: %v", flowsint.ErrStoreUnavailable, err))
	}

	return ref, nil
}

// UpsertRelationship issues a MERGE-semantics write for the relationship
// keyed by the ordered (from, to, type) triple within the sketch. Repeated
// calls with identical keys update properties and create no duplicate edge.
func (m *Materializer) UpsertRelationship(ctx context.Context, sketchID string, from, to NodeRef, relType string) (EdgeRef, error) {
	ref := EdgeRef{
		FromKey: from.Key,
		ToKey:   to.Key,
		Type:    relType,
	}

	rel := Relationship{
		SketchID: sketchID,
		FromKey:  from.Key,
		ToKey:    to.Key,
		Type:     relType,
	}

	query, params, err := BuildMergeRelationship(rel)
	if err != nil {
		return EdgeRef{}, flowsint.NewInternalError("Materializer.UpsertRelationship", err)
	}

	if err := m.store.Run(ctx, query, params); err != nil {
		m.logger.Warn("skipping graph relationship write",
			"sketch_id", sketchID,
			"type", relType,
			"from", from.Key,
			"to", to.Key,
			"error", err)
		return ref, flowsint.NewStoreError("Materializer.UpsertRelationship",
			fmt.Errorf("%w: %v", flowsint.ErrStoreUnavailable, err))
	}

	return ref, nil
}
