package graph

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reconurge/flowsint"
	"github.com/reconurge/flowsint/entity"
)

// recordingStore captures every query it runs and simulates MERGE-on-key
// node semantics so idempotence is observable.
type recordingStore struct {
	mu      sync.Mutex
	queries []string
	params  []map[string]any
	nodes   map[string]map[string]any // (sketch_id, key) -> props
	failAll bool
}

func newRecordingStore() *recordingStore {
	return &recordingStore{nodes: make(map[string]map[string]any)}
}

func (s *recordingStore) Run(ctx context.Context, query string, params map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failAll {
		return errors.New("connection refused")
	}

	s.queries = append(s.queries, query)
	s.params = append(s.params, params)

	if key, ok := params["key"].(string); ok {
		sketchID, _ := params["sketch_id"].(string)
		props, _ := params["props"].(map[string]any)
		s.nodes[sketchID+"/"+key] = props
	}

	return nil
}

func (s *recordingStore) nodeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.nodes)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestUpsertNode_Idempotent(t *testing.T) {
	store := newRecordingStore()
	m := NewMaterializer(store, discardLogger())
	ctx := context.Background()

	ref1, err := m.UpsertNode(ctx, "sk-1", entity.Domain{Domain: "example.com"})
	require.NoError(t, err)

	ref2, err := m.UpsertNode(ctx, "sk-1", entity.Domain{Domain: "example.com", Registrar: "R"})
	require.NoError(t, err)

	// Same natural key, same node: two writes, one node, stable ref.
	assert.Equal(t, ref1.Key, ref2.Key)
	assert.Equal(t, 1, store.nodeCount())
	assert.Len(t, store.queries, 2)

	// The second write carried the updated properties.
	assert.Equal(t, "R", store.nodes["sk-1/"+ref2.Key]["registrar"])
}

func TestUpsertNode_SketchScoping(t *testing.T) {
	store := newRecordingStore()
	m := NewMaterializer(store, discardLogger())
	ctx := context.Background()

	ref1, err := m.UpsertNode(ctx, "sk-1", entity.Domain{Domain: "example.com"})
	require.NoError(t, err)
	ref2, err := m.UpsertNode(ctx, "sk-2", entity.Domain{Domain: "example.com"})
	require.NoError(t, err)

	// Same entity in two sketches: same deterministic key, distinct nodes.
	assert.Equal(t, ref1.Key, ref2.Key)
	assert.Equal(t, 2, store.nodeCount())
}

func TestUpsertNode_StoreFailureDegrades(t *testing.T) {
	store := newRecordingStore()
	store.failAll = true
	m := NewMaterializer(store, discardLogger())

	ref, err := m.UpsertNode(context.Background(), "sk-1", entity.Domain{Domain: "example.com"})

	// The write was skipped but the caller still gets the computed ref.
	require.Error(t, err)
	assert.ErrorIs(t, err, flowsint.ErrStoreUnavailable)
	assert.NotEmpty(t, ref.Key)
	assert.Equal(t, "domain", ref.Kind)
	assert.Equal(t, "example.com", ref.Label)
}

func TestUpsertRelationship(t *testing.T) {
	store := newRecordingStore()
	m := NewMaterializer(store, discardLogger())
	ctx := context.Background()

	from, err := m.UpsertNode(ctx, "sk-1", entity.Email{Email: "alice@example.com"})
	require.NoError(t, err)
	to, err := m.UpsertNode(ctx, "sk-1", entity.Domain{Domain: "example.com"})
	require.NoError(t, err)

	edge, err := m.UpsertRelationship(ctx, "sk-1", from, to, "HAS_DOMAIN")
	require.NoError(t, err)

	assert.Equal(t, from.Key, edge.FromKey)
	assert.Equal(t, to.Key, edge.ToKey)
	assert.Equal(t, "HAS_DOMAIN", edge.Type)

	require.Len(t, store.queries, 3)
	assert.Contains(t, store.queries[2], "MERGE (a)-[r:HAS_DOMAIN]->(b)")
}

func TestUpsertRelationship_InvalidType(t *testing.T) {
	store := newRecordingStore()
	m := NewMaterializer(store, discardLogger())

	from := NodeRef{Key: "a", Kind: "email"}
	to := NodeRef{Key: "b", Kind: "domain"}

	_, err := m.UpsertRelationship(context.Background(), "sk-1", from, to, "bad type;")
	require.Error(t, err)
	assert.True(t, errors.Is(err, &flowsint.Error{Kind: flowsint.KindInternal}))
}
