package scan

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reconurge/flowsint"
	"github.com/reconurge/flowsint/entity"
	"github.com/reconurge/flowsint/graph"
	"github.com/reconurge/flowsint/plugin"
)

// fakeStore simulates MERGE-on-key semantics so node and edge counts are
// observable across repeated runs.
type fakeStore struct {
	mu      sync.Mutex
	nodes   map[string]bool
	edges   map[string]bool
	failAll bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{nodes: make(map[string]bool), edges: make(map[string]bool)}
}

func (s *fakeStore) Run(ctx context.Context, query string, params map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failAll {
		return errors.New("connection refused")
	}

	sketchID, _ := params["sketch_id"].(string)
	if strings.Contains(query, "MERGE (n:") {
		key, _ := params["key"].(string)
		s.nodes[sketchID+"/"+key] = true
		return nil
	}

	from, _ := params["from_key"].(string)
	to, _ := params["to_key"].(string)
	s.edges[sketchID+"/"+from+"->"+to] = true
	return nil
}

func (s *fakeStore) counts() (nodes, edges int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.nodes), len(s.edges)
}

// memoryRecorder captures every job update the runner makes.
type memoryRecorder struct {
	mu       sync.Mutex
	statuses []Status
}

func (r *memoryRecorder) Record(ctx context.Context, job *Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, job.Status)
	return nil
}

func emailToDomainPlugin(t *testing.T) plugin.Plugin {
	t.Helper()

	cfg := plugin.NewConfig(entity.NewRegistry())
	cfg.SetName("email_to_domain")
	cfg.SetInputKind(entity.KindEmail)
	cfg.SetOutputKind(entity.KindDomain)
	cfg.SetRelationship("HAS_DOMAIN")
	cfg.SetLogger(slog.New(slog.DiscardHandler))
	cfg.SetExecute(func(ctx context.Context, entities []entity.Entity) plugin.RawResult {
		return plugin.Ok(map[string]any{})
	})
	cfg.SetEnrich(func(ctx context.Context, res plugin.RawResult, inputs []entity.Entity) ([]plugin.Derivation, error) {
		var out []plugin.Derivation
		for _, in := range inputs {
			email := in.(entity.Email)
			out = append(out, plugin.Derivation{
				Input:  in,
				Output: entity.Domain{Domain: email.DomainPart()},
			})
		}
		return out, nil
	})

	p, err := plugin.New(cfg)
	require.NoError(t, err)
	return p
}

func newTestRunner(t *testing.T, p plugin.Plugin, store graph.Store, opts ...RunnerOption) *Runner {
	t.Helper()

	plugins := plugin.NewRegistry()
	if p != nil {
		require.NoError(t, plugins.Register(p))
	}

	logger := slog.New(slog.DiscardHandler)
	opts = append([]RunnerOption{WithLogger(logger)}, opts...)
	return NewRunner(plugins, graph.NewMaterializer(store, logger), opts...)
}

func TestRun_MaterializesDerivations(t *testing.T) {
	store := newFakeStore()
	recorder := &memoryRecorder{}
	runner := newTestRunner(t, emailToDomainPlugin(t), store, WithRecorder(recorder))

	outcome, err := runner.Run(context.Background(), "email_to_domain",
		[]any{"toto123@test.com"}, "sk-1")
	require.NoError(t, err)

	assert.Equal(t, StatusFinished, outcome.Job.Status)
	require.Len(t, outcome.Entities, 1)
	require.Len(t, outcome.Derivations, 1)
	assert.Equal(t, entity.Domain{Domain: "test.com"}, outcome.Derivations[0].Output)

	// One email node, one domain node, one HAS_DOMAIN edge.
	nodes, edges := store.counts()
	assert.Equal(t, 2, nodes)
	assert.Equal(t, 1, edges)

	// The recorder saw exactly two updates: running then terminal.
	assert.Equal(t, []Status{StatusRunning, StatusFinished}, recorder.statuses)
}

func TestRun_Idempotent(t *testing.T) {
	store := newFakeStore()
	runner := newTestRunner(t, emailToDomainPlugin(t), store)

	for range 3 {
		_, err := runner.Run(context.Background(), "email_to_domain",
			[]any{"toto123@test.com"}, "sk-1")
		require.NoError(t, err)
	}

	// Re-running the same scan creates no duplicate nodes or edges.
	nodes, edges := store.counts()
	assert.Equal(t, 2, nodes)
	assert.Equal(t, 1, edges)
}

func TestRun_DropsInvalidInputs(t *testing.T) {
	store := newFakeStore()
	runner := newTestRunner(t, emailToDomainPlugin(t), store)

	outcome, err := runner.Run(context.Background(), "email_to_domain",
		[]any{"toto123@test.com", "not-an-email", map[string]any{"email": "a@b.com"}}, "sk-1")
	require.NoError(t, err)

	assert.Equal(t, StatusFinished, outcome.Job.Status)
	assert.Len(t, outcome.Entities, 2)
	assert.Len(t, outcome.Derivations, 2)
}

func TestRun_UnknownPlugin(t *testing.T) {
	store := newFakeStore()
	recorder := &memoryRecorder{}
	runner := newTestRunner(t, nil, store, WithRecorder(recorder))

	outcome, err := runner.Run(context.Background(), "missing", []any{"x"}, "sk-1")

	require.Error(t, err)
	assert.ErrorIs(t, err, flowsint.ErrPluginNotFound)
	assert.Equal(t, StatusError, outcome.Job.Status)
	require.NotNil(t, outcome.Job.Failure)
	assert.Equal(t, flowsint.KindNotFound, outcome.Job.Failure.Kind)

	// Nothing reached the graph.
	nodes, edges := store.counts()
	assert.Zero(t, nodes)
	assert.Zero(t, edges)
}

func TestRun_ExecutionFailureSkipsEnrich(t *testing.T) {
	enrichCalled := false

	cfg := plugin.NewConfig(entity.NewRegistry())
	cfg.SetName("slow_scanner")
	cfg.SetInputKind(entity.KindDomain)
	cfg.SetOutputKind(entity.KindIp)
	cfg.SetLogger(slog.New(slog.DiscardHandler))
	cfg.SetExecute(func(ctx context.Context, entities []entity.Entity) plugin.RawResult {
		return plugin.Failed("timeout")
	})
	cfg.SetEnrich(func(ctx context.Context, res plugin.RawResult, inputs []entity.Entity) ([]plugin.Derivation, error) {
		enrichCalled = true
		return nil, nil
	})
	p, err := plugin.New(cfg)
	require.NoError(t, err)

	store := newFakeStore()
	runner := newTestRunner(t, p, store)

	outcome, err := runner.Run(context.Background(), "slow_scanner", []any{"example.com"}, "sk-1")
	require.NoError(t, err)

	assert.Equal(t, StatusError, outcome.Job.Status)
	require.NotNil(t, outcome.Job.Failure)
	assert.Equal(t, flowsint.KindTimeout, outcome.Job.Failure.Kind)
	assert.Equal(t, "timeout", outcome.Job.Failure.Message)
	assert.False(t, enrichCalled, "enrich must not run after a failed execute")

	nodes, edges := store.counts()
	assert.Zero(t, nodes)
	assert.Zero(t, edges)
}

func TestRun_PluginPanicFailsJobOnly(t *testing.T) {
	cfg := plugin.NewConfig(entity.NewRegistry())
	cfg.SetName("panicky")
	cfg.SetInputKind(entity.KindDomain)
	cfg.SetOutputKind(entity.KindIp)
	cfg.SetLogger(slog.New(slog.DiscardHandler))
	cfg.SetExecute(func(ctx context.Context, entities []entity.Entity) plugin.RawResult {
		panic("boom")
	})
	cfg.SetEnrich(func(ctx context.Context, res plugin.RawResult, inputs []entity.Entity) ([]plugin.Derivation, error) {
		return nil, nil
	})
	p, err := plugin.New(cfg)
	require.NoError(t, err)

	runner := newTestRunner(t, p, newFakeStore())

	outcome, err := runner.Run(context.Background(), "panicky", []any{"example.com"}, "sk-1")
	require.NoError(t, err)

	assert.Equal(t, StatusError, outcome.Job.Status)
	require.NotNil(t, outcome.Job.Failure)
	assert.Contains(t, outcome.Job.Failure.Message, "internal failure")
}

func TestRun_StoreFailureStillFinishes(t *testing.T) {
	store := newFakeStore()
	store.failAll = true
	runner := newTestRunner(t, emailToDomainPlugin(t), store)

	outcome, err := runner.Run(context.Background(), "email_to_domain",
		[]any{"toto123@test.com"}, "sk-1")
	require.NoError(t, err)

	// Derived entities survive even though no write landed.
	assert.Equal(t, StatusFinished, outcome.Job.Status)
	assert.Len(t, outcome.Derivations, 1)
	assert.Positive(t, outcome.SkippedWrites)
}
