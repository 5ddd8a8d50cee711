package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reconurge/flowsint/scan"
)

// fakeStore counts queries by shape, enough to assert materialization
// happened without a graph database.
type fakeStore struct {
	mu      sync.Mutex
	queries []string
}

func (s *fakeStore) Run(ctx context.Context, query string, params map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries = append(s.queries, query)
	return nil
}

func (s *fakeStore) count(substr string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, q := range s.queries {
		if strings.Contains(q, substr) {
			n++
		}
	}
	return n
}

const geoIPDefinition = `
name: geo_ip
category: infrastructure
input_kind: ip
http:
  method: GET
  url: "http://svc.test/{address}"
output:
  kind: domain
  relationship: RESOLVES_TO
  mapping:
    domain: hostname
`

func discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestNew_RegistersBuiltins(t *testing.T) {
	pipe, err := New(WithLogger(discard()))
	require.NoError(t, err)

	names := pipe.Plugins().Names()
	assert.Contains(t, names, "email_to_domain")
	assert.Contains(t, names, "dns_resolve")
}

func TestNew_WithoutBuiltins(t *testing.T) {
	pipe, err := New(WithLogger(discard()), WithoutBuiltins())
	require.NoError(t, err)

	assert.Empty(t, pipe.Plugins().Names())
}

func TestNew_LoadsTemplateDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "geo_ip.yaml"), []byte(geoIPDefinition), 0o644))

	pipe, err := New(WithLogger(discard()), WithTemplateDir(dir))
	require.NoError(t, err)

	assert.Contains(t, pipe.Plugins().Names(), "geo_ip")
}

func TestNew_FailsOnInvalidDefinition(t *testing.T) {
	dir := t.TempDir()
	broken := strings.Replace(geoIPDefinition, "method: GET", "method: TRACE", 1)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "geo_ip.yaml"), []byte(broken), 0o644))

	_, err := New(WithLogger(discard()), WithTemplateDir(dir))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not allowed")
}

func TestRun_EndToEnd(t *testing.T) {
	store := &fakeStore{}
	pipe, err := New(WithLogger(discard()), WithGraphStore(store))
	require.NoError(t, err)

	outcome, err := pipe.Run(context.Background(), "email_to_domain",
		[]any{"toto123@test.com"}, "sk-1")
	require.NoError(t, err)

	assert.Equal(t, scan.StatusFinished, outcome.Job.Status)
	require.Len(t, outcome.Derivations, 1)

	// One MERGE per node plus one for the HAS_DOMAIN edge.
	assert.Equal(t, 1, store.count("HAS_DOMAIN"))
	assert.GreaterOrEqual(t, store.count("MERGE"), 3)
}

func TestRun_NoStoreStillProducesDerivations(t *testing.T) {
	pipe, err := New(WithLogger(discard()))
	require.NoError(t, err)

	outcome, err := pipe.Run(context.Background(), "email_to_domain",
		[]any{"a@b.com"}, "sk-1")
	require.NoError(t, err)

	assert.Equal(t, scan.StatusFinished, outcome.Job.Status)
	assert.Len(t, outcome.Derivations, 1)
	assert.Zero(t, outcome.SkippedWrites)
}

func TestRun_UnknownPlugin(t *testing.T) {
	pipe, err := New(WithLogger(discard()))
	require.NoError(t, err)

	_, err = pipe.Run(context.Background(), "no_such_plugin", []any{"x"}, "sk-1")
	require.Error(t, err)
}

func ExampleNew() {
	pipe, err := New(WithLogger(slog.New(slog.DiscardHandler)))
	if err != nil {
		panic(err)
	}

	outcome, err := pipe.Run(context.Background(), "email_to_domain",
		[]any{"toto123@test.com"}, "sketch-1")
	if err != nil {
		panic(err)
	}

	fmt.Println(outcome.Job.Status)
	fmt.Println(outcome.Derivations[0].Output.Properties()["domain"])
	// Output:
	// finished
	// test.com
}
