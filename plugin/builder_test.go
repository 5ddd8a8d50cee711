package plugin

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reconurge/flowsint"
	"github.com/reconurge/flowsint/entity"
)

func TestNew_RequiresStagesAndKinds(t *testing.T) {
	entities := entity.NewRegistry()
	execute := func(ctx context.Context, ents []entity.Entity) RawResult { return Ok(nil) }
	enrich := func(ctx context.Context, res RawResult, inputs []entity.Entity) ([]Derivation, error) {
		return nil, nil
	}

	tests := []struct {
		name      string
		configure func(*Config)
	}{
		{
			name:      "missing name",
			configure: func(c *Config) { c.SetName("") },
		},
		{
			name:      "missing execute",
			configure: func(c *Config) { c.SetExecute(nil) },
		},
		{
			name:      "missing enrich",
			configure: func(c *Config) { c.SetEnrich(nil) },
		},
		{
			name:      "unknown input kind",
			configure: func(c *Config) { c.SetInputKind("satellite") },
		},
		{
			name:      "unknown output kind",
			configure: func(c *Config) { c.SetOutputKind("satellite") },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig(entities)
			cfg.SetName("test_plugin")
			cfg.SetInputKind(entity.KindEmail)
			cfg.SetOutputKind(entity.KindDomain)
			cfg.SetExecute(execute)
			cfg.SetEnrich(enrich)

			tt.configure(cfg)

			_, err := New(cfg)
			require.Error(t, err)
			assert.True(t, errors.Is(err, &flowsint.Error{Kind: flowsint.KindConfiguration}))
		})
	}
}

func TestNormalize_CoercesAndFilters(t *testing.T) {
	cfg := NewConfig(entity.NewRegistry())
	cfg.SetName("test_plugin")
	cfg.SetInputKind(entity.KindEmail)
	cfg.SetOutputKind(entity.KindDomain)
	cfg.SetLogger(slog.New(slog.DiscardHandler))
	cfg.SetFilter(func(e entity.Entity) bool {
		return e.(entity.Email).DomainPart() != "spam.test"
	})
	cfg.SetExecute(func(ctx context.Context, ents []entity.Entity) RawResult { return Ok(nil) })
	cfg.SetEnrich(func(ctx context.Context, res RawResult, inputs []entity.Entity) ([]Derivation, error) {
		return nil, nil
	})

	p, err := New(cfg)
	require.NoError(t, err)

	entities, err := p.Normalize(context.Background(), []any{
		"alice@example.com",
		"not-an-email",
		"bob@spam.test",
	})

	require.NoError(t, err)
	require.Len(t, entities, 1)
	assert.Equal(t, entity.Email{Email: "alice@example.com"}, entities[0])
}

func TestExecute_PanicBecomesFailedResult(t *testing.T) {
	cfg := NewConfig(entity.NewRegistry())
	cfg.SetName("panicky")
	cfg.SetInputKind(entity.KindEmail)
	cfg.SetOutputKind(entity.KindDomain)
	cfg.SetLogger(slog.New(slog.DiscardHandler))
	cfg.SetExecute(func(ctx context.Context, ents []entity.Entity) RawResult {
		panic("unexpected state")
	})
	cfg.SetEnrich(func(ctx context.Context, res RawResult, inputs []entity.Entity) ([]Derivation, error) {
		return nil, nil
	})

	p, err := New(cfg)
	require.NoError(t, err)

	res := p.Execute(context.Background(), nil)
	assert.True(t, res.IsFailure())
	assert.Contains(t, res.Reason, "internal failure")
	assert.Contains(t, res.Reason, "unexpected state")
}

func TestResultStates(t *testing.T) {
	ok := Ok(map[string]any{"answer": 42})
	assert.True(t, ok.OK())
	assert.False(t, ok.IsFailure())
	assert.Equal(t, 42, ok.Payload["answer"])

	failed := Failed("timeout")
	assert.False(t, failed.OK())
	assert.True(t, failed.IsFailure())
	assert.Equal(t, "timeout", failed.Reason)
}

func TestOutputs(t *testing.T) {
	derivations := []Derivation{
		{Input: entity.Email{Email: "a@b.com"}, Output: entity.Domain{Domain: "b.com"}},
		{Input: entity.Email{Email: "c@d.com"}, Output: entity.Domain{Domain: "d.com"}},
	}

	outputs := Outputs(derivations)
	require.Len(t, outputs, 2)
	assert.Equal(t, entity.Domain{Domain: "b.com"}, outputs[0])
	assert.Equal(t, entity.Domain{Domain: "d.com"}, outputs[1])
}
