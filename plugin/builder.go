package plugin

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/reconurge/flowsint"
	"github.com/reconurge/flowsint/entity"
	"github.com/reconurge/flowsint/schema"
)

// ExecuteFunc performs the plugin's work against normalized entities.
type ExecuteFunc func(ctx context.Context, entities []entity.Entity) RawResult

// EnrichFunc projects a raw payload into derivations.
type EnrichFunc func(ctx context.Context, res RawResult, inputs []entity.Entity) ([]Derivation, error)

// FilterFunc is an optional plugin-specific predicate applied during
// Normalize. Entities for which it returns false are dropped.
type FilterFunc func(e entity.Entity) bool

// Config holds the configuration for building a code plugin.
// Use NewConfig to create a new configuration, then use the setter methods
// to configure the plugin before calling New to build it.
type Config struct {
	entities     *entity.Registry
	name         string
	category     string
	description  string
	inputKind    string
	outputKind   string
	relationship string
	params       schema.JSON
	filter       FilterFunc
	execute      ExecuteFunc
	enrich       EnrichFunc
	logger       *slog.Logger
}

// NewConfig creates a plugin configuration bound to the given entity
// registry. The registry performs input coercion during Normalize.
func NewConfig(entities *entity.Registry) *Config {
	return &Config{
		entities: entities,
		logger:   slog.Default(),
	}
}

// SetName sets the plugin's unique name.
func (c *Config) SetName(name string) {
	c.name = name
}

// SetCategory sets the plugin category.
func (c *Config) SetCategory(category string) {
	c.category = category
}

// SetDescription sets the plugin description.
func (c *Config) SetDescription(desc string) {
	c.description = desc
}

// SetInputKind sets the entity kind the plugin consumes.
func (c *Config) SetInputKind(kind string) {
	c.inputKind = kind
}

// SetOutputKind sets the entity kind the plugin produces.
func (c *Config) SetOutputKind(kind string) {
	c.outputKind = kind
}

// SetRelationship sets the relationship type materialized between inputs
// and their derived outputs.
func (c *Config) SetRelationship(relType string) {
	c.relationship = relType
}

// SetParams sets the schema for externally supplied secrets/config.
func (c *Config) SetParams(params schema.JSON) {
	c.params = params
}

// SetFilter sets an optional plugin-specific predicate applied after
// coercion during Normalize.
func (c *Config) SetFilter(filter FilterFunc) {
	c.filter = filter
}

// SetExecute sets the execute stage implementation.
func (c *Config) SetExecute(fn ExecuteFunc) {
	c.execute = fn
}

// SetEnrich sets the enrich stage implementation.
func (c *Config) SetEnrich(fn EnrichFunc) {
	c.enrich = fn
}

// SetLogger sets the logger used for dropped-input diagnostics.
func (c *Config) SetLogger(logger *slog.Logger) {
	c.logger = logger
}

// New creates a Plugin from the configuration.
// Returns a configuration error if required fields are missing or the
// declared kinds are not registered.
func New(cfg *Config) (Plugin, error) {
	if cfg == nil {
		return nil, flowsint.NewConfigurationError("plugin.New",
			fmt.Errorf("config cannot be nil"))
	}
	if cfg.entities == nil {
		return nil, flowsint.NewConfigurationError("plugin.New",
			fmt.Errorf("entity registry is required"))
	}
	if cfg.name == "" {
		return nil, flowsint.NewConfigurationError("plugin.New",
			fmt.Errorf("plugin name is required"))
	}
	if cfg.execute == nil {
		return nil, flowsint.NewConfigurationError("plugin.New",
			fmt.Errorf("plugin %s: execute stage is required", cfg.name))
	}
	if cfg.enrich == nil {
		return nil, flowsint.NewConfigurationError("plugin.New",
			fmt.Errorf("plugin %s: enrich stage is required", cfg.name))
	}

	// Declared kinds must exist in the catalogue at build time,
	// not at first invocation.
	if _, err := cfg.entities.Resolve(cfg.inputKind); err != nil {
		return nil, flowsint.NewConfigurationError("plugin.New",
			fmt.Errorf("plugin %s: input kind: %w", cfg.name, err))
	}
	if _, err := cfg.entities.Resolve(cfg.outputKind); err != nil {
		return nil, flowsint.NewConfigurationError("plugin.New",
			fmt.Errorf("plugin %s: output kind: %w", cfg.name, err))
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}

	return &codePlugin{
		entities:     cfg.entities,
		name:         cfg.name,
		category:     cfg.category,
		description:  cfg.description,
		inputKind:    cfg.inputKind,
		outputKind:   cfg.outputKind,
		relationship: cfg.relationship,
		params:       cfg.params,
		filter:       cfg.filter,
		execute:      cfg.execute,
		enrich:       cfg.enrich,
		logger:       logger,
	}, nil
}

// codePlugin is the private implementation of Plugin for hand-written logic.
type codePlugin struct {
	entities     *entity.Registry
	name         string
	category     string
	description  string
	inputKind    string
	outputKind   string
	relationship string
	params       schema.JSON
	filter       FilterFunc
	execute      ExecuteFunc
	enrich       EnrichFunc
	logger       *slog.Logger
}

func (p *codePlugin) Name() string             { return p.name }
func (p *codePlugin) Category() string         { return p.category }
func (p *codePlugin) Description() string      { return p.description }
func (p *codePlugin) InputKind() string        { return p.inputKind }
func (p *codePlugin) OutputKind() string       { return p.outputKind }
func (p *codePlugin) RelationshipType() string { return p.relationship }
func (p *codePlugin) Params() schema.JSON      { return p.params }

// Normalize coerces each raw input to the plugin's input kind, dropping
// invalid elements, then applies the plugin-specific filter if set.
func (p *codePlugin) Normalize(ctx context.Context, raws []any) ([]entity.Entity, error) {
	entities, err := p.entities.NormalizeBatch(p.inputKind, raws, p.logger)
	if err != nil {
		return nil, err
	}

	if p.filter == nil {
		return entities, nil
	}

	kept := entities[:0]
	for _, ent := range entities {
		if p.filter(ent) {
			kept = append(kept, ent)
		} else {
			p.logger.Debug("dropping filtered entity",
				"plugin", p.name,
				"label", ent.Label())
		}
	}
	return kept, nil
}

// Execute delegates to the configured execute stage, converting a panic in
// hand-written logic into a failed result rather than letting it cross the
// invocation boundary.
func (p *codePlugin) Execute(ctx context.Context, entities []entity.Entity) (res RawResult) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("execute stage panicked",
				"plugin", p.name,
				"panic", r)
			res = Failed(fmt.Sprintf("internal failure: %v", r))
		}
	}()

	return p.execute(ctx, entities)
}

// Enrich delegates to the configured enrich stage.
func (p *codePlugin) Enrich(ctx context.Context, res RawResult, inputs []entity.Entity) ([]Derivation, error) {
	return p.enrich(ctx, res, inputs)
}
