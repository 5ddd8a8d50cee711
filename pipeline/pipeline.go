// Package pipeline wires the enrichment stack into one entrypoint: the
// entity catalogue, the plugin registry with the built-in enrichers, the
// template plugins loaded from a directory, and the scan runner writing
// into the graph.
//
// Example usage:
//
//	pipe, err := pipeline.New(
//	    pipeline.WithTemplateDir("plugins.d"),
//	    pipeline.WithGraphStore(store),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	outcome, err := pipe.Run(ctx, "email_to_domain",
//	    []any{"toto123@test.com"}, sketchID)
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"go.opentelemetry.io/otel/trace"

	"github.com/reconurge/flowsint"
	"github.com/reconurge/flowsint/entity"
	"github.com/reconurge/flowsint/graph"
	"github.com/reconurge/flowsint/plugin"
	"github.com/reconurge/flowsint/plugins/dnsresolve"
	"github.com/reconurge/flowsint/plugins/emaildomain"
	"github.com/reconurge/flowsint/scan"
	"github.com/reconurge/flowsint/template"
)

// Option configures a Pipeline.
type Option func(*config)

type config struct {
	templateDir string
	paramValues map[string]string
	store       graph.Store
	logger      *slog.Logger
	tracer      trace.Tracer
	httpClient  *http.Client
	recorder    scan.Recorder
	noBuiltins  bool
}

// WithTemplateDir loads declarative plugin definitions from the given
// directory at construction time. An invalid definition fails New.
func WithTemplateDir(dir string) Option {
	return func(c *config) { c.templateDir = dir }
}

// WithParamValues supplies resolved values for params declared by template
// definitions (API keys and the like).
func WithParamValues(values map[string]string) Option {
	return func(c *config) { c.paramValues = values }
}

// WithGraphStore sets the graph database the runner materializes into.
// Without a store the pipeline still runs scans; derived entities are
// returned in outcomes but nothing is persisted.
func WithGraphStore(store graph.Store) Option {
	return func(c *config) { c.store = store }
}

// WithLogger sets the logger shared by every component.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) { c.logger = logger }
}

// WithTracer sets an OpenTelemetry tracer for scan spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(c *config) { c.tracer = tracer }
}

// WithHTTPClient sets the HTTP client used by template plugins.
func WithHTTPClient(client *http.Client) Option {
	return func(c *config) { c.httpClient = client }
}

// WithRecorder sets the job state recorder.
func WithRecorder(rec scan.Recorder) Option {
	return func(c *config) { c.recorder = rec }
}

// WithoutBuiltins skips registering the built-in plugins. Used by deployments
// that run only their own template definitions.
func WithoutBuiltins() Option {
	return func(c *config) { c.noBuiltins = true }
}

// Pipeline is the assembled enrichment stack.
type Pipeline struct {
	entities *entity.Registry
	plugins  *plugin.Registry
	runner   *scan.Runner
	logger   *slog.Logger
}

// nopStore accepts and discards writes, used when no graph store is
// configured.
type nopStore struct{}

func (nopStore) Run(context.Context, string, map[string]any) error { return nil }

// New assembles a Pipeline. Construction fails on any invalid template
// definition or duplicate plugin name, so a running pipeline only ever
// contains executable plugins.
func New(opts ...Option) (*Pipeline, error) {
	cfg := &config{
		logger:     slog.Default(),
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	entities := entity.NewRegistry()
	plugins := plugin.NewRegistry()

	if !cfg.noBuiltins {
		if err := registerBuiltins(entities, plugins, cfg.logger); err != nil {
			return nil, err
		}
	}

	if cfg.templateDir != "" {
		builderOpts := []template.BuilderOption{
			template.WithHTTPClient(cfg.httpClient),
			template.WithLogger(cfg.logger),
		}
		if cfg.paramValues != nil {
			builderOpts = append(builderOpts, template.WithParamValues(cfg.paramValues))
		}

		builder := template.NewBuilder(entities, builderOpts...)
		if err := builder.BuildDir(cfg.templateDir, plugins); err != nil {
			return nil, err
		}
	}

	store := cfg.store
	if store == nil {
		store = nopStore{}
	}

	runnerOpts := []scan.RunnerOption{scan.WithLogger(cfg.logger)}
	if cfg.tracer != nil {
		runnerOpts = append(runnerOpts, scan.WithTracer(cfg.tracer))
	}
	if cfg.recorder != nil {
		runnerOpts = append(runnerOpts, scan.WithRecorder(cfg.recorder))
	}

	runner := scan.NewRunner(plugins, graph.NewMaterializer(store, cfg.logger), runnerOpts...)

	return &Pipeline{
		entities: entities,
		plugins:  plugins,
		runner:   runner,
		logger:   cfg.logger,
	}, nil
}

func registerBuiltins(entities *entity.Registry, plugins *plugin.Registry, logger *slog.Logger) error {
	builders := []func(*entity.Registry, *slog.Logger) (plugin.Plugin, error){
		emaildomain.New,
		dnsresolve.New,
	}

	for _, build := range builders {
		p, err := build(entities, logger)
		if err != nil {
			return flowsint.NewConfigurationError("pipeline.New",
				fmt.Errorf("building builtin plugin: %w", err))
		}
		if err := plugins.Register(p); err != nil {
			return err
		}
	}

	return nil
}

// Entities returns the entity catalogue, for registering custom kinds
// before loading plugins that use them.
func (p *Pipeline) Entities() *entity.Registry {
	return p.entities
}

// Plugins returns the plugin registry, for registering custom code plugins.
func (p *Pipeline) Plugins() *plugin.Registry {
	return p.plugins
}

// Run executes one scan through the runner. See scan.Runner.Run for the
// outcome semantics.
func (p *Pipeline) Run(ctx context.Context, pluginName string, rawInputs []any, sketchID string) (scan.Outcome, error) {
	return p.runner.Run(ctx, pluginName, rawInputs, sketchID)
}
