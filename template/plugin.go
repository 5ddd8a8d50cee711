package template

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/google/cel-go/cel"

	"github.com/reconurge/flowsint"
	"github.com/reconurge/flowsint/entity"
	"github.com/reconurge/flowsint/graph"
	"github.com/reconurge/flowsint/input"
	"github.com/reconurge/flowsint/plugin"
	"github.com/reconurge/flowsint/schema"
)

// allowedMethods is the HTTP method allow-list for definitions.
var allowedMethods = map[string]bool{
	http.MethodGet:    true,
	http.MethodPost:   true,
	http.MethodPut:    true,
	http.MethodDelete: true,
	http.MethodHead:   true,
}

// DefaultRequestTimeout bounds one HTTP round-trip when a definition does
// not declare its own timeout.
const DefaultRequestTimeout = 15 * time.Second

// Builder turns validated definitions into runtime plugins.
//
// A Builder carries the collaborators every template plugin shares: the
// entity registry for coercion, the HTTP client, and the resolved values
// for declared params (API keys and the like, loaded by the external
// credential collaborator).
type Builder struct {
	entities *entity.Registry
	client   *http.Client
	logger   *slog.Logger
	timeout  time.Duration
	values   map[string]string
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithHTTPClient sets the HTTP client used by built plugins.
func WithHTTPClient(client *http.Client) BuilderOption {
	return func(b *Builder) { b.client = client }
}

// WithLogger sets the logger used by built plugins.
func WithLogger(logger *slog.Logger) BuilderOption {
	return func(b *Builder) { b.logger = logger }
}

// WithDefaultTimeout sets the per-request timeout for definitions that do
// not declare one.
func WithDefaultTimeout(d time.Duration) BuilderOption {
	return func(b *Builder) { b.timeout = d }
}

// WithParamValues supplies resolved values for declared params. Values for
// params marked secret are bound into requests but never logged.
func WithParamValues(values map[string]string) BuilderOption {
	return func(b *Builder) { b.values = values }
}

// NewBuilder creates a Builder bound to the given entity registry.
func NewBuilder(entities *entity.Registry, opts ...BuilderOption) *Builder {
	b := &Builder{
		entities: entities,
		client:   http.DefaultClient,
		logger:   slog.Default(),
		timeout:  DefaultRequestTimeout,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build validates a definition and returns the runtime plugin for it.
//
// Validation is exhaustive so that nothing fails at call time:
//   - the HTTP method is on the allow-list
//   - every placeholder in the URL, headers, and body exists in the input
//     kind's field set or the declared params
//   - every projection target exists in the output kind's field set
//   - required params have resolved values
//   - the filter expression compiles to a boolean
func (b *Builder) Build(def Definition) (plugin.Plugin, error) {
	if def.Name == "" {
		return nil, defErr(def, fmt.Errorf("definition name is required"))
	}

	inputDesc, err := b.entities.Resolve(def.InputKind)
	if err != nil {
		return nil, defErr(def, fmt.Errorf("input_kind: %w", err))
	}
	outputDesc, err := b.entities.Resolve(def.Output.Kind)
	if err != nil {
		return nil, defErr(def, fmt.Errorf("output.kind: %w", err))
	}

	method := strings.ToUpper(def.HTTP.Method)
	if !allowedMethods[method] {
		return nil, defErr(def, fmt.Errorf("http.method %q is not allowed", def.HTTP.Method))
	}
	if def.HTTP.URL == "" {
		return nil, defErr(def, fmt.Errorf("http.url is required"))
	}

	// Placeholders resolve from input entity fields and declared params.
	known := make(map[string]bool)
	for _, field := range inputDesc.Schema.FieldNames() {
		known[field] = true
	}
	for name := range def.Params {
		known[name] = true
	}

	templates := []string{def.HTTP.URL, def.HTTP.Body}
	for _, val := range def.HTTP.Headers {
		templates = append(templates, val)
	}
	for _, tmpl := range templates {
		for _, name := range Placeholders(tmpl) {
			if !known[name] {
				return nil, defErr(def, fmt.Errorf(
					"placeholder {%s} is not a field of kind %q nor a declared param", name, inputDesc.Kind))
			}
		}
	}

	// Required params must have values before the plugin exists.
	for name, spec := range def.Params {
		if spec.Required {
			if _, ok := b.values[name]; !ok {
				return nil, defErr(def, fmt.Errorf("required param %q has no value", name))
			}
		}
	}

	if len(def.Output.Mapping) == 0 {
		return nil, defErr(def, fmt.Errorf("output.mapping is required"))
	}
	for field := range def.Output.Mapping {
		if !outputDesc.Schema.HasField(field) {
			return nil, defErr(def, fmt.Errorf(
				"output.mapping targets %q, which is not a field of kind %q", field, outputDesc.Kind))
		}
	}

	if def.Output.Relationship != "" && !graph.ValidIdentifier(def.Output.Relationship) {
		return nil, defErr(def, fmt.Errorf("output.relationship %q is not a valid type name", def.Output.Relationship))
	}

	timeout, err := def.RequestTimeout(b.timeout)
	if err != nil {
		return nil, defErr(def, err)
	}

	filter, err := compileFilter(def.Filter)
	if err != nil {
		return nil, defErr(def, err)
	}

	return &templatePlugin{
		def:        def,
		entities:   b.entities,
		client:     b.client,
		logger:     b.logger,
		method:     method,
		timeout:    timeout,
		values:     b.values,
		filter:     filter,
		outputKind: outputDesc.Kind,
	}, nil
}

// BuildDir loads every definition under dir, builds each plugin, and
// registers them. The first invalid document aborts startup with the
// offending file path and reason (from Load) or definition name (from
// Build).
func (b *Builder) BuildDir(dir string, plugins *plugin.Registry) error {
	defs, err := LoadDir(dir)
	if err != nil {
		return err
	}

	for _, def := range defs {
		p, err := b.Build(def)
		if err != nil {
			return err
		}
		if err := plugins.Register(p); err != nil {
			return err
		}
	}

	return nil
}

func defErr(def Definition, err error) error {
	name := def.Name
	if name == "" {
		name = "(unnamed)"
	}
	return flowsint.NewTemplateError("template.Build",
		fmt.Errorf("%w: definition %s: %v", flowsint.ErrInvalidDefinition, name, err))
}

// compileFilter compiles the optional CEL filter. The input entity's
// properties are bound to "entity" at evaluation time.
func compileFilter(expr string) (cel.Program, error) {
	if expr == "" {
		return nil, nil
	}

	env, err := cel.NewEnv(
		cel.Variable("entity", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("filter environment: %w", err)
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("filter %q does not compile: %w", expr, issues.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("filter %q must evaluate to a boolean, got %s", expr, ast.OutputType())
	}

	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("filter %q: %w", expr, err)
	}

	return prg, nil
}

// templatePlugin is a plugin built entirely from a definition.
type templatePlugin struct {
	def        Definition
	entities   *entity.Registry
	client     *http.Client
	logger     *slog.Logger
	method     string
	timeout    time.Duration
	values     map[string]string
	filter     cel.Program
	outputKind string
}

func (p *templatePlugin) Name() string             { return p.def.Name }
func (p *templatePlugin) Category() string         { return p.def.Category }
func (p *templatePlugin) Description() string      { return p.def.Description }
func (p *templatePlugin) InputKind() string        { return p.def.InputKind }
func (p *templatePlugin) OutputKind() string       { return p.outputKind }
func (p *templatePlugin) RelationshipType() string { return p.def.Output.Relationship }
func (p *templatePlugin) Params() schema.JSON      { return p.def.ParamsSchema() }

// Normalize coerces raw inputs and applies the definition's filter.
func (p *templatePlugin) Normalize(ctx context.Context, raws []any) ([]entity.Entity, error) {
	entities, err := p.entities.NormalizeBatch(p.def.InputKind, raws, p.logger)
	if err != nil {
		return nil, err
	}

	if p.filter == nil {
		return entities, nil
	}

	kept := entities[:0]
	for _, ent := range entities {
		out, _, err := p.filter.Eval(map[string]any{"entity": ent.Properties()})
		if err != nil {
			p.logger.Debug("dropping entity on filter error",
				"plugin", p.def.Name,
				"label", ent.Label(),
				"error", err)
			continue
		}
		if keep, ok := out.Value().(bool); ok && keep {
			kept = append(kept, ent)
		}
	}
	return kept, nil
}

// Execute performs one HTTP round-trip per input entity and collects the
// decoded responses into the raw payload. A transport failure or timeout
// fails the whole invocation with a structured reason; a non-2xx status is
// recorded per item and projection simply finds nothing in it.
func (p *templatePlugin) Execute(ctx context.Context, entities []entity.Entity) plugin.RawResult {
	items := make([]any, 0, len(entities))

	for i, ent := range entities {
		bindings := p.bindings(ent)

		target, err := Render(p.def.HTTP.URL, bindings)
		if err != nil {
			// Build-time validation covers declared fields; an entity with
			// an absent optional field can still miss a binding at call time.
			return plugin.Failed(fmt.Sprintf("rendering url for %s: %v", ent.Label(), err))
		}
		target = appendQuery(target, p.def.HTTP.Query)

		body, status, err := p.roundTrip(ctx, target, bindings)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return plugin.Failed("timeout")
			}
			if errors.Is(err, context.Canceled) {
				return plugin.Failed("cancelled")
			}
			return plugin.Failed(fmt.Sprintf("request to %s: %v", p.def.Name, err))
		}

		items = append(items, map[string]any{
			"input_index": i,
			"status":      status,
			"body":        body,
		})
	}

	return plugin.Ok(map[string]any{"results": items})
}

// bindings merges resolved param values under the entity's properties.
// Entity fields win on collision.
func (p *templatePlugin) bindings(ent entity.Entity) map[string]any {
	bindings := make(map[string]any, len(p.values)+4)
	for name, val := range p.values {
		bindings[name] = val
	}
	for field, val := range ent.Properties() {
		bindings[field] = val
	}
	return bindings
}

func (p *templatePlugin) roundTrip(ctx context.Context, target string, bindings map[string]any) (any, int, error) {
	reqCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var reqBody io.Reader
	if p.def.HTTP.Body != "" {
		rendered, err := Render(p.def.HTTP.Body, bindings)
		if err != nil {
			return nil, 0, err
		}
		reqBody = strings.NewReader(rendered)
	}

	req, err := http.NewRequestWithContext(reqCtx, p.method, target, reqBody)
	if err != nil {
		return nil, 0, err
	}

	for name, tmpl := range p.def.HTTP.Headers {
		val, err := Render(tmpl, bindings)
		if err != nil {
			return nil, 0, err
		}
		req.Header.Set(name, val)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer flowsint.CloseWithLog(resp.Body, p.logger, "response body")

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, 0, err
	}

	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		// Non-JSON upstreams still yield a projectable payload.
		decoded = map[string]any{"raw": string(raw)}
	}

	return decoded, resp.StatusCode, nil
}

// Enrich applies the declared projection to each collected response,
// producing one derivation per projected entity. Responses that project
// onto values failing output-kind validation are dropped, matching the
// batch normalization policy.
func (p *templatePlugin) Enrich(ctx context.Context, res plugin.RawResult, inputs []entity.Entity) ([]plugin.Derivation, error) {
	items := resultItems(res.Payload)

	var derivations []plugin.Derivation
	for _, item := range items {
		idx := input.GetInt(item, "input_index", -1)
		if idx < 0 || idx >= len(inputs) {
			continue
		}
		body := item["body"]

		for _, projected := range p.project(body) {
			ent, err := p.entities.Coerce(p.outputKind, projected)
			if err != nil {
				p.logger.Debug("dropping unprojectable response",
					"plugin", p.def.Name,
					"error", err)
				continue
			}
			derivations = append(derivations, plugin.Derivation{
				Input:  inputs[idx],
				Output: ent,
			})
		}
	}

	return derivations, nil
}

// project resolves the mapping against one response body, honoring the
// optional "each" array selector.
func (p *templatePlugin) project(body any) []map[string]any {
	roots := []any{body}

	if p.def.Output.Each != "" {
		selected, ok := LookupPath(body, p.def.Output.Each)
		if !ok {
			return nil
		}
		arr, ok := selected.([]any)
		if !ok {
			return nil
		}
		roots = arr
	}

	// Stable field order keeps projection deterministic for tests.
	fields := make([]string, 0, len(p.def.Output.Mapping))
	for field := range p.def.Output.Mapping {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	var projected []map[string]any
	for _, root := range roots {
		record := make(map[string]any, len(fields))
		complete := true
		for _, field := range fields {
			val, ok := LookupPath(root, p.def.Output.Mapping[field])
			if !ok || val == nil {
				complete = false
				break
			}
			record[field] = val
		}
		if complete {
			projected = append(projected, record)
		}
	}

	return projected
}

func resultItems(payload map[string]any) []map[string]any {
	raw, ok := payload["results"]
	if !ok {
		return nil
	}

	switch items := raw.(type) {
	case []map[string]any:
		return items
	case []any:
		result := make([]map[string]any, 0, len(items))
		for _, item := range items {
			if m, ok := item.(map[string]any); ok {
				result = append(result, m)
			}
		}
		return result
	default:
		return nil
	}
}

func appendQuery(target string, query map[string]string) string {
	if len(query) == 0 {
		return target
	}

	values := url.Values{}
	for name, val := range query {
		values.Set(name, val)
	}

	sep := "?"
	if strings.Contains(target, "?") {
		sep = "&"
	}
	return target + sep + values.Encode()
}
