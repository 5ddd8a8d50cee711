package template

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/reconurge/flowsint"
	"github.com/reconurge/flowsint/schema"
)

// Definition is one declarative plugin document. Loaded once per file,
// validated by Builder.Build, immutable after load.
type Definition struct {
	// Name is the unique plugin name.
	Name string `yaml:"name"`

	// Category is the plugin category (e.g., "infrastructure").
	Category string `yaml:"category"`

	// Description is a human-readable summary.
	Description string `yaml:"description"`

	// InputKind is the entity kind the plugin consumes.
	InputKind string `yaml:"input_kind"`

	// Filter is an optional CEL expression over the input entity's fields,
	// evaluated during normalize with the entity's properties bound to
	// "entity". Entities for which it returns false are dropped.
	// Example: entity.address != "127.0.0.1"
	Filter string `yaml:"filter"`

	// HTTP describes the request template.
	HTTP HTTPSpec `yaml:"http"`

	// Timeout bounds one HTTP round-trip (e.g., "10s").
	// Empty means the builder default.
	Timeout string `yaml:"timeout"`

	// Params declares externally supplied secrets/config referenced by
	// {placeholder}s in the URL or headers.
	Params map[string]ParamSpec `yaml:"params"`

	// Output describes the response-to-entity projection.
	Output OutputSpec `yaml:"output"`
}

// HTTPSpec declares the request template of a definition.
type HTTPSpec struct {
	// Method is the HTTP method; validated against an allow-list.
	Method string `yaml:"method"`

	// URL is the URL pattern with {field} placeholders substituted from
	// the input entity's fields and the declared params.
	URL string `yaml:"url"`

	// Headers are request headers; values may contain placeholders.
	Headers map[string]string `yaml:"headers"`

	// Body is the request body template, rendered per input entity with
	// the same placeholder rules as URL. Empty sends no body.
	Body string `yaml:"body"`

	// Query are static query-string parameters appended to every request.
	Query map[string]string `yaml:"query"`
}

// ParamSpec declares one externally supplied parameter.
type ParamSpec struct {
	// Type is the parameter type; only "string" is currently meaningful.
	Type string `yaml:"type"`

	// Description documents the parameter.
	Description string `yaml:"description"`

	// Secret marks credential material that must never be logged.
	Secret bool `yaml:"secret"`

	// Required parameters must be supplied before the plugin is built.
	Required bool `yaml:"required"`
}

// OutputSpec declares how response fields map to output entities.
type OutputSpec struct {
	// Kind is the entity kind the plugin produces.
	Kind string `yaml:"kind"`

	// Relationship is the relationship type between each input and its
	// derived outputs (e.g., "HAS_DOMAIN").
	Relationship string `yaml:"relationship"`

	// Each optionally selects an array in the response body; the mapping
	// paths are then resolved relative to each element, producing one
	// output entity per element. Empty means the mapping resolves against
	// the whole body and produces at most one entity per input.
	Each string `yaml:"each"`

	// Mapping maps output entity field -> response dot path.
	Mapping map[string]string `yaml:"mapping"`
}

// ParamsSchema converts the declared params into a schema for the plugin's
// Params() surface.
func (d Definition) ParamsSchema() schema.JSON {
	if len(d.Params) == 0 {
		return schema.JSON{}
	}

	properties := make(map[string]schema.JSON, len(d.Params))
	var required []string
	for name, spec := range d.Params {
		properties[name] = schema.JSON{
			Type:        defaultType(spec.Type),
			Description: spec.Description,
			Secret:      spec.Secret,
		}
		if spec.Required {
			required = append(required, name)
		}
	}

	return schema.Object(properties, required...)
}

func defaultType(t string) string {
	if t == "" {
		return "string"
	}
	return t
}

// RequestTimeout parses the definition's timeout, falling back to def when
// unset. An unparseable timeout is a definition error.
func (d Definition) RequestTimeout(def time.Duration) (time.Duration, error) {
	if d.Timeout == "" {
		return def, nil
	}
	parsed, err := time.ParseDuration(d.Timeout)
	if err != nil {
		return 0, fmt.Errorf("invalid timeout %q: %w", d.Timeout, err)
	}
	if parsed <= 0 {
		return 0, fmt.Errorf("timeout must be positive, got %q", d.Timeout)
	}
	return parsed, nil
}

// Load reads and parses one definition file. Structural validation happens
// in Builder.Build; Load only rejects unreadable or unparseable documents.
func Load(path string) (Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Definition{}, flowsint.NewTemplateError("template.Load",
			fmt.Errorf("%s: %w", path, err))
	}

	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return Definition{}, flowsint.NewTemplateError("template.Load",
			fmt.Errorf("%s: %w", path, err))
	}

	return def, nil
}

// LoadDir loads every *.yaml / *.yml definition under dir (non-recursive)
// and returns them sorted by file name. The first invalid document aborts
// with an error naming the offending file and reason: a bad definition is
// a startup failure, not a per-call one.
func LoadDir(dir string) ([]Definition, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, flowsint.NewTemplateError("template.LoadDir",
			fmt.Errorf("%s: %w", dir, err))
	}

	var defs []Definition
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}

		def, err := Load(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}

	return defs, nil
}
