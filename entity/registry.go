package entity

import (
	"fmt"
	"log/slog"
	"net/mail"
	"net/netip"
	"sort"
	"strings"
	"sync"

	"github.com/reconurge/flowsint"
	"github.com/reconurge/flowsint/input"
	"github.com/reconurge/flowsint/schema"
)

// Descriptor describes a registered entity kind: its schema, its scalar
// defining field (if any), and its constructor.
type Descriptor struct {
	// Kind is the canonical lowercase kind name.
	Kind string

	// Schema is the validation schema for raw map values.
	Schema schema.JSON

	// ScalarField is the single defining field a bare scalar maps onto
	// (e.g., "domain" for the domain kind). Empty for multi-field kinds,
	// which cannot be coerced from a bare scalar.
	ScalarField string

	// New constructs a validated entity from a raw map. It is called after
	// schema validation and performs any kind-specific semantic checks
	// (address syntax, etc.).
	New func(raw map[string]any) (Entity, error)
}

// Registry is the process-wide mapping from kind name to descriptor.
//
// Registration is append-only at process start; lookups never mutate the
// registry, so concurrent reads after startup require no synchronization.
// The mutex only guards the startup registration window.
type Registry struct {
	mu    sync.RWMutex
	kinds map[string]Descriptor
}

// NewRegistry creates a Registry pre-populated with the built-in kinds:
// domain, ip, email, username, individual, organization, phone, url.
func NewRegistry() *Registry {
	r := &Registry{kinds: make(map[string]Descriptor)}

	for _, d := range builtinDescriptors() {
		// Built-in kinds cannot collide.
		r.kinds[d.Kind] = d
	}

	return r
}

// Register adds a kind to the registry. Registering a kind name that is
// already present is a configuration error: the catalogue is a closed,
// explicitly enumerated set populated once at startup.
func (r *Registry) Register(d Descriptor) error {
	if d.Kind == "" {
		return flowsint.NewConfigurationError("Registry.Register",
			fmt.Errorf("descriptor kind cannot be empty"))
	}
	if d.New == nil {
		return flowsint.NewConfigurationError("Registry.Register",
			fmt.Errorf("descriptor for kind %q has no constructor", d.Kind))
	}

	key := strings.ToLower(d.Kind)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.kinds[key]; exists {
		return flowsint.NewConfigurationError("Registry.Register",
			fmt.Errorf("kind %q is already registered", key))
	}

	d.Kind = key
	r.kinds[key] = d
	return nil
}

// Resolve looks up a kind by name, case-insensitively.
// Unknown kind names fail with a not_found error rather than silently
// producing a generic record.
func (r *Registry) Resolve(kind string) (Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.kinds[strings.ToLower(kind)]
	if !ok {
		return Descriptor{}, flowsint.NewNotFoundError("Registry.Resolve",
			fmt.Errorf("%w: %s", flowsint.ErrKindNotFound, kind))
	}
	return d, nil
}

// Kinds returns a sorted list of all registered kind names.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.kinds))
	for name := range r.kinds {
		names = append(names, name)
	}

	sort.Strings(names)
	return names
}

// Coerce normalizes a raw value into a validated entity of the given kind.
//
// Coercion policy:
//   - an Entity of the target kind passes through unchanged
//   - a map is validated against the kind's schema, then constructed
//   - a bare scalar is mapped onto the kind's single defining field, then
//     validated and constructed
//
// Any failure is a validation error; Coerce never returns a
// partially-populated record.
func (r *Registry) Coerce(kind string, raw any) (Entity, error) {
	d, err := r.Resolve(kind)
	if err != nil {
		return nil, err
	}

	// Already-typed entities of the target kind pass through.
	if ent, ok := raw.(Entity); ok {
		if ent.Kind() != d.Kind {
			return nil, flowsint.NewValidationError("Registry.Coerce",
				fmt.Errorf("entity of kind %q cannot be coerced to %q", ent.Kind(), d.Kind))
		}
		return ent, nil
	}

	var fields map[string]any
	switch v := raw.(type) {
	case map[string]any:
		fields = v
	case string:
		if d.ScalarField == "" {
			return nil, flowsint.NewValidationError("Registry.Coerce",
				fmt.Errorf("kind %q has no single defining field, cannot coerce bare scalar %q", d.Kind, v))
		}
		fields = map[string]any{d.ScalarField: strings.TrimSpace(v)}
	default:
		if d.ScalarField == "" {
			return nil, flowsint.NewValidationError("Registry.Coerce",
				fmt.Errorf("kind %q cannot be coerced from %T", d.Kind, raw))
		}
		fields = map[string]any{d.ScalarField: raw}
	}

	if err := d.Schema.Validate(fields); err != nil {
		return nil, flowsint.NewValidationError("Registry.Coerce",
			fmt.Errorf("kind %q: %w", d.Kind, err))
	}

	ent, err := d.New(fields)
	if err != nil {
		return nil, flowsint.NewValidationError("Registry.Coerce",
			fmt.Errorf("kind %q: %w", d.Kind, err))
	}

	return ent, nil
}

// NormalizeBatch coerces each raw value and drops the ones that fail.
//
// Raw input streams are mixed-quality, so batch preprocessing skips invalid
// elements instead of aborting on the first one. Dropped values are logged
// at debug level. The returned slice preserves input order.
func (r *Registry) NormalizeBatch(kind string, raws []any, logger *slog.Logger) ([]Entity, error) {
	// Unknown kinds abort; per-element failures do not.
	if _, err := r.Resolve(kind); err != nil {
		return nil, err
	}

	if logger == nil {
		logger = slog.Default()
	}

	entities := make([]Entity, 0, len(raws))
	for _, raw := range raws {
		ent, err := r.Coerce(kind, raw)
		if err != nil {
			logger.Debug("dropping invalid batch element",
				"kind", kind,
				"value", fmt.Sprintf("%.80v", raw),
				"error", err)
			continue
		}
		entities = append(entities, ent)
	}

	return entities, nil
}

// builtinDescriptors returns the descriptors for the built-in kind catalogue.
func builtinDescriptors() []Descriptor {
	return []Descriptor{
		{
			Kind: KindDomain,
			Schema: schema.Object(map[string]schema.JSON{
				"domain":      {Type: "string", MinLength: intPtr(1)},
				"registrar":   schema.String(),
				"created_at":  schema.String(),
				"expires_at":  schema.String(),
				"nameservers": schema.Array(schema.String()),
			}, "domain"),
			ScalarField: "domain",
			New: func(raw map[string]any) (Entity, error) {
				name := strings.ToLower(strings.TrimSpace(input.GetString(raw, "domain", "")))
				if err := validateDomainName(name); err != nil {
					return nil, err
				}
				return Domain{
					Domain:      name,
					Registrar:   input.GetString(raw, "registrar", ""),
					CreatedAt:   input.GetString(raw, "created_at", ""),
					ExpiresAt:   input.GetString(raw, "expires_at", ""),
					Nameservers: input.GetStringSlice(raw, "nameservers"),
				}, nil
			},
		},
		{
			Kind: KindIp,
			Schema: schema.Object(map[string]schema.JSON{
				"address":  {Type: "string", MinLength: intPtr(1)},
				"asn":      schema.String(),
				"country":  schema.String(),
				"city":     schema.String(),
				"hostname": schema.String(),
			}, "address"),
			ScalarField: "address",
			New: func(raw map[string]any) (Entity, error) {
				addr := strings.TrimSpace(input.GetString(raw, "address", ""))
				parsed, err := netip.ParseAddr(addr)
				if err != nil {
					return nil, fmt.Errorf("field %q: not a valid IP address: %q", "address", addr)
				}
				return Ip{
					Address:  parsed.String(),
					ASN:      input.GetString(raw, "asn", ""),
					Country:  input.GetString(raw, "country", ""),
					City:     input.GetString(raw, "city", ""),
					Hostname: input.GetString(raw, "hostname", ""),
				}, nil
			},
		},
		{
			Kind: KindEmail,
			Schema: schema.Object(map[string]schema.JSON{
				"email":      {Type: "string", MinLength: intPtr(3)},
				"provider":   schema.String(),
				"disposable": schema.Bool(),
			}, "email"),
			ScalarField: "email",
			New: func(raw map[string]any) (Entity, error) {
				addr := strings.ToLower(strings.TrimSpace(input.GetString(raw, "email", "")))
				parsed, err := mail.ParseAddress(addr)
				if err != nil {
					return nil, fmt.Errorf("field %q: not a valid email address: %q", "email", addr)
				}
				if !strings.Contains(parsed.Address, "@") || strings.HasSuffix(parsed.Address, "@") {
					return nil, fmt.Errorf("field %q: not a valid email address: %q", "email", addr)
				}
				return Email{
					Email:      parsed.Address,
					Provider:   input.GetString(raw, "provider", ""),
					Disposable: input.GetBool(raw, "disposable", false),
				}, nil
			},
		},
		{
			Kind: KindUsername,
			Schema: schema.Object(map[string]schema.JSON{
				"username":    {Type: "string", MinLength: intPtr(1)},
				"platform":    schema.String(),
				"profile_url": schema.String(),
			}, "username"),
			ScalarField: "username",
			New: func(raw map[string]any) (Entity, error) {
				handle := strings.TrimSpace(input.GetString(raw, "username", ""))
				if handle == "" {
					return nil, fmt.Errorf("field %q: cannot be empty", "username")
				}
				return Username{
					Username:   handle,
					Platform:   input.GetString(raw, "platform", ""),
					ProfileURL: input.GetString(raw, "profile_url", ""),
				}, nil
			},
		},
		{
			Kind: KindIndividual,
			Schema: schema.Object(map[string]schema.JSON{
				"first_name":  {Type: "string", MinLength: intPtr(1)},
				"last_name":   {Type: "string", MinLength: intPtr(1)},
				"birth_date":  schema.String(),
				"nationality": schema.String(),
			}, "first_name", "last_name"),
			// Two defining fields, so no bare-scalar form.
			ScalarField: "",
			New: func(raw map[string]any) (Entity, error) {
				first := strings.TrimSpace(input.GetString(raw, "first_name", ""))
				last := strings.TrimSpace(input.GetString(raw, "last_name", ""))
				if first == "" || last == "" {
					return nil, fmt.Errorf("fields %q and %q cannot be empty", "first_name", "last_name")
				}
				return Individual{
					FirstName:   first,
					LastName:    last,
					BirthDate:   input.GetString(raw, "birth_date", ""),
					Nationality: input.GetString(raw, "nationality", ""),
				}, nil
			},
		},
		{
			Kind: KindOrganization,
			Schema: schema.Object(map[string]schema.JSON{
				"name":     {Type: "string", MinLength: intPtr(1)},
				"country":  schema.String(),
				"website":  schema.String(),
				"industry": schema.String(),
			}, "name"),
			ScalarField: "name",
			New: func(raw map[string]any) (Entity, error) {
				name := strings.TrimSpace(input.GetString(raw, "name", ""))
				if name == "" {
					return nil, fmt.Errorf("field %q: cannot be empty", "name")
				}
				return Organization{
					Name:     name,
					Country:  input.GetString(raw, "country", ""),
					Website:  input.GetString(raw, "website", ""),
					Industry: input.GetString(raw, "industry", ""),
				}, nil
			},
		},
		{
			Kind: KindPhone,
			Schema: schema.Object(map[string]schema.JSON{
				"number":  {Type: "string", MinLength: intPtr(3)},
				"country": schema.String(),
				"carrier": schema.String(),
			}, "number"),
			ScalarField: "number",
			New: func(raw map[string]any) (Entity, error) {
				number := strings.TrimSpace(input.GetString(raw, "number", ""))
				if err := validatePhoneNumber(number); err != nil {
					return nil, err
				}
				return Phone{
					Number:  number,
					Country: input.GetString(raw, "country", ""),
					Carrier: input.GetString(raw, "carrier", ""),
				}, nil
			},
		},
		{
			Kind: KindUrl,
			Schema: schema.Object(map[string]schema.JSON{
				"url":         {Type: "string", MinLength: intPtr(1), Pattern: `^https?://`},
				"title":       schema.String(),
				"status_code": schema.Int(),
			}, "url"),
			ScalarField: "url",
			New: func(raw map[string]any) (Entity, error) {
				addr := strings.TrimSpace(input.GetString(raw, "url", ""))
				if addr == "" {
					return nil, fmt.Errorf("field %q: cannot be empty", "url")
				}
				return Url{
					URL:        addr,
					Title:      input.GetString(raw, "title", ""),
					StatusCode: input.GetInt(raw, "status_code", 0),
				}, nil
			},
		},
	}
}

// validateDomainName applies the minimal syntax rules the pipeline relies on:
// non-empty, at least one dot, no spaces, no "@".
func validateDomainName(name string) error {
	if name == "" {
		return fmt.Errorf("field %q: cannot be empty", "domain")
	}
	if !strings.Contains(name, ".") ||
		strings.ContainsAny(name, " @/") ||
		strings.HasPrefix(name, ".") ||
		strings.HasSuffix(name, ".") {
		return fmt.Errorf("field %q: not a valid domain name: %q", "domain", name)
	}
	return nil
}

// validatePhoneNumber accepts digits, spaces, dashes, dots, parentheses and a
// leading plus. Anything else is rejected.
func validatePhoneNumber(number string) error {
	if number == "" {
		return fmt.Errorf("field %q: cannot be empty", "number")
	}
	digits := 0
	for i, r := range number {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == '+' && i == 0:
		case r == ' ' || r == '-' || r == '.' || r == '(' || r == ')':
		default:
			return fmt.Errorf("field %q: not a valid phone number: %q", "number", number)
		}
	}
	if digits < 3 {
		return fmt.Errorf("field %q: not a valid phone number: %q", "number", number)
	}
	return nil
}

func intPtr(v int) *int { return &v }

// Global registry instance for package-level access.
// This is initialized with the built-in catalogue on first access.
var (
	defaultRegistry     *Registry
	defaultRegistryOnce sync.Once
)

// Default returns the process-wide Registry instance, lazily initialized
// with the built-in kind catalogue. Components that need lookup should
// receive a *Registry explicitly; Default exists for the common single-
// registry deployment.
func Default() *Registry {
	defaultRegistryOnce.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}
