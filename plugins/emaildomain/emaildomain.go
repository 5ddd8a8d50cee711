// Package emaildomain extracts the domain part of email addresses. It is
// the canonical built-in enricher: pure computation, no network, useful as
// the first step of almost every email investigation.
package emaildomain

import (
	"context"
	"log/slog"

	"github.com/reconurge/flowsint/entity"
	"github.com/reconurge/flowsint/plugin"
)

// Name is the plugin's registry name.
const Name = "email_to_domain"

// New builds the email_to_domain plugin against the given entity registry.
func New(entities *entity.Registry, logger *slog.Logger) (plugin.Plugin, error) {
	cfg := plugin.NewConfig(entities)
	cfg.SetName(Name)
	cfg.SetCategory("infrastructure")
	cfg.SetDescription("Extracts the domain part of an email address")
	cfg.SetInputKind(entity.KindEmail)
	cfg.SetOutputKind(entity.KindDomain)
	cfg.SetRelationship("HAS_DOMAIN")
	if logger != nil {
		cfg.SetLogger(logger)
	}

	cfg.SetExecute(execute)
	cfg.SetEnrich(enrich)

	return plugin.New(cfg)
}

// execute splits each address on its last "@". Addresses without a domain
// part (already filtered by coercion in practice) yield no entry.
func execute(ctx context.Context, entities []entity.Entity) plugin.RawResult {
	domains := make([]any, 0, len(entities))

	for i, ent := range entities {
		email, ok := ent.(entity.Email)
		if !ok {
			continue
		}

		domain := email.DomainPart()
		if domain == "" {
			continue
		}

		domains = append(domains, map[string]any{
			"input_index": i,
			"domain":      domain,
		})
	}

	return plugin.Ok(map[string]any{"domains": domains})
}

func enrich(ctx context.Context, res plugin.RawResult, inputs []entity.Entity) ([]plugin.Derivation, error) {
	raw, _ := res.Payload["domains"].([]any)

	derivations := make([]plugin.Derivation, 0, len(raw))
	for _, item := range raw {
		record, ok := item.(map[string]any)
		if !ok {
			continue
		}

		idx, ok := record["input_index"].(int)
		if !ok || idx < 0 || idx >= len(inputs) {
			continue
		}
		name, ok := record["domain"].(string)
		if !ok || name == "" {
			continue
		}

		derivations = append(derivations, plugin.Derivation{
			Input:  inputs[idx],
			Output: entity.Domain{Domain: name},
		})
	}

	return derivations, nil
}
