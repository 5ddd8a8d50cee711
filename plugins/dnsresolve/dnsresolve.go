// Package dnsresolve resolves domain names to their IP addresses using
// the system resolver, with a bounded per-lookup timeout.
package dnsresolve

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"time"

	"github.com/reconurge/flowsint/entity"
	"github.com/reconurge/flowsint/plugin"
)

// Name is the plugin's registry name.
const Name = "dns_resolve"

// lookupTimeout bounds one DNS lookup. Slow resolvers fail the single
// domain, not the batch.
const lookupTimeout = 5 * time.Second

// Resolver is the lookup dependency, satisfied by *net.Resolver and by
// test doubles.
type Resolver interface {
	LookupHost(ctx context.Context, host string) ([]string, error)
}

// New builds the dns_resolve plugin using the system resolver.
func New(entities *entity.Registry, logger *slog.Logger) (plugin.Plugin, error) {
	return NewWithResolver(entities, net.DefaultResolver, logger)
}

// NewWithResolver builds the plugin with an explicit resolver.
func NewWithResolver(entities *entity.Registry, resolver Resolver, logger *slog.Logger) (plugin.Plugin, error) {
	cfg := plugin.NewConfig(entities)
	cfg.SetName(Name)
	cfg.SetCategory("infrastructure")
	cfg.SetDescription("Resolves a domain name to its IP addresses")
	cfg.SetInputKind(entity.KindDomain)
	cfg.SetOutputKind(entity.KindIp)
	cfg.SetRelationship("RESOLVES_TO")
	if logger != nil {
		cfg.SetLogger(logger)
	}

	p := &resolvePlugin{resolver: resolver}
	cfg.SetExecute(p.execute)
	cfg.SetEnrich(p.enrich)

	return plugin.New(cfg)
}

type resolvePlugin struct {
	resolver Resolver
}

// execute looks up each domain. A failed lookup records zero addresses for
// that domain rather than failing the batch: unresolvable domains are a
// normal finding in an investigation, not an error.
func (p *resolvePlugin) execute(ctx context.Context, entities []entity.Entity) plugin.RawResult {
	resolved := make([]any, 0, len(entities))

	for i, ent := range entities {
		domain, ok := ent.(entity.Domain)
		if !ok {
			continue
		}

		lookupCtx, cancel := context.WithTimeout(ctx, lookupTimeout)
		addrs, err := p.resolver.LookupHost(lookupCtx, domain.Domain)
		cancel()

		if err := ctx.Err(); err != nil {
			if errors.Is(err, context.Canceled) {
				return plugin.Failed("cancelled")
			}
			return plugin.Failed("timeout")
		}
		if err != nil {
			continue
		}

		for _, addr := range addrs {
			resolved = append(resolved, map[string]any{
				"input_index": i,
				"address":     addr,
			})
		}
	}

	return plugin.Ok(map[string]any{"addresses": resolved})
}

func (p *resolvePlugin) enrich(ctx context.Context, res plugin.RawResult, inputs []entity.Entity) ([]plugin.Derivation, error) {
	raw, _ := res.Payload["addresses"].([]any)

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
		addr, ok := record["address"].(string)
		if !ok || addr == "" {
			continue
		}

		derivations = append(derivations, plugin.Derivation{
			Input:  inputs[idx],
			Output: entity.Ip{Address: addr},
		})
	}

	return derivations, nil
}
