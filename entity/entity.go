// Package entity provides the canonical catalogue of entity kinds and their
// validation schemas.
//
// An entity is a typed, immutable record representing a real-world observable
// (a domain, an IP address, an email, ...). Every entity exposes a kind name,
// a natural key that makes it unique within a sketch, and a derived
// human-readable label for graph display. Two entities with equal kind and
// natural key are the same logical entity.
//
// The Registry normalizes heterogeneous raw values (bare scalars, maps,
// already-typed entities) into validated entity records. Registration is
// append-only at process start; lookups never mutate the registry.
package entity

// Canonical entity kind names. Lookup is case-insensitive; these constants
// are the canonical lowercase forms.
const (
	KindDomain       = "domain"
	KindIp           = "ip"
	KindEmail        = "email"
	KindUsername     = "username"
	KindIndividual   = "individual"
	KindOrganization = "organization"
	KindPhone        = "phone"
	KindUrl          = "url"
)

// Entity represents a typed, validated record in a sketch.
//
// Implementations are immutable value structs. The interface follows the
// natural-key pattern used for graph materialization:
//
//  1. Kind() - Returns the canonical kind name (e.g., "domain", "ip")
//  2. NaturalKey() - Returns the field(s) that make the entity unique within a sketch
//  3. Label() - Returns the derived human-readable label for graph display
//  4. Properties() - Returns all properties to set on the graph node
//
// Example usage:
//
//	d := entity.Domain{Domain: "example.com", Registrar: "GoDaddy"}
//	d.Kind()       // "domain"
//	d.NaturalKey() // {"domain": "example.com"}
//	d.Label()      // "example.com"
//	d.Properties() // {"domain": "example.com", "registrar": "GoDaddy"}
type Entity interface {
	// Kind returns the canonical entity kind name.
	Kind() string

	// NaturalKey returns the properties that uniquely identify this entity
	// within a sketch. These are used for deterministic node key generation
	// and deduplication.
	NaturalKey() map[string]any

	// Label returns the human-readable label used for graph display.
	// Label is a pure function of the entity's defining fields.
	Label() string

	// Properties returns all properties to set on the graph node.
	// Properties with empty values are omitted.
	Properties() map[string]any
}

// SameEntity reports whether two entities are the same logical entity:
// equal kind and equal natural key.
func SameEntity(a, b Entity) bool {
	if a == nil || b == nil {
		return false
	}
	if a.Kind() != b.Kind() {
		return false
	}

	ka, kb := a.NaturalKey(), b.NaturalKey()
	if len(ka) != len(kb) {
		return false
	}
	for field, val := range ka {
		if kb[field] != val {
			return false
		}
	}
	return true
}
