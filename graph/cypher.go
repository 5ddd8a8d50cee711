package graph

import (
	"fmt"
	"regexp"
)

// Node labels and relationship types are interpolated into query text
// (Cypher does not parameterize them), so they are restricted to a safe
// identifier set.
var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidIdentifier reports whether s is safe to interpolate as a node label
// or relationship type.
func ValidIdentifier(s string) bool {
	return identifierPattern.MatchString(s)
}

// BuildMergeNode generates a single atomic MERGE statement for a node and
// the parameter map to run it with. The node is matched on (sketch_id, key);
// a second run with the same key updates properties instead of creating a
// duplicate.
//
// Example query:
//
//	MERGE (n:domain {sketch_id: $sketch_id, key: $key})
//	SET n += $props, n.label = $label, n.updated_at = timestamp()
func BuildMergeNode(n Node) (string, map[string]any, error) {
	if !ValidIdentifier(n.Kind) {
		return "", nil, fmt.Errorf("invalid node kind %q", n.Kind)
	}
	if n.Key == "" {
		return "", nil, fmt.Errorf("node key cannot be empty")
	}
	if n.SketchID == "" {
		return "", nil, fmt.Errorf("sketch id cannot be empty")
	}

	query := fmt.Sprintf(
		"MERGE (n:%s {sketch_id: $sketch_id, key: $key}) "+
			"SET n += $props, n.label = $label, n.updated_at = timestamp()",
		n.Kind)

	params := map[string]any{
		"sketch_id": n.SketchID,
		"key":       n.Key,
		"label":     n.Label,
		"props":     n.Properties,
	}

	return query, params, nil
}

// BuildMergeRelationship generates a single atomic MERGE statement for a
// relationship keyed by the ordered (from, to, type) triple within one
// sketch. Endpoints are matched on their node keys; the relationship is
// merged so repeated calls with identical keys create no duplicate edge.
//
// Example query:
//
//	MATCH (a {sketch_id: $sketch_id, key: $from_key})
//	MATCH (b {sketch_id: $sketch_id, key: $to_key})
//	MERGE (a)-[r:HAS_DOMAIN]->(b)
//	SET r += $props
func BuildMergeRelationship(rel Relationship) (string, map[string]any, error) {
	if !ValidIdentifier(rel.Type) {
		return "", nil, fmt.Errorf("invalid relationship type %q", rel.Type)
	}
	if rel.FromKey == "" || rel.ToKey == "" {
		return "", nil, fmt.Errorf("relationship endpoints cannot be empty")
	}
	if rel.SketchID == "" {
		return "", nil, fmt.Errorf("sketch id cannot be empty")
	}

	query := fmt.Sprintf(
		"MATCH (a {sketch_id: $sketch_id, key: $from_key}) "+
			"MATCH (b {sketch_id: $sketch_id, key: $to_key}) "+
			"MERGE (a)-[r:%s]->(b) "+
			"SET r += $props",
		rel.Type)

	props := rel.Properties
	if props == nil {
		props = map[string]any{}
	}

	params := map[string]any{
		"sketch_id": rel.SketchID,
		"from_key":  rel.FromKey,
		"to_key":    rel.ToKey,
		"props":     props,
	}

	return query, params, nil
}
