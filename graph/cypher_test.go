package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidIdentifier(t *testing.T) {
	tests := []struct {
		ident string
		want  bool
	}{
		{"domain", true},
		{"HAS_DOMAIN", true},
		{"_private", true},
		{"x2", true},
		{"", false},
		{"2fast", false},
		{"has-domain", false},
		{"drop all;//", false},
		{"n) DETACH DELETE (m", false},
	}

	for _, tt := range tests {
		t.Run(tt.ident, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidIdentifier(tt.ident))
		})
	}
}

func TestBuildMergeNode(t *testing.T) {
	node := Node{
		Key:      "domain:abc123",
		SketchID: "sk-1",
		Kind:     "domain",
		Label:    "example.com",
		Properties: map[string]any{
			"domain":    "example.com",
			"registrar": "R",
		},
	}

	query, params, err := BuildMergeNode(node)
	require.NoError(t, err)

	assert.Contains(t, query, "MERGE (n:domain {sketch_id: $sketch_id, key: $key})")
	assert.Contains(t, query, "SET n += $props")
	assert.Equal(t, "sk-1", params["sketch_id"])
	assert.Equal(t, "domain:abc123", params["key"])
	assert.Equal(t, "example.com", params["label"])
	assert.Equal(t, node.Properties, params["props"])
}

func TestBuildMergeNode_RejectsUnsafeKind(t *testing.T) {
	node := Node{
		Key:      "x:1",
		SketchID: "sk-1",
		Kind:     "domain) DETACH DELETE (n",
	}

	_, _, err := BuildMergeNode(node)
	assert.Error(t, err)
}

func TestBuildMergeNode_RequiredFields(t *testing.T) {
	_, _, err := BuildMergeNode(Node{Kind: "domain", SketchID: "sk-1"})
	assert.Error(t, err)

	_, _, err = BuildMergeNode(Node{Kind: "domain", Key: "k"})
	assert.Error(t, err)
}

func TestBuildMergeRelationship(t *testing.T) {
	rel := Relationship{
		SketchID: "sk-1",
		FromKey:  "email:aaa",
		ToKey:    "domain:bbb",
		Type:     "HAS_DOMAIN",
	}

	query, params, err := BuildMergeRelationship(rel)
	require.NoError(t, err)

	assert.Contains(t, query, "MATCH (a {sketch_id: $sketch_id, key: $from_key})")
	assert.Contains(t, query, "MERGE (a)-[r:HAS_DOMAIN]->(b)")
	assert.Equal(t, "email:aaa", params["from_key"])
	assert.Equal(t, "domain:bbb", params["to_key"])
	assert.Equal(t, map[string]any{}, params["props"])
}

func TestBuildMergeRelationship_RejectsUnsafeType(t *testing.T) {
	rel := Relationship{
		SketchID: "sk-1",
		FromKey:  "a",
		ToKey:    "b",
		Type:     "HAS]->(x) DELETE x //",
	}

	_, _, err := BuildMergeRelationship(rel)
	assert.Error(t, err)
}
