package template

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reconurge/flowsint"
)

const whoisDefinition = `
name: whois_lookup
category: infrastructure
description: Looks up WHOIS data for a domain
input_kind: domain
http:
  method: GET
  url: "https://api.whois.test/v1/{domain}"
  headers:
    Authorization: "Bearer {api_key}"
timeout: 10s
params:
  api_key:
    type: string
    description: WHOIS provider API key
    secret: true
    required: true
output:
  kind: domain
  relationship: REGISTERED_AS
  mapping:
    domain: whois.domain
    registrar: whois.registrar
`

func writeDefinition(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := writeDefinition(t, dir, "whois.yaml", whoisDefinition)

	def, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "whois_lookup", def.Name)
	assert.Equal(t, "domain", def.InputKind)
	assert.Equal(t, "GET", def.HTTP.Method)
	assert.Equal(t, "https://api.whois.test/v1/{domain}", def.HTTP.URL)
	assert.Equal(t, "Bearer {api_key}", def.HTTP.Headers["Authorization"])
	assert.Equal(t, "REGISTERED_AS", def.Output.Relationship)
	assert.Equal(t, "whois.registrar", def.Output.Mapping["registrar"])

	param, ok := def.Params["api_key"]
	require.True(t, ok)
	assert.True(t, param.Secret)
	assert.True(t, param.Required)
}

func TestLoad_UnparseableDocument(t *testing.T) {
	dir := t.TempDir()
	path := writeDefinition(t, dir, "broken.yaml", "name: [unclosed")

	_, err := Load(path)
	require.Error(t, err)
	// The error names the offending file.
	assert.Contains(t, err.Error(), "broken.yaml")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)

	var ferr *flowsint.Error
	require.ErrorAs(t, err, &ferr)
	assert.Equal(t, flowsint.KindTemplate, ferr.Kind)
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	writeDefinition(t, dir, "whois.yaml", whoisDefinition)
	writeDefinition(t, dir, "other.yml", `
name: other
input_kind: ip
http:
  method: GET
  url: "http://svc/{address}"
output:
  kind: ip
  mapping:
    address: ip
`)
	writeDefinition(t, dir, "README.md", "not a definition")

	defs, err := LoadDir(dir)
	require.NoError(t, err)
	require.Len(t, defs, 2)
}

func TestLoadDir_FirstInvalidAborts(t *testing.T) {
	dir := t.TempDir()
	writeDefinition(t, dir, "bad.yaml", ":::not yaml at all [")
	writeDefinition(t, dir, "good.yaml", whoisDefinition)

	_, err := LoadDir(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad.yaml")
}

func TestRequestTimeout(t *testing.T) {
	def := Definition{Timeout: "10s"}
	d, err := def.RequestTimeout(15 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, d)

	def = Definition{}
	d, err = def.RequestTimeout(15 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, 15*time.Second, d)

	def = Definition{Timeout: "soon"}
	_, err = def.RequestTimeout(15 * time.Second)
	assert.Error(t, err)

	def = Definition{Timeout: "-3s"}
	_, err = def.RequestTimeout(15 * time.Second)
	assert.Error(t, err)
}

func TestParamsSchema(t *testing.T) {
	def := Definition{
		Params: map[string]ParamSpec{
			"api_key": {Type: "string", Secret: true, Required: true},
			"region":  {Description: "provider region"},
		},
	}

	s := def.ParamsSchema()
	assert.Equal(t, "object", s.Type)
	assert.True(t, s.Properties["api_key"].Secret)
	assert.Equal(t, "string", s.Properties["region"].Type)
	assert.Equal(t, []string{"api_key"}, s.Required)

	assert.Empty(t, Definition{}.ParamsSchema().Properties)
}
