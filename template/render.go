// Package template builds enrichment plugins from declarative HTTP-call
// definitions: no custom code, just a YAML document describing the request
// to make and how to project the response into output entities.
//
// Definitions are loaded once, validated eagerly, and immutable after load.
// A malformed definition (unknown HTTP method, placeholder not covered by
// the input kind, projection onto an unknown output field) fails fast at
// build time, never at call time.
package template

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/reconurge/flowsint"
	"github.com/reconurge/flowsint/input"
)

// placeholderPattern matches {field} placeholders in URL and header
// templates.
var placeholderPattern = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Render substitutes each {field} placeholder in tmpl with the stringified
// value from bindings.
//
// Render is referentially transparent: identical template and bindings
// always produce an identical string. An unresolved placeholder is a
// template error naming the missing key, never literal text left in the
// output.
func Render(tmpl string, bindings map[string]any) (string, error) {
	var missing []string

	rendered := placeholderPattern.ReplaceAllStringFunc(tmpl, func(match string) string {
		key := match[1 : len(match)-1]
		val, ok := bindings[key]
		if !ok {
			missing = append(missing, key)
			return match
		}
		return input.Stringify(val)
	})

	if len(missing) > 0 {
		return "", flowsint.NewTemplateError("template.Render",
			fmt.Errorf("%w: %s", flowsint.ErrMissingPlaceholder, strings.Join(missing, ", ")))
	}

	return rendered, nil
}

// Placeholders returns the distinct placeholder names referenced in tmpl,
// in order of first appearance.
func Placeholders(tmpl string) []string {
	seen := make(map[string]bool)
	var names []string

	for _, match := range placeholderPattern.FindAllStringSubmatch(tmpl, -1) {
		name := match[1]
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}

	return names
}

// LookupPath resolves a dot path (e.g. "whois.registrar" or "records.0.value")
// against a decoded JSON value. Path segments index into maps by key and
// into arrays by decimal position. Returns the resolved value and whether
// every segment resolved.
func LookupPath(body any, path string) (any, bool) {
	if path == "" {
		return body, true
	}

	current := body
	for _, segment := range strings.Split(path, ".") {
		switch node := current.(type) {
		case map[string]any:
			val, ok := node[segment]
			if !ok {
				return nil, false
			}
			current = val
		case []any:
			idx, err := parseIndex(segment)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, false
			}
			current = node[idx]
		default:
			return nil, false
		}
	}

	return current, true
}

func parseIndex(segment string) (int, error) {
	idx := 0
	if segment == "" {
		return 0, fmt.Errorf("empty index")
	}
	for _, r := range segment {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("not an index: %q", segment)
		}
		idx = idx*10 + int(r-'0')
	}
	return idx, nil
}
