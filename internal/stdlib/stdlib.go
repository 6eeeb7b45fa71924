// Package stdlib resolves the standard-library imports an LCD program can
// name with `import "path";` (§4.C.1). The manifest is a flat YAML mapping
// of import path to LCD source text. The CLI reads it from the file named by
// the --stdlib flag; without that flag it uses Empty().
package stdlib

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Resolver answers `import "path"` by returning the LCD source registered
// under that path.
type Resolver struct {
	sources map[string]string
}

// NewResolver parses a YAML manifest (`path: source` pairs) into a Resolver.
func NewResolver(manifest []byte) (*Resolver, error) {
	var sources map[string]string
	if err := yaml.Unmarshal(manifest, &sources); err != nil {
		return nil, fmt.Errorf("stdlib: parsing manifest: %w", err)
	}
	return &Resolver{sources: sources}, nil
}

// Empty returns a Resolver with no registered paths, for programs that
// don't use `import`.
func Empty() *Resolver {
	return &Resolver{sources: map[string]string{}}
}

// Resolve returns the LCD source registered under path, if any.
func (r *Resolver) Resolve(path string) (string, bool) {
	if r == nil {
		return "", false
	}
	src, ok := r.sources[path]
	return src, ok
}
