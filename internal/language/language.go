// Package language wraps the gqlparser toolchain used to sanity-check
// generated SDL before a configuration is published.
package language

import (
	"fmt"

	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"
)

// ValidateSDL parses and validates a rendered schema document. A failure
// here means the merged configuration is not a legal schema and must not be
// published.
func ValidateSDL(name, sdl string) error {
	if _, err := gqlparser.LoadSchema(&ast.Source{Name: name, Input: sdl}); err != nil {
		return fmt.Errorf("language: invalid schema %s: %w", name, err)
	}
	return nil
}

// ParseQuery parses a graph query document without executing it.
func ParseQuery(source string) (*ast.QueryDocument, error) {
	return parser.ParseQuery(&ast.Source{Input: source})
}
