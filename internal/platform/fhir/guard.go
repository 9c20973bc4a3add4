package fhir

import (
	"encoding/json"
	"fmt"

	"github.com/gofhir/fhirpath"
	"github.com/gofhir/fhirpath/types"
)

// Guard is a compiled FHIRPath precondition over a resource. Guards are
// compiled once when a service is built and are safe for concurrent use.
type Guard struct {
	expression string
	compiled   *fhirpath.Expression
}

// CompileGuard compiles a FHIRPath expression into a Guard.
func CompileGuard(expression string) (*Guard, error) {
	compiled, err := fhirpath.Compile(expression)
	if err != nil {
		return nil, fmt.Errorf("compile FHIRPath guard %q: %w", expression, err)
	}
	return &Guard{expression: expression, compiled: compiled}, nil
}

// MustCompileGuard is like CompileGuard but panics on an invalid expression.
// It is meant for package-level guard tables.
func MustCompileGuard(expression string) *Guard {
	g, err := CompileGuard(expression)
	if err != nil {
		panic(err)
	}
	return g
}

// Expression returns the FHIRPath source of the guard.
func (g *Guard) Expression() string {
	return g.expression
}

// Holds evaluates the guard against resource using FHIRPath truthiness:
// an empty result is false, a single boolean is its value, and any other
// non-empty result is true.
func (g *Guard) Holds(resource json.RawMessage) (bool, error) {
	result, err := g.compiled.Evaluate(resource)
	if err != nil {
		return false, fmt.Errorf("evaluate FHIRPath guard %q: %w", g.expression, err)
	}
	return truthy(result), nil
}

// Require returns a *BadRequestError naming location when the guard does not
// hold for resource or the resource cannot be evaluated.
func (g *Guard) Require(location string, resource json.RawMessage) error {
	ok, err := g.Holds(resource)
	if err != nil {
		return NewBadRequest(location, "resource could not be evaluated: %v", err)
	}
	if !ok {
		return NewBadRequest(location, "resource does not satisfy %s", g.expression)
	}
	return nil
}

func truthy(result types.Collection) bool {
	if len(result) == 0 {
		return false
	}
	if len(result) == 1 {
		if b, ok := result[0].(types.Boolean); ok {
			return b.Bool()
		}
	}
	return true
}
