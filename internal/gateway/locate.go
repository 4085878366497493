package gateway

import (
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"

	"github.com/AlexKimmel/GateQL/internal/ratelimit"
)

// locator maps a response path back to the field that produced it. The
// executor reports resolver errors with a path only.
type locator struct {
	doc *ast.QueryDocument
	op  *ast.OperationDefinition
}

func newLocator(query, operationName string) *locator {
	doc, err := parser.ParseQuery(&ast.Source{Input: query})
	if err != nil || doc == nil {
		return nil
	}
	op := doc.Operations.ForName(operationName)
	if op == nil {
		return nil
	}
	return &locator{doc: doc, op: op}
}

// locate returns the position of the last field on path, or nil.
func (l *locator) locate(path []any) []ratelimit.Location {
	if l == nil || len(path) == 0 {
		return nil
	}
	set := l.op.SelectionSet
	var field *ast.Field
	for _, seg := range path {
		key, ok := seg.(string)
		if !ok {
			continue // list index
		}
		if field = l.find(set, key, 0); field == nil {
			return nil
		}
		set = field.SelectionSet
	}
	if field == nil || field.Position == nil {
		return nil
	}
	return []ratelimit.Location{{Line: field.Position.Line, Column: field.Position.Column}}
}

// find looks for the response key in set, descending into fragments.
func (l *locator) find(set ast.SelectionSet, key string, depth int) *ast.Field {
	if depth > 16 {
		return nil
	}
	for _, sel := range set {
		switch s := sel.(type) {
		case *ast.Field:
			if s.Alias == key {
				return s
			}
		case *ast.InlineFragment:
			if f := l.find(s.SelectionSet, key, depth+1); f != nil {
				return f
			}
		case *ast.FragmentSpread:
			if def := l.doc.Fragments.ForName(s.Name); def != nil {
				if f := l.find(def.SelectionSet, key, depth+1); f != nil {
					return f
				}
			}
		}
	}
	return nil
}
