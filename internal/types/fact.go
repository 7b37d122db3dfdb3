package types

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/mangle/ast"
)

// =============================================================================
// SYMBOLIC FACT TYPES
// =============================================================================
//
// The symbolic-reasoning collaborator consumes and produces Datalog facts.
// The runtime itself never evaluates them; it only formats audit facts
// (intention lifecycle, execution outcomes) for the injected engine.

// Atom represents a Mangle name constant (starting with /).
// This explicit type avoids ambiguity between strings and atoms.
type Atom string

// Fact represents a single logical fact exchanged with the symbolic engine.
type Fact struct {
	Predicate string
	Args      []interface{}
}

func isNameConstant(v string) bool {
	if !strings.HasPrefix(v, "/") {
		return false
	}
	if strings.ContainsAny(v, " \t\n\r") {
		return false
	}
	// Name constants are short tokens like /approved or /tool; anything with
	// multiple path segments is a plain string (a file path, a URL path).
	if strings.Count(v, "/") > 2 {
		return false
	}
	_, err := ast.Name(v)
	return err == nil
}

// String returns the Datalog string representation of the fact.
func (f Fact) String() string {
	var args []string
	for _, arg := range f.Args {
		switch v := arg.(type) {
		case Atom:
			args = append(args, string(v))
		case string:
			if isNameConstant(v) {
				args = append(args, v)
			} else {
				args = append(args, fmt.Sprintf("%q", v))
			}
		case int:
			args = append(args, fmt.Sprintf("%d", v))
		case int64:
			args = append(args, fmt.Sprintf("%d", v))
		case float64:
			args = append(args, fmt.Sprintf("%f", v))
		case bool:
			if v {
				args = append(args, "/true")
			} else {
				args = append(args, "/false")
			}
		default:
			args = append(args, fmt.Sprintf("%v", v))
		}
	}
	return fmt.Sprintf("%s(%s).", f.Predicate, strings.Join(args, ", "))
}

// ToAtom converts a Fact to a Mangle AST atom for direct engine insertion.
func (f Fact) ToAtom() (ast.Atom, error) {
	var terms []ast.BaseTerm
	for _, arg := range f.Args {
		switch v := arg.(type) {
		case Atom:
			s := string(v)
			if !strings.HasPrefix(s, "/") {
				// Malformed Atom values degrade to string constants.
				terms = append(terms, ast.String(s))
				continue
			}
			c, err := ast.Name(s)
			if err != nil {
				return ast.Atom{}, err
			}
			terms = append(terms, c)
		case string:
			if isNameConstant(v) {
				c, _ := ast.Name(v)
				terms = append(terms, c)
			} else {
				terms = append(terms, ast.String(v))
			}
		case int:
			terms = append(terms, ast.Number(int64(v)))
		case int64:
			terms = append(terms, ast.Number(v))
		case float64:
			// Weights live in [-1,1]; scale to integer basis points.
			terms = append(terms, ast.Number(int64(v*100)))
		case time.Time:
			terms = append(terms, ast.Number(v.UnixNano()))
		case time.Duration:
			terms = append(terms, ast.Number(int64(v)))
		case bool:
			if v {
				terms = append(terms, ast.TrueConstant)
			} else {
				terms = append(terms, ast.FalseConstant)
			}
		default:
			terms = append(terms, ast.String(fmt.Sprintf("%v", v)))
		}
	}
	return ast.NewAtom(f.Predicate, terms...), nil
}
